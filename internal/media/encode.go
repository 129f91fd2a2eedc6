package media

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
)

// EncodeResult is delivered when an asynchronous encode completes.
type EncodeResult struct {
	// Payload is the transport-safe base64 encoding of the attachment.
	Payload string
	// Preview is a locally renderable locator (data URI) for showing
	// the attachment before the service stores it.
	Preview string
	Err     error
}

// Encode reads and base64-encodes an attachment off the caller's
// goroutine. The caller suspends only on the returned channel; nothing
// else blocks while the file is read. The channel is buffered, so an
// abandoned encode never leaks the worker.
func Encode(ctx context.Context, mimeType string, r io.Reader) <-chan EncodeResult {
	out := make(chan EncodeResult, 1)

	go func() {
		defer close(out)

		data, err := readAll(ctx, r)
		if err != nil {
			out <- EncodeResult{Err: fmt.Errorf("reading attachment: %w", err)}
			return
		}
		payload := base64.StdEncoding.EncodeToString(data)
		out <- EncodeResult{
			Payload: payload,
			Preview: "data:" + mimeType + ";base64," + payload,
		}
	}()

	return out
}

// readAll is io.ReadAll with cancellation checks between chunks, so a
// disconnect does not leave a large read running to completion.
func readAll(ctx context.Context, r io.Reader) ([]byte, error) {
	var buf []byte
	chunk := make([]byte, 64<<10)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := r.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if err == io.EOF {
			return buf, nil
		}
		if err != nil {
			return nil, err
		}
	}
}
