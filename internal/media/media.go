package media

import (
	"fmt"
	"strings"
)

// Category is the media category of an attachment.
type Category string

const (
	CategoryText  Category = "text"
	CategoryImage Category = "image"
	CategoryVideo Category = "video"
	CategoryVoice Category = "voice"
)

// Byte ceilings per category. An attachment exactly at the ceiling is
// accepted; one byte over is rejected.
const (
	MaxImageBytes = 5 << 20
	MaxVideoBytes = 10 << 20
	MaxVoiceBytes = 5 << 20
)

// allowedMimeTypes maps accepted mime types to their category,
// mirroring the service's media contract.
var allowedMimeTypes = map[string]Category{
	"image/jpeg": CategoryImage,
	"image/png":  CategoryImage,
	"image/gif":  CategoryImage,

	"video/mp4":        CategoryVideo,
	"video/webm":       CategoryVideo,
	"video/quicktime":  CategoryVideo,
	"video/x-msvideo":  CategoryVideo,
	"video/x-matroska": CategoryVideo,
	"video/3gpp":       CategoryVideo,

	"audio/wav":  CategoryVoice,
	"audio/wave": CategoryVoice,
	"audio/mpeg": CategoryVoice,
	"audio/mp4":  CategoryVoice,

	"text/plain": CategoryText,
}

// RejectReason is a typed attachment rejection. Validation never
// drops silently: every rejection names its reason.
type RejectReason string

const (
	RejectNotAllowedType RejectReason = "not-allowed-type"
	RejectEmptyFile      RejectReason = "empty-file"
	RejectTooLarge       RejectReason = "too-large"
	RejectNoFilename     RejectReason = "no-filename"
)

// ValidationError carries the rejection reason for an attachment.
type ValidationError struct {
	Reason   RejectReason
	MimeType string
	Size     int64
	Limit    int64
}

func (e *ValidationError) Error() string {
	switch e.Reason {
	case RejectTooLarge:
		return fmt.Sprintf("attachment rejected (%s): %d bytes exceeds %d byte limit for %s",
			e.Reason, e.Size, e.Limit, e.MimeType)
	default:
		return fmt.Sprintf("attachment rejected (%s): %s", e.Reason, e.MimeType)
	}
}

// Classify maps a mime type to a media category. Unlisted types are
// rejected with a not-allowed-type error. Parameters after ";" are
// ignored, so "audio/wav; codecs=1" still classifies.
func Classify(mimeType string) (Category, error) {
	base := strings.TrimSpace(strings.ToLower(mimeType))
	if i := strings.IndexByte(base, ';'); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}
	cat, ok := allowedMimeTypes[base]
	if !ok {
		return "", &ValidationError{Reason: RejectNotAllowedType, MimeType: mimeType}
	}
	return cat, nil
}

// maxBytes returns the outgoing byte ceiling for a category. Text has
// no attachment ceiling here; the service enforces its own limits.
func maxBytes(cat Category) int64 {
	switch cat {
	case CategoryImage:
		return MaxImageBytes
	case CategoryVideo:
		return MaxVideoBytes
	case CategoryVoice:
		return MaxVoiceBytes
	default:
		return 0
	}
}

// Validate checks an outgoing attachment before any transport work is
// done. The mime type must be allow-listed, the payload non-empty and
// within the category ceiling, and media submissions need a filename.
func Validate(mimeType, filename string, size int64) (Category, error) {
	cat, err := Classify(mimeType)
	if err != nil {
		return "", err
	}

	if cat != CategoryText && filename == "" {
		return "", &ValidationError{Reason: RejectNoFilename, MimeType: mimeType}
	}
	if size <= 0 {
		return "", &ValidationError{Reason: RejectEmptyFile, MimeType: mimeType, Size: size}
	}
	if limit := maxBytes(cat); limit > 0 && size > limit {
		return "", &ValidationError{Reason: RejectTooLarge, MimeType: mimeType, Size: size, Limit: limit}
	}
	return cat, nil
}
