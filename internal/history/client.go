package history

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	// httpClientTimeout is the timeout for the default HTTP client used
	// when no custom client is provided.
	httpClientTimeout = 30 * time.Second

	// maxResponseBytes caps response body reads so a misbehaving server
	// cannot consume unbounded memory.
	maxResponseBytes = 8 << 20
)

// Page is one page of the paginated conversation history.
type Page struct {
	Status     string     `json:"status"`
	Data       []Item     `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// Item is one stored submission, with the replies it received.
type Item struct {
	MessageType     string  `json:"message_type"`
	Content         string  `json:"content"`
	ClientTimestamp string  `json:"client_timestamp"`
	IsSystem        bool    `json:"is_system"`
	Replies         []Reply `json:"replies"`
}

// Reply is a service reply nested under a history item.
type Reply struct {
	ReplyType string `json:"reply_type"`
	Content   string `json:"content"`
	IsSystem  bool   `json:"is_system"`
}

// Pagination is the cursor block of a history response.
type Pagination struct {
	Total   int  `json:"total"`
	HasMore bool `json:"has_more"`
	Offset  int  `json:"offset"`
	Limit   int  `json:"limit"`
}

// Client fetches history pages from the chat service.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a history client for the given service origin.
// If httpClient is nil, a client with a 30-second timeout is used.
func NewClient(origin string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: httpClientTimeout}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    origin,
	}
}

// FetchPage requests one history page. Any transport, status, or
// decode failure is returned as an error with nothing applied.
func (c *Client) FetchPage(ctx context.Context, clientID string, limit, offset int) (*Page, error) {
	endpoint := fmt.Sprintf("%s/chat-history/%s?limit=%d&offset=%d",
		c.baseURL, url.PathEscape(clientID), limit, offset)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching history page: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading history response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("history request returned status %d", resp.StatusCode)
	}

	var page Page
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("decoding history response: %w", err)
	}
	if page.Status != "success" {
		return nil, fmt.Errorf("history request failed: status %q", page.Status)
	}
	return &page, nil
}
