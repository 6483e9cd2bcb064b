package form

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrSubmissionFailed is returned when the form POST did not complete
var ErrSubmissionFailed = errors.New("submission failed")

// DefaultTimeout bounds one form submission
const DefaultTimeout = 30 * time.Second

// Expense is one confirmed record as sent to the form
type Expense struct {
	Amount      string
	Category    string
	Method      string
	Description string
}

// Client posts expenses to the configured form
type Client struct {
	httpClient *http.Client
	url        string
	fields     Fields
}

// NewClient creates a new form Client
func NewClient(cfg Config, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		url:        cfg.URL,
		fields:     cfg.Fields,
	}
}

// values encodes the expense using the form's field identifiers
func (c *Client) values(e Expense) url.Values {
	data := url.Values{}
	data.Set(c.fields.Amount, e.Amount)
	data.Set(c.fields.Category, e.Category)
	data.Set(c.fields.Method, e.Method)
	if c.fields.Description != "" {
		data.Set(c.fields.Description, e.Description)
	}
	return data
}

// Submit posts the expense. The form sink does not let callers read its
// response, so any response that arrives counts as success; only transport
// failures are reported.
func (c *Client) Submit(ctx context.Context, e Expense) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(c.values(e).Encode()))
	if err != nil {
		return fmt.Errorf("%w: creating request: %w", ErrSubmissionFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	slog.Debug("Form response", "status", resp.StatusCode)
	return nil
}
