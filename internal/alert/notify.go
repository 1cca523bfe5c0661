package alert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Notifier posts limiter messages to an ntfy-style notification endpoint.
// Delivery is fire-and-forget from the engine's perspective; a failed send is
// logged by the caller and otherwise dropped.
type Notifier struct {
	endpoint string
	client   *http.Client
}

// NewNotifier creates a Notifier. A nil client falls back to
// http.DefaultClient.
func NewNotifier(endpoint string, client *http.Client) *Notifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &Notifier{endpoint: endpoint, client: client}
}

// Enabled reports whether an endpoint is configured at all.
func (n *Notifier) Enabled() bool { return n.endpoint != "" }

// Send posts the message using HTTP POST with the title carried in a header.
func (n *Notifier) Send(ctx context.Context, title, message string) error {
	if n.endpoint == "" {
		return errors.New("notifier: no endpoint configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")
	if title != "" {
		req.Header.Set("X-Title", title)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification failed: status=%d", resp.StatusCode)
	}
	return nil
}
