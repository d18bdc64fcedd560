package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/driftpad/driftpad/pkg/protocol"
)

// rejectedError reports a subscription the server refused (expired token,
// missing project). Redialing cannot succeed without user action, so the
// stream is closed instead of retried.
type rejectedError struct {
	status int
}

func (e *rejectedError) Error() string {
	return fmt.Sprintf("event stream rejected: server returned %d", e.status)
}

// Events subscribes to a project's file-change event stream. The returned
// channel closes when ctx is cancelled; the client reconnects with backoff
// on transport failures. A server rejection (4xx) closes the channel —
// resubscribing after re-auth is the caller's move.
func (c *Client) Events(ctx context.Context, projectID string) <-chan protocol.FileEvent {
	events := make(chan protocol.FileEvent, 64)

	go func() {
		defer close(events)

		delay := time.Second
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			if err := c.streamEvents(ctx, projectID, events); err != nil && ctx.Err() == nil {
				var rejected *rejectedError
				if errors.As(err, &rejected) {
					return
				}
				select {
				case <-ctx.Done():
					return
				case <-time.After(delay):
				}
				delay *= 2
				if delay > 30*time.Second {
					delay = 30 * time.Second
				}
				continue
			}
			delay = time.Second
		}
	}()

	return events
}

func (c *Client) streamEvents(ctx context.Context, projectID string, events chan<- protocol.FileEvent) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/v1/projects/"+projectID+"/events", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	c.applyAuth(req)

	// SSE connections are long-lived; bypass the default client timeout.
	streamClient := &http.Client{Transport: c.httpClient.Transport}
	resp, err := streamClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return &rejectedError{status: resp.StatusCode}
		}
		return fmt.Errorf("event stream: server returned %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}

		var event protocol.FileEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			continue
		}
		select {
		case events <- event:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return scanner.Err()
}
