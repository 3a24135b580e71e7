// Package notify delivers lifecycle events to configured webhook
// endpoints. Delivery is asynchronous and best effort: a failed or slow
// endpoint never affects the operation that emitted the event.
package notify

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"repofetch/internal/config"
	"repofetch/internal/logging"
)

// EventType represents the type of notification event
type EventType string

const (
	EventFetchCompleted EventType = "fetch_completed"
	EventFetchFailed    EventType = "fetch_failed"
	EventCloneCreated   EventType = "clone_created"
	EventCloneEvicted   EventType = "clone_evicted"
	EventCloneRemoved   EventType = "clone_removed"
)

// Event represents a notification event
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Source    string          `json:"source"`
	Data      json.RawMessage `json:"data"`
}

// NewEvent creates an event with a fresh ID and the current time.
func NewEvent(eventType EventType, source string, data interface{}) (*Event, error) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Source:    source,
		Data:      dataJSON,
	}, nil
}

// Notifier receives lifecycle events.
type Notifier interface {
	Emit(event *Event)
}

// Nop returns a Notifier that discards all events.
func Nop() Notifier { return nopNotifier{} }

type nopNotifier struct{}

func (nopNotifier) Emit(*Event) {}

// WebhookNotifier posts events to the webhook endpoints from the
// configuration.
type WebhookNotifier struct {
	endpoints []config.WebhookConfig
	client    *http.Client
	logger    *logging.Logger
	wg        sync.WaitGroup
}

// NewWebhookNotifier creates a notifier for the configured endpoints.
func NewWebhookNotifier(endpoints []config.WebhookConfig, logger *logging.Logger) *WebhookNotifier {
	if logger == nil {
		logger = logging.Nop()
	}
	return &WebhookNotifier{
		endpoints: endpoints,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// Emit delivers the event to every endpoint subscribed to its type.
// Deliveries run in the background; Emit never blocks on the network.
func (n *WebhookNotifier) Emit(event *Event) {
	for _, endpoint := range n.endpoints {
		if !subscribed(endpoint, event.Type) {
			continue
		}
		ep := endpoint
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.deliver(ep, event)
		}()
	}
}

// Close waits for in-flight deliveries to finish, up to timeout.
func (n *WebhookNotifier) Close(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("webhook deliveries still in flight after %s", timeout)
	}
}

// subscribed reports whether the endpoint wants this event type. An
// empty event list subscribes to everything.
func subscribed(endpoint config.WebhookConfig, eventType EventType) bool {
	if len(endpoint.Events) == 0 {
		return true
	}
	for _, e := range endpoint.Events {
		if EventType(e) == eventType {
			return true
		}
	}
	return false
}

func (n *WebhookNotifier) deliver(endpoint config.WebhookConfig, event *Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		n.logger.Error("Failed to encode event payload", map[string]interface{}{
			"eventId": event.ID,
			"error":   err.Error(),
		})
		return
	}

	req, err := http.NewRequest("POST", endpoint.URL, bytes.NewReader(payload))
	if err != nil {
		n.logger.Warn("Failed to build webhook request", map[string]interface{}{
			"endpoint": endpoint.Name,
			"error":    err.Error(),
		})
		return
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "repofetch-webhook/1.0")
	req.Header.Set("X-Repofetch-Event-ID", event.ID)
	req.Header.Set("X-Repofetch-Event-Type", string(event.Type))
	if endpoint.Secret != "" {
		req.Header.Set("X-Repofetch-Signature-256", "sha256="+signPayload(payload, endpoint.Secret))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("Webhook delivery failed", map[string]interface{}{
			"endpoint": endpoint.Name,
			"eventId":  event.ID,
			"error":    err.Error(),
		})
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 10*1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		n.logger.Warn("Webhook delivery rejected", map[string]interface{}{
			"endpoint":     endpoint.Name,
			"eventId":      event.ID,
			"responseCode": resp.StatusCode,
		})
		return
	}

	n.logger.Debug("Webhook delivered", map[string]interface{}{
		"endpoint":     endpoint.Name,
		"eventId":      event.ID,
		"responseCode": resp.StatusCode,
	})
}

// signPayload creates an HMAC-SHA256 signature
func signPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
