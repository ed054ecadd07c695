// Package models - webhook.go defines the Webhook subscription model and the
// per-attempt WebhookDelivery record.
package models

import "time"

// Webhook represents one outbound event subscription owned by a user.
// SuccessCount and FailureCount are monotonically non-decreasing running
// counters; Secret, when non-empty, signs every delivery.
type Webhook struct {
	ID             string
	UserID         string
	Name           string
	URL            string
	Secret         string
	Events         []string
	IsActive       bool
	TimeoutSeconds int
	SuccessCount   int
	FailureCount   int
	LastTriggered  *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SubscribedTo reports whether the webhook subscribes to the given event name.
func (w *Webhook) SubscribedTo(event string) bool {
	for _, e := range w.Events {
		if e == event {
			return true
		}
	}
	return false
}

// WebhookDelivery records the outcome of one attempted webhook HTTP call.
// StatusCode is nil when the attempt failed at the transport level (timeout or
// connection error) before any HTTP status was received. Rows are append-only
// except for retry bookkeeping, which updates RetryCount and StatusCode on the
// original row.
type WebhookDelivery struct {
	ID           string
	WebhookID    string
	Event        string
	Payload      string
	StatusCode   *int
	ResponseBody string
	ErrorMessage string
	DurationMS   int
	RetryCount   int
	CreatedAt    time.Time
}

// Succeeded reports whether the recorded status code is in [200,300).
// Redirects count as failure.
func (d *WebhookDelivery) Succeeded() bool {
	return d.StatusCode != nil && *d.StatusCode >= 200 && *d.StatusCode < 300
}
