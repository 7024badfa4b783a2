package port

import (
	"context"
	"time"
)

// NotificationTransport delivers a plain-text message to one contact
type NotificationTransport interface {
	Send(ctx context.Context, contact, message string) error
}

// FieldValidator checks raw input fields
type FieldValidator interface {
	// AssertRequired returns the names of fields that are missing or blank
	AssertRequired(record map[string]any, fields []string) []string
	IsValidEmail(value string) bool
	IsValidPhone(value string) bool
}

// Metrics records engine activity
type Metrics interface {
	ObserveOperation(operation, kind, code string, elapsed time.Duration)
	ObserveTransition(kind, from, to string)
	ObserveNotification(kind, eventType string, delivered bool)
	ObserveCache(hit bool)
}

// NopMetrics discards every observation
type NopMetrics struct{}

func (NopMetrics) ObserveOperation(string, string, string, time.Duration) {}
func (NopMetrics) ObserveTransition(string, string, string)               {}
func (NopMetrics) ObserveNotification(string, string, bool)               {}
func (NopMetrics) ObserveCache(bool)                                      {}
