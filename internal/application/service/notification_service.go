package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/record-workflow/internal/application/port"
	"github.com/garyjia/record-workflow/internal/domain/apperror"
	"github.com/garyjia/record-workflow/internal/domain/event"
	"github.com/garyjia/record-workflow/internal/domain/kind"
	"golang.org/x/sync/errgroup"
)

// DeliveryOutcome is the result of one send attempt
type DeliveryOutcome struct {
	Recipient string
	Delivered bool
	Err       error
}

// NotificationService delivers best-effort transition notifications
type NotificationService interface {
	// Notify sends message to each recipient independently and reports one outcome per recipient.
	// It never fails as a whole; failures are logged and counted.
	Notify(ctx context.Context, recipients []string, message string) []DeliveryOutcome

	// HandleEvent renders and delivers the notification for a transition event
	HandleEvent(ctx context.Context, evt *event.Event) error
}

type notificationServiceImpl struct {
	transport   port.NotificationTransport
	registry    *kind.Registry
	metrics     port.Metrics
	logger      Logger
	sendTimeout time.Duration
	concurrency int
}

// NotificationOption configures the notification service
type NotificationOption func(*notificationServiceImpl)

// WithSendTimeout bounds each individual send
func WithSendTimeout(d time.Duration) NotificationOption {
	return func(s *notificationServiceImpl) {
		if d > 0 {
			s.sendTimeout = d
		}
	}
}

// WithConcurrency bounds parallel sends per notification
func WithConcurrency(n int) NotificationOption {
	return func(s *notificationServiceImpl) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithNotificationMetrics records delivery outcomes
func WithNotificationMetrics(m port.Metrics) NotificationOption {
	return func(s *notificationServiceImpl) {
		if m != nil {
			s.metrics = m
		}
	}
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(
	transport port.NotificationTransport,
	registry *kind.Registry,
	logger Logger,
	opts ...NotificationOption,
) NotificationService {
	if logger == nil {
		logger = nopLogger{}
	}
	s := &notificationServiceImpl{
		transport:   transport,
		registry:    registry,
		metrics:     port.NopMetrics{},
		logger:      logger,
		sendTimeout: 5 * time.Second,
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *notificationServiceImpl) Notify(ctx context.Context, recipients []string, message string) []DeliveryOutcome {
	outcomes := make([]DeliveryOutcome, len(recipients))

	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for i, recipient := range recipients {
		g.Go(func() error {
			outcomes[i] = s.deliver(ctx, recipient, message)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (s *notificationServiceImpl) deliver(ctx context.Context, recipient, message string) (out DeliveryOutcome) {
	out.Recipient = recipient

	defer func() {
		if r := recover(); r != nil {
			out.Delivered = false
			out.Err = apperror.Notification(recipient, fmt.Errorf("transport panic: %v", r))
		}
		if out.Err != nil {
			s.logger.Error("Notification delivery failed",
				"recipient", recipient,
				"error", out.Err,
			)
		}
	}()

	sctx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()

	if err := s.transport.Send(sctx, recipient, message); err != nil {
		out.Err = apperror.Notification(recipient, err)
		return out
	}
	out.Delivered = true
	return out
}

func (s *notificationServiceImpl) HandleEvent(ctx context.Context, evt *event.Event) error {
	message, err := RenderMessage(evt)
	if err != nil {
		s.logger.Error("Failed to render notification", "event_type", evt.Type, "item_id", evt.ItemID, "error", err)
		return err
	}

	recipients := s.recipients(evt)
	if len(recipients) == 0 {
		return nil
	}

	delivered := 0
	for _, o := range s.Notify(ctx, recipients, message) {
		s.metrics.ObserveNotification(evt.Kind, string(evt.Type), o.Delivered)
		if o.Delivered {
			delivered++
		}
	}

	s.logger.Info("Notifications dispatched",
		"event_type", evt.Type,
		"item_id", evt.ItemID,
		"recipients", len(recipients),
		"delivered", delivered,
	)
	return nil
}

// recipients collects submitter, assignee and kind watchers, dropping blanks and duplicates
func (s *notificationServiceImpl) recipients(evt *event.Event) []string {
	var candidates []string
	if evt.Item != nil {
		candidates = append(candidates, evt.Item.SubmittedBy.Contact)
		if evt.Item.AssignedTo != nil {
			candidates = append(candidates, evt.Item.AssignedTo.Contact)
		}
	}
	if s.registry != nil {
		if d, ok := s.registry.Get(evt.Kind); ok {
			candidates = append(candidates, d.Watchers...)
		}
	}

	seen := make(map[string]bool, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
