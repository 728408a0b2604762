// Package notify delivers scan alerts to chat channels. Notifications are
// dispatched to every registered sender (Discord, Telegram) and can be
// filtered by event type.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/ftarb/internal/metrics"
)

// Event types.
const (
	EventOpportunity = "opportunity"
	EventError       = "error"
)

// Field is one named entry of a Message.
type Field struct {
	Name  string
	Value string
}

// Message is a channel-neutral notification.
type Message struct {
	Title       string
	Description string
	Fields      []Field
	Timestamp   time.Time
}

// Text renders the message as plain text.
func (m Message) Text() string {
	var b strings.Builder
	b.WriteString(m.Description)
	for _, f := range m.Fields {
		b.WriteString("\n\n")
		b.WriteString(f.Name)
		b.WriteString("\n")
		b.WriteString(f.Value)
	}
	return b.String()
}

// Sender is the interface that each notification channel must implement.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier dispatches notifications to one or more Senders, forwarding only
// the configured event types.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that will deliver to the given senders. If
// events is empty, all event types are allowed.
func NewNotifier(senders []Sender, events []string, m *metrics.Metrics, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		metrics: m,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && len(n.senders) > 0
}

// Notify sends msg to every sender if event is allowed. A failing sender
// does not prevent delivery to the others; failures are logged and returned
// combined.
func (n *Notifier) Notify(ctx context.Context, event string, msg Message) error {
	if !n.Enabled() {
		return nil
	}
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	var errs []string
	for _, s := range n.senders {
		err := s.Send(ctx, msg)
		n.metrics.ObserveNotification(s.Name(), err)
		if err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", msg.Title),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
