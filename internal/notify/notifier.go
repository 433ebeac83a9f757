// Package notify forwards feed and simulation alerts to chat channels
// (Telegram, Discord), filtered by event name.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/venuebook/internal/domain"
)

// Event names accepted in the notify.events filter.
const (
	EventSignalPrefix      = "signal."
	EventSimulationWarning = "simulation.warning"
	EventSimulationFailed  = "simulation.failed"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches to every Sender. Only events in the allowed set are
// forwarded; an empty set allows everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier for senders, allowing the listed events.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return len(n.senders) > 0
}

// Notify sends title and message if event passes the filter.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// HandleEvent turns bus events worth an alert into notifications: raised
// signals of warning or error severity, simulations flagged with a warning,
// and delayed simulations that found no book.
func (n *Notifier) HandleEvent(ctx context.Context, evt domain.Event) {
	if !n.Enabled() {
		return
	}
	event, title, message, ok := describe(evt)
	if !ok {
		return
	}
	if err := n.Notify(ctx, event, title, message); err != nil {
		n.logger.WarnContext(ctx, "notify failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func describe(evt domain.Event) (event, title, message string, ok bool) {
	book := string(evt.Venue) + " " + evt.Instrument
	switch evt.Type {
	case domain.EventSignalRaised:
		if evt.Signal == nil || evt.Signal.Severity == domain.SeverityInfo {
			return "", "", "", false
		}
		return EventSignalPrefix + string(evt.Signal.Kind),
			fmt.Sprintf("[%s] %s", strings.ToUpper(string(evt.Signal.Severity)), book),
			evt.Signal.Message, true
	case domain.EventSimulation:
		if evt.Simulation == nil || !evt.Simulation.Warning {
			return "", "", "", false
		}
		s := evt.Simulation
		return EventSimulationWarning,
			"High impact simulation " + book,
			fmt.Sprintf("%s %s %g: avg %.2f, slippage %.2f bps, %d levels",
				s.Request.Side, s.Request.OrderType, s.Request.Quantity, s.AveragePrice, s.SlippageBps, s.LevelsTouched), true
	case domain.EventSimFailed:
		return EventSimulationFailed, "Delayed simulation failed " + book, evt.Error, true
	}
	return "", "", "", false
}

// dispatch sends to every sender; one failure does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
