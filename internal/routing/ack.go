package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chatdesk/chatdesk/internal/messages"
	"github.com/chatdesk/chatdesk/internal/messages/event"
	"github.com/chatdesk/chatdesk/internal/transport"
)

// HandleAck applies a delivery-state update to a stored message. Acks can
// outrun message persistence on the transport side, so the lookup waits a
// short grace period first; an ack for a message we never stored is dropped.
func (e *Engine) HandleAck(ctx context.Context, evt transport.AckEvent) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(e.ackDelay):
	}

	updated, err := e.messages.UpdateAck(ctx, evt.MessageID, int(evt.Level))
	if errors.Is(err, messages.ErrMessageNotFound) {
		e.logger.Debug("ack for unknown message", slog.String("message_id", evt.MessageID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("update ack: %w", err)
	}
	e.publish(event.TypeMessageUpdated, updated.TicketID, updated)
	return nil
}
