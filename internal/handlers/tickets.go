package handlers

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/chatdesk/chatdesk/internal/messages"
	"github.com/chatdesk/chatdesk/internal/messages/event"
	"github.com/chatdesk/chatdesk/internal/tickets"
)

// TicketHandler serves ticket details, their message history, and a live
// SSE stream of message events.
type TicketHandler struct {
	ticketService  *tickets.Service
	messageService *messages.Service
	messageEvents  event.Subscriber
	eventBuffer    int
	logger         *slog.Logger
}

// NewTicketHandler creates a TicketHandler. eventBuffer sizes each SSE
// subscriber's channel; non-positive values fall back to the hub default.
func NewTicketHandler(log *slog.Logger, ticketService *tickets.Service, messageService *messages.Service, messageEvents event.Subscriber, eventBuffer int) *TicketHandler {
	if eventBuffer <= 0 {
		eventBuffer = event.DefaultBufferSize
	}
	return &TicketHandler{
		ticketService:  ticketService,
		messageService: messageService,
		messageEvents:  messageEvents,
		eventBuffer:    eventBuffer,
		logger:         log.With(slog.String("handler", "tickets")),
	}
}

// Register registers all ticket routes.
func (h *TicketHandler) Register(e *echo.Echo) {
	group := e.Group("/tickets/:ticket_id")
	group.GET("", h.GetTicket)
	group.GET("/messages", h.ListMessages)
	group.GET("/events", h.StreamEvents)
}

// GetTicket returns one ticket by id.
func (h *TicketHandler) GetTicket(c echo.Context) error {
	ticketID := strings.TrimSpace(c.Param("ticket_id"))
	if ticketID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "ticket id is required")
	}
	ticket, err := h.ticketService.GetByID(c.Request().Context(), ticketID)
	if errors.Is(err, tickets.ErrTicketNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "ticket not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, ticket)
}

// ListMessages returns a ticket's messages in chronological order.
func (h *TicketHandler) ListMessages(c echo.Context) error {
	ticketID := strings.TrimSpace(c.Param("ticket_id"))
	if ticketID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "ticket id is required")
	}
	if _, err := h.ticketService.GetByID(c.Request().Context(), ticketID); err != nil {
		if errors.Is(err, tickets.ErrTicketNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "ticket not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	limit := int32(100)
	if s := strings.TrimSpace(c.QueryParam("limit")); s != "" {
		if n, err := strconv.ParseInt(s, 10, 32); err == nil && n > 0 && n <= 500 {
			limit = int32(n)
		}
	}

	items, err := h.messageService.ListByTicket(c.Request().Context(), ticketID, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

func writeSSEData(writer *bufio.Writer, flusher http.Flusher, payload string) error {
	if _, err := writer.WriteString(fmt.Sprintf("data: %s\n\n", payload)); err != nil {
		return err
	}
	if err := writer.Flush(); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func writeSSEJSON(writer *bufio.Writer, flusher http.Flusher, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return writeSSEData(writer, flusher, string(data))
}

// StreamEvents streams a ticket's message events over SSE.
func (h *TicketHandler) StreamEvents(c echo.Context) error {
	ticketID := strings.TrimSpace(c.Param("ticket_id"))
	if ticketID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "ticket id is required")
	}
	if _, err := h.ticketService.GetByID(c.Request().Context(), ticketID); err != nil {
		if errors.Is(err, tickets.ErrTicketNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "ticket not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if h.messageEvents == nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "message events not configured")
	}

	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "streaming not supported")
	}
	writer := bufio.NewWriter(c.Response().Writer)

	// Creation events are deduplicated by message id; updates (ack changes)
	// pass through every time.
	sentMessageIDs := map[string]struct{}{}
	writeMessageEvent := func(eventType event.Type, message messages.Message) error {
		if eventType == event.TypeMessageCreated && message.ID != "" {
			if _, exists := sentMessageIDs[message.ID]; exists {
				return nil
			}
			sentMessageIDs[message.ID] = struct{}{}
		}
		return writeSSEJSON(writer, flusher, map[string]any{
			"type":      string(eventType),
			"ticket_id": ticketID,
			"message":   message,
		})
	}

	_, stream, cancel := h.messageEvents.Subscribe(ticketID, h.eventBuffer)
	defer cancel()

	heartbeatTicker := time.NewTicker(20 * time.Second)
	defer heartbeatTicker.Stop()

	for {
		select {
		case <-c.Request().Context().Done():
			return nil
		case <-heartbeatTicker.C:
			if err := writeSSEJSON(writer, flusher, map[string]any{"type": "ping"}); err != nil {
				return nil
			}
		case evt, ok := <-stream:
			if !ok {
				return nil
			}
			if evt.TicketID != ticketID || len(evt.Data) == 0 {
				continue
			}
			var message messages.Message
			if err := json.Unmarshal(evt.Data, &message); err != nil {
				h.logger.Warn("decode message event failed", slog.Any("error", err))
				continue
			}
			if err := writeMessageEvent(evt.Type, message); err != nil {
				return nil
			}
		}
	}
}
