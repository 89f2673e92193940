package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/chatdesk/chatdesk/internal/accounts"
	"github.com/chatdesk/chatdesk/internal/queues"
)

// AccountHandler serves account configuration and queue listings.
type AccountHandler struct {
	accountService *accounts.Service
	queueService   *queues.Service
	logger         *slog.Logger
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(log *slog.Logger, accountService *accounts.Service, queueService *queues.Service) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
		queueService:   queueService,
		logger:         log.With(slog.String("handler", "accounts")),
	}
}

// Register registers all account routes.
func (h *AccountHandler) Register(e *echo.Echo) {
	group := e.Group("/accounts/:account_id")
	group.GET("", h.GetAccount)
	group.GET("/queues", h.ListQueues)
}

// GetAccount returns one account by id.
func (h *AccountHandler) GetAccount(c echo.Context) error {
	accountID := strings.TrimSpace(c.Param("account_id"))
	if accountID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "account id is required")
	}
	account, err := h.accountService.GetByID(c.Request().Context(), accountID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, account)
}

// ListQueues returns the account's queues in menu order.
func (h *AccountHandler) ListQueues(c echo.Context) error {
	accountID := strings.TrimSpace(c.Param("account_id"))
	if accountID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "account id is required")
	}
	items, err := h.queueService.ListByAccount(c.Request().Context(), accountID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}
