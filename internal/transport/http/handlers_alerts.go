package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"facegate/internal/monitor"
	dErrors "facegate/pkg/domain-errors"
	"facegate/pkg/platform/httputil"
)

const (
	defaultScanWindow = time.Hour
	maxScanWindow     = 7 * 24 * time.Hour
)

//go:generate mockgen -source=handlers_alerts.go -destination=mocks/alert-scanner.go -package=mocks AlertScanner

// AlertScanner defines the monitor operation the alerts handler needs.
type AlertScanner interface {
	Scan(ctx context.Context, window time.Duration) ([]monitor.Alert, error)
}

// AlertHandler exposes on-demand security scans.
type AlertHandler struct {
	scanner AlertScanner
	logger  *slog.Logger
}

// NewAlertHandler constructs an alerts handler with its dependencies.
func NewAlertHandler(scanner AlertScanner, logger *slog.Logger) *AlertHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AlertHandler{scanner: scanner, logger: logger}
}

// Register mounts alert endpoints on the router.
func (h *AlertHandler) Register(r chi.Router) {
	r.Get("/v1/face/alerts/scan", h.handleScan)
}

func (h *AlertHandler) handleScan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	window := defaultScanWindow
	if raw := r.URL.Query().Get("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 || d > maxScanWindow {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid scan window"))
			return
		}
		window = d
	}

	alerts, err := h.scanner.Scan(ctx, window)
	if err != nil {
		h.logger.ErrorContext(ctx, "security scan failed", "window", window, "error", err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "security scan completed",
		"window", window,
		"alerts", len(alerts),
	)
	httputil.WriteJSON(w, http.StatusOK, FromAlerts(window, alerts))
}
