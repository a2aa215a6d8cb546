// internal/transport/http/handlers.go
package http

import (
	"context"
	"errors"
	"log"

	"datasync-service/internal/email"
	"datasync-service/internal/middleware"
	"datasync-service/internal/sse"
	datasync "datasync-service/internal/sync"
	"datasync-service/internal/syncerr"

	"github.com/gofiber/fiber/v2"
)

// ReportPublisher uploads a rendered report and returns its public URL.
type ReportPublisher interface {
	PublishReport(ctx context.Context, accountID, ext string, content []byte, contentType string) (string, error)
}

// ReportMailer queues a report e-mail for delivery.
type ReportMailer interface {
	QueueReport(req email.ReportEmail) error
}

type Handler struct {
	svc       *datasync.Service
	broker    *sse.Broker
	publisher ReportPublisher
	mailer    ReportMailer
}

// NewHandler wires the API. publisher and mailer may be nil when R2 or SMTP
// is not configured; their routes then answer 503.
func NewHandler(svc *datasync.Service, broker *sse.Broker, publisher ReportPublisher, mailer ReportMailer) *Handler {
	return &Handler{svc: svc, broker: broker, publisher: publisher, mailer: mailer}
}

// Register mounts the gateway routes on r (already behind GatewayAuth).
func (h *Handler) Register(r fiber.Router) {
	r.Get("/config", h.GetConfig)
	r.Put("/config", h.SaveConfig)
	r.Post("/config/test", h.TestConnection)
	r.Post("/sync", h.Sync)
	r.Get("/forms", h.ListForms)
	r.Get("/batches", h.ListBatches)
	r.Get("/stats", h.Stats)
	r.Get("/calendar", h.Calendar)
	r.Get("/fields", h.Fields)
	r.Get("/reports/export", h.ExportReport)
	r.Get("/reports/estimate", h.EstimateReport)
	r.Post("/reports/publish", h.PublishReport)
	r.Post("/reports/email", h.EmailReport)
	r.Get("/events", h.Events)
}

// RegisterService mounts the service-to-service routes on r (behind ServiceAuth).
func (h *Handler) RegisterService(r fiber.Router) {
	r.Post("/sync/:account_id", h.ServiceSync)
}

func accountID(c *fiber.Ctx) (string, error) {
	id, ok := middleware.GetAccountID(c)
	if !ok {
		return "", fiber.NewError(fiber.StatusUnauthorized, "account not found in context")
	}
	return id, nil
}

// writeError maps a typed sync error to its status. Internal failures keep
// their detail in the log only.
func writeError(c *fiber.Ctx, err error) error {
	status := syncerr.HTTPStatus(err)
	if status >= fiber.StatusInternalServerError && status != fiber.StatusBadGateway {
		log.Printf("❌ [API] %s %s → %v", c.Method(), c.Path(), err)
		return c.Status(status).JSON(fiber.Map{
			"error":      "something went wrong",
			"request_id": c.Get("X-Request-ID"),
		})
	}
	body := fiber.Map{"error": err.Error()}
	var cfgErr *syncerr.ConfigError
	if errors.As(err, &cfgErr) {
		body["field"] = cfgErr.Field
	}
	return c.Status(status).JSON(body)
}
