// internal/transport/http/sync.go
package http

import (
	"log"
	"strings"
	"time"

	"datasync-service/internal/middleware"
	"datasync-service/pkg/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

const dateLayout = "2006-01-02"

type saveConfigRequest struct {
	URL         string  `json:"url"`
	Token       string  `json:"token"`
	NotifyToken *string `json:"notify_token"`
}

func (h *Handler) GetConfig(c *fiber.Ctx) error {
	id, err := accountID(c)
	if err != nil {
		return err
	}
	settings, err := h.svc.GetConfig(c.Context(), id)
	if err != nil {
		return writeError(c, err)
	}

	resp := fiber.Map{
		"url":        settings.Source.URL,
		"has_token":  settings.Source.Token != "",
		"token":      maskSecret(settings.Source.Token),
		"last_sync":  settings.LastSyncAt,
		"updated_at": settings.UpdatedAt,
	}
	if settings.Source.URL != "" {
		resp["api_type"] = h.svc.Classifier().Classify(settings.Source.URL)
	}
	return c.JSON(resp)
}

func (h *Handler) SaveConfig(c *fiber.Ctx) error {
	id, err := accountID(c)
	if err != nil {
		return err
	}
	var req saveConfigRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
	}

	cfg := models.SourceConfig{URL: req.URL, Token: req.Token}
	if err := h.svc.SaveConfig(c.Context(), id, cfg, req.NotifyToken); err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"status":   "saved",
		"url":      strings.TrimSpace(req.URL),
		"api_type": h.svc.Classifier().Classify(strings.TrimSpace(req.URL)),
	})
}

// TestConnection tests the source in the body, or the stored one when the
// body is empty or has no URL.
func (h *Handler) TestConnection(c *fiber.Ctx) error {
	id, err := accountID(c)
	if err != nil {
		return err
	}
	var cfg *models.SourceConfig
	if len(c.Body()) > 0 {
		var req models.SourceConfig
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
		}
		if strings.TrimSpace(req.URL) != "" {
			cfg = &req
		}
	}

	result, err := h.svc.TestConnection(c.Context(), id, cfg)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(result)
}

func (h *Handler) Sync(c *fiber.Ctx) error {
	id, err := accountID(c)
	if err != nil {
		return err
	}
	device, _ := middleware.GetDeviceID(c)
	log.Printf("📥 [SYNC REQUEST] Account: %s | Device: %s", id, device)

	result, err := h.svc.Sync(c.Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(result)
}

// ServiceSync lets another service trigger a sync for any account.
func (h *Handler) ServiceSync(c *fiber.Ctx) error {
	id := utils.CopyString(strings.TrimSpace(c.Params("account_id")))
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "account_id required"})
	}
	result, err := h.svc.Sync(c.Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(result)
}

func (h *Handler) ListForms(c *fiber.Ctx) error {
	id, err := accountID(c)
	if err != nil {
		return err
	}
	forms, err := h.svc.ListForms(c.Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"forms": forms, "count": len(forms)})
}

func (h *Handler) ListBatches(c *fiber.Ctx) error {
	id, err := accountID(c)
	if err != nil {
		return err
	}
	var before *time.Time
	if raw := c.Query("before"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid 'before' format. Expected RFC3339, got: " + raw,
			})
		}
		before = &t
	}

	batches, err := h.svc.ListBatches(c.Context(), id, models.BatchQuery{
		Limit:  c.QueryInt("limit", 0),
		Before: before,
		Search: c.Query("q"),
	})
	if err != nil {
		return writeError(c, err)
	}
	resp := fiber.Map{"batches": batches, "count": len(batches)}
	if n := len(batches); n > 0 {
		resp["next_before"] = batches[n-1].CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	return c.JSON(resp)
}

func (h *Handler) Stats(c *fiber.Ctx) error {
	id, err := accountID(c)
	if err != nil {
		return err
	}
	stats, err := h.svc.Stats(c.Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(stats)
}

// Calendar defaults to the last 30 days when from/to are missing.
func (h *Handler) Calendar(c *fiber.Ctx) error {
	id, err := accountID(c)
	if err != nil {
		return err
	}
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -30)
	if raw := c.Query("from"); raw != "" {
		if from, err = time.Parse(dateLayout, raw); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid 'from' date, expected YYYY-MM-DD"})
		}
	}
	if raw := c.Query("to"); raw != "" {
		if to, err = time.Parse(dateLayout, raw); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid 'to' date, expected YYYY-MM-DD"})
		}
	}
	if to.Before(from) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "'to' must not be before 'from'"})
	}

	days, err := h.svc.Calendar(c.Context(), id, from, to)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"from": from.Format(dateLayout),
		"to":   to.Format(dateLayout),
		"days": days,
	})
}

func (h *Handler) Fields(c *fiber.Ctx) error {
	id, err := accountID(c)
	if err != nil {
		return err
	}
	fields, err := h.svc.DistinctFields(c.Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"fields": fields})
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}
