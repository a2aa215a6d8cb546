// internal/transport/http/reports.go
package http

import (
	"fmt"
	"log"
	"time"

	"datasync-service/internal/email"
	"datasync-service/internal/report"

	"github.com/gofiber/fiber/v2"
)

type reportRequest struct {
	Format     string `json:"format"`
	PeriodDays int    `json:"period_days"`
	Details    bool   `json:"details"`
}

type emailReportRequest struct {
	reportRequest
	To         string `json:"to"`
	Name       string `json:"name"`
	Message    string `json:"message"`
	AttachLink bool   `json:"attach_link"`
}

// renderReport collects and renders a report for the caller's account.
func (h *Handler) renderReport(c *fiber.Ctx, accountID string, req reportRequest) (*report.Report, report.Format, []byte, error) {
	format, err := report.ParseFormat(req.Format)
	if err != nil {
		return nil, "", nil, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	r, err := h.svc.CollectReport(c.Context(), accountID, req.PeriodDays)
	if err != nil {
		return nil, "", nil, err
	}
	content, err := report.Render(r, format, req.Details)
	if err != nil {
		return nil, "", nil, fmt.Errorf("render %s report: %w", format, err)
	}
	return r, format, content, nil
}

func (h *Handler) reportError(c *fiber.Ctx, err error) error {
	if fe, ok := err.(*fiber.Error); ok {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}
	return writeError(c, err)
}

func (h *Handler) ExportReport(c *fiber.Ctx) error {
	id, err := accountID(c)
	if err != nil {
		return err
	}
	req := reportRequest{
		Format:     c.Query("format"),
		PeriodDays: c.QueryInt("period_days", report.DefaultPeriodDays),
		Details:    c.QueryBool("details", false),
	}
	_, format, content, err := h.renderReport(c, id, req)
	if err != nil {
		return h.reportError(c, err)
	}

	log.Printf("📄 [REPORT] Exported %s report for account %s (%d bytes)", format, id, len(content))
	c.Attachment(report.FileName(format, time.Now()))
	c.Set(fiber.HeaderContentType, format.ContentType())
	return c.Send(content)
}

func (h *Handler) EstimateReport(c *fiber.Ctx) error {
	id, err := accountID(c)
	if err != nil {
		return err
	}
	r, err := h.svc.CollectReport(c.Context(), id, c.QueryInt("period_days", report.DefaultPeriodDays))
	if err != nil {
		return writeError(c, err)
	}
	details := c.QueryBool("details", false)
	charts := c.QueryBool("charts", false)
	return c.JSON(fiber.Map{
		"syncs":        len(r.Batches),
		"records":      r.TotalRecords,
		"estimated_mb": report.EstimatedSize(r.TotalRecords, charts, details),
	})
}

func (h *Handler) PublishReport(c *fiber.Ctx) error {
	if h.publisher == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "report publishing is not configured"})
	}
	id, err := accountID(c)
	if err != nil {
		return err
	}
	var req reportRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
	}
	_, format, content, err := h.renderReport(c, id, req)
	if err != nil {
		return h.reportError(c, err)
	}

	url, err := h.publisher.PublishReport(c.Context(), id, format.Extension(), content, format.ContentType())
	if err != nil {
		log.Printf("❌ [REPORT] Publish failed for account %s: %v", id, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "failed to publish report"})
	}
	log.Printf("✅ [REPORT] Published %s report for account %s → %s", format, id, url)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"url":        url,
		"format":     format,
		"size_bytes": len(content),
	})
}

func (h *Handler) EmailReport(c *fiber.Ctx) error {
	if h.mailer == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "report e-mail is not configured"})
	}
	id, err := accountID(c)
	if err != nil {
		return err
	}
	var req emailReportRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
	}
	if err := email.ValidateAddress(req.To); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	r, format, content, err := h.renderReport(c, id, req.reportRequest)
	if err != nil {
		return h.reportError(c, err)
	}

	var link string
	if req.AttachLink && h.publisher != nil {
		if link, err = h.publisher.PublishReport(c.Context(), id, format.Extension(), content, format.ContentType()); err != nil {
			log.Printf("⚠️ [REPORT] Link publish failed for account %s, sending attachment only: %v", id, err)
			link = ""
		}
	}

	err = h.mailer.QueueReport(email.ReportEmail{
		AccountID:     id,
		To:            req.To,
		RecipientName: req.Name,
		Message:       req.Message,
		DownloadURL:   link,
		Format:        string(format),
		PeriodStart:   r.From,
		PeriodEnd:     r.To,
		TotalSyncs:    len(r.Batches),
		TotalRecords:  r.TotalRecords,
		Attachment: email.Attachment{
			Filename:    report.FileName(format, time.Now()),
			ContentType: format.ContentType(),
			Content:     content,
		},
	})
	if err != nil {
		log.Printf("❌ [REPORT] Queue e-mail failed for account %s: %v", id, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to queue email"})
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status":  "queued",
		"message": "Report queued for delivery",
	})
}
