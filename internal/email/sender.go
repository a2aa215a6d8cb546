// internal/email/sender.go
package email

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/mail"
	"strings"
	"time"

	"datasync-service/internal/config"
	"datasync-service/internal/email/templates"

	"gopkg.in/gomail.v2"
)

const maxAttempts = 3

// Attachment is a file sent along with an e-mail.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// dialer is the part of gomail.Dialer the sender uses.
type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type Sender struct {
	cfg    *config.Config
	dialer dialer
	// backoff returns the wait before retry attempt n (0-based).
	backoff func(attempt int) time.Duration
}

func NewSender(cfg *config.Config) *Sender {
	return &Sender{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass),
		backoff: func(attempt int) time.Duration {
			return time.Duration(1<<attempt) * time.Second // 1s, 2s, 4s
		},
	}
}

func (s *Sender) Send(ctx context.Context, to, subject, body string, attachments ...Attachment) error {
	log.Printf("📧 [SEND] To: %s | Subject: %s | Attachments: %d", to, subject, len(attachments))

	m := gomail.NewMessage()
	m.SetHeader("From", fmt.Sprintf("%s <%s>", s.cfg.SMTPFromName, s.cfg.SMTPFrom))
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)
	for _, a := range attachments {
		content := a.Content
		m.Attach(a.Filename,
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(content)
				return err
			}),
			gomail.SetHeader(map[string][]string{"Content-Type": {a.ContentType}}),
		)
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := s.dialer.DialAndSend(m); err != nil {
			delay := s.backoff(attempt)
			log.Printf("❌ [ATTEMPT %d] Failed to send email to %s: %v → retrying in %v", attempt+1, to, err, delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("email send cancelled: %w", ctx.Err())
			}
			continue
		}
		log.Printf("✅ [SUCCESS] Email sent to %s (Subject: %s)", to, subject)
		return nil
	}

	log.Printf("💥 [FAILED] All retries exhausted for %s", to)
	return fmt.Errorf("failed to send email to %s after %d attempts", to, maxAttempts)
}

// ReportEmail is a rendered report addressed to one recipient.
type ReportEmail struct {
	AccountID     string
	To            string
	RecipientName string
	Message       string
	DownloadURL   string
	Format        string
	PeriodStart   time.Time
	PeriodEnd     time.Time
	TotalSyncs    int
	TotalRecords  int
	Attachment    Attachment
}

// ValidateAddress checks that to is a single plain e-mail address.
func ValidateAddress(to string) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return errors.New("recipient address is required")
	}
	addr, err := mail.ParseAddress(to)
	if err != nil || addr.Address != to {
		return fmt.Errorf("invalid recipient address %q", to)
	}
	return nil
}

// QueueReport renders the report e-mail and delivers it in the background.
func (s *Sender) QueueReport(req ReportEmail) error {
	if err := ValidateAddress(req.To); err != nil {
		return err
	}
	body, err := templates.RenderReportReadyEmail(templates.ReportReadyData{
		RecipientName: strings.TrimSpace(req.RecipientName),
		Format:        req.Format,
		PeriodStart:   req.PeriodStart.Format("2006-01-02"),
		PeriodEnd:     req.PeriodEnd.Format("2006-01-02"),
		TotalSyncs:    req.TotalSyncs,
		TotalRecords:  req.TotalRecords,
		Message:       strings.TrimSpace(req.Message),
		DownloadURL:   req.DownloadURL,
	})
	if err != nil {
		log.Printf("❌ [ERROR] report email: render failed for account %s: %v", req.AccountID, err)
		return fmt.Errorf("render report_ready: %w", err)
	}
	subject := templates.ReportSubject(req.Format)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if sendErr := s.Send(ctx, req.To, subject, body, req.Attachment); sendErr != nil {
			log.Printf("⚠️ [ERROR] Background report email failed for account %s: %v", req.AccountID, sendErr)
		}
	}()

	log.Printf("📧 [QUEUED] Report email queued for %s (account %s)", req.To, req.AccountID)
	return nil
}
