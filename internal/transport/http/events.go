// internal/transport/http/events.go
package http

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"datasync-service/internal/sse"

	"github.com/gofiber/fiber/v2"
)

const heartbeatInterval = 30 * time.Second

// Events streams the caller's sync events as Server-Sent Events.
func (h *Handler) Events(c *fiber.Ctx) error {
	id, err := accountID(c)
	if err != nil {
		return err
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	clientChan := make(chan sse.Event, 10)
	h.broker.Register(id, clientChan)
	connStart := time.Now()
	log.Printf("✅ [SSE] 🟢 Connection STARTED for account=%s (clients=%d)", id, h.broker.GetClientCount(id))

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		// Unregister closes clientChan.
		defer func() {
			h.broker.Unregister(id, clientChan)
			log.Printf("🔌 [SSE] 🔴 Connection CLOSED for account=%s after %v (clients=%d)", id, time.Since(connStart), h.broker.GetClientCount(id))
		}()

		ready, _ := json.Marshal(map[string]interface{}{
			"status":     "ready",
			"at":         time.Now().UTC().Format(time.RFC3339Nano),
			"account_id": id,
		})
		if err := writeEvent(w, "ready", ready); err != nil {
			return
		}

		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()

		for {
			select {
			case event, ok := <-clientChan:
				if !ok {
					return
				}
				payload, err := json.Marshal(event.Data)
				if err != nil {
					log.Printf("⚠️ [SSE] Failed to marshal event data: %v", err)
					continue
				}
				if err := writeEvent(w, event.Type, payload); err != nil {
					log.Printf("⚠️ [SSE] Write failed for account=%s: %v", id, err)
					return
				}
			case <-heartbeat.C:
				if _, err := w.WriteString(": ping\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	})
	return nil
}

func writeEvent(w *bufio.Writer, eventType string, data []byte) error {
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, data); err != nil {
		return err
	}
	return w.Flush()
}
