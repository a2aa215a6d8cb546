// internal/fcm/fcm.go
package fcm

import (
	"context"
	"fmt"
	"log"
	"strconv"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
)

type FCMClient struct {
	client *messaging.Client
}

// NewFCMClient reuses the Firebase app that also backs the Firestore store.
func NewFCMClient(ctx context.Context, app *firebase.App) (*FCMClient, error) {
	messagingClient, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("messaging client init failed: %w", err)
	}
	return &FCMClient{client: messagingClient}, nil
}

// convertDataToStringMap safely converts map[string]interface{} → map[string]string
func convertDataToStringMap(data map[string]interface{}) map[string]string {
	result := make(map[string]string, len(data))
	for k, v := range data {
		switch val := v.(type) {
		case string:
			result[k] = val
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			result[k] = fmt.Sprintf("%d", val)
		case float32, float64:
			result[k] = fmt.Sprintf("%f", val)
		case bool:
			result[k] = strconv.FormatBool(val)
		default:
			result[k] = fmt.Sprintf("%v", val)
		}
	}
	return result
}

func (f *FCMClient) SendToToken(ctx context.Context, token string, title, body string, data map[string]interface{}) error {
	message := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: convertDataToStringMap(data),
		Android: &messaging.AndroidConfig{
			Priority: "normal",
		},
	}

	resp, err := f.client.Send(ctx, message)
	if err != nil {
		return fmt.Errorf("FCM send failed: %w", err)
	}
	log.Printf("✅ FCM sent to %s → msg ID: %s", MaskToken(token), resp)
	return nil
}

// MaskToken hides all but last 6 chars for logging safety
func MaskToken(token string) string {
	if len(token) <= 6 {
		return token
	}
	return "..." + token[len(token)-6:]
}
