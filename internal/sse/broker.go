package sse

import (
	"encoding/json"
	"log"
	"sync"
)

const (
	EventSyncStarted   = "sync.started"
	EventSyncCompleted = "sync.completed"
	EventSyncFailed    = "sync.failed"
)

// Event represents an SSE event
type Event struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	AccountID string      `json:"account_id"`
}

// Broker fans sync events out to the dashboards of one account.
type Broker struct {
	clients map[string]map[chan Event]bool
	mu      sync.RWMutex
}

// NewBroker creates a new SSE broker
func NewBroker() *Broker {
	return &Broker{
		clients: make(map[string]map[chan Event]bool),
	}
}

// Register adds a new client channel for an account
func (b *Broker) Register(accountID string, clientChan chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.clients[accountID]; !ok {
		b.clients[accountID] = make(map[chan Event]bool)
	}

	b.clients[accountID][clientChan] = true
	log.Printf("📡 [SSE Broker] Registered client for account %s (total clients: %d)",
		accountID, len(b.clients[accountID]))
}

// Unregister removes a client channel and closes it
func (b *Broker) Unregister(accountID string, clientChan chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if accountClients, ok := b.clients[accountID]; ok {
		if _, registered := accountClients[clientChan]; !registered {
			return
		}
		delete(accountClients, clientChan)
		close(clientChan)

		if len(accountClients) == 0 {
			delete(b.clients, accountID)
		}

		log.Printf("📡 [SSE Broker] Unregistered client for account %s (remaining: %d)",
			accountID, len(accountClients))
	}
}

// Publish sends an event to every client of event.AccountID. A full client
// channel drops the event for that client only.
func (b *Broker) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	accountClients, ok := b.clients[event.AccountID]
	if !ok {
		return
	}

	// Marshal data once so every client gets the same immutable payload
	dataJSON, err := json.Marshal(event.Data)
	if err != nil {
		log.Printf("❌ [SSE Broker] Failed to marshal event data: %v", err)
		return
	}
	eventCopy := Event{
		Type:      event.Type,
		Data:      json.RawMessage(dataJSON),
		AccountID: event.AccountID,
	}

	for clientChan := range accountClients {
		select {
		case clientChan <- eventCopy:
		default:
			log.Printf("⚠️ [SSE Broker] Client channel blocked for account %s", event.AccountID)
		}
	}

	log.Printf("📡 [SSE Broker] Published %s to %d clients for account %s",
		event.Type, len(accountClients), event.AccountID)
}

// GetClientCount returns the number of connected clients for an account
func (b *Broker) GetClientCount(accountID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients[accountID])
}

// GetTotalClientCount returns the total number of connected clients
func (b *Broker) GetTotalClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := 0
	for _, accountClients := range b.clients {
		total += len(accountClients)
	}
	return total
}
