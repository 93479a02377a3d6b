package events

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"contractor-backend/internal/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubDeliversOnlyOwnEvents(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, 7)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	hub.Publish(Event{Type: DocumentCreated, UserID: 8, DocumentID: 99})
	hub.Publish(DocumentEvent(InvoicePaid, &models.Document{
		ID: 1, UserID: 7, Type: models.DocumentTypeInvoice, Number: "INV-2026-0001", Status: models.StatusPaid,
	}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, InvoicePaid, got["type"])
	assert.Equal(t, "INV-2026-0001", got["number"])
	assert.Equal(t, "paid", got["status"])
	assert.NotContains(t, got, "UserID")

	hub.Close()
	assert.Equal(t, 0, hub.Clients())
}

func TestNilHubPublishIsNoop(t *testing.T) {
	var hub *Hub
	hub.Publish(Event{Type: DocumentCreated})
}
