package bot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testTelegramClient(serverURL string) *Client {
	return &Client{
		token:   "test-token",
		chatID:  "42",
		apiURL:  serverURL,
		httpCli: &http.Client{Timeout: 5 * time.Second},
	}
}

func TestSendMessage_Markdown(t *testing.T) {
	var gotPath string
	var gotPayload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotPayload)
		w.Write([]byte(`{"ok":true,"result":{"message_id":7}}`))
	}))
	defer server.Close()

	id, err := testTelegramClient(server.URL).SendMessage(context.Background(), "*hello*")
	if err != nil {
		t.Fatalf("SendMessage error: %v", err)
	}
	if id != 7 {
		t.Errorf("message ID = %d, want 7", id)
	}
	if gotPath != "/bottest-token/sendMessage" {
		t.Errorf("path = %q", gotPath)
	}
	if gotPayload["parse_mode"] != "Markdown" {
		t.Errorf("parse_mode = %v, want Markdown", gotPayload["parse_mode"])
	}
	if gotPayload["chat_id"] != "42" {
		t.Errorf("chat_id = %v, want 42", gotPayload["chat_id"])
	}
}

func TestSendMessage_PlainFallbackOnBadMarkup(t *testing.T) {
	var calls []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		json.NewDecoder(r.Body).Decode(&payload)
		mode, _ := payload["parse_mode"].(string)
		calls = append(calls, mode)
		if mode == "Markdown" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"ok":false,"description":"can't parse entities"}`))
			return
		}
		w.Write([]byte(`{"ok":true,"result":{"message_id":8}}`))
	}))
	defer server.Close()

	id, err := testTelegramClient(server.URL).SendMessage(context.Background(), "broken *markup")
	if err != nil {
		t.Fatalf("SendMessage error: %v", err)
	}
	if id != 8 {
		t.Errorf("message ID = %d, want 8", id)
	}
	if len(calls) != 2 || calls[0] != "Markdown" || calls[1] != "" {
		t.Errorf("calls = %v, want Markdown then plain", calls)
	}
}

func TestSendMessage_ServerErrorIsDeliveryFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"ok":false,"description":"internal"}`))
	}))
	defer server.Close()

	_, err := testTelegramClient(server.URL).SendMessage(context.Background(), "hi")
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Errorf("error = %v, want ErrDeliveryFailed", err)
	}
}

func TestGetUpdates_StripsForeignChatPayloads(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/getUpdates") {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"ok":true,"result":[
			{"update_id":1,"message":{"message_id":1,"text":"mine","chat":{"id":42}}},
			{"update_id":2,"message":{"message_id":2,"text":"stranger","chat":{"id":99}}}
		]}`))
	}))
	defer server.Close()

	updates, err := testTelegramClient(server.URL).GetUpdates(context.Background(), 0)
	if err != nil {
		t.Fatalf("GetUpdates error: %v", err)
	}
	// The foreign-chat update must come back (payload stripped) so the
	// caller's offset advances past it; swallowing it would make the next
	// poll return it again immediately, forever.
	if len(updates) != 2 {
		t.Fatalf("len(updates) = %d, want 2", len(updates))
	}
	if updates[0].Message == nil || updates[0].Message.Text != "mine" {
		t.Errorf("own-chat update = %+v, want text %q", updates[0].Message, "mine")
	}
	if updates[1].Message != nil {
		t.Errorf("foreign-chat payload = %+v, want stripped", updates[1].Message)
	}
	if updates[1].UpdateID != 2 {
		t.Errorf("foreign-chat update ID = %d, want 2", updates[1].UpdateID)
	}
}

func TestDeleteMessage(t *testing.T) {
	var gotPayload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotPayload)
		w.Write([]byte(`{"ok":true,"result":true}`))
	}))
	defer server.Close()

	if err := testTelegramClient(server.URL).DeleteMessage(context.Background(), 7); err != nil {
		t.Fatalf("DeleteMessage error: %v", err)
	}
	if gotPayload["message_id"] != float64(7) {
		t.Errorf("message_id = %v, want 7", gotPayload["message_id"])
	}
}
