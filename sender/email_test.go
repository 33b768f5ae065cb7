package sender_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lsendel/relay/sender"
)

func TestEmailAPI_Send(t *testing.T) {
	var auth string
	var req map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("unmarshal: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := sender.NewEmailAPI(srv.URL, "key-123", "relay@example.com")
	if err := e.Send(context.Background(), "user@example.com", "Hello", "Body text"); err != nil {
		t.Fatalf("send: %v", err)
	}

	if auth != "Bearer key-123" {
		t.Errorf("authorization = %q", auth)
	}
	if req["from"] != "relay@example.com" {
		t.Errorf("from = %q", req["from"])
	}
	if req["to"] != "user@example.com" {
		t.Errorf("to = %q", req["to"])
	}
	if req["subject"] != "Hello" || req["text"] != "Body text" {
		t.Errorf("subject/text = %q/%q", req["subject"], req["text"])
	}
}

func TestEmailAPI_ProviderRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	e := sender.NewEmailAPI(srv.URL, "key", "relay@example.com")
	err := e.Send(context.Background(), "bad@", "s", "b")

	var de *sender.DeliveryError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DeliveryError, got %T", err)
	}
	if de.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status code = %d", de.StatusCode)
	}
	if de.Transport != "email" {
		t.Errorf("transport = %q", de.Transport)
	}
}
