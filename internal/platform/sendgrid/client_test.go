package sendgrid

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/yungbote/marketplace-backend/internal/platform/logger"
)

func TestSendPostsMailSendRequest(t *testing.T) {
	var got mailSendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/mail/send" {
			t.Errorf("path: got=%q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer SG.test" {
			t.Errorf("Authorization: got=%q", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("X-Message-Id", "msg-1")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	c, err := New(log, Config{APIKey: "SG.test", BaseURL: srv.URL, DefaultFromEmail: "orders@shop.test", Timeout: time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := c.Send(context.Background(), SendEmailRequest{
		To:      []EmailAddress{{Email: "vendor@shop.test"}},
		Subject: "New order",
		Text:    "You have a new order.",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.StatusCode != http.StatusAccepted || res.MessageID != "msg-1" {
		t.Fatalf("result: got=%+v", res)
	}
	if got.From.Email != "orders@shop.test" || got.Personalizations[0].To[0].Email != "vendor@shop.test" {
		t.Fatalf("wire: got=%+v", got)
	}
}

func TestSendDoesNotRetryClientErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":[{"message":"bad from"}]}`))
	}))
	defer srv.Close()

	log, _ := logger.New("test")
	c, _ := New(log, Config{APIKey: "SG.test", BaseURL: srv.URL, DefaultFromEmail: "a@b.c", MaxRetries: 3})
	_, err := c.Send(context.Background(), SendEmailRequest{To: []EmailAddress{{Email: "x@y.z"}}, Subject: "s", Text: "t"})
	he, ok := err.(*HTTPError)
	if !ok || he.Message != "bad from" {
		t.Fatalf("want *HTTPError(bad from) got=%v", err)
	}
	if calls != 1 {
		t.Fatalf("calls: want=1 got=%d", calls)
	}
}
