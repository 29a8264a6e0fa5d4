package generator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newMessagesServer(t *testing.T, status int, body string, gotPrompt *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if key := r.Header.Get("X-Api-Key"); key != "key" {
			t.Errorf("unexpected api key %q", key)
		}
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content []struct {
					Type string `json:"type"`
					Text string `json:"text"`
				} `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if gotPrompt != nil && len(req.Messages) == 1 && len(req.Messages[0].Content) == 1 {
			*gotPrompt = req.Messages[0].Content[0].Text
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAnthropicComplete(t *testing.T) {
	var prompt string
	body := `{"id":"msg_1","type":"message","role":"assistant","model":"m",` +
		`"content":[{"type":"text","text":"[{\"title\":"},{"type":"text","text":"\"Mushishi\"}]"}],` +
		`"stop_reason":"end_turn","usage":{"input_tokens":3,"output_tokens":5}}`
	srv := newMessagesServer(t, http.StatusOK, body, &prompt)

	a := NewAnthropic(srv.URL, "key", 512, 5*time.Second)
	got, err := a.Complete(context.Background(), "hello", "m")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got != `[{"title":"Mushishi"}]` {
		t.Errorf("unexpected content %q", got)
	}
	if prompt != "hello" {
		t.Errorf("unexpected prompt %q", prompt)
	}
}

func TestAnthropicPaymentRequired(t *testing.T) {
	body := `{"type":"error","error":{"type":"billing_error","message":"credit balance too low"}}`
	srv := newMessagesServer(t, http.StatusPaymentRequired, body, nil)

	_, err := NewAnthropic(srv.URL, "key", 512, 5*time.Second).Complete(context.Background(), "p", "m")
	if !errors.Is(err, ErrPaymentRequired) {
		t.Errorf("expected ErrPaymentRequired, got %v", err)
	}
}

func TestAnthropicEmptyContent(t *testing.T) {
	body := `{"id":"msg_1","type":"message","role":"assistant","model":"m","content":[],` +
		`"stop_reason":"end_turn","usage":{"input_tokens":3,"output_tokens":0}}`
	srv := newMessagesServer(t, http.StatusOK, body, nil)

	_, err := NewAnthropic(srv.URL, "key", 512, 5*time.Second).Complete(context.Background(), "p", "m")
	if !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("expected ErrEmptyResponse, got %v", err)
	}
}
