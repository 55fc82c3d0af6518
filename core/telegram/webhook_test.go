package telegram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestRegisterWebhookFirstAttempt(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, expected POST", r.Method)
		}
		if !strings.HasSuffix(r.URL.Path, "/setWebhook") {
			t.Errorf("path = %s, expected setWebhook", r.URL.Path)
		}
		if err := r.ParseForm(); err == nil {
			if got := r.PostForm.Get("url"); got != "https://bot.example.com/hook" {
				t.Errorf("url form value = %q", got)
			}
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
	}))
	defer srv.Close()

	err := RegisterWebhook(context.Background(), RegistrationOptions{
		Token:   "123:abc",
		URL:     "https://bot.example.com/hook",
		APIBase: srv.URL,
		Client:  srv.Client(),
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("attempts = %d, expected 1", calls.Load())
	}
}

func TestRegisterWebhookHonorsRateLimitWait(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"ok":false,"error_code":429,"description":"Too Many Requests","parameters":{"retry_after":1}}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
	}))
	defer srv.Close()

	start := time.Now()
	err := RegisterWebhook(context.Background(), RegistrationOptions{
		Token:   "123:abc",
		URL:     "https://bot.example.com/hook",
		APIBase: srv.URL,
		Client:  srv.Client(),
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("attempts = %d, expected exactly 2", calls.Load())
	}
	if elapsed := time.Since(start); elapsed < time.Second {
		t.Fatalf("elapsed = %s, expected >= retry_after of 1s", elapsed)
	}
}

func TestRegisterWebhookAbortsOnProviderRejection(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":401,"description":"Unauthorized"}`))
	}))
	defer srv.Close()

	err := RegisterWebhook(context.Background(), RegistrationOptions{
		Token:   "123:abc",
		URL:     "https://bot.example.com/hook",
		APIBase: srv.URL,
		Client:  srv.Client(),
	})
	if err == nil {
		t.Fatal("expected error for rejected registration")
	}
	if calls.Load() != 1 {
		t.Fatalf("attempts = %d, expected no retry on provider rejection", calls.Load())
	}
	if !strings.Contains(err.Error(), "Unauthorized") {
		t.Fatalf("error should carry the provider description, got %v", err)
	}
}

func TestRegisterWebhookExhaustsBudgetOnServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":502,"description":"Bad Gateway"}`))
	}))
	defer srv.Close()

	err := RegisterWebhook(context.Background(), RegistrationOptions{
		Token:       "123:abc",
		URL:         "https://bot.example.com/hook",
		APIBase:     srv.URL,
		MaxAttempts: 3,
		Backoff:     5 * time.Millisecond,
		Client:      srv.Client(),
	})
	if !errors.Is(err, ErrRegistrationExhausted) {
		t.Fatalf("expected ErrRegistrationExhausted, got %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("attempts = %d, expected full budget of 3", calls.Load())
	}
}

func TestRegisterWebhookRedactsTokenOnTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // force a dial error

	err := RegisterWebhook(context.Background(), RegistrationOptions{
		Token:       "123:supersecrettoken",
		URL:         "https://bot.example.com/hook",
		APIBase:     srv.URL,
		MaxAttempts: 2,
		Backoff:     time.Millisecond,
	})
	if err == nil {
		t.Fatal("expected error against closed server")
	}
	if strings.Contains(err.Error(), "supersecrettoken") {
		t.Fatalf("token leaked into error: %v", err)
	}
}

func TestRegisterWebhookStopsOnContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":429,"parameters":{"retry_after":30}}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := RegisterWebhook(ctx, RegistrationOptions{
		Token:   "123:abc",
		URL:     "https://bot.example.com/hook",
		APIBase: srv.URL,
		Client:  srv.Client(),
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline error, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("cancel did not interrupt the rate-limit wait")
	}
}
