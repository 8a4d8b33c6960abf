package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomoima525/daily-diary/internal/domain"
)

func TestSubmitSendsMemoriesAndLocale(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/video" {
			t.Fatalf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var body struct {
			Memories []domain.PhotoMemory `json:"photo_memories"`
			Locale   string               `json:"locale"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(body.Memories) != 1 || body.Memories[0].Feeling != "happy lunch" || body.Locale != "ja" {
			t.Fatalf("body = %+v", body)
		}
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"requestId":"abc","status":"processing","message":"ok"}`))
	}))
	defer srv.Close()

	sub, err := New(srv.URL+"/", srv.Client()).Submit(context.Background(),
		[]domain.PhotoMemory{{Name: "image_0", SourceLocator: "bucket/a.jpg", Feeling: "happy lunch"}}, "ja")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if sub.RequestID != "abc" || sub.Status != "processing" {
		t.Fatalf("submission = %+v", sub)
	}
}

func TestSubmitSurfacesValidationMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"at least one photo memory is required"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, srv.Client()).Submit(context.Background(), nil, "")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest || apiErr.Message != "at least one photo memory is required" {
		t.Fatalf("error = %v", err)
	}
}

func TestWaitReadyPollsUntilReady(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch n := polls.Add(1); {
		case n == 2:
			http.Error(w, "flaky", http.StatusBadGateway)
		case n < 4:
			_, _ = w.Write([]byte(`{"isReady":false}`))
		default:
			_, _ = w.Write([]byte(`{"isReady":true,"videoKey":"videos/vid_abc.mp4"}`))
		}
	}))
	defer srv.Close()

	var transient int
	status, err := New(srv.URL, srv.Client()).WaitReady(context.Background(), "abc", time.Millisecond, func(error) { transient++ })
	if err != nil {
		t.Fatalf("WaitReady: %v", err)
	}
	if !status.IsReady || status.VideoKey != "videos/vid_abc.mp4" {
		t.Fatalf("status = %+v", status)
	}
	if polls.Load() != 4 || transient != 1 {
		t.Fatalf("polls = %d transient = %d", polls.Load(), transient)
	}
}

func TestWaitReadyStopsOnContextAndClientErrors(t *testing.T) {
	pending := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"isReady":false}`))
	}))
	defer pending.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := New(pending.URL, pending.Client()).WaitReady(ctx, "abc", time.Millisecond, nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want deadline exceeded", err)
	}

	badID := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid request id format"}`))
	}))
	defer badID.Close()
	if _, err := New(badID.URL, badID.Client()).WaitReady(context.Background(), "nope", time.Millisecond, nil); err == nil {
		t.Fatalf("expected client error to stop polling")
	}
}

func TestURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/video/abc/url" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"url":"https://cdn.example/v.mp4","expiresAt":"2030-01-01T00:00:00Z"}`))
	}))
	defer srv.Close()

	loc, err := New(srv.URL, srv.Client()).URL(context.Background(), "abc")
	if err != nil {
		t.Fatalf("URL: %v", err)
	}
	if loc.URL != "https://cdn.example/v.mp4" || loc.ExpiresAt.Year() != 2030 {
		t.Fatalf("locator = %+v", loc)
	}
}
