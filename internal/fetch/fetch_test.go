package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Error("expected a User-Agent header")
		}
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("expected custom Accept header, got %q", r.Header.Get("Accept"))
		}
		fmt.Fprint(w, "hello")
	}))
	defer srv.Close()

	c := NewClient(time.Second)
	body, err := c.Get(context.Background(), srv.URL, map[string]string{"Accept": "application/json"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(body) != "hello" {
		t.Errorf("expected 'hello', got %q", body)
	}
}

func TestGetRetriesOnceAfterServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	c := NewClient(time.Second).WithRetry(1, 10*time.Millisecond)
	body, err := c.Get(context.Background(), srv.URL, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(body) != "ok" {
		t.Errorf("expected 'ok', got %q", body)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
}

func TestGetGivesUpAfterOneRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(time.Second).WithRetry(1, 10*time.Millisecond)
	_, err := c.Get(context.Background(), srv.URL, nil)

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if se.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", se.Code)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
}

func TestGetDoesNotRetryClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(time.Second).WithRetry(1, 10*time.Millisecond)
	if _, err := c.Get(context.Background(), srv.URL, nil); err == nil {
		t.Fatal("expected error for 404")
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
}

func TestGetTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		fmt.Fprint(w, "late")
	}))
	defer srv.Close()

	c := NewClient(50*time.Millisecond).WithRetry(0, 0)
	if _, err := c.Get(context.Background(), srv.URL, nil); err == nil {
		t.Error("expected timeout error")
	}
}

func TestStatusErrorRedactsKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(time.Second).WithRetry(0, 0)
	_, err := c.Get(context.Background(), srv.URL+"/v2/everything?q=sf&apiKey=secret123", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if strings.Contains(err.Error(), "secret123") {
		t.Errorf("API key leaked in error: %v", err)
	}
}

func TestProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("expected HEAD, got %s", r.Method)
		}
	}))
	defer srv.Close()

	c := NewClient(time.Second)
	if !c.Probe(context.Background(), srv.URL) {
		t.Error("expected probe to succeed")
	}
	if c.Probe(context.Background(), "http://127.0.0.1:1/unreachable") {
		t.Error("expected probe to fail for unreachable host")
	}
}

func TestExcerpt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>Ferry service expands</title>
<meta name="description" content="The Ferry Building adds weekend runs to Oakland."></head>
<body><article><h1>Ferry service expands</h1>
<p>The Ferry Building adds weekend runs to Oakland, with boats leaving every thirty minutes from early morning until late evening on Saturdays and Sundays.</p>
<p>Officials said ridership has recovered to pre-pandemic levels on several routes, and the new schedule starts next month.</p>
</article></body></html>`)
	}))
	defer srv.Close()

	c := NewClient(time.Second)
	text, err := c.Excerpt(context.Background(), srv.URL+"/ferry")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(text, "Ferry Building") {
		t.Errorf("expected excerpt to mention the Ferry Building, got %q", text)
	}
}
