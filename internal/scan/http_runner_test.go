package scan

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPRunner_Run(t *testing.T) {
	var gotReq Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/scans" {
			t.Errorf("path = %s, want /api/v1/scans", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(Result{ScanID: "scan-42", Status: "completed"})
	}))
	defer server.Close()

	runner := NewHTTPRunner(server.URL, nil)
	result, err := runner.Run(context.Background(), Request{
		Domain:   "example.com",
		ScanType: "quick",
		Params:   map[string]any{"depth": float64(2)},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.ScanID != "scan-42" {
		t.Errorf("scan_id = %q, want scan-42", result.ScanID)
	}
	if gotReq.Domain != "example.com" || gotReq.ScanType != "quick" {
		t.Errorf("request not forwarded: %+v", gotReq)
	}
}

func TestHTTPRunner_Run_TaskError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(Result{Status: "error", Error: "resolver failed"})
	}))
	defer server.Close()

	runner := NewHTTPRunner(server.URL, nil)
	result, err := runner.Run(context.Background(), Request{Domain: "example.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Ошибка задачи — не ошибка транспорта: она приходит в Result.Error
	if result.Error != "resolver failed" {
		t.Errorf("error = %q, want resolver failed", result.Error)
	}
}

func TestHTTPRunner_Run_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer server.Close()

	runner := NewHTTPRunner(server.URL, nil)
	_, err := runner.Run(context.Background(), Request{Domain: "example.com"})
	if !errors.Is(err, ErrScanRequest) {
		t.Errorf("err = %v, want ErrScanRequest", err)
	}
}

func TestHTTPRunner_Run_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		// Читаем body, иначе сервер не заметит отключение клиента.
		io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	runner := NewHTTPRunner(server.URL, nil)
	_, err := runner.Run(ctx, Request{Domain: "example.com"})
	if err == nil {
		t.Error("expected error after context deadline")
	}
}

func TestRunnerFunc(t *testing.T) {
	called := false
	runner := RunnerFunc(func(_ context.Context, req Request) (*Result, error) {
		called = true
		return &Result{ScanID: "fn"}, nil
	})

	result, err := runner.Run(context.Background(), Request{})
	if err != nil || !called || result.ScanID != "fn" {
		t.Errorf("RunnerFunc adapter broken: result=%+v err=%v called=%t", result, err, called)
	}
}
