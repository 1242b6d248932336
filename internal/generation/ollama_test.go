package generation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxRetries:      2,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Ollama, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewOllama(OllamaConfig{
		BaseURL:           srv.URL,
		Model:             "test-model",
		Temperature:       0.7,
		TopP:              0.9,
		MaxGenerateTokens: 500,
		Retry:             fastRetry(),
	}, nil)
	t.Cleanup(client.client.CloseIdleConnections)
	return client, srv
}

func TestGenerate(t *testing.T) {
	var captured generateRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %q, want /api/generate", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{"response": "the answer"})
	})

	got, err := client.Generate(context.Background(), "system rules", "the question")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if got != "the answer" {
		t.Errorf("Generate() = %q, want %q", got, "the answer")
	}

	if captured.Model != "test-model" {
		t.Errorf("model = %q, want test-model", captured.Model)
	}
	if captured.System != "system rules" || captured.Prompt != "the question" {
		t.Errorf("prompts not forwarded: system=%q prompt=%q", captured.System, captured.Prompt)
	}
	if captured.Stream {
		t.Error("stream must be false")
	}
	if captured.Options.NumPredict != 500 || captured.Options.Temperature != 0.7 {
		t.Errorf("options not forwarded: %+v", captured.Options)
	}
}

func TestGenerate_RetriesTransientFailure(t *testing.T) {
	var calls atomic.Int64
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"response": "recovered"})
	})

	got, err := client.Generate(context.Background(), "", "q")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if got != "recovered" {
		t.Errorf("Generate() = %q, want recovered", got)
	}
	if calls.Load() != 2 {
		t.Errorf("backend called %d times, want 2", calls.Load())
	}
}

func TestGenerate_ExhaustedRetriesWrapErrBackend(t *testing.T) {
	var calls atomic.Int64
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
	})

	_, err := client.Generate(context.Background(), "", "q")
	if !errors.Is(err, ErrBackend) {
		t.Fatalf("expected ErrBackend, got %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("backend called %d times, want 3", calls.Load())
	}
}

func TestGenerate_NonRetryableFailsFast(t *testing.T) {
	var calls atomic.Int64
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	})

	_, err := client.Generate(context.Background(), "", "q")
	if !errors.Is(err, ErrBackend) {
		t.Fatalf("expected ErrBackend, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("backend called %d times, want 1", calls.Load())
	}
}

func TestGenerate_EmptyResponseIsError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"response": "  "})
	})

	_, err := client.Generate(context.Background(), "", "q")
	if !errors.Is(err, ErrBackend) {
		t.Fatalf("expected ErrBackend, got %v", err)
	}
}

func TestRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limit", errors.New("Rate Limit exceeded"), true},
		{"status 503", errors.New("backend status 503: down"), true},
		{"timeout", errors.New("dial tcp: i/o timeout"), true},
		{"bad request", errors.New("backend status 400: bad"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryableError(tt.err); got != tt.want {
				t.Errorf("retryableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
