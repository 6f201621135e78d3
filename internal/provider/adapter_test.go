package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/consultd/consultd/internal/apierr"
)

func staticCreds(key, baseURL string) CredentialsLookup {
	return func(family Family) (Credentials, bool) {
		return Credentials{APIKey: key, BaseURL: baseURL}, true
	}
}

func TestCompleteSendsSystemPromptWhenSupported(t *testing.T) {
	var gotBody chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(chatResponse{
			Choices: []struct {
				Message struct {
					Content          string `json:"content"`
					ReasoningContent string `json:"reasoning_content"`
				} `json:"message"`
				FinishReason string `json:"finish_reason"`
			}{{Message: struct {
				Content          string `json:"content"`
				ReasoningContent string `json:"reasoning_content"`
			}{Content: "hello"}, FinishReason: "stop"}},
		})
	}))
	defer srv.Close()

	a := New(staticCreds("key", srv.URL), nil)
	res, err := a.Complete(context.Background(), "deepseek-chat", []Message{{Role: "user", Content: "hi"}}, "be nice", Options{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if res.Content != "hello" {
		t.Fatalf("unexpected content %q", res.Content)
	}
	if len(gotBody.Messages) != 2 || gotBody.Messages[0].Role != "system" {
		t.Fatalf("expected system message prepended, got %+v", gotBody.Messages)
	}
}

func TestCompleteMergesSystemPromptWhenUnsupported(t *testing.T) {
	var gotBody chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(chatResponse{
			Choices: []struct {
				Message struct {
					Content          string `json:"content"`
					ReasoningContent string `json:"reasoning_content"`
				} `json:"message"`
				FinishReason string `json:"finish_reason"`
			}{{}},
		})
	}))
	defer srv.Close()

	a := New(staticCreds("key", srv.URL), nil)
	_, err := a.Complete(context.Background(), "deepseek-reasoner", []Message{{Role: "user", Content: "question"}}, "be terse", Options{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(gotBody.Messages) != 1 {
		t.Fatalf("expected single merged message, got %+v", gotBody.Messages)
	}
	if !strings.Contains(gotBody.Messages[0].Content, "[System Instructions]") || !strings.Contains(gotBody.Messages[0].Content, "[User Query]") {
		t.Fatalf("expected merged prompt markers, got %q", gotBody.Messages[0].Content)
	}
}

func TestCompleteRetriesOnRetryableStatusThenSucceeds(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(chatResponse{
			Choices: []struct {
				Message struct {
					Content          string `json:"content"`
					ReasoningContent string `json:"reasoning_content"`
				} `json:"message"`
				FinishReason string `json:"finish_reason"`
			}{{Message: struct {
				Content          string `json:"content"`
				ReasoningContent string `json:"reasoning_content"`
			}{Content: "ok"}}},
		})
	}))
	defer srv.Close()

	a := New(staticCreds("key", srv.URL), NewMetrics("consultd_test_retry"))
	res, err := a.Complete(context.Background(), "deepseek-chat", []Message{{Role: "user", Content: "hi"}}, "", Options{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if res.Content != "ok" {
		t.Fatalf("unexpected content %q", res.Content)
	}
	if atomic.LoadInt32(&attempts) != 3 {
		t.Fatalf("expected 3 attempts (initial + 2 retries), got %d", attempts)
	}
}

func TestCompleteGivesUpAfterMaxRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	a := New(staticCreds("key", srv.URL), NewMetrics("consultd_test_giveup"))
	_, err := a.Complete(context.Background(), "deepseek-chat", []Message{{Role: "user", Content: "hi"}}, "", Options{})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if apierr.KindOf(err) != apierr.ExternalUnavail {
		t.Fatalf("expected EXTERNAL_UNAVAILABLE, got %s", apierr.KindOf(err))
	}
}

func TestCompleteDoesNotRetryOnNonRetryableStatus(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	a := New(staticCreds("key", srv.URL), nil)
	_, err := a.Complete(context.Background(), "deepseek-chat", []Message{{Role: "user", Content: "hi"}}, "", Options{})
	if err == nil {
		t.Fatal("expected error")
	}
	if atomic.LoadInt32(&attempts) != 1 {
		t.Fatalf("expected no retries on 400, got %d attempts", attempts)
	}
}

func TestCompleteReturnsAuthErrorWithoutCredentials(t *testing.T) {
	a := New(func(Family) (Credentials, bool) { return Credentials{}, false }, nil)
	_, err := a.Complete(context.Background(), "gpt-5.2", []Message{{Role: "user", Content: "hi"}}, "", Options{})
	if apierr.KindOf(err) != apierr.AuthError {
		t.Fatalf("expected AUTH_ERROR, got %v", err)
	}
}

func TestCompleteRejectsUnknownModel(t *testing.T) {
	a := New(staticCreds("key", "http://example.invalid"), nil)
	_, err := a.Complete(context.Background(), "not-a-real-model", nil, "", Options{})
	if apierr.KindOf(err) != apierr.ValidationError {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}
