package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestOpenAIClient_Generate(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path: got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("authorization header: got %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"cards\":[]}"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL+"/v1/", "sk-test", "test-model", time.Second)
	out, err := c.Generate(context.Background(), Request{System: "sys", Prompt: "make cards", MaxTokens: 100})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != `{"cards":[]}` {
		t.Errorf("content: got %q", out)
	}
	if got.Model != "test-model" || len(got.Messages) != 2 || got.Messages[1].Content != "make cards" {
		t.Errorf("unexpected request: %+v", got)
	}
	if got.ResponseFormat["type"] != "json_object" {
		t.Errorf("response_format: got %v", got.ResponseFormat)
	}
}

func TestOpenAIClient_ErrorClassification(t *testing.T) {
	cases := []struct {
		name         string
		status       int
		body         string
		wantRejected bool
		wantEmpty    bool
	}{
		{"unauthorized is permanent", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, true, false},
		{"rate limited is retryable", http.StatusTooManyRequests, `{}`, false, false},
		{"server error is retryable", http.StatusBadGateway, `upstream`, false, false},
		{"empty choices", http.StatusOK, `{"choices":[]}`, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewOpenAIClient(srv.URL, "", "m", time.Second).Generate(context.Background(), Request{Prompt: "x"})
			if err == nil {
				t.Fatal("expected error")
			}
			if errors.Is(err, ErrRejected) != tc.wantRejected {
				t.Errorf("ErrRejected: got %v, want %v (%v)", errors.Is(err, ErrRejected), tc.wantRejected, err)
			}
			if errors.Is(err, ErrEmptyResponse) != tc.wantEmpty {
				t.Errorf("ErrEmptyResponse: got %v, want %v (%v)", errors.Is(err, ErrEmptyResponse), tc.wantEmpty, err)
			}
		})
	}
}

func TestNew_UnknownProvider(t *testing.T) {
	if _, _, err := New(context.Background(), Config{Provider: "carrier-pigeon"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
