package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestPingNotInitialized(t *testing.T) {
	Init(nil)
	if err := Ping(context.Background()); err == nil {
		t.Error("Expected error when not initialized")
	}
}

func TestRewriteConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"not initialized", nil},
		{"missing API key", &Config{Model: "test_model"}},
		{"missing model", &Config{APIKey: "test_api_key"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Init(tt.cfg)
			if _, err := Rewrite(context.Background(), "translate", "hola"); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRewrite(t *testing.T) {
	var got ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_ = json.NewEncoder(w).Encode(ChatResponse{Choices: []Choice{{Message: Message{Content: "\"hello world\"\n"}}}})
	}))
	defer srv.Close()

	Init(&Config{APIKey: "k", Model: "m", Providers: []string{"groq"}, Endpoint: srv.URL})
	defer Init(nil)

	out, err := Rewrite(context.Background(), "Translate the text to English.", "hola mundo")
	if err != nil {
		t.Fatal(err)
	}
	if out != "hello world" {
		t.Fatalf("out = %q", out)
	}
	if got.Model != "m" || len(got.Messages) != 2 || !strings.Contains(got.Messages[1].Content, "hola mundo") {
		t.Fatalf("request = %+v", got)
	}
	if got.Provider == nil || got.Provider.Order[0] != "groq" || *got.Provider.AllowFallbacks {
		t.Fatalf("provider = %+v", got.Provider)
	}
}

func TestRewriteAPIErrorRetries(t *testing.T) {
	if testing.Short() {
		t.Skip("retries sleep between attempts")
	}
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"auth","code":401}}`))
	}))
	defer srv.Close()

	Init(&Config{APIKey: "k", Model: "m", Endpoint: srv.URL})
	defer Init(nil)

	_, err := Rewrite(context.Background(), "x", "y")
	if err == nil || !strings.Contains(err.Error(), "bad key") {
		t.Fatalf("err = %v", err)
	}
	if calls.Load() != maxRetries {
		t.Fatalf("calls = %d, want %d", calls.Load(), maxRetries)
	}
}

func TestRewriteCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	Init(&Config{APIKey: "k", Model: "m", Endpoint: srv.URL})
	defer Init(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Rewrite(ctx, "x", "y"); err == nil {
		t.Fatal("expected error")
	}
}

func TestCleanResult(t *testing.T) {
	tests := map[string]string{
		"  plain  ":          "plain",
		"\"quoted\"":         "quoted",
		"```\nfenced\n```":   "fenced",
		"keep \"inner\" one": "keep \"inner\" one",
	}
	for in, want := range tests {
		if got := cleanResult(in); got != want {
			t.Errorf("cleanResult(%q) = %q, want %q", in, got, want)
		}
	}
}
