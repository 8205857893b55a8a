package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenRouterClientComplete(t *testing.T) {
	var got Completion
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("Authorization = %q", auth)
		}
		if r.Header.Get("X-Title") != "FABARO ALWAYS" || r.Header.Get("HTTP-Referer") != "https://always.example" {
			t.Errorf("attribution headers = %v", r.Header)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Halo juga"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenRouterClient(OpenRouterConfig{APIKey: " sk-test ", BaseURL: srv.URL + "/", SiteURL: "https://always.example"})
	reply, err := c.Complete(context.Background(), Completion{
		Model:       "m",
		Messages:    []Message{{Role: RoleUser, Content: "halo"}},
		Temperature: 0.6,
		TopP:        0.9,
	})
	if err != nil || reply != "Halo juga" {
		t.Fatalf("Complete() = %q, %v", reply, err)
	}
	if got.Model != "m" || got.TopP != 0.9 || len(got.Messages) != 1 {
		t.Errorf("upstream body = %+v", got)
	}
}

func TestOpenRouterClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"No auth"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewOpenRouterClient(OpenRouterConfig{APIKey: "k", BaseURL: srv.URL})
	_, err := c.Complete(context.Background(), Completion{})
	var upstream *UpstreamError
	if !errors.As(err, &upstream) || upstream.Status != http.StatusUnauthorized {
		t.Fatalf("error = %v, want UpstreamError 401", err)
	}
	if upstream.Body != `{"error":{"message":"No auth"}}` {
		t.Errorf("Body = %q", upstream.Body)
	}

	_, err = NewOpenRouterClient(OpenRouterConfig{BaseURL: srv.URL}).Complete(context.Background(), Completion{})
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("missing key error = %v", err)
	}
}

func TestOpenRouterClientNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	reply, err := NewOpenRouterClient(OpenRouterConfig{APIKey: "k", BaseURL: srv.URL}).Complete(context.Background(), Completion{})
	if err != nil || reply != "" {
		t.Errorf("Complete() = %q, %v, want empty reply", reply, err)
	}
}
