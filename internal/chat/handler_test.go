package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestHandler(stub *stubCompleter) *Handler {
	return NewHandler(NewService(stub, Defaults{}))
}

func TestHandlerSuccess(t *testing.T) {
	h := newTestHandler(&stubCompleter{reply: "Tenang, aku dengar."})
	rec := httptest.NewRecorder()
	body := `{"messages":[{"role":"user","content":"aku sedih"}],"targetLang":"id-ID"}`
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Content != "Tenang, aku dengar." {
		t.Errorf("content = %q", resp.Content)
	}
}

func TestHandlerErrors(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		body       string
		err        error
		wantStatus int
		wantError  string
	}{
		{"wrong method", http.MethodGet, "", nil, http.StatusMethodNotAllowed, "method not allowed"},
		{"malformed json", http.MethodPost, "{", nil, http.StatusBadRequest, "invalid JSON"},
		{"bad role", http.MethodPost, `{"messages":[{"role":"robot","content":"x"}]}`, nil, http.StatusBadRequest, "invalid role"},
		{"upstream failure", http.MethodPost, `{"messages":[]}`, &UpstreamError{Status: 429, Body: "rate limited"}, http.StatusInternalServerError, "rate limited"},
		{"transport failure", http.MethodPost, `{}`, errors.New("dial tcp: refused"), http.StatusInternalServerError, "refused"},
		{"too large", http.MethodPost, `{"model":"` + strings.Repeat("a", MaxRequestBody) + `"}`, nil, http.StatusBadRequest, "invalid JSON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(&stubCompleter{err: tt.err})
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, "/api/chat", strings.NewReader(tt.body)))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var resp ErrorResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(resp.Error, tt.wantError) {
				t.Errorf("error = %q, want it to contain %q", resp.Error, tt.wantError)
			}
		})
	}
}

func TestClientRoundTrip(t *testing.T) {
	srv := httptest.NewServer(newTestHandler(&stubCompleter{reply: "ok"}))
	defer srv.Close()

	c := NewClient(srv.URL+"/api/chat", srv.Client())
	got, err := c.Send(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	if err != nil || got != "ok" {
		t.Fatalf("Send() = %q, %v", got, err)
	}
}

func TestClientAPIError(t *testing.T) {
	srv := httptest.NewServer(newTestHandler(&stubCompleter{err: &UpstreamError{Status: 500, Body: "model overloaded"}}))
	defer srv.Close()

	_, err := NewClient(srv.URL+"/api/chat", nil).Send(context.Background(), Request{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusInternalServerError || apiErr.Message != "model overloaded" {
		t.Errorf("APIError = %+v", apiErr)
	}
}

func TestClientPlainTextError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, nil).Send(context.Background(), Request{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "gateway down" {
		t.Errorf("error = %v", err)
	}
}
