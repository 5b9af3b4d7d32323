package openreview

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestConnectUsesProvidedToken(t *testing.T) {
	t.Parallel()

	var authHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]any{"groups": []any{}})
	}))
	defer server.Close()

	client := Connect(context.Background(), server.URL, Credentials{Token: "tok-123"}, nil)
	if client.Anonymous() {
		t.Fatal("token session must not be anonymous")
	}

	var out struct{}
	if err := client.getJSON(context.Background(), "/groups", nil, &out); err != nil {
		t.Fatalf("getJSON error: %v", err)
	}
	if authHeader != "Bearer tok-123" {
		t.Fatalf("unexpected auth header: %q", authHeader)
	}
}

func TestConnectLoginExchange(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/login" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var creds map[string]string
		_ = json.NewDecoder(r.Body).Decode(&creds)
		if creds["id"] != "user@example.org" || creds["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "session-token"})
	}))
	defer server.Close()

	client := Connect(context.Background(), server.URL, Credentials{Email: "user@example.org", Password: "secret"}, nil)
	if client.Anonymous() {
		t.Fatal("valid login must produce an authenticated session")
	}
	if client.token != "session-token" {
		t.Fatalf("unexpected token: %q", client.token)
	}
}

func TestConnectFallsBackToAnonymous(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := Connect(context.Background(), server.URL, Credentials{Email: "user@example.org", Password: "wrong"}, nil)
	if !client.Anonymous() {
		t.Fatal("invalid credentials must degrade to anonymous access")
	}
}

func TestConnectWithoutCredentialsIsAnonymous(t *testing.T) {
	t.Parallel()

	client := Connect(context.Background(), "https://api.example.org", Credentials{}, nil)
	if !client.Anonymous() {
		t.Fatal("no credentials must mean anonymous access and zero requests")
	}
}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited", &StatusError{Status: http.StatusTooManyRequests}, true},
		{"server error", &StatusError{Status: http.StatusBadGateway}, true},
		{"not found", &StatusError{Status: http.StatusNotFound}, false},
		{"forbidden", &StatusError{Status: http.StatusForbidden}, false},
		{"plain error", errors.New("decode failed"), false},
	}
	for _, tc := range cases {
		if got := IsTransient(tc.err); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}
