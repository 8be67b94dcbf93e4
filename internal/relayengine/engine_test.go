package relayengine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hoppscotch/agent/internal/cancelreg"
)

func TestExecuteJSONRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("server: decoding body: %v", err)
		}
		if body["hello"] != "world" {
			t.Errorf("server: unexpected body %v", body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	req := Request{
		ID:     1,
		URL:    srv.URL,
		Method: http.MethodPost,
		Content: ContentType{
			Kind:     "json",
			JSONBody: map[string]any{"hello": "world"},
		},
	}

	var states []State
	resp, err := Execute(context.Background(), nil, req, func(s State) { states = append(states, s) })
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Fatalf("status = %d", resp.Status)
	}
	if resp.Content.Kind != "json" {
		t.Fatalf("content kind = %s", resp.Content.Kind)
	}
	m, ok := resp.Content.JSONBody.(map[string]any)
	if !ok || m["ok"] != true {
		t.Fatalf("unexpected json body: %#v", resp.Content.JSONBody)
	}
	if len(states) < 2 || states[0] != StatePreparing || states[len(states)-1] != StateSucceeded {
		t.Fatalf("unexpected state sequence: %v", states)
	}
}

func TestExecuteBearerAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer abc123" {
			t.Errorf("server: Authorization = %q", got)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	req := Request{
		ID:     2,
		URL:    srv.URL,
		Method: http.MethodGet,
		Auth:   AuthType{Kind: "bearer", Token: "abc123"},
	}
	resp, err := Execute(context.Background(), nil, req, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Fatalf("status = %d", resp.Status)
	}
}

func TestExecuteTextResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("plain text body"))
	}))
	defer srv.Close()

	resp, err := Execute(context.Background(), nil, Request{ID: 3, URL: srv.URL, Method: http.MethodGet}, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if resp.Content.Kind != "text" || resp.Content.Body != "plain text body" {
		t.Fatalf("unexpected content: %#v", resp.Content)
	}
}

func TestExecuteCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	reg := cancelreg.New()
	flag := reg.Register(99)

	done := make(chan error, 1)
	go func() {
		_, err := Execute(context.Background(), flag, Request{ID: 99, URL: srv.URL, Method: http.MethodGet}, nil)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	reg.Trip(99)

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected a cancellation error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Execute did not observe the tripped cancel flag")
	}
}

func TestExecuteUrlencodedContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("server: content-type = %s", ct)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("server: ParseForm: %v", err)
		}
		if r.FormValue("a") != "1" {
			t.Errorf("server: form value a = %s", r.FormValue("a"))
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	req := Request{
		ID:      4,
		URL:     srv.URL,
		Method:  http.MethodPost,
		Content: ContentType{Kind: "urlencoded", Fields: []MultipartField{{Name: "a", Value: "1"}}},
	}
	resp, err := Execute(context.Background(), nil, req, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if resp.Status != http.StatusNoContent {
		t.Fatalf("status = %d", resp.Status)
	}
}
