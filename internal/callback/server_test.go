package callback

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func freePort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("could not allocate port: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	_ = listener.Close()
	return port
}

func TestServerCapturesRedirect(t *testing.T) {
	port := freePort(t)
	s := NewServer(port, "/callback")
	if err := s.Start(); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	}()

	resp, err := http.Get(fmt.Sprintf("http://localhost:%d/callback?code=abc&state=xyz", port))
	if err != nil {
		t.Fatalf("redirect request failed: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("redirect status = %d, want 200", resp.StatusCode)
	}

	result, err := s.WaitForCallback(2 * time.Second)
	if err != nil {
		t.Fatalf("WaitForCallback returned error: %v", err)
	}
	if got := result.Query.Get("code"); got != "abc" {
		t.Errorf("code = %q, want abc", got)
	}
	if got := result.Query.Get("state"); got != "xyz" {
		t.Errorf("state = %q, want xyz", got)
	}
}

func TestServerRejectsSecondStart(t *testing.T) {
	port := freePort(t)
	s := NewServer(port, "/callback")
	if err := s.Start(); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	}()

	if err := s.Start(); err == nil {
		t.Error("second Start did not fail")
	}
}

func TestWaitForCallbackTimeout(t *testing.T) {
	s := NewServer(freePort(t), "/callback")
	if _, err := s.WaitForCallback(50 * time.Millisecond); err == nil {
		t.Error("expected timeout error")
	}
}

func TestHandleCallbackResponses(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantBody   string
	}{
		{"success page", "/callback?code=abc&state=s", http.StatusOK, "Login complete"},
		{"denied page", "/callback?error=access_denied", http.StatusOK, "access_denied"},
		{"missing code", "/callback?state=s", http.StatusBadRequest, "missing authorization code"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(0, "/callback")

			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			recorder := httptest.NewRecorder()
			s.handleCallback(recorder, req)

			if recorder.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", recorder.Code, tt.wantStatus)
			}
			if !strings.Contains(recorder.Body.String(), tt.wantBody) {
				t.Errorf("body does not contain %q", tt.wantBody)
			}
		})
	}
}

func TestHandleCallbackRejectsPost(t *testing.T) {
	s := NewServer(0, "/callback")
	req := httptest.NewRequest(http.MethodPost, "/callback?code=a", nil)
	recorder := httptest.NewRecorder()
	s.handleCallback(recorder, req)
	if recorder.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", recorder.Code)
	}
}
