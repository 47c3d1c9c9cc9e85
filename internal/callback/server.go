// Package callback provides the minimal local HTTP server that receives the
// authorization redirect during a login. The browser leaves the application
// entirely during the handshake; this listener is where control returns.
package callback

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Result carries the raw redirect parameters to the session manager, which
// performs all validation.
type Result struct {
	Query url.Values
}

// Server is a single-shot HTTP listener for the OAuth redirect.
type Server struct {
	server  *http.Server
	port    int
	path    string
	result  chan *Result
	errChan chan error
	mu      sync.Mutex
	running bool
}

// NewServer constructs a listener for the given port serving the redirect
// path (e.g. "/callback").
func NewServer(port int, path string) *Server {
	if path == "" {
		path = "/callback"
	}
	return &Server{
		port:    port,
		path:    path,
		result:  make(chan *Result, 1),
		errChan: make(chan error, 1),
	}
}

// Start launches the callback listener.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("callback server already running")
	}
	if !s.isPortAvailable() {
		return fmt.Errorf("port %d is already in use", s.port)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handleCallback)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.running = true

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.errChan <- err
		}
	}()

	return nil
}

// Stop gracefully terminates the callback listener.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.server == nil {
		return nil
	}
	defer func() {
		s.running = false
		s.server = nil
	}()
	return s.server.Shutdown(ctx)
}

// WaitForCallback blocks until a redirect arrives, the server fails, or the
// timeout elapses.
func (s *Server) WaitForCallback(timeout time.Duration) (*Result, error) {
	select {
	case res := <-s.result:
		return res, nil
	case err := <-s.errChan:
		return nil, err
	case <-time.After(timeout):
		return nil, fmt.Errorf("timeout waiting for OAuth callback")
	}
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	s.sendResult(&Result{Query: query})

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if errParam := strings.TrimSpace(query.Get("error")); errParam != "" {
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, errorHTML, errParam)
		return
	}
	if strings.TrimSpace(query.Get("code")) == "" {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = fmt.Fprintf(w, errorHTML, "missing authorization code")
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, successHTML)
}

func (s *Server) sendResult(res *Result) {
	select {
	case s.result <- res:
	default:
		log.Warn("callback server: duplicate redirect ignored")
	}
}

func (s *Server) isPortAvailable() bool {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return false
	}
	_ = listener.Close()
	return true
}
