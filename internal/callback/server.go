// Package callback captures the authorization redirect on a loopback HTTP server.
package callback

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"sync"
	"time"
)

// Path is where the browser is redirected after login.
const Path = "/callback"

// Timeout bounds how long a login waits for the redirect.
const Timeout = 10 * time.Minute

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>kiroauth</title></head>
<body style="font-family: sans-serif; margin: 4em;">
{{if .Error}}<h2>Login failed</h2><p>{{.Error}}{{if .Description}}: {{.Description}}{{end}}</p>
{{else}}<h2>Authorization received</h2><p>Return to the terminal to see whether login finished.</p>{{end}}
</body></html>`))

// Result is the query of the redirect request.
type Result struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// IsError reports whether the service redirected with an error instead of a code.
func (r Result) IsError() bool {
	return r.Error != ""
}

// Err returns the redirect error, or nil for a successful redirect.
func (r Result) Err() error {
	if !r.IsError() {
		return nil
	}
	if r.ErrorDescription != "" {
		return fmt.Errorf("authorization failed: %s: %s", r.Error, r.ErrorDescription)
	}
	return fmt.Errorf("authorization failed: %s", r.Error)
}

// Server accepts exactly one redirect and then shuts down.
type Server struct {
	port     int
	server   *http.Server
	listener net.Listener
	resultCh chan Result
	errorCh  chan error
	once     sync.Once
	stopOnce sync.Once
}

// NewServer creates a Server for 127.0.0.1:port. Port 0 picks a free port.
func NewServer(port int) *Server {
	return &Server{
		port:     port,
		resultCh: make(chan Result, 1),
		errorCh:  make(chan error, 1),
	}
}

// Start begins listening and returns the redirect URI to pass to Login.
// The server stops when ctx is done.
func (s *Server) Start(ctx context.Context) (string, error) {
	addr := fmt.Sprintf("127.0.0.1:%d", s.port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("starting callback server on %s: %w", addr, err)
	}
	s.listener = listener
	s.port = listener.Addr().(*net.TCPAddr).Port

	mux := http.NewServeMux()
	mux.HandleFunc(Path, s.handleCallback)
	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case s.errorCh <- err:
			default:
			}
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return s.RedirectURI(), nil
}

// RedirectURI returns the URI the browser should be sent back to.
func (s *Server) RedirectURI() string {
	return fmt.Sprintf("http://127.0.0.1:%d%s", s.port, Path)
}

// Port returns the bound port once Start has succeeded.
func (s *Server) Port() int {
	return s.port
}

// Wait blocks until the redirect arrives, the server fails, or ctx is done.
func (s *Server) Wait(ctx context.Context) (Result, error) {
	select {
	case result := <-s.resultCh:
		return result, nil
	case err := <-s.errorCh:
		return Result{}, err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	// A request without code or error is not the redirect and must not use it up.
	q := r.URL.Query()
	if q.Get("code") == "" && q.Get("error") == "" {
		http.Error(w, "missing code or error parameter", http.StatusBadRequest)
		return
	}

	handled := false
	s.once.Do(func() {
		handled = true
		s.process(w, r)
	})
	if !handled {
		http.Error(w, "callback already processed", http.StatusBadRequest)
	}
}

func (s *Server) process(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")

	q := r.URL.Query()
	result := Result{
		Code:             q.Get("code"),
		State:            q.Get("state"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if result.IsError() {
		w.WriteHeader(http.StatusBadRequest)
	}
	_ = pageTemplate.Execute(w, map[string]string{
		"Error":       result.Error,
		"Description": result.ErrorDescription,
	})

	select {
	case s.resultCh <- result:
	default:
	}

	// Give the response time to flush before closing the listener.
	go func() {
		time.Sleep(time.Second)
		s.Stop()
	}()
}

// Stop shuts the server down. It is safe to call more than once.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		if s.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = s.server.Shutdown(ctx)
		}
		if s.listener != nil {
			_ = s.listener.Close()
		}
	})
}
