// Package httpserver implements the per-connection HTTP/TLS listener of
// spec.md §4.G: it parses each request's Host/Authorization/Content-Length
// headers, authorizes it against internal/authz's policy matrix, and routes
// application/ipp bodies to internal/ipp.Dispatch or everything else to the
// web admin resource table. Grounded on the teacher's server/main.go
// http.Server + goroutine + graceful-Shutdown pattern and its logging /
// security-headers middleware chain.
package httpserver

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/michaelrsweet/pappl-sub004/internal/authz"
	"github.com/michaelrsweet/pappl-sub004/internal/corelog"
	"github.com/michaelrsweet/pappl-sub004/internal/ipp"
)

// System is the subset of internal/core.System the HTTP layer needs,
// narrowed to an interface so this package has no import-time dependency on
// internal/core (mirroring internal/ipp.Backend's own narrowing).
type System interface {
	ipp.Backend
	AuthPolicy() *authz.Policy
	SessionHostname() string
	CSRFToken(hostname string) string
	SetPassword(pw string) error
	SetEventTap(fn func(ownerKind string, ownerID int, kind string, attrs map[string]interface{}))
}

// Server owns one or more listening sockets (spec.md §4.G "one or more
// listening sockets (TCP, optionally TLS; plus optionally a UNIX-domain
// socket)") and the shared handler behind all of them.
type Server struct {
	sys     System
	log     *corelog.Logger
	handler http.Handler

	mu      struct{ servers []*http.Server }
	admin   *AdminMux
}

// New builds a Server around sys. admin, if non-nil, supplies the web
// resource table (resource path -> handler); passing nil is valid for
// IPP-only deployments under test.
func New(sys System, logger *corelog.Logger, admin *AdminMux) *Server {
	s := &Server{sys: sys, log: logger, admin: admin}
	s.handler = s.loggingMiddleware(s.securityHeadersMiddleware(http.HandlerFunc(s.route)))
	return s
}

// ListenerSpec is one configured listener: "http"/"https"/"unix" plus the
// address or socket path (spec.md §3 "listener set").
type ListenerSpec struct {
	Scheme string
	Addr   string
	TLS    *tls.Config
}

// ParseListener turns a "scheme://host:port" or "unix:///path" string from
// Config.Listeners into a ListenerSpec.
func ParseListener(raw string) (ListenerSpec, error) {
	parts := strings.SplitN(raw, "://", 2)
	if len(parts) != 2 {
		return ListenerSpec{}, fmt.Errorf("httpserver: malformed listener %q", raw)
	}
	return ListenerSpec{Scheme: parts[0], Addr: parts[1]}, nil
}

// Serve starts one http.Server per spec, each in its own goroutine, and
// blocks until ctx is canceled, then gracefully shuts every one down
// (teacher's server/main.go standalone/reverse-proxy startXxxMode pattern,
// collapsed into one loop since every listener here shares one handler).
func (s *Server) Serve(ctx context.Context, specs []ListenerSpec) error {
	errLog := log.New(logBridgeWriter{log: s.log}, "", 0)

	for _, spec := range specs {
		srv := &http.Server{
			Handler:           s.handler,
			ErrorLog:          errLog,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       30 * time.Second, // spec.md §5 "HTTP keep-alive idle: 30s"
		}

		ln, err := s.listen(spec)
		if err != nil {
			return fmt.Errorf("httpserver: listen %s://%s: %w", spec.Scheme, spec.Addr, err)
		}

		s.mu.servers = append(s.mu.servers, srv)
		go func(srv *http.Server, ln net.Listener, spec ListenerSpec) {
			s.log.Info("httpserver: listening", "scheme", spec.Scheme, "addr", spec.Addr)
			var err error
			if spec.TLS != nil {
				srv.TLSConfig = spec.TLS
				err = srv.ServeTLS(ln, "", "")
			} else {
				err = srv.Serve(ln)
			}
			if err != nil && err != http.ErrServerClosed {
				s.log.Error("httpserver: listener failed", "scheme", spec.Scheme, "err", err.Error())
			}
		}(srv, ln, spec)
	}

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, srv := range s.mu.servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("httpserver: shutdown error", "err", err.Error())
		}
	}
	return nil
}

func (s *Server) listen(spec ListenerSpec) (net.Listener, error) {
	switch spec.Scheme {
	case "unix":
		return net.Listen("unix", spec.Addr)
	default:
		return net.Listen("tcp", spec.Addr)
	}
}

// logBridgeWriter adapts *corelog.Logger to io.Writer for http.Server's
// ErrorLog field, following the teacher's logBridgeWriter in server/main.go.
type logBridgeWriter struct {
	log *corelog.Logger
}

func (w logBridgeWriter) Write(p []byte) (int, error) {
	w.log.Warn(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.log.Debug("httpserver: request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr, "host", r.Host, "tls", r.TLS != nil)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if r.TLS != nil {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}
