package httpserver

import (
	"net"
	"net/http"
	"strings"

	"github.com/alexpevzner/goipp"

	"github.com/michaelrsweet/pappl-sub004/internal/authz"
	"github.com/michaelrsweet/pappl-sub004/internal/ipp"
)

// route implements spec.md §4.G's per-connection loop: classify the
// request, authorize it, then dispatch to the IPP protocol handler or the
// web admin surface.
func (s *Server) route(w http.ResponseWriter, r *http.Request) {
	if isIPPRequest(r) {
		s.serveIPP(w, r)
		return
	}
	if s.admin != nil {
		if err := s.sys.AuthPolicy().Authorize(s.authRequestFor(r, authz.OpAdmin)); err != nil {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		s.admin.ServeHTTP(w, r)
		return
	}
	http.NotFound(w, r)
}

func isIPPRequest(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/ipp")
}

// serveIPP decodes the request body as an IPP message, authorizes it by
// operation kind, dispatches, and writes the encoded response (spec.md
// §4.F/§4.G).
func (s *Server) serveIPP(w http.ResponseWriter, r *http.Request) {
	var req goipp.Message
	if err := req.Decode(r.Body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	authReq := s.authRequestFor(r, classifyOp(goipp.Op(req.Code)))
	if err := s.sys.AuthPolicy().Authorize(authReq); err != nil {
		resp := goipp.NewResponse(req.Version, goipp.StatusErrorForbidden, req.RequestID)
		w.Header().Set("Content-Type", "application/ipp")
		resp.Encode(w)
		return
	}

	ctx := ipp.WithPrincipal(r.Context(), ipp.Principal{Username: authReq.BasicUser, IsAdmin: authReq.Op == authz.OpAdmin})
	resp := ipp.Dispatch(ctx, s.sys, &req, r.Body)

	w.Header().Set("Content-Type", "application/ipp")
	if err := resp.Encode(w); err != nil {
		s.log.Warn("httpserver: encode response failed", "err", err.Error())
	}
}

// authRequestFor gathers the authz.Request facts spec.md §4.G needs from
// one HTTP request: localhost/TLS detection and Basic credentials.
func (s *Server) authRequestFor(r *http.Request, op authz.Op) authz.Request {
	req := authz.Request{
		IsLocalhost: isLocalhost(r.RemoteAddr),
		IsTLS:       r.TLS != nil,
		Op:          op,
	}
	if user, pass, ok := r.BasicAuth(); ok {
		req.HasBasicCreds = true
		req.BasicUser = user
		req.BasicPass = pass
	}
	return req
}

func isLocalhost(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// classifyOp maps an IPP operation code to the admin/print/other split of
// spec.md §4.G's group-membership clause.
func classifyOp(op goipp.Op) authz.Op {
	switch op {
	case goipp.OpCreatePrinter, goipp.OpDeletePrinter, goipp.OpSetPrinterAttributes,
		goipp.OpSetSystemAttributes, goipp.OpShutdownAllPrinters:
		return authz.OpAdmin
	case goipp.OpPrintJob, goipp.OpValidateJob, goipp.OpCancelJob:
		return authz.OpPrint
	default:
		return authz.OpOther
	}
}

