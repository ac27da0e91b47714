package cacheagent

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
)

// Handler returns a reverse proxy to upstream that fetches through the agent.
func (a *Agent) Handler(upstream *url.URL) http.Handler {
	proxy := httputil.NewSingleHostReverseProxy(upstream)
	proxy.Transport = a
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		a.logger.Warn("proxy pass-through failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}
	return proxy
}
