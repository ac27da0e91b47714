package cacheagent

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/starford/setlist/internal/apperr"
	"github.com/starford/setlist/internal/cachestore"
)

// Response header naming where a response came from.
const (
	HeaderCache   = "X-Cache"
	cacheHit      = "HIT"
	cacheMiss     = "MISS"
	cacheFallback = "FALLBACK"
	cacheOffline  = "OFFLINE"
)

// networkFirst serves a navigation: network, then exact match, then the
// collection root page, then the offline shell, then a synthesized 503.
func (a *Agent) networkFirst(req *http.Request) *http.Response {
	resp, err := a.network.RoundTrip(req)
	if err == nil {
		return a.store(req, resp)
	}
	a.logger.Debug("navigation fetch failed, using cache",
		slog.String("url", req.URL.String()),
		slog.String("error", err.Error()))

	if e, ok := a.match(cacheKey(req.URL)); ok {
		return entryResponse(req, e, cacheHit)
	}
	if root := a.collectionRoot(req.URL); root != nil {
		if e, ok := a.match(cacheKey(root)); ok {
			return entryResponse(req, e, cacheFallback)
		}
	}
	if a.cfg.OfflinePath != "" {
		if e, ok := a.match(cacheKey(a.resolve(a.cfg.OfflinePath))); ok {
			return entryResponse(req, e, cacheFallback)
		}
	}
	return offlineResponse(req)
}

// cacheFirst serves any other read from the bucket, fetching and storing
// successful responses on a miss.
func (a *Agent) cacheFirst(req *http.Request) *http.Response {
	if e, ok := a.match(cacheKey(req.URL)); ok {
		return entryResponse(req, e, cacheHit)
	}
	resp, err := a.network.RoundTrip(req)
	if err != nil {
		a.logger.Debug("fetch failed with no cached copy",
			slog.String("url", req.URL.String()),
			slog.String("error", err.Error()))
		return offlineResponse(req)
	}
	return a.store(req, resp)
}

// store copies a successful GET response into the bucket and returns a
// response with an equivalent, unread body.
func (a *Agent) store(req *http.Request, resp *http.Response) *http.Response {
	if req.Method != http.MethodGet || !success(resp.StatusCode) || isStream(resp) {
		return resp
	}
	body, complete, err := readLimited(resp.Body, a.cfg.MaxEntryBytes)
	if err != nil {
		resp.Body.Close()
		return offlineResponse(req)
	}
	if !complete {
		resp.Body = readCloser{Reader: io.MultiReader(bytes.NewReader(body), resp.Body), Closer: resp.Body}
		return resp
	}
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))

	e := cachestore.Entry{Status: resp.StatusCode, Header: storableHeader(resp.Header), Body: body, StoredAt: time.Now().UTC()}
	if err := a.cache.Put(a.bucket, cacheKey(req.URL), e); err != nil {
		a.logger.Warn("cache put failed",
			slog.String("url", req.URL.String()),
			slog.String("error", err.Error()))
	}
	if resp.Header == nil {
		resp.Header = http.Header{}
	}
	resp.Header.Set(HeaderCache, cacheMiss)
	return resp
}

// isStream reports whether resp is an open-ended event stream. Streams are
// passed through as they arrive and never stored.
func isStream(resp *http.Response) bool {
	return strings.HasPrefix(strings.ToLower(resp.Header.Get("Content-Type")), "text/event-stream")
}

func (a *Agent) match(key string) (cachestore.Entry, bool) {
	e, err := a.cache.Match(a.bucket, key)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			a.logger.Warn("cache match failed", slog.String("key", key), slog.String("error", err.Error()))
		}
		return cachestore.Entry{}, false
	}
	return e, true
}

// collectionRoot maps "/<collection>/<id>" to "/<collection>" for known
// collections.
func (a *Agent) collectionRoot(u *url.URL) *url.URL {
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 2 || parts[1] == "" {
		return nil
	}
	for _, c := range a.cfg.Collections {
		if parts[0] == c {
			root := *u
			root.Path = "/" + c
			root.RawPath = ""
			root.RawQuery = ""
			root.Fragment = ""
			return &root
		}
	}
	return nil
}

// cacheKey is the absolute URL without fragment.
func cacheKey(u *url.URL) string {
	k := *u
	k.Fragment = ""
	k.RawFragment = ""
	return k.String()
}

func readEntry(resp *http.Response, limit int64) (cachestore.Entry, error) {
	body, complete, err := readLimited(resp.Body, limit)
	if err != nil {
		return cachestore.Entry{}, err
	}
	if !complete {
		return cachestore.Entry{}, fmt.Errorf("body exceeds %d bytes", limit)
	}
	return cachestore.Entry{Status: resp.StatusCode, Header: storableHeader(resp.Header), Body: body, StoredAt: time.Now().UTC()}, nil
}

// readLimited reads up to limit bytes; complete is false when more remain.
func readLimited(r io.Reader, limit int64) ([]byte, bool, error) {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, false, err
	}
	if int64(len(body)) > limit {
		return body, false, nil
	}
	return body, true, nil
}

func storableHeader(h http.Header) http.Header {
	out := h.Clone()
	if out == nil {
		out = http.Header{}
	}
	for _, k := range []string{"Set-Cookie", "Connection", "Keep-Alive", "Transfer-Encoding", HeaderCache} {
		out.Del(k)
	}
	return out
}

func entryResponse(req *http.Request, e cachestore.Entry, source string) *http.Response {
	h := e.Header.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set(HeaderCache, source)
	body := e.Body
	if req.Method == http.MethodHead {
		body = nil
	}
	h.Set("Content-Length", strconv.Itoa(len(e.Body)))
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", e.Status, http.StatusText(e.Status)),
		StatusCode:    e.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        h,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

func offlineResponse(req *http.Request) *http.Response {
	const msg = "offline: resource unavailable\n"
	h := http.Header{}
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set(HeaderCache, cacheOffline)
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", http.StatusServiceUnavailable, http.StatusText(http.StatusServiceUnavailable)),
		StatusCode:    http.StatusServiceUnavailable,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        h,
		Body:          io.NopCloser(strings.NewReader(msg)),
		ContentLength: int64(len(msg)),
		Request:       req,
	}
}

type readCloser struct {
	io.Reader
	io.Closer
}
