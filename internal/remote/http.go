package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/starford/setlist/internal/apperr"
	"github.com/starford/setlist/internal/models"
)

// SnapshotEvent is the SSE event name carrying a full query result.
const SnapshotEvent = "snapshot"

// SnapshotPayload is the JSON body of a snapshot event.
type SnapshotPayload struct {
	Records []models.Record `json:"records"`
}

// HTTPClient talks to the document store REST/SSE API.
type HTTPClient struct {
	base   string
	token  string
	http   *http.Client
	stream *http.Client
	logger *slog.Logger
}

var (
	_ Client = (*HTTPClient)(nil)
	_ Pinger = (*HTTPClient)(nil)
)

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithToken sets the bearer token sent with every request.
func WithToken(token string) HTTPOption {
	return func(c *HTTPClient) { c.token = token }
}

// WithHTTPClient replaces the client used for requests and streams.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(c *HTTPClient) {
		c.http = hc
		c.stream = hc
	}
}

// WithLogger sets the logger for stream diagnostics.
func WithLogger(l *slog.Logger) HTTPOption {
	return func(c *HTTPClient) { c.logger = l }
}

// NewHTTPClient returns a client for the store at baseURL (scheme://host[:port]).
func NewHTTPClient(baseURL string, opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{
		base:   strings.TrimRight(baseURL, "/"),
		http:   &http.Client{Timeout: 15 * time.Second},
		stream: &http.Client{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe implements Client. The returned subscription ends with an error
// snapshot when the stream breaks.
func (c *HTTPClient) Subscribe(ctx context.Context, q Query) (*Subscription, error) {
	params, err := EncodeQuery(q)
	if err != nil {
		return nil, err
	}
	sub := NewSubscription(ctx)

	u := c.collectionURL(q.Collection) + "/stream"
	if enc := params.Encode(); enc != "" {
		u += "?" + enc
	}
	req, err := http.NewRequestWithContext(sub.Context(), http.MethodGet, u, nil)
	if err != nil {
		sub.Close()
		return nil, fmt.Errorf("remote: subscribe %s: %w", q.Collection, err)
	}
	req.Header.Set("Accept", "text/event-stream")
	c.authorize(req)

	resp, err := c.stream.Do(req)
	if err != nil {
		sub.Close()
		return nil, fmt.Errorf("remote: subscribe %s: %w", q.Collection, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		sub.Close()
		return nil, fmt.Errorf("remote: subscribe %s: %w", q.Collection, statusError(resp))
	}

	go func() {
		defer resp.Body.Close()
		err := readEvents(resp.Body, func(ev event) bool {
			if ev.Name != SnapshotEvent {
				return true
			}
			var p SnapshotPayload
			if err := json.Unmarshal([]byte(ev.Data), &p); err != nil {
				return sub.Deliver(Snapshot{Err: fmt.Errorf("remote: decode snapshot: %w", err)})
			}
			return sub.Deliver(Snapshot{Records: p.Records})
		})
		if sub.Context().Err() != nil {
			return
		}
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		c.logger.Debug("snapshot stream ended",
			slog.String("collection", q.Collection),
			slog.String("error", err.Error()))
		sub.Deliver(Snapshot{Err: fmt.Errorf("remote: stream %s: %w", q.Collection, err)})
	}()
	return sub, nil
}

// Create implements Client.
func (c *HTTPClient) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, c.collectionURL(collection), fields, &out); err != nil {
		return "", fmt.Errorf("remote: create %s: %w", collection, err)
	}
	return out.ID, nil
}

// Update implements Client.
func (c *HTTPClient) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := c.do(ctx, http.MethodPatch, c.recordURL(collection, id), fields, nil); err != nil {
		return fmt.Errorf("remote: update %s/%s: %w", collection, id, err)
	}
	return nil
}

// Delete implements Client.
func (c *HTTPClient) Delete(ctx context.Context, collection, id string) error {
	if err := c.do(ctx, http.MethodDelete, c.recordURL(collection, id), nil, nil); err != nil {
		return fmt.Errorf("remote: delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// Get fetches one record.
func (c *HTTPClient) Get(ctx context.Context, collection, id string) (models.Record, error) {
	var rec models.Record
	if err := c.do(ctx, http.MethodGet, c.recordURL(collection, id), nil, &rec); err != nil {
		return models.Record{}, fmt.Errorf("remote: get %s/%s: %w", collection, id, err)
	}
	return rec, nil
}

// Ping implements Pinger using the readiness endpoint.
func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, c.base+"/health/ready", nil, nil)
}

func (c *HTTPClient) collectionURL(collection string) string {
	return c.base + "/api/collections/" + url.PathEscape(collection)
}

func (c *HTTPClient) recordURL(collection, id string) string {
	return c.collectionURL(collection) + "/" + url.PathEscape(id)
}

func (c *HTTPClient) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *HTTPClient) do(ctx context.Context, method, u string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(map[string]any{"fields": body})
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// statusError maps an error response onto the apperr sentinels.
func statusError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&body)
	msg := body.Error
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	var sentinel error
	switch resp.StatusCode {
	case http.StatusNotFound:
		sentinel = apperr.ErrNotFound
	case http.StatusConflict:
		sentinel = apperr.ErrConflict
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		sentinel = apperr.ErrInvalid
	default:
		return fmt.Errorf("status %d: %s", resp.StatusCode, msg)
	}
	return fmt.Errorf("%w: %s", sentinel, msg)
}

// IsNotFound reports whether err came from a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, apperr.ErrNotFound)
}
