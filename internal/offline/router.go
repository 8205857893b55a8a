package offline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Router serves GET requests from the active store according to the request
// kind and forwards everything else to the network transport.
//
// Each request is handled by one linear chain of steps. Concurrent requests
// are independent; activation is not synchronized against requests already
// reading from the previous store.
type Router struct {
	storage Storage
	next    http.RoundTripper

	mu     sync.RWMutex
	active Store
}

// NewRouter returns a router over storage. A nil next uses
// http.DefaultTransport.
func NewRouter(storage Storage, next http.RoundTripper) *Router {
	if next == nil {
		next = http.DefaultTransport
	}
	return &Router{storage: storage, next: next}
}

// Active returns the active store version, or "" before activation.
func (r *Router) Active() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.active == nil {
		return ""
	}
	return r.active.Name()
}

// Install fetches every asset in m from origin and inserts the responses
// into the store named m.Version. Nothing is written unless every asset is
// fetched with a successful status, and a store that cannot hold every
// asset is rolled back.
func (r *Router) Install(ctx context.Context, origin *url.URL, m Manifest) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("invalid manifest: %w", err)
	}
	urls, err := m.Resolve(origin)
	if err != nil {
		return err
	}

	entries := make([]Entry, 0, len(urls))
	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("install %s aborted: %w", m.Version, err)
		}
		entry, err := r.preload(ctx, u, m.Version)
		if err != nil {
			return fmt.Errorf("install %s aborted: %w", m.Version, err)
		}
		entries = append(entries, entry)
	}

	existed := r.storage.Has(m.Version)
	st, err := r.storage.Open(m.Version)
	if err != nil {
		return fmt.Errorf("install %s: %w", m.Version, err)
	}

	if c, ok := st.(interface{ Capacity() int64 }); ok && c.Capacity() > 0 {
		var total int64
		for _, e := range entries {
			total += e.size()
		}
		if total > c.Capacity() {
			if !existed {
				_, _ = r.storage.Delete(m.Version)
			}
			return fmt.Errorf("install %s: %d bytes of assets exceed capacity %d: %w",
				m.Version, total, c.Capacity(), ErrItemTooLarge)
		}
	}

	prior := make(map[string]Entry)
	var written []string
	rollback := func() {
		if !existed {
			_, _ = r.storage.Delete(m.Version)
			return
		}
		for _, key := range written {
			_ = st.Delete(key)
		}
		for key, e := range prior {
			_ = st.Put(key, e)
		}
	}

	for _, e := range entries {
		if existed {
			if old, ok := st.Get(e.Key); ok {
				prior[e.Key] = old
			}
		}
		if err := st.Put(e.Key, e); err != nil {
			rollback()
			return fmt.Errorf("install %s: storing %s: %w", m.Version, e.Key, err)
		}
		written = append(written, e.Key)
	}

	// Later writes may have evicted earlier assets.
	stored := make(map[string]bool, st.Len())
	for _, key := range st.Keys() {
		stored[key] = true
	}
	for _, e := range entries {
		if !stored[e.Key] {
			rollback()
			return fmt.Errorf("install %s: %s evicted before install completed: %w", m.Version, e.Key, ErrItemTooLarge)
		}
	}

	log.Info("Installed store", "version", m.Version, "assets", len(entries))
	return nil
}

func (r *Router) preload(ctx context.Context, u *url.URL, version string) (Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Entry{}, err
	}
	resp, err := r.next.RoundTrip(req)
	if err != nil {
		return Entry{}, fmt.Errorf("fetching %s: %w", u, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if !isOK(resp.StatusCode) {
		return Entry{}, fmt.Errorf("fetching %s: unexpected status %s", u, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Entry{}, fmt.Errorf("reading %s: %w", u, err)
	}
	return Entry{
		Key:      RequestKey(req),
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     body,
		StoredAt: version,
		Created:  time.Now(),
	}, nil
}

// Activate makes version the active store after deleting every other store.
// The purge completes before Activate returns.
func (r *Router) Activate(ctx context.Context, version string) error {
	if version == "" {
		return ErrInvalidName
	}
	names, err := r.storage.Names()
	if err != nil {
		return fmt.Errorf("activate %s: %w", version, err)
	}
	for _, name := range names {
		if name == version {
			continue
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("activate %s: %w", version, err)
		}
		if _, err := r.storage.Delete(name); err != nil {
			return fmt.Errorf("activate %s: %w", version, err)
		}
		log.Info("Deleted stale store", "version", name)
	}

	st, err := r.storage.Open(version)
	if err != nil {
		return fmt.Errorf("activate %s: %w", version, err)
	}

	r.mu.Lock()
	r.active = st
	r.mu.Unlock()

	log.Debug("Activated store", "version", version, "entries", st.Len())
	return nil
}

// RoundTrip implements http.RoundTripper.
func (r *Router) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet {
		return r.next.RoundTrip(req)
	}
	if IsNavigation(req) {
		return r.networkFirst(req)
	}
	return r.cacheFirst(req)
}

// networkFirst returns the network response untouched and only consults the
// store when the network fails. Fresh documents are not stored.
func (r *Router) networkFirst(req *http.Request) (*http.Response, error) {
	resp, err := r.next.RoundTrip(req)
	if err == nil {
		return resp, nil
	}

	key := RequestKey(req)
	if entry, ok := r.lookup(key); ok {
		log.Debug("Network failed, serving stored document", "key", key, "err", err)
		return entry.response(req), nil
	}
	return nil, err
}

// cacheFirst serves a stored entry without touching the network, or fetches
// and stores a copy of a successful response before returning it.
func (r *Router) cacheFirst(req *http.Request) (*http.Response, error) {
	key := RequestKey(req)
	if entry, ok := r.lookup(key); ok {
		log.Debug("Store hit", "key", key)
		return entry.response(req), nil
	}

	resp, err := r.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	st := r.activeStore()
	if st == nil || !isOK(resp.StatusCode) {
		return resp, nil
	}

	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", req.URL, err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))

	entry := Entry{
		Key:      key,
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     body,
		StoredAt: st.Name(),
		Created:  time.Now(),
	}
	if err := st.Put(key, entry); err != nil {
		log.Warn("Could not store response", "key", key, "err", err)
	}
	return resp, nil
}

func (r *Router) activeStore() Store {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.active
}

func (r *Router) lookup(key string) (Entry, bool) {
	st := r.activeStore()
	if st == nil {
		return Entry{}, false
	}
	return st.Get(key)
}

// RequestKey identifies a request within a store: method and absolute URL.
func RequestKey(req *http.Request) string {
	return req.Method + " " + req.URL.String()
}

// IsNavigation reports whether req loads a page rather than a subresource.
func IsNavigation(req *http.Request) bool {
	if strings.EqualFold(req.Header.Get("Sec-Fetch-Mode"), "navigate") {
		return true
	}
	for _, accept := range req.Header.Values("Accept") {
		if strings.Contains(strings.ToLower(accept), "text/html") {
			return true
		}
	}
	return false
}

func isOK(status int) bool {
	return status >= 200 && status < 300
}

// StoreHeader is set on responses served from a store; its value is the
// store version.
const StoreHeader = "X-Offline-Store"

// response rebuilds an *http.Response from a stored entry.
func (e Entry) response(req *http.Request) *http.Response {
	header := e.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	header.Set(StoreHeader, e.StoredAt)
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", e.Status, http.StatusText(e.Status)),
		StatusCode:    e.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}
