package offline

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
)

var errNetworkDown = errors.New("network down")

// fakeNetwork is an http.RoundTripper serving canned bodies by path.
type fakeNetwork struct {
	mu      sync.Mutex
	bodies  map[string]string
	status  map[string]int
	offline bool
	calls   map[string]int
}

func newFakeNetwork(bodies map[string]string) *fakeNetwork {
	return &fakeNetwork{
		bodies: bodies,
		status: make(map[string]int),
		calls:  make(map[string]int),
	}
}

func (f *fakeNetwork) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[req.Method+" "+req.URL.Path]++
	if f.offline {
		return nil, errNetworkDown
	}
	status := http.StatusOK
	if s, ok := f.status[req.URL.Path]; ok {
		status = s
	}
	body, ok := f.bodies[req.URL.Path]
	if !ok && status == http.StatusOK {
		status = http.StatusNotFound
	}
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     http.Header{"Content-Type": {"application/octet-stream"}},
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}, nil
}

func (f *fakeNetwork) count(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method+" "+path]
}

func (f *fakeNetwork) setOffline(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = v
}

func (f *fakeNetwork) setBody(path, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies[path] = body
}

const origin = "https://always.example"

func mustOrigin(t *testing.T) *url.URL {
	t.Helper()
	u, err := url.Parse(origin)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func newRequest(t *testing.T, method, path string, header http.Header) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, origin+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return req
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close() //nolint:errcheck
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}

func installed(t *testing.T, net *fakeNetwork, m Manifest) (*Router, Storage) {
	t.Helper()
	storage := NewMemoryStorage(0)
	r := NewRouter(storage, net)
	ctx := context.Background()
	if err := r.Install(ctx, mustOrigin(t), m); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if err := r.Activate(ctx, m.Version); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	return r, storage
}

func assetNetwork() *fakeNetwork {
	return newFakeNetwork(map[string]string{
		"/":              "<html>shell</html>",
		"/manifest.json": `{"name":"FABARO ALWAYS"}`,
		"/icon-192.png":  "icon192",
		"/icon-512.png":  "icon512",
		"/logo.png":      "logo",
		"/app.js":        "console.log(1)",
	})
}

func TestRouter_CacheFirstServesStoredAssetWithoutNetwork(t *testing.T) {
	net := assetNetwork()
	r, _ := installed(t, net, DefaultManifest())

	before := net.count(http.MethodGet, "/manifest.json")
	resp, err := r.RoundTrip(newRequest(t, http.MethodGet, "/manifest.json", nil))
	if err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}
	if got := readBody(t, resp); got != `{"name":"FABARO ALWAYS"}` {
		t.Errorf("body = %q", got)
	}
	if after := net.count(http.MethodGet, "/manifest.json"); after != before {
		t.Errorf("network called %d times for a stored asset, want 0", after-before)
	}
}

func TestRouter_CacheFirstStoresMissThenServesOffline(t *testing.T) {
	net := assetNetwork()
	r, _ := installed(t, net, DefaultManifest())

	resp, err := r.RoundTrip(newRequest(t, http.MethodGet, "/app.js", nil))
	if err != nil {
		t.Fatalf("first RoundTrip: %v", err)
	}
	if got := readBody(t, resp); got != "console.log(1)" {
		t.Errorf("first body = %q", got)
	}

	net.setOffline(true)
	resp, err = r.RoundTrip(newRequest(t, http.MethodGet, "/app.js", nil))
	if err != nil {
		t.Fatalf("offline RoundTrip: %v", err)
	}
	if got := readBody(t, resp); got != "console.log(1)" {
		t.Errorf("offline body = %q", got)
	}
	if n := net.count(http.MethodGet, "/app.js"); n != 1 {
		t.Errorf("network calls = %d, want 1", n)
	}
}

func TestRouter_CacheFirstMissWhileOfflineFails(t *testing.T) {
	net := assetNetwork()
	r, _ := installed(t, net, DefaultManifest())
	net.setOffline(true)

	_, err := r.RoundTrip(newRequest(t, http.MethodGet, "/unknown.css", nil))
	if !errors.Is(err, errNetworkDown) {
		t.Fatalf("err = %v, want %v", err, errNetworkDown)
	}
}

func TestRouter_CacheFirstDoesNotStoreErrors(t *testing.T) {
	net := assetNetwork()
	r, storage := installed(t, net, DefaultManifest())

	resp, err := r.RoundTrip(newRequest(t, http.MethodGet, "/missing.png", nil))
	if err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}
	readBody(t, resp)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}

	st, _ := storage.Open(DefaultVersion)
	if _, ok := st.Get("GET " + origin + "/missing.png"); ok {
		t.Error("404 response was stored")
	}
}

func TestRouter_NavigationIsNetworkFirst(t *testing.T) {
	net := assetNetwork()
	r, storage := installed(t, net, DefaultManifest())

	// Seed a stale copy of the shell.
	st, _ := storage.Open(DefaultVersion)
	key := "GET " + origin + "/"
	if err := st.Put(key, Entry{Status: http.StatusOK, Body: []byte("stale shell")}); err != nil {
		t.Fatal(err)
	}

	nav := http.Header{"Sec-Fetch-Mode": {"navigate"}}
	resp, err := r.RoundTrip(newRequest(t, http.MethodGet, "/", nav))
	if err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}
	if got := readBody(t, resp); got != "<html>shell</html>" {
		t.Errorf("navigation body = %q, want network copy", got)
	}
	if n := net.count(http.MethodGet, "/"); n != 1 {
		t.Errorf("network calls = %d, want 1", n)
	}

	net.setOffline(true)
	resp, err = r.RoundTrip(newRequest(t, http.MethodGet, "/", nav))
	if err != nil {
		t.Fatalf("offline navigation: %v", err)
	}
	if got := readBody(t, resp); got != "stale shell" {
		t.Errorf("offline navigation body = %q, want stored copy", got)
	}
}

func TestRouter_HTMLAcceptIsNetworkFirstAndNotStored(t *testing.T) {
	net := assetNetwork()
	net.setBody("/about", "<html>about</html>")
	r, storage := installed(t, net, DefaultManifest())

	accept := http.Header{"Accept": {"text/html,application/xhtml+xml;q=0.9"}}
	resp, err := r.RoundTrip(newRequest(t, http.MethodGet, "/about", accept))
	if err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}
	readBody(t, resp)

	st, _ := storage.Open(DefaultVersion)
	if _, ok := st.Get("GET " + origin + "/about"); ok {
		t.Error("HTML document was stored by the network-first path")
	}

	net.setOffline(true)
	if _, err := r.RoundTrip(newRequest(t, http.MethodGet, "/about", accept)); !errors.Is(err, errNetworkDown) {
		t.Errorf("offline uncached document err = %v, want %v", err, errNetworkDown)
	}
}

func TestRouter_NonGetPassesThrough(t *testing.T) {
	net := assetNetwork()
	net.setBody("/api/chat", `{"content":"hi"}`)
	r, storage := installed(t, net, DefaultManifest())

	for i := 0; i < 2; i++ {
		resp, err := r.RoundTrip(newRequest(t, http.MethodPost, "/api/chat", nil))
		if err != nil {
			t.Fatalf("RoundTrip: %v", err)
		}
		if got := readBody(t, resp); got != `{"content":"hi"}` {
			t.Errorf("body = %q", got)
		}
	}
	if n := net.count(http.MethodPost, "/api/chat"); n != 2 {
		t.Errorf("POST network calls = %d, want 2", n)
	}

	st, _ := storage.Open(DefaultVersion)
	for _, k := range st.Keys() {
		if strings.HasPrefix(k, http.MethodPost) {
			t.Errorf("POST response stored under %q", k)
		}
	}

	net.setOffline(true)
	if _, err := r.RoundTrip(newRequest(t, http.MethodPost, "/api/chat", nil)); !errors.Is(err, errNetworkDown) {
		t.Errorf("offline POST err = %v, want %v", err, errNetworkDown)
	}
}

func TestRouter_ActivatePurgesOtherVersions(t *testing.T) {
	net := assetNetwork()
	storage := NewMemoryStorage(0)
	r := NewRouter(storage, net)
	ctx := context.Background()

	v1 := Manifest{Version: "v1", Assets: []string{"/manifest.json", "/logo.png"}}
	if err := r.Install(ctx, mustOrigin(t), v1); err != nil {
		t.Fatal(err)
	}
	if err := r.Activate(ctx, "v1"); err != nil {
		t.Fatal(err)
	}
	old, _ := storage.Open("v1")
	oldKeys := old.Keys()
	if len(oldKeys) != 2 {
		t.Fatalf("v1 keys = %v", oldKeys)
	}

	v2 := Manifest{Version: "v2", Assets: []string{"/manifest.json"}}
	if err := r.Install(ctx, mustOrigin(t), v2); err != nil {
		t.Fatal(err)
	}
	if err := r.Activate(ctx, "v2"); err != nil {
		t.Fatal(err)
	}

	if r.Active() != "v2" {
		t.Errorf("Active() = %q, want v2", r.Active())
	}
	names, _ := storage.Names()
	if len(names) != 1 || names[0] != "v2" {
		t.Errorf("stores after activation = %v, want [v2]", names)
	}
	for _, k := range oldKeys {
		if _, ok := old.Get(k); ok {
			t.Errorf("v1 entry %q still retrievable", k)
		}
	}

	// /logo.png was only in v1; offline it must not be served.
	net.setOffline(true)
	if _, err := r.RoundTrip(newRequest(t, http.MethodGet, "/logo.png", nil)); err == nil {
		t.Error("v1-only asset served after activating v2")
	}
}

func TestRouter_InstallIsAllOrNothing(t *testing.T) {
	net := assetNetwork()
	net.status["/logo.png"] = http.StatusInternalServerError
	storage := NewMemoryStorage(0)
	r := NewRouter(storage, net)

	err := r.Install(context.Background(), mustOrigin(t), DefaultManifest())
	if err == nil {
		t.Fatal("Install succeeded with a failing asset")
	}
	if storage.Has(DefaultVersion) {
		t.Error("store created by a failed install")
	}
}

func largeAssetNetwork() (*fakeNetwork, Manifest) {
	body := strings.Repeat("x", 400)
	net := newFakeNetwork(map[string]string{"/a.png": body, "/b.png": body, "/c.png": body})
	return net, Manifest{Version: "v1", Assets: []string{"/a.png", "/b.png", "/c.png"}}
}

func TestRouter_InstallRejectsAssetsOverCapacity(t *testing.T) {
	net, m := largeAssetNetwork()
	storage := NewMemoryStorage(1000)
	r := NewRouter(storage, net)

	err := r.Install(context.Background(), mustOrigin(t), m)
	if !errors.Is(err, ErrItemTooLarge) {
		t.Fatalf("Install error = %v, want ErrItemTooLarge", err)
	}
	if storage.Has("v1") {
		t.Error("store left behind by an install that could not fit")
	}
}

func TestRouter_InstallRollsBackEvictedAssets(t *testing.T) {
	net, m := largeAssetNetwork()
	storage, err := NewDiskStorage(DiskConfig{Dir: t.TempDir(), Capacity: 1000})
	if err != nil {
		t.Fatal(err)
	}
	defer storage.Close() //nolint:errcheck
	r := NewRouter(storage, net)

	err = r.Install(context.Background(), mustOrigin(t), m)
	if !errors.Is(err, ErrItemTooLarge) {
		t.Fatalf("Install error = %v, want ErrItemTooLarge", err)
	}
	if storage.Has("v1") {
		t.Error("store left behind by an install that lost assets")
	}
}

func TestRouter_InstallRollsBackExistingStore(t *testing.T) {
	net, m := largeAssetNetwork()
	storage, err := NewDiskStorage(DiskConfig{Dir: t.TempDir(), Capacity: 1000})
	if err != nil {
		t.Fatal(err)
	}
	defer storage.Close() //nolint:errcheck
	st, err := storage.Open("v1")
	if err != nil {
		t.Fatal(err)
	}
	if err := st.Put("GET "+origin+"/keep.png", Entry{Status: http.StatusOK, Body: []byte("k")}); err != nil {
		t.Fatal(err)
	}

	r := NewRouter(storage, net)
	if err := r.Install(context.Background(), mustOrigin(t), m); err == nil {
		t.Fatal("Install succeeded although assets were evicted")
	}
	if !storage.Has("v1") {
		t.Fatal("existing store deleted by a failed install")
	}
	for _, key := range st.Keys() {
		for _, asset := range m.Assets {
			if key == "GET "+origin+asset {
				t.Errorf("partial install left %s behind", key)
			}
		}
	}
}

func TestRouter_InstallNetworkErrorKeepsPreviousVersion(t *testing.T) {
	net := assetNetwork()
	r, storage := installed(t, net, Manifest{Version: "v1", Assets: []string{"/logo.png"}})

	net.setOffline(true)
	if err := r.Install(context.Background(), mustOrigin(t), Manifest{Version: "v2", Assets: []string{"/logo.png"}}); err == nil {
		t.Fatal("Install succeeded while offline")
	}
	if !storage.Has("v1") || storage.Has("v2") {
		t.Error("failed install disturbed the stores")
	}
	if r.Active() != "v1" {
		t.Errorf("Active() = %q, want v1", r.Active())
	}
}

func TestRouter_InstallRejectsRootDocument(t *testing.T) {
	r := NewRouter(NewMemoryStorage(0), assetNetwork())
	m := Manifest{Version: "v1", Assets: []string{"/", "/logo.png"}}

	err := r.Install(context.Background(), mustOrigin(t), m)
	if !errors.Is(err, ErrShellInManifest) {
		t.Fatalf("err = %v, want %v", err, ErrShellInManifest)
	}
}

func TestRouter_NoActiveStoreIsPassThrough(t *testing.T) {
	net := assetNetwork()
	r := NewRouter(NewMemoryStorage(0), net)

	for i := 0; i < 2; i++ {
		resp, err := r.RoundTrip(newRequest(t, http.MethodGet, "/logo.png", nil))
		if err != nil {
			t.Fatal(err)
		}
		readBody(t, resp)
	}
	if n := net.count(http.MethodGet, "/logo.png"); n != 2 {
		t.Errorf("network calls = %d, want 2", n)
	}
}

func TestIsNavigation(t *testing.T) {
	tests := []struct {
		name   string
		header http.Header
		want   bool
	}{
		{"navigate mode", http.Header{"Sec-Fetch-Mode": {"navigate"}}, true},
		{"html accept", http.Header{"Accept": {"text/html"}}, true},
		{"mixed case accept", http.Header{"Accept": {"Text/HTML;q=0.8"}}, true},
		{"json accept", http.Header{"Accept": {"application/json"}}, false},
		{"cors mode", http.Header{"Sec-Fetch-Mode": {"cors"}}, false},
		{"no headers", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newRequest(t, http.MethodGet, "/x", tt.header)
			if got := IsNavigation(req); got != tt.want {
				t.Errorf("IsNavigation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRequestKey(t *testing.T) {
	req := newRequest(t, http.MethodGet, "/icon-192.png?v=2", nil)
	if got, want := RequestKey(req), "GET "+origin+"/icon-192.png?v=2"; got != want {
		t.Errorf("RequestKey() = %q, want %q", got, want)
	}
}

func TestRouter_StoredResponseCarriesStoreHeader(t *testing.T) {
	net := assetNetwork()
	r, _ := installed(t, net, DefaultManifest())

	resp, err := r.RoundTrip(newRequest(t, http.MethodGet, "/logo.png", nil))
	if err != nil {
		t.Fatal(err)
	}
	readBody(t, resp)
	if got := resp.Header.Get(StoreHeader); got != DefaultVersion {
		t.Errorf("%s = %q, want %q", StoreHeader, got, DefaultVersion)
	}

	resp, err = r.RoundTrip(newRequest(t, http.MethodGet, "/app.js", nil))
	if err != nil {
		t.Fatal(err)
	}
	readBody(t, resp)
	if got := resp.Header.Get(StoreHeader); got != "" {
		t.Errorf("network response marked as stored: %q", got)
	}
}
