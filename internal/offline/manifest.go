package offline

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// DefaultVersion is the store version shipped with this release. Bump it
// whenever the asset list or any asset changes.
const DefaultVersion = "fabaro-always-v2"

// DefaultAssets are the static paths preloaded on install. The root document
// is deliberately absent so first paint always comes from the network.
var DefaultAssets = []string{
	"/manifest.json",
	"/icon-192.png",
	"/icon-512.png",
	"/logo.png",
}

// ErrShellInManifest is returned when the asset list names the root document.
var ErrShellInManifest = errors.New("root document must not be preloaded")

// Manifest is the deploy-time description of one store version.
type Manifest struct {
	Version string
	Assets  []string
}

// DefaultManifest returns the manifest for DefaultVersion.
func DefaultManifest() Manifest {
	return Manifest{
		Version: DefaultVersion,
		Assets:  append([]string(nil), DefaultAssets...),
	}
}

// Validate checks the version and asset paths.
func (m Manifest) Validate() error {
	var errs []error
	if strings.TrimSpace(m.Version) == "" {
		errs = append(errs, fmt.Errorf("%w: empty version", ErrInvalidName))
	}
	for _, a := range m.Assets {
		u, err := url.Parse(a)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("asset %q: %w", a, err))
		case u.IsAbs() || u.Host != "":
			errs = append(errs, fmt.Errorf("asset %q: must be a path on the origin", a))
		case isShellPath(u.Path):
			errs = append(errs, fmt.Errorf("asset %q: %w", a, ErrShellInManifest))
		}
	}
	return errors.Join(errs...)
}

// Resolve returns the absolute asset URLs against origin.
func (m Manifest) Resolve(origin *url.URL) ([]*url.URL, error) {
	if origin == nil || !origin.IsAbs() {
		return nil, errors.New("origin must be an absolute URL")
	}
	urls := make([]*url.URL, 0, len(m.Assets))
	for _, a := range m.Assets {
		ref, err := url.Parse(a)
		if err != nil {
			return nil, fmt.Errorf("asset %q: %w", a, err)
		}
		urls = append(urls, origin.ResolveReference(ref))
	}
	return urls, nil
}

func isShellPath(p string) bool {
	switch strings.TrimSuffix(p, "/") {
	case "", "/index.html", "/index.htm":
		return true
	}
	return false
}

// LatestVersion returns the highest store name, comparing runs of digits
// numerically so "app-v10" sorts after "app-v9". It returns "" for no names.
func LatestVersion(names []string) string {
	latest := ""
	for _, n := range names {
		if latest == "" || compareVersions(n, latest) > 0 {
			latest = n
		}
	}
	return latest
}

func compareVersions(a, b string) int {
	for a != "" && b != "" {
		da, db := digitPrefix(a), digitPrefix(b)
		if da > 0 && db > 0 {
			na := strings.TrimLeft(a[:da], "0")
			nb := strings.TrimLeft(b[:db], "0")
			if len(na) != len(nb) {
				return len(na) - len(nb)
			}
			if c := strings.Compare(na, nb); c != 0 {
				return c
			}
			a, b = a[da:], b[db:]
			continue
		}
		if a[0] != b[0] {
			return int(a[0]) - int(b[0])
		}
		a, b = a[1:], b[1:]
	}
	return len(a) - len(b)
}

func digitPrefix(s string) int {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return i
}
