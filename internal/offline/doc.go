// Package offline provides versioned response stores and a request router
// that serves GET traffic from them. The router is an http.RoundTripper: page
// navigations go to the network first and fall back to the active store,
// static assets are served from the active store first and filled from the
// network on a miss. Stores are named by version; activating a version purges
// every other store.
package offline
