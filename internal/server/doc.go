// Package server serves the chat endpoint and the static public assets the
// terminal client installs for offline use.
package server
