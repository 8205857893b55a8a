// Package speech picks synthesis voices and speaks chat replies.
//
// Voice selection is a pure fallback chain over the voices an Engine
// reports: explicit name, exact language, base language, any English voice,
// then the first voice. Speaker wraps an Engine and keeps at most one
// utterance playing at a time.
package speech
