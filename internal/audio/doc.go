// Package audio plays raw PCM through the system sound device using oto/v3.
package audio
