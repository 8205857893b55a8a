// Package engines provides the speech.Engine implementations: espeak-ng for
// offline synthesis, gTTS piped through ffmpeg into the audio player, and a
// recording mock for tests.
package engines
