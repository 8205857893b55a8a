// Package chat forwards conversations to an OpenRouter-compatible
// completion API. Service adds the persona prompt and defaults, Handler
// serves it as POST /api/chat, and Client is the caller's side of that
// endpoint.
package chat
