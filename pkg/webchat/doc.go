// Package webchat serves chat sessions over HTTP and websockets.
//
// Each conversation owns one chat.Session, one websocket connection pool
// and one forwarder goroutine that relays the session's update events from
// the stream backend to every attached socket. The turn store remains the
// source of truth; sockets only ever see serialized UpdateEvent
// notifications and can re-sync through GET /api/turns at any time.
//
// Conversations are created lazily on first use and torn down after their
// connection pool has been idle for a while.
package webchat
