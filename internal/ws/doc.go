// Package ws delivers notifications to users over WebSocket.
//
// The Hub fans out per-user messages to every connection that user
// holds. Delivery is non-blocking: a slow consumer's buffer overflowing
// drops the message for that connection rather than stalling the
// publisher, which may be inside an app's call chain.
package ws
