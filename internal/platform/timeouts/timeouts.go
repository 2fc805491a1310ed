// Package timeouts defines shared timeout constants used across services.
// Centralizing these values prevents drift between the client and the object
// service and makes the durations discoverable.
package timeouts

import "time"

// Resolve caps a single username-to-actor lookup.
const Resolve = 5 * time.Second

// Claim caps a single username claim request.
const Claim = 5 * time.Second

// Dial caps the websocket handshake with the object service.
const Dial = 5 * time.Second

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long servers and telemetry wait during graceful shutdown.
const Shutdown = 5 * time.Second
