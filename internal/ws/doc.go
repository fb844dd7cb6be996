// Package ws attaches browser WebSocket connections to the hub.
//
// The package implements:
//   - Client: a hub.Transport backed by one gorilla connection with a
//     buffered send queue
//   - Handler: upgrades HTTP requests, registers the session with the hub
//     and runs the read and write pumps
//
// Inbound frames are passed to hub.Ingest unchanged; decoding (JSON
// envelope or plain text) happens in the hub. Outbound envelopes are
// written one per frame.
package ws
