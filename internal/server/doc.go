// Package server implements the room coordination core of roomhub: a single
// hub goroutine owning the session registry and room table, plus the
// WebSocket transport adapter and its HTTP plumbing.
//
// The implementation is organized into specialized files for configuration,
// the hub, the registry and room table, the protocol envelope, clients,
// routing, and HTTP handlers to keep the codebase maintainable and testable
// as the project grows.
package server
