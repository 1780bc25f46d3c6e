// Package main is the entry point for the Lattice backend server.
//
// Lattice hosts user-installable apps and brokers every interaction
// between app code and the platform through per-call capability
// bundles.
//
// The server provides:
//   - REST API for app invocation and installation queries
//   - Inter-app proxy calls with permission enforcement
//   - WebSocket streaming for notifications
//   - Prometheus metrics
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	./server -port 8000 -modules ./modules
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
