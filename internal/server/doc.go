// Package server assembles the Lattice backend:
//   - record store (SQLite or in-memory, per config)
//   - module loader with its native registry
//   - capability builders and their long-lived services
//     (notification hub, scheduler, inference and outbound clients)
//   - the context factory
//   - gin router with middleware (recovery, metrics, CORS, rate limit)
//
// Singletons are constructed here and injected; nothing in the broker
// or capability layers holds module-global state, and Close tears the
// shared services down in dependency order.
package server
