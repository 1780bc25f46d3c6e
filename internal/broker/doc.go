// Package broker is the capability broker: the authorization layer that
// mediates every call between independently authored apps.
//
// Three pieces:
//   - Context: the capability bundle a unit of app code receives, bound
//     to exactly one (user, app) pair for the lifetime of one action.
//     Sub-capabilities are built on first access and memoized.
//   - Factory: the sole constructor of bundles. Construction is
//     authorized against the installation ledger; only installed apps
//     get a bundle.
//   - Apps / Proxy: the inter-app surface. A proxy is pure data and
//     free to obtain; every invocation through it re-authorizes, loads
//     the target module, and mints a fresh bundle scoped to the callee.
//     The caller's bundle is never handed across the trust boundary.
//
// Transaction model: every bundle in a call chain shares the session the
// inbound action opened. A callee's writes are visible to the outer
// action and torn down with it; there are no nested transaction scopes.
//
// Inter-app calls are at-most-once. Nothing here retries: by the time a
// callee fails it may already have performed non-idempotent side effects.
package broker
