// Package types provides shared data structures for the Lattice backend.
//
// This package defines the records the capability broker consumes and the
// request/response shapes shared across components.
//
// Core Types:
//   - User, UserInfo: account identity as seen by app code
//   - Installation: per-(user, app) enablement and permission grants
//   - App: installable app descriptor with manifest
//   - Output: app-declared read accessor other apps may request
//   - Dependency: manifest-declared app dependency
//
// State Management:
//   - InstallStatus drives the installation lifecycle
//     (pending -> installed -> uninstalled)
package types
