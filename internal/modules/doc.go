// Package modules loads app code modules and dispatches entry-point
// calls against them.
//
// Two runtimes:
//   - JavaScript modules executed in an embedded goja VM. A module
//     script populates an exports table at evaluation time; the loader
//     snapshots that table into a closed {name -> callable} registry.
//     Nothing outside the table is reachable from another app.
//   - Native Go modules registered in-process, used by system apps and
//     tests.
//
// The composite Loader checks native registrations first, then the
// module directory. Loaded JS modules are cached per app; calls into
// one module are serialized because a goja VM is single-threaded.
package modules
