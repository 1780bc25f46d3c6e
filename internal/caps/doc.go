// Package caps implements the sub-capabilities a bundle materializes:
// storage, files, notifications, schedule, ai, and integrations. Each
// instance is bound to one (user, app) pair and built at most once per
// bundle by the broker's memoizing accessors.
package caps
