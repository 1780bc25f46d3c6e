// Package id provides centralized ID generation for the backend.
//
// All identifiers are UUIDv4 with a short type prefix so logs stay
// readable (ins_*, act_*, ntf_*). Generation is lock-free and safe for
// concurrent use.
package id

import (
	"fmt"

	"github.com/google/uuid"
)

const (
	InstallationPrefix = "ins"
	ActionPrefix       = "act"
	NotificationPrefix = "ntf"
	JobPrefix          = "job"
)

// New returns a bare UUID string.
func New() string {
	return uuid.New().String()
}

// NewPrefixed returns a UUID string with a type prefix.
func NewPrefixed(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, uuid.New().String())
}

// NewInstallation returns an installation record ID.
func NewInstallation() string { return NewPrefixed(InstallationPrefix) }

// NewAction returns an inbound action ID.
func NewAction() string { return NewPrefixed(ActionPrefix) }

// NewNotification returns a notification ID.
func NewNotification() string { return NewPrefixed(NotificationPrefix) }

// NewJob returns a scheduled job ID.
func NewJob() string { return NewPrefixed(JobPrefix) }
