package types

import (
	"fmt"
	"time"
)

// InstallStatus represents installation lifecycle states
type InstallStatus string

const (
	StatusPending     InstallStatus = "pending"
	StatusInstalled   InstallStatus = "installed"
	StatusUninstalled InstallStatus = "uninstalled"
)

// Installation records that an app is enabled for a user, with its
// permission grant set. Unique per (user_id, app_id). The broker reads
// these records; it never creates or mutates them.
type Installation struct {
	ID               string        `json:"id"`
	UserID           string        `json:"user_id"`
	AppID            string        `json:"app_id"`
	Status           InstallStatus `json:"status"`
	GrantedPerms     []string      `json:"granted_permissions"`
	InstalledVersion string        `json:"installed_version"`
	InstalledAt      time.Time     `json:"installed_at"`
	LastUsedAt       *time.Time    `json:"last_used_at,omitempty"`
}

// HasPermission reports whether the exact key "{type}:{scope}" is in the
// grant set. Verbatim membership only, no wildcards or prefixes.
func (i *Installation) HasPermission(permType, scope string) bool {
	key := PermissionKey(permType, scope)
	for _, granted := range i.GrantedPerms {
		if granted == key {
			return true
		}
	}
	return false
}

// PermissionKey builds the canonical "{type}:{scope}" permission string.
func PermissionKey(permType, scope string) string {
	return fmt.Sprintf("%s:%s", permType, scope)
}

// InstalledApp joins an installation with its app descriptor for listing.
type InstalledApp struct {
	InstallationID   string        `json:"installation_id"`
	AppID            string        `json:"app_id"`
	AppName          string        `json:"app_name"`
	AppVersion       string        `json:"app_version"`
	InstalledVersion string        `json:"installed_version"`
	Status           InstallStatus `json:"status"`
	InstalledAt      time.Time     `json:"installed_at"`
	LastUsedAt       *time.Time    `json:"last_used_at,omitempty"`
}
