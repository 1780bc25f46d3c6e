package types

import "time"

// User is the account record the broker reads. Owned by the account
// subsystem; never mutated here.
type User struct {
	ID          string                 `json:"id"`
	Email       string                 `json:"email"`
	Name        string                 `json:"name"`
	Timezone    string                 `json:"timezone"`
	Preferences map[string]interface{} `json:"preferences,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// UserInfo is the identity view handed to app code through a bundle.
type UserInfo struct {
	ID          string                 `json:"id"`
	Email       string                 `json:"email"`
	Name        string                 `json:"name"`
	Timezone    string                 `json:"timezone"`
	Preferences map[string]interface{} `json:"preferences"`
}

// Info builds the app-facing view of a user record. Preferences default
// to an empty map so app code never sees nil.
func (u *User) Info() UserInfo {
	prefs := u.Preferences
	if prefs == nil {
		prefs = map[string]interface{}{}
	}
	return UserInfo{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		Timezone:    u.Timezone,
		Preferences: prefs,
	}
}
