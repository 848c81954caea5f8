// Package domain contains core business types shared across the application.
package domain

import "strings"

// Principal is the authenticated identity on whose behalf a request is made.
// It is produced by the identity verifier from a bearer credential and passed
// explicitly through every call boundary; nothing reads it from ambient state.
type Principal struct {
	UID   string // Stable opaque identifier from the identity provider
	Email string // Identity label used for limit resolution and access control
}

// AccessPolicy controls which identities may use the application and which
// have administrative privileges. An empty allowlist admits everyone.
type AccessPolicy struct {
	AllowedEmails   []string
	AdminEmails     []string
	SuperAdminEmail string
}

// Allowed reports whether the principal may use the application.
func (a AccessPolicy) Allowed(p Principal) bool {
	if a.IsAdmin(p) {
		return true
	}
	if len(a.AllowedEmails) == 0 {
		return true
	}
	for _, email := range a.AllowedEmails {
		if matchesEmail(p.Email, email) {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the principal has administrative privileges.
func (a AccessPolicy) IsAdmin(p Principal) bool {
	if matchesEmail(p.Email, a.SuperAdminEmail) {
		return true
	}
	for _, email := range a.AdminEmails {
		if matchesEmail(p.Email, email) {
			return true
		}
	}
	return false
}

func matchesEmail(got, want string) bool {
	return want != "" && strings.EqualFold(got, want)
}
