// Package domain contains core business types shared across the application.
//
// This file defines the per-user daily generation quota record and the
// configuration that resolves a principal's daily limit.
package domain

import (
	"strings"
	"time"
)

// QuotaRecord is the persisted per-user quota state, keyed by user id.
// The persisted field names match the historical document schema.
type QuotaRecord struct {
	LastGenerationDate    string `json:"lastGenerationDate"`    // UTC calendar date, YYYY-MM-DD
	DailyGenerationsCount int    `json:"dailyGenerationsCount"` // Generations consumed since that date
}

// DateOnly formats a wall-clock instant as the UTC calendar date used for
// quota windows. Sub-day time differences never affect the window.
func DateOnly(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

// QuotaUsage is the caller-facing view of current usage against the limit.
type QuotaUsage struct {
	Used      int    `json:"used"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	ResetDate string `json:"resetDate"` // Date the counter applies to
}

// Limits resolves the daily generation limit for a principal. Elevated
// per-email limits are deployment configuration, not user state, so
// resolution happens fresh on every call.
type Limits struct {
	Default    int            // Baseline daily limit for everyone
	Elevated   map[string]int // Lowercased email -> elevated daily limit
	SuperAdmin string         // Email that never resolves below the highest configured limit
}

// Resolve returns the daily limit for the principal. The super-admin falls
// back to the highest configured limit when no explicit elevated entry names
// them, so setting SuperAdmin alone never leaves that account at the default.
func (l Limits) Resolve(p Principal) int {
	if limit, ok := l.Elevated[strings.ToLower(p.Email)]; ok {
		return limit
	}
	if l.SuperAdmin != "" && strings.EqualFold(p.Email, l.SuperAdmin) {
		return l.highest()
	}
	return l.Default
}

func (l Limits) highest() int {
	limit := l.Default
	for _, elevated := range l.Elevated {
		if elevated > limit {
			limit = elevated
		}
	}
	return limit
}
