// Package quota enforces the per-user daily generation limit.
//
// The policy here is pure decision logic; the Enforcer applies it atomically
// against a Store so concurrent requests for the same user can never consume
// more units than the limit allows.
package quota

import (
	"time"

	"github.com/anmolmahajan9/photo20-app/internal/domain"
)

// Decision is the outcome of applying the quota policy to one request.
type Decision struct {
	Allow bool
	Next  domain.QuotaRecord // Record to persist when Allow; unchanged input when not
}

// Decide applies the daily-window policy: a request on a new UTC calendar
// day (or from a user with no record) opens a fresh window with the request
// itself counted as the first use. Within the current window the count
// increments until the limit, after which requests are rejected without
// mutating the record.
//
// A non-positive limit always rejects, even the first call of a day.
func Decide(now time.Time, record *domain.QuotaRecord, limit int) Decision {
	today := domain.DateOnly(now)

	if limit <= 0 {
		if record != nil {
			return Decision{Allow: false, Next: *record}
		}
		return Decision{Allow: false}
	}

	// New window: absent record, or the stored date is not today. The counter
	// is never reset to 0 and left unconsumed; this request is use number one.
	if record == nil || record.LastGenerationDate != today {
		return Decision{
			Allow: true,
			Next: domain.QuotaRecord{
				LastGenerationDate:    today,
				DailyGenerationsCount: 1,
			},
		}
	}

	if record.DailyGenerationsCount >= limit {
		return Decision{Allow: false, Next: *record}
	}

	return Decision{
		Allow: true,
		Next: domain.QuotaRecord{
			LastGenerationDate:    today,
			DailyGenerationsCount: record.DailyGenerationsCount + 1,
		},
	}
}
