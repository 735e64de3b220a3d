package monitor

import (
	"time"

	"github.com/systmms/credkeeper/internal/policy"
)

// Tier classifies how close a credential is to expiring.
type Tier string

const (
	TierExpired  Tier = "expired"
	TierCritical Tier = "critical"
	TierHigh     Tier = "high"
	TierMedium   Tier = "medium"
	TierLow      Tier = "low"
)

// Severity maps a tier to its downstream severity bucket. Expired
// credentials are handled with critical severity.
func (t Tier) Severity() Tier {
	if t == TierExpired {
		return TierCritical
	}
	return t
}

// Actionable reports whether the tier warrants automatic rotation.
// Low-tier warnings are reported but not acted on by default.
func (t Tier) Actionable() bool {
	switch t {
	case TierExpired, TierCritical, TierHigh:
		return true
	}
	return false
}

// Warning describes one credential approaching or past expiration.
type Warning struct {
	TypeID        string    `json:"credential_type"`
	Tier          Tier      `json:"tier"`
	DaysRemaining int       `json:"days_remaining"`
	ExpiresAt     time.Time `json:"expires_at"`
	LastRotatedAt time.Time `json:"last_rotated_at"`
	IntervalDays  int       `json:"rotation_interval_days"`
}

// Monitor computes expiration warnings from the policy store. It only
// reads records and is safe to run concurrently with rotations.
type Monitor struct {
	store *policy.Store
	now   func() time.Time
}

// New creates an expiration monitor over the given store.
func New(store *policy.Store) *Monitor {
	return &Monitor{store: store, now: time.Now}
}

// SetClock overrides the monitor's time source, for tests.
func (m *Monitor) SetClock(now func() time.Time) {
	m.now = now
}

// Scan classifies every registered credential type. Credentials more than
// ninety days from expiry are omitted. Output order follows the store's
// policy ordering; callers group by tier.
func (m *Monitor) Scan() ([]Warning, error) {
	now := m.now()

	var warnings []Warning
	for _, p := range m.store.Policies() {
		rec, err := m.store.PeekRecord(p.TypeID)
		if err != nil {
			return nil, err
		}

		days := daysRemaining(rec.ExpiresAt, now)
		tier, ok := Classify(days)
		if !ok {
			continue
		}

		warnings = append(warnings, Warning{
			TypeID:        p.TypeID,
			Tier:          tier,
			DaysRemaining: days,
			ExpiresAt:     rec.ExpiresAt,
			LastRotatedAt: rec.LastRotatedAt,
			IntervalDays:  p.RotationIntervalDays,
		})
	}
	return warnings, nil
}

// Classify assigns exactly one tier for a days-remaining value. The second
// return is false when the credential is too far from expiry to report.
// First match wins, in priority order.
func Classify(daysRemaining int) (Tier, bool) {
	switch {
	case daysRemaining <= 0:
		return TierExpired, true
	case daysRemaining <= 1:
		return TierCritical, true
	case daysRemaining <= 7:
		return TierHigh, true
	case daysRemaining <= 30:
		return TierMedium, true
	case daysRemaining <= 90:
		return TierLow, true
	}
	return "", false
}

// daysRemaining is the whole number of days until expiry, rounded down.
// Negative when already expired.
func daysRemaining(expiresAt, now time.Time) int {
	remaining := expiresAt.Sub(now)
	days := int(remaining / (24 * time.Hour))
	if remaining < 0 && remaining%(24*time.Hour) != 0 {
		days--
	}
	return days
}
