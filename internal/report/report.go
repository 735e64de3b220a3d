// Package report renders expiration scan results for operators and saves
// them alongside the credential data for later review.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/systmms/credkeeper/internal/monitor"
)

// tierOrder fixes the rendering order, most urgent first.
var tierOrder = []monitor.Tier{
	monitor.TierExpired,
	monitor.TierCritical,
	monitor.TierHigh,
	monitor.TierMedium,
	monitor.TierLow,
}

var tierHeadings = map[monitor.Tier]string{
	monitor.TierExpired:  "EXPIRED",
	monitor.TierCritical: "CRITICAL (1 day or less)",
	monitor.TierHigh:     "HIGH (within 7 days)",
	monitor.TierMedium:   "MEDIUM (within 30 days)",
	monitor.TierLow:      "LOW (within 90 days)",
}

// Render formats warnings grouped by tier. The empty scan renders as a
// single all-clear line so cron output is never silent.
func Render(warnings []monitor.Warning, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Credential expiration report - %s\n", now.UTC().Format("2006-01-02 15:04 UTC"))

	if len(warnings) == 0 {
		b.WriteString("\nAll credentials are within their rotation intervals.\n")
		return b.String()
	}

	byTier := make(map[monitor.Tier][]monitor.Warning)
	for _, w := range warnings {
		byTier[w.Tier] = append(byTier[w.Tier], w)
	}

	for _, tier := range tierOrder {
		group := byTier[tier]
		if len(group) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s\n", tierHeadings[tier])
		for _, w := range group {
			fmt.Fprintf(&b, "  %-20s %s\n", w.TypeID, describe(w))
		}
	}
	return b.String()
}

func describe(w monitor.Warning) string {
	expires := w.ExpiresAt.UTC().Format("2006-01-02")
	switch {
	case w.DaysRemaining < 0:
		return fmt.Sprintf("expired %d day(s) ago (was due %s)", -w.DaysRemaining, expires)
	case w.DaysRemaining == 0:
		return fmt.Sprintf("expires today (%s)", expires)
	default:
		return fmt.Sprintf("expires in %d day(s) on %s", w.DaysRemaining, expires)
	}
}

// Save writes a rendered report into dir as report_<timestamp>.txt and
// returns the path. Reports are retained; nothing prunes old ones.
func Save(dir, content string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("creating report directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("report_%s.txt", now.UTC().Format("20060102-150405")))
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}
	return path, nil
}
