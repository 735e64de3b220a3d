package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/credkeeper/internal/monitor"
)

var reportNow = time.Date(2026, 7, 10, 8, 30, 0, 0, time.UTC)

func TestRenderGroupsByTier(t *testing.T) {
	warnings := []monitor.Warning{
		{TypeID: "API_KEY", Tier: monitor.TierMedium, DaysRemaining: 12, ExpiresAt: reportNow.AddDate(0, 0, 12)},
		{TypeID: "DB_PASSWORD", Tier: monitor.TierExpired, DaysRemaining: -3, ExpiresAt: reportNow.AddDate(0, 0, -3)},
		{TypeID: "SECRET_TOKEN", Tier: monitor.TierCritical, DaysRemaining: 1, ExpiresAt: reportNow.AddDate(0, 0, 1)},
	}

	out := Render(warnings, reportNow)

	// Most urgent tier first.
	expiredIdx := strings.Index(out, "EXPIRED")
	criticalIdx := strings.Index(out, "CRITICAL")
	mediumIdx := strings.Index(out, "MEDIUM")
	require.NotEqual(t, -1, expiredIdx)
	require.NotEqual(t, -1, criticalIdx)
	require.NotEqual(t, -1, mediumIdx)
	assert.Less(t, expiredIdx, criticalIdx)
	assert.Less(t, criticalIdx, mediumIdx)

	assert.Contains(t, out, "expired 3 day(s) ago")
	assert.Contains(t, out, "expires in 12 day(s)")
	assert.NotContains(t, out, "HIGH")
}

func TestRenderExpiresToday(t *testing.T) {
	out := Render([]monitor.Warning{
		{TypeID: "API_KEY", Tier: monitor.TierExpired, DaysRemaining: 0, ExpiresAt: reportNow},
	}, reportNow)

	assert.Contains(t, out, "expires today")
}

func TestRenderEmpty(t *testing.T) {
	out := Render(nil, reportNow)
	assert.Contains(t, out, "All credentials are within their rotation intervals.")
}

func TestSaveWritesTimestampedFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")

	path, err := Save(dir, "content\n", reportNow)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "report_20260710-083000.txt"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "content\n", string(data))
}
