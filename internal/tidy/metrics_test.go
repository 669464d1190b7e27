package tidy_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidy-go/internal/tidy"
)

func TestComputeMetrics(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	t.Run("counts statuses and oldest pending age", func(t *testing.T) {
		records := []*tidy.FileRecord{
			{Status: tidy.StatusPending, CreatedAt: now.Add(-72 * time.Hour)},
			{Status: tidy.StatusPending, ModifiedAt: now.Add(-10 * 24 * time.Hour)},
			{Status: tidy.StatusReady, CreatedAt: now.Add(-100 * 24 * time.Hour)},
			{Status: tidy.StatusOrganized},
			{Status: tidy.StatusSkipped},
		}

		m := tidy.ComputeMetrics(records, now)
		assert.Equal(t, 5, m.TotalScanned)
		assert.Equal(t, 2, m.Pending)
		assert.Equal(t, 1, m.Ready)
		assert.Equal(t, 1, m.Organized)
		assert.Equal(t, 1, m.Skipped)
		require.NotNil(t, m.OldestPendingAgeDays)
		assert.Equal(t, 10, *m.OldestPendingAgeDays)
	})

	t.Run("nil age when nothing is pending", func(t *testing.T) {
		m := tidy.ComputeMetrics([]*tidy.FileRecord{{Status: tidy.StatusReady}}, now)
		assert.Nil(t, m.OldestPendingAgeDays)
	})
}

func TestFileRecord_Reject(t *testing.T) {
	conf := 0.9
	r := &tidy.FileRecord{
		Path:          "/home/user/Downloads/a.pdf",
		Status:        tidy.StatusReady,
		Destination:   &tidy.DestinationRef{Key: "documents", DisplayName: "Documents"},
		Confidence:    &conf,
		MatchReason:   "Extension is .pdf",
		MatchedRuleID: "rule-1",
	}

	require.NoError(t, r.Reject())
	assert.Equal(t, "Documents", r.RejectedDestinationName)
	assert.Equal(t, 1, r.RejectionCount)
	assert.Equal(t, tidy.StatusPending, r.Status)
	assert.Nil(t, r.Destination)
	assert.Nil(t, r.Confidence)
	assert.Empty(t, r.MatchReason)

	assert.Error(t, r.Reject(), "nothing left to reject")
}

func TestKindOf(t *testing.T) {
	err := tidy.NewAutomationError(tidy.ErrorBookmarkInvalid, assert.AnError)
	assert.Equal(t, tidy.ErrorBookmarkInvalid, tidy.KindOf(err))
	assert.Equal(t, tidy.ErrorScanFailed, tidy.KindOf(assert.AnError))
	assert.Equal(t, "bookmarkInvalid", tidy.ErrorBookmarkInvalid.NotificationID())
}
