package tidy

import "time"

// AutomationMetrics summarizes the record set after a scan.
type AutomationMetrics struct {
	// TotalScanned counts the files the scan saw. The status counts cover
	// every stored record.
	TotalScanned int
	Pending      int
	Ready        int
	Organized    int
	Skipped      int

	// OldestPendingAgeDays is nil when nothing is pending.
	OldestPendingAgeDays *int
}

// ComputeMetrics derives metrics from records as of now.
// A file's age is measured from its creation time, or its modification
// time when the creation time is unknown.
func ComputeMetrics(records []*FileRecord, now time.Time) AutomationMetrics {
	m := AutomationMetrics{TotalScanned: len(records)}
	var oldest time.Time

	for _, r := range records {
		switch r.Status {
		case StatusPending:
			m.Pending++
			born := r.CreatedAt
			if born.IsZero() {
				born = r.ModifiedAt
			}
			if oldest.IsZero() || born.Before(oldest) {
				oldest = born
			}
		case StatusReady:
			m.Ready++
		case StatusOrganized:
			m.Organized++
		case StatusSkipped:
			m.Skipped++
		}
	}

	if m.Pending > 0 {
		days := 0
		if !oldest.IsZero() && now.After(oldest) {
			days = int(now.Sub(oldest).Hours() / 24)
		}
		m.OldestPendingAgeDays = &days
	}
	return m
}
