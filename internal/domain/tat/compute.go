package tat

import "time"

// minutesBetween returns the whole minutes from a to b, truncated, or
// nil when either endpoint is missing. An unmeasured segment must stay
// nil; zero means "took under a minute", not "unknown".
func minutesBetween(a, b *time.Time) *int {
	if a == nil || b == nil {
		return nil
	}
	m := int(b.Sub(*a).Minutes())
	return &m
}

// Compute fills every derived field from the milestone timestamps.
// Intermediate segments may stay nil while the total is still
// computable: the total only needs order placement and reporting.
func Compute(t *TatMonitoring) {
	t.CollectionMinutes = minutesBetween(t.OrderedAt, t.CollectedAt)
	t.TransportMinutes = minutesBetween(t.CollectedAt, t.ReceivedAt)
	t.QueueMinutes = minutesBetween(t.ReceivedAt, t.ProcessingStartedAt)
	t.AnalysisMinutes = minutesBetween(t.ProcessingStartedAt, t.ResultEnteredAt)
	t.ValidationMinutes = minutesBetween(t.ResultEnteredAt, t.ValidatedAt)
	t.ReportingMinutes = minutesBetween(t.ValidatedAt, t.ReportedAt)
	t.TotalTATMinutes = minutesBetween(t.OrderedAt, t.ReportedAt)

	t.TatMet = nil
	t.VarianceMinutes = nil
	t.DelayCategory = nil
	if t.TotalTATMinutes == nil || t.ExpectedTATMinutes == nil {
		return
	}
	met := *t.TotalTATMinutes <= *t.ExpectedTATMinutes
	variance := *t.TotalTATMinutes - *t.ExpectedTATMinutes
	category := categorize(variance)
	t.TatMet = &met
	t.VarianceMinutes = &variance
	t.DelayCategory = &category
}

// categorize buckets a signed variance in minutes. Thresholds are
// clinical reporting conventions, not SLAs.
func categorize(variance int) string {
	switch {
	case variance <= 0:
		return DelayNone
	case variance <= 30:
		return DelaySlight
	case variance <= 120:
		return DelayModerate
	default:
		return DelaySignificant
	}
}
