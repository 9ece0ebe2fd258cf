package results

// Interpretation is the outcome of classifying one numeric value
// against its copied thresholds.
type Interpretation struct {
	Flag     string
	Abnormal bool
	Critical bool
	// Unclassified marks a NORMAL that was defaulted because the value
	// or every threshold was absent. It must be surfaced for review,
	// never hidden.
	Unclassified bool
}

// Classify evaluates a value against reference and critical thresholds.
// Critical checks run before range checks: a value that is both
// out-of-range and critical is critical.
func Classify(value, refLow, refHigh, critLow, critHigh *float64) Interpretation {
	if value == nil {
		return Interpretation{Flag: FlagNormal, Unclassified: true}
	}
	if refLow == nil && refHigh == nil && critLow == nil && critHigh == nil {
		return Interpretation{Flag: FlagNormal, Unclassified: true}
	}
	v := *value
	switch {
	case critLow != nil && v < *critLow:
		return Interpretation{Flag: FlagCriticalLow, Abnormal: true, Critical: true}
	case critHigh != nil && v > *critHigh:
		return Interpretation{Flag: FlagCriticalHigh, Abnormal: true, Critical: true}
	case refLow != nil && v < *refLow:
		return Interpretation{Flag: FlagLow, Abnormal: true}
	case refHigh != nil && v > *refHigh:
		return Interpretation{Flag: FlagHigh, Abnormal: true}
	default:
		return Interpretation{Flag: FlagNormal}
	}
}

// CrossesPanic reports whether a value breaches the panic tier, which
// is stricter than critical and triggers the most urgent alert.
func CrossesPanic(value, panicLow, panicHigh *float64) bool {
	if value == nil {
		return false
	}
	if panicLow != nil && *value < *panicLow {
		return true
	}
	if panicHigh != nil && *value > *panicHigh {
		return true
	}
	return false
}
