package results

import "math"

// Delta is the outcome of comparing a value to the patient's most
// recent validated prior value for the same parameter.
type Delta struct {
	// PctDelta is unset when the previous value is zero; a percentage
	// change from zero is undefined and must not crash the pipeline.
	PctDelta *float64
	AbsDelta *float64
	Flagged  bool
}

// DeltaCheck compares current against previous. When either value is
// absent there is nothing to compare: no delta fields are populated and
// the check does not flag.
func DeltaCheck(current, previous, pctThreshold, absThreshold *float64) Delta {
	if current == nil || previous == nil {
		return Delta{}
	}
	var d Delta
	abs := math.Abs(*current - *previous)
	d.AbsDelta = &abs
	if *previous != 0 {
		pct := abs / math.Abs(*previous) * 100
		d.PctDelta = &pct
	}
	if pctThreshold != nil && d.PctDelta != nil && *d.PctDelta > *pctThreshold {
		d.Flagged = true
	}
	if absThreshold != nil && abs > *absThreshold {
		d.Flagged = true
	}
	return d
}
