package results

import "testing"

func TestDeltaCheck_ZeroPrevious(t *testing.T) {
	// Percentage change from zero is undefined; the absolute threshold
	// must still be evaluated.
	d := DeltaCheck(f(5.0), f(0.0), f(20.0), f(3.0))
	if d.PctDelta != nil {
		t.Errorf("expected pct delta unset with zero previous, got %v", *d.PctDelta)
	}
	if d.AbsDelta == nil || *d.AbsDelta != 5.0 {
		t.Errorf("expected abs delta 5.0, got %v", d.AbsDelta)
	}
	if !d.Flagged {
		t.Error("expected flag from absolute threshold")
	}
}

func TestDeltaCheck_PctThreshold(t *testing.T) {
	d := DeltaCheck(f(15.0), f(10.0), f(20.0), nil)
	if d.PctDelta == nil || *d.PctDelta != 50.0 {
		t.Errorf("expected pct delta 50, got %v", d.PctDelta)
	}
	if !d.Flagged {
		t.Error("expected flag: 50% change exceeds 20% threshold")
	}

	d = DeltaCheck(f(11.0), f(10.0), f(20.0), nil)
	if d.Flagged {
		t.Error("10% change must not exceed 20% threshold")
	}
}

func TestDeltaCheck_AbsThreshold(t *testing.T) {
	d := DeltaCheck(f(7.0), f(10.0), nil, f(2.0))
	if d.AbsDelta == nil || *d.AbsDelta != 3.0 {
		t.Errorf("expected abs delta 3.0, got %v", d.AbsDelta)
	}
	if !d.Flagged {
		t.Error("expected flag: change of 3.0 exceeds 2.0 threshold")
	}
}

func TestDeltaCheck_MissingInputs(t *testing.T) {
	for _, d := range []Delta{
		DeltaCheck(nil, f(10.0), f(20.0), f(2.0)),
		DeltaCheck(f(10.0), nil, f(20.0), f(2.0)),
		DeltaCheck(nil, nil, f(20.0), f(2.0)),
	} {
		if d.Flagged || d.PctDelta != nil || d.AbsDelta != nil {
			t.Errorf("expected empty delta with missing input, got %+v", d)
		}
	}
}

func TestDeltaCheck_NoThresholds(t *testing.T) {
	d := DeltaCheck(f(100.0), f(1.0), nil, nil)
	if d.Flagged {
		t.Error("no thresholds configured must never flag")
	}
	if d.AbsDelta == nil || *d.AbsDelta != 99.0 {
		t.Errorf("expected abs delta 99, got %v", d.AbsDelta)
	}
}

func TestDeltaCheck_NegativePrevious(t *testing.T) {
	d := DeltaCheck(f(-5.0), f(-10.0), f(20.0), nil)
	if d.PctDelta == nil || *d.PctDelta != 50.0 {
		t.Errorf("expected pct delta 50 with negative previous, got %v", d.PctDelta)
	}
}
