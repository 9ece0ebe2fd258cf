package results

import "fmt"

// ValidationOrderError reports a validation step submitted before the
// levels it depends on were approved. The caller must retry at the
// correct level.
type ValidationOrderError struct {
	AttemptedLevel int
	RequiredLevel  int
}

func (e *ValidationOrderError) Error() string {
	return fmt.Sprintf("level %d validation requires level %d approval first",
		e.AttemptedLevel, e.RequiredLevel)
}

// ConflictError reports a write that lost to a concurrent writer on
// the same result or validation step. The caller must re-read and
// retry.
type ConflictError struct {
	ResultID string
	Step     int
}

func (e *ConflictError) Error() string {
	if e.Step > 0 {
		return fmt.Sprintf("validation step %d for result %s was committed by another user; re-read and retry", e.Step, e.ResultID)
	}
	return fmt.Sprintf("result %s was modified concurrently; re-read and retry", e.ResultID)
}

// MissingDataError reports an operation that needs data the result does
// not have, such as finalizing while a mandatory parameter lacks an
// interpretation flag.
type MissingDataError struct {
	ParameterCode string
	Reason        string
}

func (e *MissingDataError) Error() string {
	if e.ParameterCode != "" {
		return fmt.Sprintf("parameter %s: %s", e.ParameterCode, e.Reason)
	}
	return e.Reason
}

// SpecimenGateFailure reports result entry attempted against a specimen
// the quality gate has not admitted. No result is created.
type SpecimenGateFailure struct {
	SpecimenNumber string
	QualityStatus  string
	Reason         string
}

func (e *SpecimenGateFailure) Error() string {
	return fmt.Sprintf("specimen %s (%s): %s", e.SpecimenNumber, e.QualityStatus, e.Reason)
}

// NotificationDeliveryFailure reports a notification channel error. It
// is never fatal to the alert or the result; delivery is retried.
type NotificationDeliveryFailure struct {
	Target string
	Err    error
}

func (e *NotificationDeliveryFailure) Error() string {
	return fmt.Sprintf("notification to %s failed: %v", e.Target, e.Err)
}

func (e *NotificationDeliveryFailure) Unwrap() error { return e.Err }
