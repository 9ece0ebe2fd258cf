package alerts

import (
	"strconv"

	"github.com/rs/zerolog"

	"github.com/lims/lims/internal/domain/results"
	"github.com/lims/lims/internal/platform/notification"
)

// DispatchNotifier renders critical value messages and hands them to
// the asynchronous dispatcher. The default target is used when the
// alert does not carry its own.
type DispatchNotifier struct {
	dispatcher    *notification.Dispatcher
	templates     *notification.TemplateEngine
	defaultTarget string
	logger        zerolog.Logger
}

func NewDispatchNotifier(d *notification.Dispatcher, tpl *notification.TemplateEngine, defaultTarget string, logger zerolog.Logger) *DispatchNotifier {
	return &DispatchNotifier{
		dispatcher:    d,
		templates:     tpl,
		defaultTarget: defaultTarget,
		logger:        logger,
	}
}

func (n *DispatchNotifier) EnqueueCriticalValue(a *CriticalValueAlert) {
	value := "n/a"
	if a.Value != nil {
		value = strconv.FormatFloat(*a.Value, 'f', -1, 64)
	}
	data := map[string]string{
		"parameter":  a.ParameterCode,
		"patient_id": a.PatientID.String(),
		"result_id":  a.ResultID.String(),
		"severity":   a.Severity,
		"value":      value,
	}
	target := n.defaultTarget
	if a.NotifyTarget != nil && *a.NotifyTarget != "" {
		target = *a.NotifyTarget
	}
	subject, body, err := n.templates.Render("critical-value-alert", data)
	if err != nil {
		// Never fatal to the alert; the row stays pending for escalation.
		failure := &results.NotificationDeliveryFailure{Target: target, Err: err}
		n.logger.Error().Err(failure).Str("alert_id", a.ID.String()).Msg("critical value notification could not be prepared")
		return
	}
	alertID := a.ID
	n.dispatcher.Enqueue(&notification.Notification{
		Type:       notification.TypeSMS,
		Recipient:  target,
		Subject:    subject,
		Body:       body,
		TemplateID: "critical-value-alert",
		Priority:   a.Severity,
		AlertID:    &alertID,
	})
}
