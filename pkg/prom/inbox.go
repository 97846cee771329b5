package prom

import "time"

func RecordWebhook(outcome string) {
	IncCounterVec(SystemWebhook, MetricWebhookReceived, outcome)
}

// MarkWebhookReceived publishes the last inbound webhook time so every replica
// reports it, instead of a process-local variable.
func MarkWebhookReceived(at time.Time) {
	SetGauge(SystemWebhook, MetricWebhookLastReceived, float64(at.Unix()))
}

func RecordRuleAction(action, outcome string) {
	IncCounterVec(SystemRules, MetricRuleActions, action, outcome)
}

func RecordAutoReply(outcome string) {
	IncCounterVec(SystemRules, MetricAutoReplies, outcome)
}

func RecordOutboxSend(outcome string) {
	IncCounterVec(SystemOutbox, MetricOutboxSends, outcome)
}

func AddSLABreaches(n int) {
	if n > 0 {
		AddCounter(SystemSLA, MetricSLABreaches, float64(n))
	}
}

func RecordDelivery(status, provider string, duration time.Duration) {
	IncCounterVec(SystemDelivery, MetricDeliveryAttempts, status)
	AddHistogramVec(SystemDelivery, MetricDeliveryDurationSeconds, duration.Seconds(), provider)
}

func RecordMaintenanceMoves(kind string, n int) {
	if n > 0 {
		AddCounterVec(SystemDelivery, MetricDeliveryMaintenanceMoves, float64(n), kind)
	}
}
