package otel

import "go.opentelemetry.io/otel/metric"

// Metrics holds the voxmind metric instruments.
type Metrics struct {
	DecisionDuration metric.Float64Histogram
	LLMCallDuration  metric.Float64Histogram
	SkillDuration    metric.Float64Histogram
	ActionsTotal     metric.Int64Counter
	ActionFailures   metric.Int64Counter
	BlacklistSize    metric.Int64UpDownCounter
	ChatMessages     metric.Int64Counter
}

// NewMetrics creates all instruments from the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.DecisionDuration, err = meter.Float64Histogram("voxmind.decision.duration",
		metric.WithDescription("Decision cycle duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.LLMCallDuration, err = meter.Float64Histogram("voxmind.llm.duration",
		metric.WithDescription("Language-model RPC duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.SkillDuration, err = meter.Float64Histogram("voxmind.skill.duration",
		metric.WithDescription("Skill execution duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.ActionsTotal, err = meter.Int64Counter("voxmind.actions.total",
		metric.WithDescription("Actions dispatched"),
	)
	if err != nil {
		return nil, err
	}

	m.ActionFailures, err = meter.Int64Counter("voxmind.actions.failures",
		metric.WithDescription("Actions that returned a failure result"),
	)
	if err != nil {
		return nil, err
	}

	m.BlacklistSize, err = meter.Int64UpDownCounter("voxmind.blacklist.size",
		metric.WithDescription("Short-term blacklist entries"),
	)
	if err != nil {
		return nil, err
	}

	m.ChatMessages, err = meter.Int64Counter("voxmind.chat.messages",
		metric.WithDescription("Chat messages ingested"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}
