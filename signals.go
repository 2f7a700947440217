package ergodic

import "github.com/zoobzio/capitan"

// Signal definitions for ergodicity events.
// Signals follow the pattern: ergodic.<entity>.<event>.
var (
	// Ledger signals.
	PathEventRecorded = capitan.NewSignal(
		"ergodic.path.recorded",
		"Decision appended to the path-dependency ledger",
	)
	ConstraintCreated = capitan.NewSignal(
		"ergodic.constraint.created",
		"High-commitment decision synthesized a constraint",
	)
	CriticalDecisionRecorded = capitan.NewSignal(
		"ergodic.decision.critical",
		"Decision exceeded the reversibility or commitment threshold",
	)

	// Monitoring signals.
	MonitoringStarted = capitan.NewSignal(
		"ergodic.monitoring.started",
		"Monitoring tick began running sensors",
	)
	MonitoringCompleted = capitan.NewSignal(
		"ergodic.monitoring.completed",
		"Monitoring tick produced a prioritized warning set",
	)
	MonitoringSkipped = capitan.NewSignal(
		"ergodic.monitoring.skipped",
		"Monitoring tick exceeded its deadline and was skipped",
	)

	// Sensor signals.
	SensorMeasured = capitan.NewSignal(
		"ergodic.sensor.measured",
		"Sensor produced a calibrated reading",
	)
	SensorFailed = capitan.NewSignal(
		"ergodic.sensor.failed",
		"Sensor measurement failed and a fallback was considered",
	)
	SensorDisabled = capitan.NewSignal(
		"ergodic.sensor.disabled",
		"Sensor reached the consecutive failure threshold",
	)

	// Warning signals.
	WarningRaised = capitan.NewSignal(
		"ergodic.warning.raised",
		"Non-safe reading produced a barrier warning",
	)
	PatternDetected = capitan.NewSignal(
		"ergodic.pattern.detected",
		"Recurring warning pattern detected for a session",
	)
	HistoryEvicted = capitan.NewSignal(
		"ergodic.history.evicted",
		"Warning history evicted by TTL or capacity",
	)

	// Protocol signals.
	ProtocolRecommended = capitan.NewSignal(
		"ergodic.protocol.recommended",
		"Escape protocol selected for a warning",
	)
	ProtocolExecuted = capitan.NewSignal(
		"ergodic.protocol.executed",
		"Escape protocol executed with a probabilistic outcome",
	)

	// Archive signals.
	ArchiveFailed = capitan.NewSignal(
		"ergodic.archive.failed",
		"Archive sink rejected a write",
	)
)

// Field keys for ergodicity event data.
var (
	// Ledger metadata.
	FieldEventID     = capitan.NewStringKey("event_id")
	FieldTechnique   = capitan.NewStringKey("technique")
	FieldStep        = capitan.NewIntKey("step")
	FieldEventCount  = capitan.NewIntKey("event_count")
	FieldConstraint  = capitan.NewStringKey("constraint_id")
	FieldFlexibility = capitan.NewFloat32Key("flexibility")
	FieldCommitment  = capitan.NewFloat32Key("commitment")

	// Sensor metadata.
	FieldSensor     = capitan.NewStringKey("sensor")
	FieldDistance   = capitan.NewFloat32Key("distance")
	FieldConfidence = capitan.NewFloat32Key("confidence")
	FieldLevel      = capitan.NewStringKey("level")
	FieldFailures   = capitan.NewIntKey("failures")
	FieldFallback   = capitan.NewStringKey("fallback") // decayed, none

	// Warning metadata.
	FieldSession      = capitan.NewStringKey("session")
	FieldBarrier      = capitan.NewStringKey("barrier")
	FieldWarningCount = capitan.NewIntKey("warning_count")
	FieldAction       = capitan.NewStringKey("action")
	FieldReason       = capitan.NewStringKey("reason") // ttl, capacity
	FieldMessage      = capitan.NewStringKey("message")

	// Protocol metadata.
	FieldProtocol      = capitan.NewStringKey("protocol")
	FieldProtocolLevel = capitan.NewIntKey("protocol_level")
	FieldOutcome       = capitan.NewStringKey("outcome") // success, failure

	// Timing.
	FieldDuration = capitan.NewDurationKey("duration")

	// Error information.
	FieldError = capitan.NewErrorKey("error")
)
