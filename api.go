// Package ergodic provides early warning for irreversible commitments in
// multi-step problem-solving sessions.
//
// ergodic tracks how much room a session has left to change course, raises
// warnings before the session drifts into a state it cannot recover from,
// and recommends graduated escape protocols.
//
// # Core Types
//
// The package is built around four components:
//
//   - [PathMemory] - Append-only ledger of decisions with derived flexibility metrics
//   - [Sensor] - Calibrated distance-to-barrier readings from one signal family
//   - [Coordinator] - Runs sensors each tick and turns readings into prioritized warnings
//   - [ProtocolEngine] - Five leveled escape protocols with probabilistic outcomes
//
// # Recording Steps
//
// [Ergodicity] is the single integration point. Call it once per visible
// thinking step:
//
//	e := ergodic.New(ergodic.WithAutoEscape())
//	res, err := e.RecordThinkingStep(ctx, "six_hats", 3, output,
//	    ergodic.Impact{CommitmentLevel: ergodic.Float(0.8)}, session)
//
// The ledger is always updated. Monitoring runs only when session data is
// supplied. Warnings are advisory and never fail a step.
//
// # Sensors
//
// Three sensors ship with the package:
//
//   - [ResourceSensor] - Energy, time, budget and efficiency depletion
//   - [CognitiveSensor] - Perspective diversity, assumption challenging, learning velocity
//   - [TechnicalDebtSensor] - Constraint entropy, coupling, change velocity, refactor cost
//
// Each sensor shares the same template: a raw value in [0, 1] is scaled by
// sensitivity, passed through a hysteresis noise filter and classified with
// [DetermineWarningLevel]. Custom sensors implement [Sensor] and are passed
// with [WithSensors].
//
// # Barriers
//
// Proximity to each catalog barrier is computed from the ledger by a
// lookup table of [ProximityFunc] heuristics. Register a replacement with
// [PathMemory.WithProximityHeuristic].
//
// # Persistence
//
// An optional [Archive] receives every step's event, warnings and escape
// responses. [SoyArchive] stores them in PostgreSQL via soy:
//
//	archive, err := ergodic.NewSoyArchive(db)
//	e := ergodic.New(ergodic.WithArchive(archive))
//
// # Observability
//
// ergodic emits capitan signals throughout execution. See [signals.go] for
// the complete list of events including PathEventRecorded, SensorFailed,
// SensorDisabled, WarningRaised and ProtocolExecuted. [NewMetrics] exports
// the same activity as Prometheus collectors.
package ergodic
