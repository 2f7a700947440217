package ergodic

// EscapeProtocol is a static, leveled remediation playbook. Higher levels
// demand more remaining flexibility, promise more gain and succeed less
// often.
type EscapeProtocol struct {
	Level                    int      `json:"level" yaml:"level"`
	ID                       string   `json:"id" yaml:"id"`
	Name                     string   `json:"name" yaml:"name"`
	Description              string   `json:"description" yaml:"description"`
	RequiredFlexibility      float64  `json:"requiredFlexibility" yaml:"required_flexibility"`
	EstimatedFlexibilityGain float64  `json:"estimatedFlexibilityGain" yaml:"estimated_flexibility_gain"`
	Steps                    []string `json:"steps" yaml:"steps"`
	Risks                    []string `json:"risks" yaml:"risks"`
	SuccessProbability       float64  `json:"successProbability" yaml:"success_probability"`
}

// RequiresConfirmation reports whether executing the protocol needs an
// explicit caller confirmation.
func (p EscapeProtocol) RequiresConfirmation() bool {
	return p.Level >= ConfirmationRequiredLevel
}

// Protocol levels.
const (
	LevelPatternInterruption  = 1
	LevelResourceReallocation = 2
	LevelStakeholderReset     = 3
	LevelTechnicalRefactoring = 4
	LevelStrategicPivot       = 5
)

// protocolCatalog is ordered by level.
var protocolCatalog = []EscapeProtocol{
	{
		Level:                    LevelPatternInterruption,
		ID:                       "pattern_interruption",
		Name:                     "Pattern Interruption",
		Description:              "Break the current thinking loop with a deliberate change of frame",
		RequiredFlexibility:      0.1,
		EstimatedFlexibilityGain: 0.15,
		Steps: []string{
			"Pause the current line of reasoning",
			"Introduce a random stimulus or provocation",
			"Generate three ideas that contradict the current direction",
			"Pick one to explore for a single step",
		},
		Risks:              []string{"Loss of momentum", "Short-term confusion"},
		SuccessProbability: 0.85,
	},
	{
		Level:                    LevelResourceReallocation,
		ID:                       "resource_reallocation",
		Name:                     "Resource Reallocation",
		Description:              "Shift time, energy and attention away from the depleted thread",
		RequiredFlexibility:      0.2,
		EstimatedFlexibilityGain: 0.2,
		Steps: []string{
			"Inventory where effort has gone so far",
			"Identify the thread with the lowest return",
			"Move its remaining budget to the most promising open option",
			"Set an explicit checkpoint before further spending",
		},
		Risks:              []string{"Abandoned work on the defunded thread", "Sunk-cost friction"},
		SuccessProbability: 0.75,
	},
	{
		Level:                    LevelStakeholderReset,
		ID:                       "stakeholder_reset",
		Name:                     "Stakeholder Reset",
		Description:              "Renegotiate expectations and commitments with the people affected",
		RequiredFlexibility:      0.3,
		EstimatedFlexibilityGain: 0.25,
		Steps: []string{
			"List commitments made to others during the session",
			"Identify which ones block the most options",
			"Propose revised expectations for those commitments",
			"Record the agreed reset as a new baseline",
		},
		Risks:              []string{"Damaged trust", "Renegotiation may be refused"},
		SuccessProbability: 0.7,
	},
	{
		Level:                    LevelTechnicalRefactoring,
		ID:                       "technical_refactoring",
		Name:                     "Technical Refactoring",
		Description:              "Restructure the accumulated solution so constraints can be loosened",
		RequiredFlexibility:      0.4,
		EstimatedFlexibilityGain: 0.3,
		Steps: []string{
			"Map constraints to the decisions that created them",
			"Find the most coupled constraint",
			"Design a seam that isolates it",
			"Migrate dependents incrementally behind the seam",
		},
		Risks:              []string{"Regression during migration", "Refactor may itself add constraints"},
		SuccessProbability: 0.65,
	},
	{
		Level:                    LevelStrategicPivot,
		ID:                       "strategic_pivot",
		Name:                     "Strategic Pivot",
		Description:              "Return to the underlying goal and take a fundamentally different route",
		RequiredFlexibility:      0.5,
		EstimatedFlexibilityGain: 0.4,
		Steps: []string{
			"Restate the goal without reference to the current solution",
			"Capture what the current path has taught",
			"Select an alternative approach that reuses those lessons",
			"Retire the commitments that only served the old path",
		},
		Risks:              []string{"High switching cost", "Loss of accumulated work", "Stakeholder confusion"},
		SuccessProbability: 0.6,
	},
}

// Protocols returns the catalog ordered by level.
func Protocols() []EscapeProtocol {
	out := make([]EscapeProtocol, len(protocolCatalog))
	copy(out, protocolCatalog)
	return out
}

// ProtocolByLevel looks up a protocol by level.
func ProtocolByLevel(level int) (EscapeProtocol, bool) {
	if level < 1 || level > len(protocolCatalog) {
		return EscapeProtocol{}, false
	}
	return protocolCatalog[level-1], true
}

// barrierProtocolLevels lists the preferred protocols per barrier type,
// most fitting first.
var barrierProtocolLevels = map[BarrierType][]int{
	BarrierCognitive: {LevelPatternInterruption, LevelStrategicPivot},
	BarrierResource:  {LevelResourceReallocation, LevelStakeholderReset},
	BarrierTechnical: {LevelTechnicalRefactoring, LevelPatternInterruption},
	BarrierEmotional: {LevelStakeholderReset, LevelPatternInterruption},
}

// suggestedProtocols picks zero to two protocols for a warning: none when
// safe, the first preference under caution, both otherwise.
func suggestedProtocols(barrier Barrier, severity WarningLevel) []EscapeProtocol {
	levels := barrierProtocolLevels[barrier.Type]
	if len(levels) == 0 {
		levels = []int{LevelPatternInterruption}
	}
	switch severity {
	case LevelSafe:
		return nil
	case LevelCaution:
		levels = levels[:1]
	}
	out := make([]EscapeProtocol, 0, len(levels))
	for _, level := range levels {
		if p, ok := ProtocolByLevel(level); ok {
			out = append(out, p)
		}
	}
	return out
}
