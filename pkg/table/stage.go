package table

// Stage is a step of a traversal.
type Stage uint8

const (
	StageNotStarted Stage = iota
	StageAcquiring
	StagePreCast
	StageCasting
	StageConstraintCheck
	StageResolving
	StagePostCast
	StageShaping
	StageDone
	StageFailed
)

var stageNames = [...]string{
	StageNotStarted:      "not_started",
	StageAcquiring:       "acquiring",
	StagePreCast:         "pre_cast",
	StageCasting:         "casting",
	StageConstraintCheck: "constraint_check",
	StageResolving:       "resolving",
	StagePostCast:        "post_cast",
	StageShaping:         "shaping",
	StageDone:            "done",
	StageFailed:          "failed",
}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return "unknown"
}
