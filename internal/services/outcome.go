package services

// Stage is a step in the life of one work item.
type Stage int

const (
	StageReceived Stage = iota
	StageFetched
	StageExtracted
	StageFlattened
	StageSerialized
	StageUploaded
	StageAcknowledged
	StageReleased
	StageQuarantined
	StageSkipped
)

func (s Stage) String() string {
	switch s {
	case StageReceived:
		return "received"
	case StageFetched:
		return "fetched"
	case StageExtracted:
		return "extracted"
	case StageFlattened:
		return "flattened"
	case StageSerialized:
		return "serialized"
	case StageUploaded:
		return "uploaded"
	case StageAcknowledged:
		return "acknowledged"
	case StageReleased:
		return "released"
	case StageQuarantined:
		return "quarantined"
	case StageSkipped:
		return "skipped"
	}
	return "unknown"
}

// Outcome is the result of processing one work item. Stage is the last stage
// reached; on failure Err and Kind describe what stopped it.
type Outcome struct {
	InputKey  string
	OutputKey string
	Stage     Stage
	Rows      int
	Columns   int
	Err       error
	Kind      ErrorKind
}

func (o Outcome) OK() bool { return o.Err == nil }
