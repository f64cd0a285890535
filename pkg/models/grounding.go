package models

// GroundingLevel is the three-way faithfulness decision.
type GroundingLevel string

const (
	GroundingPass GroundingLevel = "PASS"
	GroundingWarn GroundingLevel = "WARN"
	GroundingFail GroundingLevel = "FAIL"
)

// Aggregation selects how per-chunk grounding scores combine.
type Aggregation string

const (
	AggregationMax  Aggregation = "MAX"
	AggregationMean Aggregation = "MEAN"
	AggregationMin  Aggregation = "MIN"
)

// IsValid checks if the aggregation mode is known.
func (a Aggregation) IsValid() bool {
	return a == AggregationMax || a == AggregationMean || a == AggregationMin
}

// GroundingVerdict is the scored faithfulness outcome for an answer.
type GroundingVerdict struct {
	Score          float64
	Level          GroundingLevel
	PerChunkScores []float64
	Aggregation    Aggregation
}
