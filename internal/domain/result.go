package domain

import (
	"encoding/json"
	"time"
)

// Stage names a pipeline step whose outputs are cached independently.
type Stage string

// Known pipeline stages
const (
	StageParse          Stage = "parse"
	StageDetectTriggers Stage = "detect_triggers"
	StageSynthesize     Stage = "synthesize"
)

// Stages lists every stage in pipeline order.
var Stages = []Stage{StageParse, StageDetectTriggers, StageSynthesize}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	for _, known := range Stages {
		if s == known {
			return true
		}
	}
	return false
}

// CacheEntry is a previously computed generation output for one
// (stage, fingerprint) pair, together with its provenance.
type CacheEntry struct {
	Stage       Stage           `json:"stage"`
	Fingerprint string          `json:"fingerprint"`
	Payload     json.RawMessage `json:"payload"`
	ProducedBy  string          `json:"produced_by,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
