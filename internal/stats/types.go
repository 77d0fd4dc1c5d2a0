// Package stats defines core types shared across the sweep pipeline.
package stats

import (
	"fmt"
	"strings"
	"time"
)

// SweepStage represents the lifecycle state of one configuration within a sweep.
type SweepStage string

// Stage values recorded per configuration in the SweepReport.
const (
	StagePending     SweepStage = "pending"
	StageFetching    SweepStage = "fetching"
	StageExtracting  SweepStage = "extracting"
	StageNormalizing SweepStage = "normalizing"
	StageIngesting   SweepStage = "ingesting"
	StageDone        SweepStage = "done"
	StageFailed      SweepStage = "failed"
)

// StatConfiguration is one (region, platform, gamemode, map, tier) tuple
// driving a single fetch cycle. Values are immutable once enumerated.
type StatConfiguration struct {
	Region   string `json:"region"`
	Platform string `json:"platform"`
	Gamemode string `json:"gamemode"`
	Map      string `json:"map"`
	Tier     string `json:"tier"`
}

// Key returns a stable identifier used to index sweep outcomes.
func (c StatConfiguration) Key() string {
	return strings.ToLower(fmt.Sprintf("%s/%s/%s/%s/%s",
		c.Region, c.Platform, c.Gamemode, c.Map, c.Tier))
}

// RawObservation is an extracted (hero, pick rate, win rate) tuple before
// validation. Rate pointers are nil when no value was found near the hero
// token; partial observations are emitted rather than dropped.
type RawObservation struct {
	Hero     string
	PickRate *float64
	WinRate  *float64
}

// HeroStatRecord is the canonical persisted statistic. JSON tags match the
// batch endpoint of the store API.
type HeroStatRecord struct {
	HeroID     string    `json:"hero_id"`
	HeroClass  string    `json:"hero_class"`
	PickRate   *float64  `json:"pick_rate"`
	WinRate    *float64  `json:"win_rate"`
	Region     string    `json:"region"`
	Platform   string    `json:"platform"`
	Gamemode   string    `json:"gamemode"`
	Map        string    `json:"map"`
	MapType    string    `json:"map_type"`
	Tier       string    `json:"tier"`
	ObservedAt time.Time `json:"observed_at"`
}

// RejectedRecord pairs a record that could not be stored with the reason.
type RejectedRecord struct {
	Record HeroStatRecord `json:"record"`
	Reason string         `json:"reason"`
}

// IngestResult reports per-record acceptance after a batch submission.
// Partial success across chunks is expected; both sides are always populated.
type IngestResult struct {
	Accepted int              `json:"accepted"`
	Rejected []RejectedRecord `json:"rejected,omitempty"`
}

// Merge folds another result into this one.
func (r *IngestResult) Merge(other IngestResult) {
	r.Accepted += other.Accepted
	r.Rejected = append(r.Rejected, other.Rejected...)
}

// ConfigOutcome is the terminal state of one configuration in a sweep.
type ConfigOutcome struct {
	Configuration StatConfiguration `json:"configuration"`
	Stage         SweepStage        `json:"stage"`
	Error         string            `json:"error,omitempty"`
	Observations  int               `json:"observations"`
	Accepted      int               `json:"accepted"`
	Rejected      []RejectedRecord  `json:"rejected,omitempty"`
	Duration      time.Duration     `json:"duration"`
}

// SweepReport enumerates per-configuration outcomes for one full pass.
// It is always produced, even when every configuration failed.
type SweepReport struct {
	SweepID    string                   `json:"sweep_id"`
	StartedAt  time.Time                `json:"started_at"`
	FinishedAt time.Time                `json:"finished_at"`
	Outcomes   map[string]ConfigOutcome `json:"outcomes"`
}

// Completed counts configurations that reached StageDone.
func (r SweepReport) Completed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Stage == StageDone {
			n++
		}
	}
	return n
}

// Failed counts configurations that terminated in StageFailed.
func (r SweepReport) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Stage == StageFailed {
			n++
		}
	}
	return n
}
