// Package ingest receives reduced per-frame pixel statistics from
// upstream reducers and feeds them to the fade tracker. Records arrive
// as JSON datagrams over UDP in live operation, or from recorded
// captures during replay.
package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/banshee-data/fade.report/internal/fade"
)

// ErrInvalidRecord marks records that decoded cleanly but failed
// validation. The listener counts these separately from JSON errors.
var ErrInvalidRecord = errors.New("invalid stats record")

// StatsRecord is one reduced-frame measurement on the wire. Unknown
// fields are ignored so reducers can carry extra diagnostics alongside
// the core statistics.
type StatsRecord struct {
	Source      string  `json:"source"`
	CapturedAt  float64 `json:"t"`
	Luminance   float64 `json:"lum"`
	Variance    float64 `json:"var"`
	EdgeDensity float64 `json:"edge"`
}

// ParseRecord decodes and validates a single wire record. The source
// label is whitespace-trimmed before validation.
func ParseRecord(data []byte) (StatsRecord, error) {
	var rec StatsRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return StatsRecord{}, fmt.Errorf("failed to unmarshal stats record: %w", err)
	}
	rec.Source = strings.TrimSpace(rec.Source)
	if err := rec.Validate(); err != nil {
		return StatsRecord{}, err
	}
	return rec, nil
}

// Validate checks the record against the wire contract: non-empty
// source, finite numerics, positive capture time.
func (r StatsRecord) Validate() error {
	if strings.TrimSpace(r.Source) == "" {
		return fmt.Errorf("%w: missing source", ErrInvalidRecord)
	}
	for _, v := range []float64{r.CapturedAt, r.Luminance, r.Variance, r.EdgeDensity} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite value from %q", ErrInvalidRecord, r.Source)
		}
	}
	if r.CapturedAt <= 0 {
		return fmt.Errorf("%w: non-positive capture time %v from %q", ErrInvalidRecord, r.CapturedAt, r.Source)
	}
	return nil
}

// Sample converts the record to a tracker frame sample. The sequence
// index is assigned downstream at append time.
func (r StatsRecord) Sample() fade.FrameSample {
	return fade.FrameSample{
		Luminance:   r.Luminance,
		Variance:    r.Variance,
		EdgeDensity: r.EdgeDensity,
		CapturedAt:  r.CapturedAt,
	}
}
