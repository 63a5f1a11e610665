// Package reliability turns published corrections into bounded credibility
// adjustments for the sources they implicate. Scores only move through the
// append-only reliability log.
package reliability

import (
	"context"
	"errors"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/dailyworker/newsroom/internal/config"
	"github.com/dailyworker/newsroom/internal/model"
	"github.com/dailyworker/newsroom/internal/store"
)

// MaxDelta bounds the magnitude of any single adjustment.
const MaxDelta = 0.5

// Policy maps severities to deltas and bounds the resulting score.
type Policy struct {
	Deltas   map[model.Severity]float64
	MinScore float64
	MaxScore float64
}

// DefaultPolicy returns minor -0.1, moderate -0.2, major -0.35, critical -0.5
// on a [0, 100] scale.
func DefaultPolicy() Policy {
	return Policy{
		Deltas: map[model.Severity]float64{
			model.SeverityMinor:    -0.1,
			model.SeverityModerate: -0.2,
			model.SeverityMajor:    -0.35,
			model.SeverityCritical: -0.5,
		},
		MinScore: 0,
		MaxScore: 100,
	}
}

// PolicyFromConfig builds a Policy from the reliability section.
func PolicyFromConfig(cfg config.ReliabilityConfig) Policy {
	p := DefaultPolicy()
	set := func(sev model.Severity, v float64) {
		if v != 0 {
			p.Deltas[sev] = v
		}
	}
	set(model.SeverityMinor, cfg.MinorDelta)
	set(model.SeverityModerate, cfg.ModerateDelta)
	set(model.SeverityMajor, cfg.MajorDelta)
	set(model.SeverityCritical, cfg.CriticalDelta)
	if cfg.MaxScore > cfg.MinScore {
		p.MinScore, p.MaxScore = cfg.MinScore, cfg.MaxScore
	}
	return p
}

// DeltaFor returns the credibility delta for a correction. Updates record
// new information rather than a source fault and carry no delta. The result
// is always within [-MaxDelta, MaxDelta].
func (p Policy) DeltaFor(sev model.Severity, typ model.CorrectionType) float64 {
	if typ == model.CorrectionUpdate {
		return 0
	}
	return math.Max(-MaxDelta, math.Min(MaxDelta, p.Deltas[sev]))
}

// Apply computes the log entry moving src by delta. The new score is
// clamped to [MinScore, MaxScore]; AppliedDelta records the movement that
// actually happened.
func (p Policy) Apply(src model.Source, correctionID string, delta float64) model.ReliabilityEntry {
	delta = math.Max(-MaxDelta, math.Min(MaxDelta, delta))
	newScore := math.Max(p.MinScore, math.Min(p.MaxScore, src.Credibility+delta))
	newScore = math.Round(newScore*1e4) / 1e4
	return model.ReliabilityEntry{
		SourceID:       src.ID,
		CorrectionID:   correctionID,
		RequestedDelta: delta,
		AppliedDelta:   math.Round((newScore-src.Credibility)*1e4) / 1e4,
		OldScore:       src.Credibility,
		NewScore:       newScore,
	}
}

// SourceStore is the persistence the loop needs.
type SourceStore interface {
	GetSource(ctx context.Context, id string) (*model.Source, error)
	AppendReliability(ctx context.Context, entry *model.ReliabilityEntry) error
}

// maxCASAttempts bounds re-reads after a concurrent credibility change.
const maxCASAttempts = 3

// Loop applies corrections to the source registry.
type Loop struct {
	store  SourceStore
	policy Policy
}

// NewLoop creates a feedback loop.
func NewLoop(st SourceStore, p Policy) *Loop {
	return &Loop{store: st, policy: p}
}

// Policy returns the loop's delta policy.
func (l *Loop) Policy() Policy { return l.policy }

// ApplyCorrection appends one log entry per implicated source. A correction
// with no delta (an update) appends nothing.
func (l *Loop) ApplyCorrection(ctx context.Context, c *model.Correction) ([]model.ReliabilityEntry, error) {
	log := zap.L().With(zap.String("stage", "reliability"), zap.String("correction_id", c.ID))

	delta := l.policy.DeltaFor(c.Severity, c.Type)
	if delta == 0 {
		log.Info("reliability: correction carries no delta", zap.String("type", string(c.Type)))
		return nil, nil
	}

	var entries []model.ReliabilityEntry
	for _, id := range c.SourceIDs {
		entry, err := l.applyOne(ctx, id, c.ID, delta)
		if err != nil {
			return entries, err
		}
		log.Info("reliability: credibility adjusted",
			zap.String("source_id", id),
			zap.Float64("old_score", entry.OldScore),
			zap.Float64("new_score", entry.NewScore),
			zap.Float64("requested_delta", entry.RequestedDelta),
			zap.Float64("applied_delta", entry.AppliedDelta),
		)
		entries = append(entries, *entry)
	}
	return entries, nil
}

func (l *Loop) applyOne(ctx context.Context, sourceID, correctionID string, delta float64) (*model.ReliabilityEntry, error) {
	var lastErr error
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		src, err := l.store.GetSource(ctx, sourceID)
		if err != nil {
			return nil, eris.Wrapf(err, "reliability: load source %s", sourceID)
		}
		entry := l.policy.Apply(*src, correctionID, delta)
		err = l.store.AppendReliability(ctx, &entry)
		if err == nil {
			return &entry, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return nil, eris.Wrapf(err, "reliability: append entry for %s", sourceID)
		}
		lastErr = err
	}
	return nil, eris.Wrapf(lastErr, "reliability: source %s kept changing", sourceID)
}
