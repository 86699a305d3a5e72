package boxes

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"engram/internal/model"
)

// Config tunes the open-box seal thresholds and the trace weaver's
// overlap threshold (§4.5).
type Config struct {
	TopicShiftThreshold   float64
	TimeGapMinutes        int
	MaxMemories           int
	TraceOverlapThreshold float64
}

// Store is the persistence contract the builder needs: the single
// per-namespace open-box accumulator, sealed box files, and the
// cross-session trace index.
type Store interface {
	ReadOpenBox(ctx context.Context, ns string) (*model.OpenBox, error)
	WriteOpenBox(ctx context.Context, ns string, ob *model.OpenBox) error
	ClearOpenBox(ctx context.Context, ns string) error
	WriteBox(ctx context.Context, ns string, b *model.Box) error
	ReadTraces(ctx context.Context, ns string) (*model.TraceIndex, error)
	WriteTraces(ctx context.Context, ns string, ti *model.TraceIndex) error
}

// Builder folds extraction events into the open box for a namespace,
// sealing and minting/reusing traces according to the seal-decision table
// in §4.5. A Builder is safe for sequential use per namespace; the
// orchestrator serializes calls through the same buffer/pipeline lock that
// guards a single memory root.
type Builder struct {
	Store Store
	Cfg   Config
	Log   *zerolog.Logger
	Now   func() time.Time

	// Metrics reports sealed-box counts; nil is a valid no-op value.
	Metrics interface {
		IncCounter(name string, labels map[string]string)
		ObserveHistogram(name string, value float64, labels map[string]string)
	}
}

func (b *Builder) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

func (b *Builder) logf(format string, args ...any) {
	if b.Log == nil {
		return
	}
	b.Log.Warn().Msgf(format, args...)
}

// Handle folds a single extraction event into the namespace's open box,
// sealing and opening boxes per the seal-decision table. It never returns
// an error to a caller that can't act on it meaningfully; callers that
// want failures surfaced should check the returned error themselves (the
// orchestrator logs and discards it).
func (b *Builder) Handle(ctx context.Context, ns string, ev model.ExtractionEvent) error {
	topics := lowercaseAll(ev.Topics)
	now := ev.Timestamp
	if now.IsZero() {
		now = b.now()
	}

	open, err := b.Store.ReadOpenBox(ctx, ns)
	if err != nil {
		return fmt.Errorf("boxes: reading open box: %w", err)
	}

	if open == nil {
		return b.openNew(ctx, ns, topics, ev.MemoryIDs, now)
	}

	if b.Cfg.TimeGapMinutes > 0 && now.Sub(open.LastActivityAt) >= time.Duration(b.Cfg.TimeGapMinutes)*time.Minute {
		if err := b.seal(ctx, ns, open, model.SealTimeGap, now); err != nil {
			return err
		}
		return b.openNew(ctx, ns, topics, ev.MemoryIDs, now)
	}

	if len(topics) > 0 && 1-jaccard(open.Topics, topics) > b.Cfg.TopicShiftThreshold {
		if err := b.seal(ctx, ns, open, model.SealTopicShift, now); err != nil {
			return err
		}
		return b.openNew(ctx, ns, topics, ev.MemoryIDs, now)
	}

	mergedIDs := mergeTopics(open.MemoryIDs, ev.MemoryIDs)
	mergedTopics := mergeTopics(open.Topics, topics)
	if b.Cfg.MaxMemories > 0 && len(mergedIDs) > b.Cfg.MaxMemories {
		open.Topics = mergedTopics
		open.MemoryIDs = mergedIDs
		open.LastActivityAt = now
		return b.seal(ctx, ns, open, model.SealMaxMemories, now)
	}

	open.Topics = mergedTopics
	open.MemoryIDs = mergedIDs
	open.LastActivityAt = now
	return b.Store.WriteOpenBox(ctx, ns, open)
}

// Flush seals the current open box (if any) with SealForced or
// SealFlush, used by an explicit CLI flush and by graceful shutdown.
func (b *Builder) Flush(ctx context.Context, ns string, reason model.SealReason) error {
	open, err := b.Store.ReadOpenBox(ctx, ns)
	if err != nil {
		return fmt.Errorf("boxes: reading open box: %w", err)
	}
	if open == nil {
		return nil
	}
	return b.seal(ctx, ns, open, reason, b.now())
}

func (b *Builder) openNew(ctx context.Context, ns string, topics, memoryIDs []string, now time.Time) error {
	open := &model.OpenBox{
		ID:             uuid.NewString(),
		CreatedAt:      now,
		LastActivityAt: now,
		Topics:         topics,
		MemoryIDs:      memoryIDs,
	}
	if b.Cfg.MaxMemories > 0 && len(open.MemoryIDs) > b.Cfg.MaxMemories {
		return b.seal(ctx, ns, open, model.SealMaxMemories, now)
	}
	return b.Store.WriteOpenBox(ctx, ns, open)
}

func (b *Builder) seal(ctx context.Context, ns string, open *model.OpenBox, reason model.SealReason, now time.Time) error {
	box := &model.Box{
		ID:         open.ID,
		MemoryKind: "box",
		CreatedAt:  open.CreatedAt,
		SealedAt:   now,
		SealReason: reason,
		Topics:     open.Topics,
		MemoryIDs:  open.MemoryIDs,
	}

	ti, err := b.Store.ReadTraces(ctx, ns)
	if err != nil {
		b.logf("boxes: reading trace index: %v", err)
		ti = model.NewTraceIndex()
	}
	if ti == nil {
		ti = model.NewTraceIndex()
	}
	box.TraceID = assignTrace(ti, box.ID, box.Topics, b.Cfg.TraceOverlapThreshold)
	if err := b.Store.WriteTraces(ctx, ns, ti); err != nil {
		b.logf("boxes: writing trace index: %v", err)
	}

	if err := b.Store.WriteBox(ctx, ns, box); err != nil {
		return fmt.Errorf("boxes: writing sealed box: %w", err)
	}
	if b.Metrics != nil {
		b.Metrics.IncCounter("engram.box.sealed_total", map[string]string{"reason": string(reason)})
	}
	return b.Store.ClearOpenBox(ctx, ns)
}

func lowercaseAll(in []string) []string {
	if len(in) == 0 {
		return in
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
