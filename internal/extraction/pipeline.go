package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"engram/internal/buffer"
	"engram/internal/config"
	"engram/internal/llm"
	"engram/internal/model"
	"engram/internal/observability"
	"engram/internal/signal"
	"engram/internal/store"
)

// Pipeline runs the extraction and consolidation calls over a buffered
// window and writes the resulting memory items, entities, questions, and
// profile/identity updates back to the store. At most one run is ever
// in flight per Pipeline; a Trigger that arrives mid-run is coalesced into
// a single rerun once the current one finishes, rather than queued
// indefinitely.
type Pipeline struct {
	Store            *store.Store
	Buffer           *buffer.Buffer
	ExtractionLLM    llm.Client
	ConsolidationLLM llm.Client
	CompactionLLM    llm.Client
	Cfg              config.ExtractionConfig
	Log              *zerolog.Logger
	Now              func() time.Time

	// Metrics reports run durations; nil is a valid no-op value.
	Metrics interface {
		IncCounter(name string, labels map[string]string)
		ObserveHistogram(name string, value float64, labels map[string]string)
	}

	// IndexSync pushes a written item's content into the semantic/lexical
	// index so it becomes searchable without waiting on a batch Embed pass.
	// nil is a valid no-op value (degraded mode, index.NoopIndex).
	IndexSync func(ctx context.Context, ns, id, path, text string) error

	// OnExtracted is invoked after a successful (non-skipped, non-empty)
	// run, so the box builder can fold the new memories into the open box.
	// Errors from it are logged, never returned.
	OnExtracted func(ctx context.Context, ns string, ev model.ExtractionEvent)

	mu      sync.Mutex
	running bool
	pending bool
	idleSig chan struct{}
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Pipeline) logf(level zerolog.Level, format string, args ...any) {
	if p.Log == nil {
		return
	}
	p.Log.WithLevel(level).Msgf(format, args...)
}

// Trigger starts a run for namespace ns, or marks the in-flight run to be
// immediately rerun once it finishes if one is already running. It never
// blocks.
func (p *Pipeline) Trigger(ctx context.Context, ns string) {
	p.mu.Lock()
	if p.running {
		p.pending = true
		p.mu.Unlock()
		return
	}
	p.running = true
	p.idleSig = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(context.WithoutCancel(ctx), ns)
}

func (p *Pipeline) runLoop(ctx context.Context, ns string) {
	for {
		if err := p.runOnce(ctx, ns); err != nil {
			p.logf(zerolog.WarnLevel, "extraction: run failed: %v", err)
		}

		p.mu.Lock()
		if p.pending {
			p.pending = false
			p.mu.Unlock()
			continue
		}
		p.running = false
		sig := p.idleSig
		p.mu.Unlock()
		close(sig)
		return
	}
}

// WaitForExtractionIdle blocks until no extraction run is in flight for
// this Pipeline, or ctx is canceled.
func (p *Pipeline) WaitForExtractionIdle(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	sig := p.idleSig
	p.mu.Unlock()

	select {
	case <-sig:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runOnce performs a single extraction+consolidation pass over the
// buffer's current window. It never panics or returns an error the caller
// must act on beyond logging; partial progress (e.g. entities written but
// the LLM call for facts failed) is acceptable since every write is
// independently idempotent.
func (p *Pipeline) runOnce(ctx context.Context, ns string) error {
	start := time.Now()
	defer func() {
		if p.Metrics != nil {
			p.Metrics.ObserveHistogram("engram.extraction.duration_ms", float64(time.Since(start).Milliseconds()), map[string]string{"namespace": ns})
		}
	}()

	turns, err := p.Buffer.Turns(ctx)
	if err != nil {
		return fmt.Errorf("extraction: reading buffer: %w", err)
	}
	if len(turns) == 0 {
		return nil
	}

	now := p.now()
	fingerprint := WindowFingerprint(turns)
	meta, err := p.Store.ReadMeta(ctx, ns)
	if err != nil {
		return fmt.Errorf("extraction: reading meta: %w", err)
	}
	if meta == nil {
		meta = &store.Meta{}
	}
	if isDuplicateWindow(fingerprint, meta.LastWindowFingerprint, meta.LastWindowAt, now, p.Cfg.DedupeWindowMinutes) {
		p.logf(zerolog.DebugLevel, "extraction: skipping duplicate window")
		return p.Buffer.ClearAfterExtraction(ctx)
	}

	if p.ExtractionLLM == nil {
		p.logf(zerolog.DebugLevel, "extraction: no extraction model configured, skipping")
		return nil
	}

	entityNames, err := p.Store.ListEntityNames(ctx, ns)
	if err != nil {
		p.logf(zerolog.WarnLevel, "extraction: listing entity names: %v", err)
	}

	result, err := p.extract(ctx, turns, entityNames)
	if err != nil {
		return err
	}
	if result == nil {
		// Failed or malformed response; retry on the next trigger rather
		// than clearing the buffer and losing the window.
		return nil
	}

	result.Facts = capFacts(result.Facts, p.Cfg.MaxFactsPerRun)
	result.Entities = capEntities(result.Entities, p.Cfg.MaxEntitiesPerRun)
	result.Questions = capQuestions(result.Questions, p.Cfg.MaxQuestionsPerRun)
	result.ProfileUpdates = capUpdates(result.ProfileUpdates, p.Cfg.MaxProfileUpdatesPerRun)

	writtenIDs := p.consolidate(ctx, ns, result.Facts, now)
	p.syncIndex(ctx, ns, writtenIDs)
	p.writeEntities(ctx, ns, result.Entities)
	p.writeQuestions(ctx, ns, result.Questions, now)
	p.applyProfileUpdates(ctx, ns, result.ProfileUpdates, now)

	meta.LastWindowFingerprint = fingerprint
	meta.LastWindowAt = now.UTC().Format(time.RFC3339)
	if err := p.Store.WriteMeta(ctx, ns, meta); err != nil {
		p.logf(zerolog.WarnLevel, "extraction: writing meta: %v", err)
	}

	if archived, err := p.Store.SweepExpired(ctx, ns, now); err != nil {
		p.logf(zerolog.WarnLevel, "extraction: expiration sweep: %v", err)
	} else if len(archived) > 0 {
		p.logf(zerolog.DebugLevel, "extraction: archived %d expired items", len(archived))
	}

	if p.OnExtracted != nil && (len(writtenIDs) > 0 || len(result.Topics) > 0) {
		p.OnExtracted(ctx, ns, model.ExtractionEvent{
			Topics:    result.Topics,
			MemoryIDs: writtenIDs,
			Timestamp: now,
		})
	}

	return p.Buffer.ClearAfterExtraction(ctx)
}

func (p *Pipeline) extract(ctx context.Context, turns []model.Turn, entityNames []string) (*ExtractionResult, error) {
	msgs := buildExtractionMessages(turns, entityNames)
	res, err := p.ExtractionLLM.ChatCompletion(ctx, msgs, llm.Options{
		Operation: "extraction",
		Effort:    p.Cfg.ExtractionEffort,
	})
	if err != nil {
		return nil, fmt.Errorf("extraction: chat completion: %w", err)
	}
	if res == nil {
		p.logf(zerolog.WarnLevel, "extraction: model returned no result")
		return nil, nil
	}
	parsed, ok := ParseExtractionResult(res.Content)
	if !ok {
		p.logf(zerolog.WarnLevel, "extraction: model response failed schema validation")
		p.logf(zerolog.DebugLevel, "extraction: raw response: %s", observability.RedactJSON(json.RawMessage(res.Content)))
		return nil, nil
	}
	return &parsed, nil
}

// consolidate reconciles facts against the existing corpus and applies the
// resulting decisions, returning the ids of every item written.
func (p *Pipeline) consolidate(ctx context.Context, ns string, facts []ExtractedFact, now time.Time) []string {
	if len(facts) == 0 {
		return nil
	}

	existing, err := p.Store.ListAll(ctx, ns)
	if err != nil {
		p.logf(zerolog.WarnLevel, "extraction: listing existing items: %v", err)
		existing = nil
	}

	decisions := p.decideConsolidation(ctx, facts, existing)

	byID := make(map[string]*model.MemoryItem, len(existing))
	for _, it := range existing {
		byID[it.ID] = it
	}

	// Apply every non-INVALIDATE decision first, then INVALIDATEs last:
	// a reader racing this batch must never see a replacement item's old
	// predecessor disappear before the replacement itself exists (§5).
	var written []string
	var invalidates []int
	for i, fact := range facts {
		d, ok := decisions[i]
		if !ok {
			d = ConsolidationDecision{FactIndex: i, Action: ActionAdd}
		}
		if d.Action == ActionInvalidate {
			invalidates = append(invalidates, i)
			continue
		}
		id, ok := p.applyDecision(ctx, ns, fact, d, byID, now)
		if ok {
			written = append(written, id)
		}
	}
	for _, i := range invalidates {
		id, ok := p.applyDecision(ctx, ns, facts[i], decisions[i], byID, now)
		if ok {
			written = append(written, id)
		}
	}
	return written
}

func (p *Pipeline) decideConsolidation(ctx context.Context, facts []ExtractedFact, existing []*model.MemoryItem) map[int]ConsolidationDecision {
	out := map[int]ConsolidationDecision{}
	if p.ConsolidationLLM == nil {
		return out // every fact defaults to add
	}
	msgs := buildConsolidationMessages(facts, existing)
	res, err := p.ConsolidationLLM.ChatCompletion(ctx, msgs, llm.Options{
		Operation: "consolidation",
		Effort:    p.Cfg.ConsolidationEffort,
	})
	if err != nil {
		p.logf(zerolog.WarnLevel, "extraction: consolidation chat completion: %v", err)
		return out
	}
	if res == nil {
		p.logf(zerolog.WarnLevel, "extraction: consolidation model returned no result, defaulting every fact to add")
		return out
	}
	parsed, ok := ParseConsolidationResult(res.Content, len(facts))
	if !ok {
		p.logf(zerolog.WarnLevel, "extraction: consolidation response failed schema validation, defaulting every fact to add")
		p.logf(zerolog.DebugLevel, "extraction: raw response: %s", observability.RedactJSON(json.RawMessage(res.Content)))
		return out
	}
	for _, d := range parsed.Decisions {
		out[d.FactIndex] = d
	}
	return out
}

func (p *Pipeline) applyDecision(ctx context.Context, ns string, fact ExtractedFact, d ConsolidationDecision, byID map[string]*model.MemoryItem, now time.Time) (string, bool) {
	switch d.Action {
	case ActionSkip:
		return "", false

	case ActionInvalidate:
		existing, ok := byID[d.ExistingID]
		if !ok {
			return p.addFact(ctx, ns, fact, now)
		}
		if err := p.Store.ApplyInvalidate(ctx, ns, existing); err != nil {
			p.logf(zerolog.WarnLevel, "extraction: invalidate %s: %v", existing.ID, err)
			return "", false
		}
		return existing.ID, true

	case ActionUpdate:
		existing, ok := byID[d.ExistingID]
		if !ok {
			return p.addFact(ctx, ns, fact, now)
		}
		body := d.MergedBody
		if body == "" {
			body = fact.Content
		}
		if err := p.Store.ApplyUpdate(ctx, ns, existing, body, now); err != nil {
			p.logf(zerolog.WarnLevel, "extraction: update %s: %v", existing.ID, err)
			return "", false
		}
		return existing.ID, true

	case ActionMerge:
		existing, ok := byID[d.ExistingID]
		if !ok {
			return p.addFact(ctx, ns, fact, now)
		}
		body := d.MergedBody
		if body == "" {
			body = existing.Body + "\n\n" + fact.Content
		}
		merged := p.newItem(fact, ns, now)
		merged.Body = body
		if err := p.Store.ApplyMerge(ctx, ns, existing, merged); err != nil {
			p.logf(zerolog.WarnLevel, "extraction: merge into %s: %v", existing.ID, err)
			return "", false
		}
		byID[merged.ID] = merged
		return merged.ID, true

	default: // add
		return p.addFact(ctx, ns, fact, now)
	}
}

func (p *Pipeline) addFact(ctx context.Context, ns string, fact ExtractedFact, now time.Time) (string, bool) {
	item := p.newItem(fact, ns, now)
	if err := p.Store.WriteItem(ctx, ns, item); err != nil {
		p.logf(zerolog.WarnLevel, "extraction: writing item: %v", err)
		return "", false
	}
	return item.ID, true
}

func (p *Pipeline) newItem(fact ExtractedFact, ns string, now time.Time) *model.MemoryItem {
	item := &model.MemoryItem{
		ID:         uuid.NewString(),
		Category:   model.Category(fact.Category),
		Created:    now,
		Updated:    now,
		Source:     fact.Source,
		Confidence: fact.Confidence,
		Tags:       fact.Tags,
		EntityRef:  fact.EntityRef,
		Status:     model.StatusActive,
		Namespace:  ns,
		Body:       fact.Content,
	}
	item.Normalize()
	if item.Category == model.CategoryCommitment && item.ExpiresAt == nil && p.Cfg.CommitmentDecayDays > 0 {
		exp := now.Add(time.Duration(p.Cfg.CommitmentDecayDays) * 24 * time.Hour)
		item.ExpiresAt = &exp
	}
	item.MemoryKind = model.MemoryKind(signal.ClassifyMemoryKind(fact.Content, fact.Tags, fact.Category))
	return item
}

// syncIndex pushes every item written this run into the configured index so
// it is searchable immediately, rather than waiting on a batch Embed pass.
func (p *Pipeline) syncIndex(ctx context.Context, ns string, ids []string) {
	if p.IndexSync == nil {
		return
	}
	for _, id := range ids {
		item, err := p.Store.ReadItem(ctx, ns, id)
		if err != nil || item == nil {
			continue
		}
		if err := p.IndexSync(ctx, ns, item.ID, item.ID, item.Body); err != nil {
			p.logf(zerolog.WarnLevel, "extraction: syncing index for %s: %v", item.ID, err)
		}
	}
}

func (p *Pipeline) writeEntities(ctx context.Context, ns string, entities []ExtractedEntity) {
	for _, e := range entities {
		entity := &model.Entity{Name: e.Name, Type: model.EntityType(e.Type), Facts: e.Facts}
		if err := p.Store.WriteEntity(ctx, ns, entity); err != nil {
			p.logf(zerolog.WarnLevel, "extraction: writing entity %s: %v", e.Name, err)
		}
	}
}

func (p *Pipeline) writeQuestions(ctx context.Context, ns string, questions []ExtractedQuestion, now time.Time) {
	for _, q := range questions {
		question := &model.Question{
			ID:       uuid.NewString(),
			Question: q.Question,
			Context:  q.Context,
			Priority: q.Priority,
			Created:  now,
		}
		if err := p.Store.WriteQuestion(ctx, ns, question); err != nil {
			p.logf(zerolog.WarnLevel, "extraction: writing question: %v", err)
		}
	}
}

func (p *Pipeline) applyProfileUpdates(ctx context.Context, ns string, updates []ProfileUpdate, now time.Time) {
	for _, u := range updates {
		var err error
		switch u.Section {
		case "identity":
			err = p.Store.AppendIdentity(ctx, ns, u.Text, now)
		default:
			err = p.Store.AppendProfile(ctx, ns, u.Text, now)
		}
		if err != nil {
			p.logf(zerolog.WarnLevel, "extraction: appending %s update: %v", u.Section, err)
		}
	}
	p.maybeCompact(ctx, ns, "profile.md", p.Cfg.ProfileByteBudget)
	p.maybeCompact(ctx, ns, "IDENTITY.md", p.Cfg.IdentityByteBudget)
}

// maybeCompact asks the compaction model to condense a bootstrap document
// once it exceeds budget, replacing the on-disk body with the rewritten
// one. Failures leave the document as-is; compaction is a quality
// improvement, not a correctness requirement.
func (p *Pipeline) maybeCompact(ctx context.Context, ns, name string, budget int) {
	if p.CompactionLLM == nil || budget <= 0 {
		return
	}
	body, err := p.Store.ReadDoc(ctx, ns, name)
	if err != nil || len(body) <= budget {
		return
	}
	msgs := buildCompactionMessages(name, body)
	res, err := p.CompactionLLM.ChatCompletion(ctx, msgs, llm.Options{Operation: "compaction"})
	if err != nil || res == nil || res.Content == "" {
		if err != nil {
			p.logf(zerolog.WarnLevel, "extraction: compacting %s: %v", name, err)
		}
		return
	}
	if err := p.Store.ReplaceDoc(ctx, ns, name, res.Content); err != nil {
		p.logf(zerolog.WarnLevel, "extraction: replacing %s after compaction: %v", name, err)
	}
}

// capFacts truncates to max, keeping the highest-confidence facts when
// excess must be dropped (§4.2 Caps).
func capFacts(in []ExtractedFact, max int) []ExtractedFact {
	if max <= 0 || len(in) <= max {
		return in
	}
	sorted := append([]ExtractedFact{}, in...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Confidence > sorted[j].Confidence })
	return sorted[:max]
}

func capEntities(in []ExtractedEntity, max int) []ExtractedEntity {
	if max <= 0 || len(in) <= max {
		return in
	}
	return in[:max]
}

// capQuestions truncates to max, keeping the highest-priority questions.
func capQuestions(in []ExtractedQuestion, max int) []ExtractedQuestion {
	if max <= 0 || len(in) <= max {
		return in
	}
	sorted := append([]ExtractedQuestion{}, in...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority > sorted[j].Priority })
	return sorted[:max]
}

func capUpdates(in []ProfileUpdate, max int) []ProfileUpdate {
	if max <= 0 || len(in) <= max {
		return in
	}
	return in[:max]
}
