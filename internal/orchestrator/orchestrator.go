package orchestrator

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"engram/internal/acl"
	"engram/internal/boxes"
	"engram/internal/buffer"
	"engram/internal/config"
	"engram/internal/embedding"
	"engram/internal/extraction"
	"engram/internal/index"
	"engram/internal/model"
	"engram/internal/observability"
	"engram/internal/retrieval"
	obs "engram/internal/retrieval/obsutil"
	"engram/internal/retrieval/rerankcache"
	"engram/internal/store"
	"engram/internal/store/pgindex"
)

// tracer emits the spans documented for ProcessTurn/Recall; a no-op
// implementation is installed automatically when observability.InitOTel
// hasn't configured a real exporter.
var tracer = otel.Tracer("engram")

// Orchestrator composes every collaborator into the two operations the
// daemon and CLI expose: recording a turn and recalling memories. It owns
// no persistent state itself; the Store, Buffer, and Builder already
// persist everything they need.
type Orchestrator struct {
	Store    *store.Store
	Buffer   *buffer.Buffer
	Pipeline *extraction.Pipeline
	Boxes    *boxes.Builder
	Planner  *retrieval.Planner

	Cfg config.Config
	Log *zerolog.Logger

	// DefaultTargetNamespace is where extracted memories land when a turn
	// doesn't name one explicitly; see ProcessTurn.
	DefaultTargetNamespace string
}

// New assembles an Orchestrator from a loaded Config. now defaults to
// time.Now; passing a fixed clock is how tests get determinism end to end.
func New(ctx context.Context, cfg config.Config, log *zerolog.Logger, now func() time.Time) (*Orchestrator, error) {
	if now == nil {
		now = time.Now
	}

	metrics := obs.NewOtelMetrics()

	st, err := store.New(store.Config{
		Dir:               cfg.Store.MemoryDir,
		NamespacesEnabled: cfg.Store.NamespacesEnabled,
		DefaultNamespace:  cfg.Store.DefaultNamespace,
		SharedNamespace:   cfg.Store.SharedNamespace,
	}, log)
	if err != nil {
		return nil, err
	}

	buf, err := buffer.New(st, buffer.Config{
		Mode:               buffer.TriggerMode(cfg.Buffer.TriggerMode),
		MaxTurns:           cfg.Buffer.MaxTurns,
		MaxMinutes:         cfg.Buffer.MaxMinutes,
		HighSignalPatterns: cfg.Buffer.HighSignalPatterns,
	}, log, now)
	if err != nil {
		return nil, err
	}

	httpClient := observability.NewHTTPClient(&http.Client{Timeout: time.Duration(cfg.LLM.TimeoutSeconds) * time.Second})

	extractionLLM, err := resolveChain(ctx, cfg.LLM.ExtractionChain, cfg.LLM, httpClient, log)
	if err != nil {
		return nil, err
	}
	consolidationLLM, err := resolveChain(ctx, cfg.LLM.ConsolidationChain, cfg.LLM, httpClient, log)
	if err != nil {
		return nil, err
	}
	rerankLLM, err := resolveChain(ctx, cfg.LLM.RerankChain, cfg.LLM, httpClient, log)
	if err != nil {
		return nil, err
	}

	boxBuilder := &boxes.Builder{
		Store: st,
		Cfg: boxes.Config{
			TopicShiftThreshold:   cfg.Box.TopicShiftThreshold,
			TimeGapMinutes:        cfg.Box.TimeGapMinutes,
			MaxMemories:           cfg.Box.MaxMemories,
			TraceOverlapThreshold: cfg.Box.TraceOverlapThreshold,
		},
		Log:     log,
		Now:     now,
		Metrics: metrics,
	}

	pipeline := &extraction.Pipeline{
		Store:            st,
		Buffer:           buf,
		ExtractionLLM:    extractionLLM,
		ConsolidationLLM: consolidationLLM,
		CompactionLLM:    consolidationLLM,
		Cfg:              cfg.Extraction,
		Log:              log,
		Now:              now,
		Metrics:          metrics,
		OnExtracted: func(ctx context.Context, ns string, ev model.ExtractionEvent) {
			if err := boxBuilder.Handle(ctx, ns, ev); err != nil && log != nil {
				log.Warn().Err(err).Str("namespace", ns).Msg("orchestrator: folding extraction event into open box")
			}
		},
	}

	idx, err := buildIndex(ctx, cfg, st, log)
	if err != nil {
		return nil, err
	}
	pipeline.IndexSync = indexSyncFunc(idx)

	cache, err := rerankcache.New(ctx, rerankcache.Config{
		Enabled:               cfg.RerankCache.Enabled,
		Addr:                  cfg.RerankCache.Addr,
		Password:              cfg.RerankCache.Password,
		DB:                    cfg.RerankCache.DB,
		TLSInsecureSkipVerify: cfg.RerankCache.TLSInsecureSkipVerify,
	}, time.Duration(cfg.RerankCache.TTLSeconds)*time.Second, log)
	if err != nil {
		return nil, err
	}

	var policy acl.Policy = acl.AllowAll{}
	if cfg.Store.NamespacesEnabled {
		policy = acl.DefaultPolicy{SharedNamespace: cfg.Store.SharedNamespace}
	}

	var reranker retrieval.Reranker
	if rerankLLM != nil {
		reranker = retrieval.RerankerFunc(func(ctx context.Context, query string, candidates []retrieval.Candidate, m, timeoutMs int) []retrieval.Candidate {
			return retrieval.Rerank(ctx, rerankLLM, query, candidates, m, timeoutMs)
		})
	}

	planner := &retrieval.Planner{
		Store:        st,
		Negatives:    st,
		Access:       st,
		Statuses:     retrieval.NewStatusCache(),
		StatusSource: st,
		Index:        idx,
		ACL:          policy,
		Cache:        cache,
		RerankLLM:    reranker,
		Weights: retrieval.Weights{
			RecencyWeight:                 cfg.Retrieval.RecencyWeight,
			RecencyTauDays:                cfg.Retrieval.RecencyTauDays,
			BoostAccessCount:              cfg.Retrieval.BoostAccessCount,
			NegativeExamplesPenaltyPerHit: cfg.Retrieval.NegativeExamplesPenaltyPerHit,
			NegativeExamplesPenaltyCap:    cfg.Retrieval.NegativeExamplesPenaltyCap,
			IntentRoutingBoost:            cfg.Retrieval.IntentRoutingBoost,
			QueryExpansionMaxQueries:      cfg.Retrieval.QueryExpansionMaxQueries,
			QueryExpansionMinTokenLen:     cfg.Retrieval.QueryExpansionMinTokenLen,
			RerankEnabled:                 cfg.Retrieval.RerankEnabled,
			RerankMaxCandidates:           cfg.Retrieval.RerankMaxCandidates,
			RerankTimeoutMs:               cfg.Retrieval.RerankTimeoutMs,
			RerankCacheTTL:                time.Duration(cfg.RerankCache.TTLSeconds) * time.Second,
			NamespaceFanoutK:              cfg.Retrieval.NamespaceFanoutK,
			ArtifactMax:                   cfg.Retrieval.ArtifactMax,
			DefaultNamespace:              cfg.Store.DefaultNamespace,
			SharedNamespace:               cfg.Store.SharedNamespace,
			RecallNamespaces:              cfg.Store.DefaultRecallNamespaces,
		},
		Log:     log,
		Now:     now,
		Metrics: metrics,
	}

	return &Orchestrator{
		Store:                  st,
		Buffer:                 buf,
		Pipeline:               pipeline,
		Boxes:                  boxBuilder,
		Planner:                planner,
		Cfg:                    cfg,
		Log:                    log,
		DefaultTargetNamespace: cfg.Store.DefaultNamespace,
	}, nil
}

// buildIndex wires the configured semantic index. Qdrant is preferred when
// enabled; when it isn't reachable, an enabled Postgres full-text shadow
// index steps in as the lexical candidate source; with an embeddings
// endpoint configured the local embedding-table fallback takes over;
// otherwise retrieval runs with index.NoopIndex and relies on the local
// scoring pass alone.
func buildIndex(ctx context.Context, cfg config.Config, st *store.Store, log *zerolog.Logger) (index.Index, error) {
	embed := func(ctx context.Context, texts []string) ([][]float32, error) {
		return embedding.EmbedText(ctx, cfg.Embedding, texts)
	}
	if cfg.Index.Enabled {
		qd, err := index.NewQdrant(cfg.Index.DSN, cfg.Index.Dimensions, cfg.Index.Metric, embed)
		if err != nil {
			if log != nil {
				log.Warn().Err(err).Msg("orchestrator: qdrant unavailable, degrading to fallback index")
			}
		} else {
			return qd, nil
		}
	}
	if cfg.PGIndex.Enabled {
		pg, err := pgindex.New(ctx, cfg.PGIndex.DSN)
		if err != nil {
			if log != nil {
				log.Warn().Err(err).Msg("orchestrator: postgres fts index unavailable, degrading to fallback index")
			}
		} else {
			return pg, nil
		}
	}
	if cfg.Embedding.BaseURL != "" {
		return index.NewEmbedFallback(st, embed), nil
	}
	return index.NoopIndex{}, nil
}

// upserter is satisfied by every concrete index.Index except NoopIndex;
// indexSyncFunc degrades to a no-op when idx doesn't implement it.
type upserter interface {
	Upsert(ctx context.Context, collection, id, path, text string) error
}

// indexSyncFunc adapts idx into the extraction pipeline's IndexSync
// collaborator, keeping the semantic/lexical index current as items are
// written instead of waiting on a batch Embed pass.
func indexSyncFunc(idx index.Index) func(ctx context.Context, ns, id, path, text string) error {
	up, ok := idx.(upserter)
	if !ok {
		return nil
	}
	return func(ctx context.Context, ns, id, path, text string) error {
		return up.Upsert(ctx, ns, id, path, text)
	}
}

// ProcessTurn feeds a turn into the buffer and, if the trigger engine
// decides the window is worth extracting, kicks off an asynchronous
// extraction run targeting ns. Ingestion never fails the caller: a buffer
// persistence error is logged and swallowed, matching the daemon's
// "recording a turn must never block the conversation" contract.
func (o *Orchestrator) ProcessTurn(ctx context.Context, ns string, turn model.Turn) {
	ctx, span := tracer.Start(ctx, "engram.process_turn")
	defer span.End()

	if err := o.Store.AppendTranscript(ctx, ns, turn); err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("orchestrator: appending transcript")
	}

	decision, err := o.Buffer.AddTurn(ctx, turn)
	if err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("orchestrator: buffering turn")
		return
	}
	if decision == buffer.KeepBuffering {
		return
	}
	target := ns
	if target == "" {
		target = o.DefaultTargetNamespace
	}
	o.Pipeline.Trigger(ctx, target)
}

// Recall delegates straight to the retrieval planner, which never errors.
func (o *Orchestrator) Recall(ctx context.Context, principal, query string, namespaces []string) retrieval.Result {
	ctx, span := tracer.Start(ctx, "engram.recall")
	defer span.End()
	return o.Planner.Recall(ctx, principal, query, namespaces)
}

// WaitForExtractionIdle blocks until no extraction run is in flight.
func (o *Orchestrator) WaitForExtractionIdle(ctx context.Context) error {
	return o.Pipeline.WaitForExtractionIdle(ctx)
}

// FlushBox forces the current open box for ns to seal, used by an explicit
// CLI flush and by graceful shutdown.
func (o *Orchestrator) FlushBox(ctx context.Context, ns string) error {
	return o.Boxes.Flush(ctx, ns, model.SealForced)
}
