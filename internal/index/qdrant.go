package index

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// payloadIDField stores the caller's logical id in the point payload.
// Qdrant only accepts UUIDs or positive integers as point ids, so
// non-UUID ids are mapped through a deterministic SHA1 UUID and the
// original id is recovered from this field on search.
const payloadIDField = "_original_id"

// EmbedFunc turns a batch of query strings into dense vectors, one per
// input, in order. The retrieval planner calls Qdrant with text queries;
// this closure is how those become vectors without this package depending
// on any particular embedding provider.
type EmbedFunc func(ctx context.Context, texts []string) ([][]float32, error)

// Qdrant is an Index backed by a Qdrant collection per namespace.
type Qdrant struct {
	client    *qdrant.Client
	embed     EmbedFunc
	dimension int
	metric    string
}

// NewQdrant dials a Qdrant instance over its gRPC API (default port 6334).
// An API key can be supplied as a DSN query parameter:
// "http://localhost:6334?api_key=...".
func NewQdrant(dsn string, dimensions int, metric string, embed EmbedFunc) (*Qdrant, error) {
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("index: parse qdrant dsn: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := parsed.Port()
	if port == "" {
		port = "6334"
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("index: invalid qdrant port: %w", err)
	}
	cfg := &qdrant.Config{Host: host, Port: portNum}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("index: create qdrant client: %w", err)
	}
	return &Qdrant{
		client:    client,
		embed:     embed,
		dimension: dimensions,
		metric:    strings.ToLower(strings.TrimSpace(metric)),
	}, nil
}

func (q *Qdrant) ensureCollection(ctx context.Context, collection string) error {
	exists, err := q.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("index: check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	var distance qdrant.Distance
	switch q.metric {
	case "l2", "euclidean":
		distance = qdrant.Distance_Euclid
	case "ip", "dot":
		distance = qdrant.Distance_Dot
	case "manhattan":
		distance = qdrant.Distance_Manhattan
	default:
		distance = qdrant.Distance_Cosine
	}
	if q.dimension <= 0 {
		return fmt.Errorf("index: qdrant requires dimensions > 0")
	}
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dimension),
			Distance: distance,
		}),
	})
	if err != nil {
		return fmt.Errorf("index: create collection: %w", err)
	}
	return nil
}

func pointIDFor(id string) (string, bool) {
	if _, err := uuid.Parse(id); err == nil {
		return id, false
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String(), true
}

// Upsert embeds a single document and stores it under collection.
func (q *Qdrant) Upsert(ctx context.Context, collection, id, path, text string) error {
	if err := q.ensureCollection(ctx, collection); err != nil {
		return err
	}
	vectors, err := q.embed(ctx, []string{text})
	if err != nil {
		return fmt.Errorf("index: embed document %s: %w", id, err)
	}
	if len(vectors) == 0 {
		return fmt.Errorf("index: embedding provider returned no vector for %s", id)
	}

	uuidStr, remapped := pointIDFor(id)
	payload := map[string]any{"path": path, "snippet": snippetOf(text)}
	if remapped {
		payload[payloadIDField] = id
	}

	_, err = q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(uuidStr),
			Vectors: qdrant.NewVectorsDense(vectors[0]),
			Payload: qdrant.NewValueMap(payload),
		}},
	})
	return err
}

// Delete removes a document's point from collection.
func (q *Qdrant) Delete(ctx context.Context, collection, id string) error {
	uuidStr, _ := pointIDFor(id)
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points:         qdrant.NewPointsSelector(qdrant.NewIDUUID(uuidStr)),
	})
	return err
}

// Search embeds query and returns the maxResults nearest points in
// collection, satisfying the Index interface.
func (q *Qdrant) Search(ctx context.Context, query string, collection string, maxResults int) ([]Result, error) {
	exists, err := q.client.CollectionExists(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("index: check collection exists: %w", err)
	}
	if !exists {
		return nil, nil
	}
	if maxResults <= 0 {
		maxResults = 10
	}
	vectors, err := q.embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("index: embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, nil
	}

	limit := uint64(maxResults)
	hits, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQueryDense(vectors[0]),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("index: query: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		id := hit.Id.GetUuid()
		if id == "" {
			id = hit.Id.String()
		}
		var path, snippet string
		if hit.Payload != nil {
			if v, ok := hit.Payload[payloadIDField]; ok {
				id = v.GetStringValue()
			}
			if v, ok := hit.Payload["path"]; ok {
				path = v.GetStringValue()
			}
			if v, ok := hit.Payload["snippet"]; ok {
				snippet = v.GetStringValue()
			}
		}
		results = append(results, Result{
			DocID:   id,
			Path:    path,
			Snippet: snippet,
			Score:   float64(hit.Score),
		})
	}
	return results, nil
}

// Update is a no-op for Qdrant: documents are pushed via Upsert as the
// store writes them rather than swept in a batch.
func (q *Qdrant) Update(ctx context.Context) error { return nil }

// Embed ensures collection exists in Qdrant. It does not re-index any
// documents; documents reach the collection only through Upsert.
func (q *Qdrant) Embed(ctx context.Context, collection string) error {
	return q.ensureCollection(ctx, collection)
}

// Close releases the underlying gRPC connection.
func (q *Qdrant) Close() error {
	return q.client.Close()
}

func snippetOf(text string) string {
	const max = 280
	if len(text) <= max {
		return text
	}
	return text[:max]
}
