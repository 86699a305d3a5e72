package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"engram/internal/model"
)

// statePath resolves a state-file name beneath a namespace's state/
// directory.
func (s *Store) statePath(ns, name string) (string, error) {
	root, err := s.namespaceRoot(ns)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "state", name), nil
}

func readJSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return fsync(path, data)
}

// stateMu guards the in-process state-file writes of every Store in the
// process; cross-file writes are not transactional but a single file is
// never written concurrently.
var stateMu sync.Mutex

// ReadBufferState implements the buffer package's Store contract
// structurally (same method set, no import needed — buffer depends only
// on engram/internal/model).
func (s *Store) ReadBufferState(ctx context.Context) (*model.BufferState, error) {
	path, err := s.statePath(s.cfg.DefaultNamespace, "buffer.json")
	if err != nil {
		return nil, err
	}
	var st model.BufferState
	if err := readJSON(path, &st); err != nil {
		return nil, fmt.Errorf("store: reading buffer state: %w", err)
	}
	return &st, nil
}

func (s *Store) WriteBufferState(ctx context.Context, state *model.BufferState) error {
	path, err := s.statePath(s.cfg.DefaultNamespace, "buffer.json")
	if err != nil {
		return err
	}
	stateMu.Lock()
	defer stateMu.Unlock()
	return writeJSON(path, state)
}

// Meta is small process-wide bookkeeping (extraction fingerprints,
// cooldown markers).
type Meta struct {
	LastWindowFingerprint string            `json:"lastWindowFingerprint"`
	LastWindowAt          string            `json:"lastWindowAt"`
	ProviderCooldowns     map[string]string `json:"providerCooldowns,omitempty"`
}

func (s *Store) ReadMeta(ctx context.Context, ns string) (*Meta, error) {
	path, err := s.statePath(ns, "meta.json")
	if err != nil {
		return nil, err
	}
	var m Meta
	if err := readJSON(path, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) WriteMeta(ctx context.Context, ns string, m *Meta) error {
	path, err := s.statePath(ns, "meta.json")
	if err != nil {
		return err
	}
	stateMu.Lock()
	defer stateMu.Unlock()
	return writeJSON(path, m)
}

// ReadOpenBox / WriteOpenBox persist the single open-box accumulator.
func (s *Store) ReadOpenBox(ctx context.Context, ns string) (*model.OpenBox, error) {
	path, err := s.statePath(ns, "open-box.json")
	if err != nil {
		return nil, err
	}
	var ob model.OpenBox
	if err := readJSON(path, &ob); err != nil {
		return nil, err
	}
	if ob.ID == "" {
		return nil, nil
	}
	return &ob, nil
}

func (s *Store) WriteOpenBox(ctx context.Context, ns string, ob *model.OpenBox) error {
	path, err := s.statePath(ns, "open-box.json")
	if err != nil {
		return err
	}
	stateMu.Lock()
	defer stateMu.Unlock()
	return writeJSON(path, ob)
}

func (s *Store) ClearOpenBox(ctx context.Context, ns string) error {
	path, err := s.statePath(ns, "open-box.json")
	if err != nil {
		return err
	}
	stateMu.Lock()
	defer stateMu.Unlock()
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ReadTraces / WriteTraces persist the cross-session trace index.
func (s *Store) ReadTraces(ctx context.Context, ns string) (*model.TraceIndex, error) {
	path, err := s.statePath(ns, "traces.json")
	if err != nil {
		return nil, err
	}
	ti := model.NewTraceIndex()
	if err := readJSON(path, ti); err != nil {
		return nil, err
	}
	return ti, nil
}

func (s *Store) WriteTraces(ctx context.Context, ns string, ti *model.TraceIndex) error {
	path, err := s.statePath(ns, "traces.json")
	if err != nil {
		return err
	}
	stateMu.Lock()
	defer stateMu.Unlock()
	return writeJSON(path, ti)
}

// LastRecall is a bounded (50-entry) ring of recent recall impressions.
type LastRecall struct {
	Impressions []model.Impression `json:"impressions"`
}

const maxLastRecallEntries = 50

// RecordImpression appends impression to the bounded last_recall.json ring
// and to the append-only recall_impressions.jsonl log. Raw query text is
// never stored in either file.
func (s *Store) RecordImpression(ctx context.Context, ns string, impression model.Impression) error {
	path, err := s.statePath(ns, "last_recall.json")
	if err != nil {
		return err
	}
	stateMu.Lock()
	defer stateMu.Unlock()

	var lr LastRecall
	if err := readJSON(path, &lr); err != nil {
		return err
	}
	lr.Impressions = append(lr.Impressions, impression)
	if len(lr.Impressions) > maxLastRecallEntries {
		lr.Impressions = lr.Impressions[len(lr.Impressions)-maxLastRecallEntries:]
	}
	if err := writeJSON(path, &lr); err != nil {
		return err
	}

	logPath, err := s.statePath(ns, "recall_impressions.jsonl")
	if err != nil {
		return err
	}
	return appendJSONL(logPath, impression)
}

func appendJSONL(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	if _, err := w.WriteString("\n"); err != nil {
		return err
	}
	return w.Flush()
}

// AccessCounts derives per-item recall counts from the bounded last-recall
// ring, for the planner's access-boost term. Errors degrade to an empty
// map; access boosting is advisory.
func (s *Store) AccessCounts(ctx context.Context, ns string) map[string]int {
	counts := map[string]int{}
	path, err := s.statePath(ns, "last_recall.json")
	if err != nil {
		return counts
	}
	var lr LastRecall
	if err := readJSON(path, &lr); err != nil {
		return counts
	}
	for _, imp := range lr.Impressions {
		for _, id := range imp.MemoryIDs {
			counts[id]++
		}
	}
	return counts
}

// NegativeExamples tracks per-item "not useful" feedback counters plus a
// bounded notes list.
type NegativeExamples struct {
	Counters map[string]int      `json:"counters"`
	Notes    map[string][]string `json:"notes"`
}

const maxNegativeNotes = 20

func (s *Store) ReadNegativeExamples(ctx context.Context, ns string) (*NegativeExamples, error) {
	path, err := s.statePath(ns, "negative_examples.json")
	if err != nil {
		return nil, err
	}
	ne := &NegativeExamples{Counters: map[string]int{}, Notes: map[string][]string{}}
	if err := readJSON(path, ne); err != nil {
		return nil, err
	}
	if ne.Counters == nil {
		ne.Counters = map[string]int{}
	}
	if ne.Notes == nil {
		ne.Notes = map[string][]string{}
	}
	return ne, nil
}

// RecordNegativeExample increments the not-useful counter for memoryID and
// appends note, capping the notes list at 20 entries (oldest dropped).
func (s *Store) RecordNegativeExample(ctx context.Context, ns, memoryID, note string) error {
	path, err := s.statePath(ns, "negative_examples.json")
	if err != nil {
		return err
	}
	stateMu.Lock()
	defer stateMu.Unlock()

	ne, err := s.ReadNegativeExamples(ctx, ns)
	if err != nil {
		return err
	}
	ne.Counters[memoryID]++
	if note != "" {
		notes := append(ne.Notes[memoryID], note)
		if len(notes) > maxNegativeNotes {
			notes = notes[len(notes)-maxNegativeNotes:]
		}
		ne.Notes[memoryID] = notes
	}
	return writeJSON(path, ne)
}

// NegativeHits reports how many "not useful" hits an item has accrued,
// for the retrieval planner's negative-feedback penalty term.
func (s *Store) NegativeHits(ctx context.Context, ns, itemID string) int {
	ne, err := s.ReadNegativeExamples(ctx, ns)
	if err != nil || ne == nil {
		return 0
	}
	return ne.Counters[itemID]
}
