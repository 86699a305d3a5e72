package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"engram/internal/model"
	"engram/internal/store/frontmatter"
)

// ErrCycle indicates a supersedes edge would close a cycle in the lineage
// DAG; the write is rejected and the existing item is kept.
var ErrCycle = errors.New("store: supersedes cycle detected")

// ErrMissingLineage indicates a lineage entry does not resolve to any
// existing or archived item.
var ErrMissingLineage = errors.New("store: lineage id does not resolve")

func itemToFields(item *model.MemoryItem) map[string]any {
	fields := map[string]any{}
	for k, v := range item.Unknown {
		fields[k] = v
	}
	fields["id"] = item.ID
	fields["category"] = string(item.Category)
	fields["created"] = item.Created.Format(time.RFC3339)
	fields["updated"] = item.Updated.Format(time.RFC3339)
	fields["source"] = item.Source
	fields["confidence"] = item.Confidence
	fields["confidenceTier"] = string(item.ConfidenceTier)
	fields["tags"] = item.Tags
	if item.EntityRef != "" {
		fields["entityRef"] = item.EntityRef
	}
	fields["status"] = string(item.Status)
	if item.Supersedes != "" {
		fields["supersedes"] = item.Supersedes
	}
	if len(item.Lineage) > 0 {
		fields["lineage"] = item.Lineage
	}
	if item.ExpiresAt != nil {
		fields["expiresAt"] = item.ExpiresAt.Format(time.RFC3339)
	}
	fields["memoryKind"] = string(item.MemoryKind)
	if item.Namespace != "" {
		fields["namespace"] = item.Namespace
	}
	return fields
}

func fieldsToItem(doc *frontmatter.Document) (*model.MemoryItem, error) {
	f := doc.Fields
	item := &model.MemoryItem{
		ID:             frontmatter.String(f["id"]),
		Category:       model.Category(frontmatter.String(f["category"])),
		Source:         frontmatter.String(f["source"]),
		Confidence:     frontmatter.Float64(f["confidence"]),
		ConfidenceTier: model.ConfidenceTier(frontmatter.String(f["confidenceTier"])),
		Tags:           frontmatter.StringSlice(f["tags"]),
		EntityRef:      frontmatter.String(f["entityRef"]),
		Status:         model.Status(frontmatter.String(f["status"])),
		Supersedes:     frontmatter.String(f["supersedes"]),
		Lineage:        frontmatter.StringSlice(f["lineage"]),
		MemoryKind:     model.MemoryKind(frontmatter.String(f["memoryKind"])),
		Namespace:      frontmatter.String(f["namespace"]),
		Body:           doc.Body,
	}
	if item.Status == "" {
		item.Status = model.StatusActive
	}
	if created := frontmatter.String(f["created"]); created != "" {
		t, err := time.Parse(time.RFC3339, created)
		if err == nil {
			item.Created = t
		}
	}
	if updated := frontmatter.String(f["updated"]); updated != "" {
		t, err := time.Parse(time.RFC3339, updated)
		if err == nil {
			item.Updated = t
		}
	}
	if exp := frontmatter.String(f["expiresAt"]); exp != "" {
		t, err := time.Parse(time.RFC3339, exp)
		if err == nil {
			item.ExpiresAt = &t
		}
	}
	known := map[string]bool{
		"id": true, "category": true, "created": true, "updated": true,
		"source": true, "confidence": true, "confidenceTier": true,
		"tags": true, "entityRef": true, "status": true, "supersedes": true,
		"lineage": true, "expiresAt": true, "memoryKind": true, "namespace": true,
	}
	unknown := map[string]any{}
	for k, v := range f {
		if !known[k] {
			unknown[k] = v
		}
	}
	item.Unknown = unknown
	return item, nil
}

// WriteItem writes item verbatim at its content-addressed path, bumping
// StatusVersion. Writing is idempotent by id: a given id is written once
// then in-place overwritten.
func (s *Store) WriteItem(ctx context.Context, ns string, item *model.MemoryItem) error {
	ctx = ctxOrBackground(ctx)
	id, err := validID(item.ID)
	if err != nil {
		return err
	}
	item.ID = id
	if item.Category == "" {
		return fmt.Errorf("store: item %s missing category", id)
	}

	root, err := s.namespaceRoot(ns)
	if err != nil {
		return err
	}
	path := itemPath(root, item.Category, item.ID, item.Created)
	data := frontmatter.Serialize(itemToFields(item), item.Body)
	if err := fsync(path, data); err != nil {
		return fmt.Errorf("store: writing item %s: %w", item.ID, err)
	}
	s.bumpStatusVersion()
	_ = ctx
	return nil
}

// ReadItem reads a single item by id, scanning every category's
// date-sharded directories. Returns (nil, nil) if not found.
func (s *Store) ReadItem(ctx context.Context, ns, id string) (*model.MemoryItem, error) {
	all, err := s.ListAll(ctx, ns)
	if err != nil {
		return nil, err
	}
	for _, it := range all {
		if it.ID == id {
			return it, nil
		}
	}
	return nil, nil
}

// ListByCategory reads every item filed under category, skipping files
// with malformed frontmatter (logged, not fatal).
func (s *Store) ListByCategory(ctx context.Context, ns string, category model.Category) ([]*model.MemoryItem, error) {
	root, err := s.namespaceRoot(ns)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(root, categoryDir(category))
	return s.scanItems(dir)
}

// ListAll reads every item across every category.
func (s *Store) ListAll(ctx context.Context, ns string) ([]*model.MemoryItem, error) {
	var out []*model.MemoryItem
	for _, cat := range model.Categories {
		items, err := s.ListByCategory(ctx, ns, cat)
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
	}
	return out, nil
}

func (s *Store) scanItems(dir string) ([]*model.MemoryItem, error) {
	var out []*model.MemoryItem
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return nil
		}
		if d.IsDir() || filepath.Ext(path) != ".md" {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			if s.log != nil {
				s.log.Warn().Err(err).Str("path", path).Msg("store: skipping unreadable item")
			}
			return nil
		}
		doc, err := frontmatter.Parse(raw)
		if err != nil {
			if s.log != nil {
				s.log.Warn().Err(err).Str("path", path).Msg("store: skipping corrupt frontmatter")
			}
			return nil
		}
		item, err := fieldsToItem(doc)
		if err != nil {
			return nil
		}
		out = append(out, item)
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return out, nil
}

// ApplyMerge implements the MERGE consolidation decision: writes the new
// combined item with lineage over both predecessors, and marks the
// existing item superseded. The new item's id must differ from the
// existing item's id (id stability invariant).
func (s *Store) ApplyMerge(ctx context.Context, ns string, existing *model.MemoryItem, merged *model.MemoryItem) error {
	lineage := append(append([]string{}, existing.Lineage...), existing.ID)
	for _, l := range merged.Lineage {
		if !contains(lineage, l) {
			lineage = append(lineage, l)
		}
	}
	merged.Lineage = lineage
	merged.Supersedes = existing.ID

	if wouldCycle(merged.ID, merged.Supersedes, merged.Lineage) {
		return ErrCycle
	}

	// Write the new item before superseding the old one: a reader racing
	// this call must never observe both "new" and "still-active old"
	// missing at once (§5 Shared resource policy).
	if err := s.WriteItem(ctx, ns, merged); err != nil {
		return err
	}
	existing.Status = model.StatusSuperseded
	return s.WriteItem(ctx, ns, existing)
}

// ApplyUpdate overwrites an item's body in place and bumps Updated.
func (s *Store) ApplyUpdate(ctx context.Context, ns string, item *model.MemoryItem, newBody string, now time.Time) error {
	item.Body = newBody
	item.Updated = now
	return s.WriteItem(ctx, ns, item)
}

// ApplyInvalidate sets status=archived on an existing item.
func (s *Store) ApplyInvalidate(ctx context.Context, ns string, item *model.MemoryItem) error {
	item.Status = model.StatusArchived
	return s.WriteItem(ctx, ns, item)
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func wouldCycle(id, supersedes string, lineage []string) bool {
	if supersedes == id {
		return true
	}
	return contains(lineage, id)
}

// SweepExpired archives (not deletes) every active item whose ExpiresAt
// has passed. Returns the ids archived.
func (s *Store) SweepExpired(ctx context.Context, ns string, now time.Time) ([]string, error) {
	items, err := s.ListAll(ctx, ns)
	if err != nil {
		return nil, err
	}
	var archived []string
	for _, it := range items {
		if it.Status != model.StatusActive {
			continue
		}
		if it.ExpiresAt == nil || it.ExpiresAt.After(now) {
			continue
		}
		it.Status = model.StatusArchived
		if err := s.WriteItem(ctx, ns, it); err != nil {
			return archived, err
		}
		archived = append(archived, it.ID)
	}
	return archived, nil
}
