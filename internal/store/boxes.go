package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"engram/internal/model"
	"engram/internal/store/frontmatter"
)

func boxToFields(b *model.Box) map[string]any {
	fields := map[string]any{
		"id":         b.ID,
		"memoryKind": "box",
		"createdAt":  b.CreatedAt.Format(time.RFC3339),
		"sealedAt":   b.SealedAt.Format(time.RFC3339),
		"sealReason": string(b.SealReason),
		"topics":     b.Topics,
		"memoryIds":  b.MemoryIDs,
	}
	if b.TraceID != "" {
		fields["traceId"] = b.TraceID
	}
	return fields
}

func boxSummaryBody(b *model.Box) string {
	return fmt.Sprintf("<!-- box sealed (%s): %d memories across topics %v -->\n", b.SealReason, len(b.MemoryIDs), b.Topics)
}

func boxPath(nsRoot, id string, sealedAt time.Time) string {
	return filepath.Join(nsRoot, "boxes", sealedAt.Format("2006-01-02"), id+".md")
}

// WriteBox persists a sealed box at boxes/<date>/<id>.md.
func (s *Store) WriteBox(ctx context.Context, ns string, b *model.Box) error {
	id, err := validID(b.ID)
	if err != nil {
		return err
	}
	b.ID = id
	root, err := s.namespaceRoot(ns)
	if err != nil {
		return err
	}
	path := boxPath(root, b.ID, b.SealedAt)
	data := frontmatter.Serialize(boxToFields(b), boxSummaryBody(b))
	if err := fsync(path, data); err != nil {
		return fmt.Errorf("store: writing box %s: %w", b.ID, err)
	}
	return nil
}

// ListBoxes reads every sealed box across all dates, oldest-directory-first
// only by filesystem walk order (callers sort by SealedAt if order matters).
func (s *Store) ListBoxes(ctx context.Context, ns string) ([]*model.Box, error) {
	root, err := s.namespaceRoot(ns)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(root, "boxes")
	var out []*model.Box
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
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
			return nil
		}
		doc, err := frontmatter.Parse(raw)
		if err != nil {
			if s.log != nil {
				s.log.Warn().Err(err).Str("path", path).Msg("store: skipping corrupt box file")
			}
			return nil
		}
		out = append(out, fieldsToBox(doc))
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return out, nil
}

func fieldsToBox(doc *frontmatter.Document) *model.Box {
	f := doc.Fields
	b := &model.Box{
		ID:         frontmatter.String(f["id"]),
		SealReason: model.SealReason(frontmatter.String(f["sealReason"])),
		Topics:     frontmatter.StringSlice(f["topics"]),
		MemoryIDs:  frontmatter.StringSlice(f["memoryIds"]),
		TraceID:    frontmatter.String(f["traceId"]),
	}
	if createdAt := frontmatter.String(f["createdAt"]); createdAt != "" {
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			b.CreatedAt = t
		}
	}
	if sealedAt := frontmatter.String(f["sealedAt"]); sealedAt != "" {
		if t, err := time.Parse(time.RFC3339, sealedAt); err == nil {
			b.SealedAt = t
		}
	}
	return b
}
