package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"engram/internal/model"
	"engram/internal/store/frontmatter"
)

// byteBudget is the default size at which a bootstrap document (profile,
// IDENTITY) is rotated into the archive.
const byteBudget = 32 * 1024

// tailRetain is how much of the current body survives rotation as the
// lean index's retained tail.
const tailRetain = 4 * 1024

// docPath resolves profile.md / IDENTITY.md beneath a namespace root.
func (s *Store) docPath(ns, name string) (string, error) {
	root, err := s.namespaceRoot(ns)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, name), nil
}

// ReadDoc reads a bootstrap document's raw body (no frontmatter).
func (s *Store) ReadDoc(ctx context.Context, ns, name string) (string, error) {
	path, err := s.docPath(ns, name)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// AppendDoc appends text to a bootstrap document, rotating into
// .engram-archive when the budget is exceeded.
func (s *Store) AppendDoc(ctx context.Context, ns, name, text string, now time.Time) error {
	path, err := s.docPath(ns, name)
	if err != nil {
		return err
	}
	existing, err := s.ReadDoc(ctx, ns, name)
	if err != nil {
		return err
	}
	combined := existing
	if combined != "" {
		combined += "\n\n"
	}
	combined += text

	if len(combined) > byteBudget {
		if err := s.rotateDoc(ns, name, combined, now); err != nil {
			return err
		}
		tail := combined
		if len(tail) > tailRetain {
			tail = tail[len(tail)-tailRetain:]
		}
		combined = tail
	}
	return fsync(path, []byte(combined))
}

// ReplaceDoc overwrites a bootstrap document's full body, used by
// compaction to install a new LLM-produced body.
func (s *Store) ReplaceDoc(ctx context.Context, ns, name, body string) error {
	path, err := s.docPath(ns, name)
	if err != nil {
		return err
	}
	return fsync(path, []byte(body))
}

func (s *Store) rotateDoc(ns, name, body string, now time.Time) error {
	root, err := s.namespaceRoot(ns)
	if err != nil {
		return err
	}
	archiveDir := filepath.Join(root, ".engram-archive")
	ts := now.UTC().Format("20060102T150405Z")
	base := strings.TrimSuffix(name, filepath.Ext(name))
	archivePath := filepath.Join(archiveDir, fmt.Sprintf("%s-%s.md", base, ts))
	return fsync(archivePath, []byte(body))
}

// ReadProfile / AppendProfile / ReadIdentity / AppendIdentity are thin
// named wrappers over the generic doc helpers.
func (s *Store) ReadProfile(ctx context.Context, ns string) (string, error) {
	return s.ReadDoc(ctx, ns, "profile.md")
}

func (s *Store) AppendProfile(ctx context.Context, ns, text string, now time.Time) error {
	return s.AppendDoc(ctx, ns, "profile.md", text, now)
}

func (s *Store) ReadIdentity(ctx context.Context, ns string) (string, error) {
	return s.ReadDoc(ctx, ns, "IDENTITY.md")
}

func (s *Store) AppendIdentity(ctx context.Context, ns, text string, now time.Time) error {
	return s.AppendDoc(ctx, ns, "IDENTITY.md", text, now)
}

// entityPath resolves an entity's markdown file by normalized name.
func (s *Store) entityPath(ns, name string) (string, error) {
	clean, err := validID(name)
	if err != nil {
		return "", err
	}
	root, err := s.namespaceRoot(ns)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "entities", clean+".md"), nil
}

func entityToFields(e *model.Entity) map[string]any {
	return map[string]any{
		"name":  e.Name,
		"type":  string(e.Type),
		"facts": e.Facts,
	}
}

// WriteEntity merges facts into an existing entity file (if any) and
// rewrites it; the merge is append-only and dedupes identical facts.
func (s *Store) WriteEntity(ctx context.Context, ns string, e *model.Entity) error {
	existing, err := s.ReadEntity(ctx, ns, e.Name)
	if err != nil {
		return err
	}
	merged := *e
	if existing != nil {
		facts := existing.Facts
		for _, f := range e.Facts {
			if !contains(facts, f) {
				facts = append(facts, f)
			}
		}
		merged.Facts = facts
		if merged.Type == "" {
			merged.Type = existing.Type
		}
	}
	path, err := s.entityPath(ns, merged.Name)
	if err != nil {
		return err
	}
	body := fmt.Sprintf("# Entity: %s\n", merged.Name)
	data := frontmatter.Serialize(entityToFields(&merged), body)
	return fsync(path, data)
}

func (s *Store) ReadEntity(ctx context.Context, ns, name string) (*model.Entity, error) {
	path, err := s.entityPath(ns, name)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	doc, err := frontmatter.Parse(raw)
	if err != nil {
		if s.log != nil {
			s.log.Warn().Err(err).Str("path", path).Msg("store: skipping corrupt entity file")
		}
		return nil, nil
	}
	return &model.Entity{
		Name:  frontmatter.String(doc.Fields["name"]),
		Type:  model.EntityType(frontmatter.String(doc.Fields["type"])),
		Facts: frontmatter.StringSlice(doc.Fields["facts"]),
	}, nil
}

// ListEntityNames returns every known entity's normalized name, used to
// hint the extraction LLM with existing entities.
func (s *Store) ListEntityNames(ctx context.Context, ns string) ([]string, error) {
	root, err := s.namespaceRoot(ns)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(root, "entities")
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".md" {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".md"))
	}
	return names, nil
}

func questionToFields(q *model.Question) map[string]any {
	fields := map[string]any{
		"id":       q.ID,
		"priority": q.Priority,
		"created":  q.Created.Format(time.RFC3339),
		"resolved": q.Resolved,
		"context":  q.Context,
	}
	if q.ResolvedAt != nil {
		fields["resolvedAt"] = q.ResolvedAt.Format(time.RFC3339)
	}
	return fields
}

func (s *Store) questionPath(ns, id string) (string, error) {
	clean, err := validID(id)
	if err != nil {
		return "", err
	}
	root, err := s.namespaceRoot(ns)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "questions", clean+".md"), nil
}

// WriteQuestion persists a question; the question text is the markdown
// body so it reads naturally on disk.
func (s *Store) WriteQuestion(ctx context.Context, ns string, q *model.Question) error {
	path, err := s.questionPath(ns, q.ID)
	if err != nil {
		return err
	}
	data := frontmatter.Serialize(questionToFields(q), q.Question)
	return fsync(path, data)
}

// ListQuestions reads every question file. When onlyOpen is true,
// resolved questions are excluded.
func (s *Store) ListQuestions(ctx context.Context, ns string, onlyOpen bool) ([]*model.Question, error) {
	root, err := s.namespaceRoot(ns)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(root, "questions")
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []*model.Question
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".md" {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		doc, err := frontmatter.Parse(raw)
		if err != nil {
			continue
		}
		q := &model.Question{
			ID:       frontmatter.String(doc.Fields["id"]),
			Question: doc.Body,
			Context:  frontmatter.String(doc.Fields["context"]),
			Priority: frontmatter.Float64(doc.Fields["priority"]),
			Resolved: frontmatter.Bool(doc.Fields["resolved"]),
		}
		if created := frontmatter.String(doc.Fields["created"]); created != "" {
			if t, err := time.Parse(time.RFC3339, created); err == nil {
				q.Created = t
			}
		}
		if onlyOpen && q.Resolved {
			continue
		}
		out = append(out, q)
	}
	return out, nil
}
