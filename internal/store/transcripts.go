package store

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"engram/internal/model"
	"engram/internal/validation"
)

// ParseSessionKey maps a colon-delimited session key onto the transcript
// bucket it files under. Recognized shapes:
//
//	agent:<name>:<type>
//	agent:<name>:<type>:<id>
//	agent:<name>:<type>:channel:<id>
//
// Anything else buckets as other/default, so an unrecognized caller never
// produces an unwritable path.
func ParseSessionKey(key string) (channelType, channelID string) {
	parts := strings.Split(key, ":")
	if len(parts) < 3 || parts[0] != "agent" || parts[1] == "" || parts[2] == "" {
		return "other", "default"
	}
	channelType = parts[2]
	switch {
	case len(parts) == 3:
		channelID = "default"
	case len(parts) == 4 && parts[3] != "":
		channelID = parts[3]
	case len(parts) == 5 && parts[3] == "channel" && parts[4] != "":
		channelID = parts[4]
	default:
		return "other", "default"
	}
	if _, err := validation.PathSegment(channelType); err != nil {
		return "other", "default"
	}
	if _, err := validation.PathSegment(channelID); err != nil {
		return "other", "default"
	}
	return channelType, channelID
}

// AppendTranscript files a turn under
// transcripts/<channelType>/<channelId>/<YYYY-MM-DD>.jsonl, one JSON object
// per line. The date shard comes from the turn's own timestamp.
func (s *Store) AppendTranscript(ctx context.Context, ns string, turn model.Turn) error {
	root, err := s.namespaceRoot(ns)
	if err != nil {
		return err
	}
	channelType, channelID := ParseSessionKey(turn.SessionKey)
	ts := turn.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	path := transcriptPath(root, channelType, channelID, ts)

	stateMu.Lock()
	defer stateMu.Unlock()
	if err := appendJSONL(path, turn); err != nil {
		return fmt.Errorf("store: appending transcript: %w", err)
	}
	return nil
}

func transcriptPath(nsRoot, channelType, channelID string, ts time.Time) string {
	return filepath.Join(nsRoot, "transcripts", channelType, channelID, ts.Format("2006-01-02")+".jsonl")
}
