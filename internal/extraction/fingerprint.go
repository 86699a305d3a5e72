package extraction

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"engram/internal/model"
)

// WindowFingerprint hashes a turn window's content (role, text and
// timestamp of every turn) so two triggers over the same window can be
// recognized as duplicates rather than re-extracted; a window with any turn
// added or removed hashes differently.
func WindowFingerprint(turns []model.Turn) string {
	var b strings.Builder
	for _, t := range turns {
		b.WriteString(string(t.Role))
		b.WriteByte('|')
		b.WriteString(t.Content)
		b.WriteByte('|')
		b.WriteString(strconv.FormatInt(t.Timestamp.UnixNano(), 10))
		b.WriteByte('\n')
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// isDuplicateWindow reports whether fingerprint matches the last processed
// window and that window was processed within windowMinutes of now — the
// dedupe guard that keeps a flapping trigger (e.g. two extract_now turns in
// quick succession) from running the same window twice.
func isDuplicateWindow(fingerprint, lastFingerprint, lastAt string, now time.Time, windowMinutes int) bool {
	if fingerprint == "" || fingerprint != lastFingerprint {
		return false
	}
	if lastAt == "" {
		return false
	}
	t, err := time.Parse(time.RFC3339, lastAt)
	if err != nil {
		return false
	}
	if windowMinutes <= 0 {
		windowMinutes = 5
	}
	return now.Sub(t) < time.Duration(windowMinutes)*time.Minute
}
