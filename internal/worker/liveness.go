package worker

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultLivenessMaxAge is how old the liveness timestamp may get before the
// consumer counts as stuck.
const DefaultLivenessMaxAge = 120 * time.Second

// ErrStale is returned by CheckLiveness when the timestamp is too old.
var ErrStale = errors.New("liveness timestamp is stale")

// Liveness writes the consumer heartbeat file.
type Liveness struct {
	path string
	now  func() time.Time
}

// NewLiveness creates a marker for path.
func NewLiveness(path string) *Liveness {
	return &Liveness{path: path, now: time.Now}
}

// Mark writes the current time as RFC3339 UTC. The file is replaced with a
// rename so readers never see a partial write.
func (l *Liveness) Mark() error {
	stamp := l.now().UTC().Format(time.RFC3339)

	dir := filepath.Dir(l.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(l.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create liveness temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(stamp); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write liveness file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close liveness file: %w", err)
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace liveness file: %w", err)
	}
	return nil
}

// CheckLiveness reads the heartbeat at path and returns its timestamp, or an
// error when it is missing, unparsable or older than maxAge.
func CheckLiveness(path string, maxAge time.Duration, now time.Time) (time.Time, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return time.Time{}, fmt.Errorf("read liveness file: %w", err)
	}

	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(string(data)))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse liveness file: %w", err)
	}

	if age := now.Sub(ts); age > maxAge {
		return ts, fmt.Errorf("%w: last beat %s ago", ErrStale, age.Truncate(time.Second))
	}
	return ts, nil
}
