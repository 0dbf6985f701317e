package worker

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLivenessMarkWritesRFC3339(t *testing.T) {
	path := filepath.Join(t.TempDir(), "consumer.alive")
	l := NewLiveness(path)
	now := time.Date(2024, 2, 3, 4, 5, 6, 0, time.FixedZone("X", 3600))
	l.now = func() time.Time { return now }

	require.NoError(t, l.Mark())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "2024-02-03T03:05:06Z", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are renamed away")
}

func TestCheckLiveness(t *testing.T) {
	path := filepath.Join(t.TempDir(), "consumer.alive")
	beat := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	l := NewLiveness(path)
	l.now = func() time.Time { return beat }
	require.NoError(t, l.Mark())

	ts, err := CheckLiveness(path, DefaultLivenessMaxAge, beat.Add(119*time.Second))
	require.NoError(t, err)
	assert.Equal(t, beat, ts)

	_, err = CheckLiveness(path, DefaultLivenessMaxAge, beat.Add(121*time.Second))
	assert.ErrorIs(t, err, ErrStale)
}

func TestCheckLivenessMissingOrCorrupt(t *testing.T) {
	dir := t.TempDir()
	_, err := CheckLiveness(filepath.Join(dir, "absent"), time.Minute, time.Now())
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad")
	require.NoError(t, os.WriteFile(bad, []byte("yesterday"), 0o644))
	_, err = CheckLiveness(bad, time.Minute, time.Now())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrStale)
}
