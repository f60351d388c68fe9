package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := OpenArchive(filepath.Join(t.TempDir(), "state", "issues.db"))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestOccurrencesUnknownFingerprint(t *testing.T) {
	a := openTestArchive(t)

	n, err := a.Occurrences("Sync|entity_count_divergence|3,4")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRecordIssueAndDuplicates(t *testing.T) {
	a := openTestArchive(t)
	fp := "Sync|entity_count_divergence|3,4"
	now := time.Now()

	require.NoError(t, a.RecordIssue(fp, "Sync", "[Sync] divergence", "major", "ISSUE-1", now))

	n, err := a.Occurrences(fp)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, a.RecordDuplicate(fp, now.Add(time.Minute)))
	require.NoError(t, a.RecordDuplicate(fp, now.Add(2*time.Minute)))

	n, err = a.Occurrences(fp)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestDuplicateOfUnknownFingerprintIsIgnored(t *testing.T) {
	a := openTestArchive(t)

	require.NoError(t, a.RecordDuplicate("never|seen|before", time.Now()))

	n, err := a.Occurrences("never|seen|before")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRecordIssueSameFingerprintTwiceBumpsCount(t *testing.T) {
	a := openTestArchive(t)
	fp := "Chat|chat_history_mismatch|alpha-beta"
	now := time.Now()

	require.NoError(t, a.RecordIssue(fp, "Chat", "[Chat] mismatch", "major", "ISSUE-1", now))
	require.NoError(t, a.RecordIssue(fp, "Chat", "[Chat] mismatch again", "major", "ISSUE-2", now.Add(time.Hour)))

	n, err := a.Occurrences(fp)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	recent, err := a.Recent(10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "ISSUE-2", recent[0].Ref, "ref tracks the latest tracker issue")
}

func TestArchiveSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "issues.db")
	fp := "API|error_rate_spike|global"

	a, err := OpenArchive(path)
	require.NoError(t, err)
	require.NoError(t, a.RecordIssue(fp, "API", "[API] spike", "critical", "ISSUE-7", time.Now()))
	require.NoError(t, a.Close())

	b, err := OpenArchive(path)
	require.NoError(t, err)
	defer b.Close()

	n, err := b.Occurrences(fp)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRecentOrdering(t *testing.T) {
	a := openTestArchive(t)
	base := time.Now()

	require.NoError(t, a.RecordIssue("a|x|1", "Sync", "one", "minor", "I-1", base))
	require.NoError(t, a.RecordIssue("b|y|2", "Chat", "two", "minor", "I-2", base.Add(time.Minute)))
	require.NoError(t, a.RecordDuplicate("a|x|1", base.Add(2*time.Minute)))

	recent, err := a.Recent(10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "a|x|1", recent[0].Fingerprint, "duplicate sighting refreshes last_seen")
}
