package report

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swarmfuzz/internal/detect"
)

// fakeTracker records calls in memory.
type fakeTracker struct {
	open     []TrackerIssue
	created  []string
	comments map[string][]string
	listErr  error
	nextRef  int
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{comments: make(map[string][]string)}
}

func (f *fakeTracker) ListOpen(ctx context.Context, label string) ([]TrackerIssue, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.open, nil
}

func (f *fakeTracker) Create(ctx context.Context, title, body string, labels []string) (string, error) {
	f.nextRef++
	ref := "ISSUE-" + strings.Repeat("0", 2) + string(rune('0'+f.nextRef))
	f.created = append(f.created, title)
	f.open = append(f.open, TrackerIssue{Ref: ref, Title: title, Labels: labels})
	return ref, nil
}

func (f *fakeTracker) Comment(ctx context.Context, ref, body string) error {
	f.comments[ref] = append(f.comments[ref], body)
	return nil
}

func testIssue(title string) *detect.Issue {
	return &detect.Issue{
		Area:       "Sync",
		Title:      title,
		Expected:   "consistent views",
		Observed:   "divergent views",
		Steps:      []string{"do a thing", "observe"},
		Severity:   detect.SeverityMajor,
		Detector:   "entity_count_divergence",
		Key:        "3,4",
		DetectedAt: time.Now(),
	}
}

func TestNormalizeTitle(t *testing.T) {
	cases := map[string]string{
		"[Sync] Entity count divergence!":       "entity count divergence",
		"  [A][B] Weird   spacing -- here ":     "weird spacing here",
		"UPPER and lower":                       "upper and lower",
		"[only-tags]":                           "",
		"Members fuzz-1/fuzz-2 see 5 vs 1":      "members fuzz 1 fuzz 2 see 5 vs 1",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeTitle(in), "input %q", in)
	}
}

func TestTokenJaccard(t *testing.T) {
	assert.Equal(t, 1.0, tokenJaccard("a b c", "c b a"))
	assert.Equal(t, 0.0, tokenJaccard("a b", "c d"))
	assert.InDelta(t, 0.5, tokenJaccard("a b c", "a b d e"), 0.17) // 2/5
}

func TestCreateIssueNew(t *testing.T) {
	tracker := newFakeTracker()
	g := NewGateway(tracker, nil, Config{MarkerLabel: "swarmfuzz"}, nil)

	ref, created, err := g.CreateIssue(context.Background(), testIssue("[Sync] Entity count divergence at (3,4)"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, ref)
	require.Len(t, tracker.open, 1)
	assert.Contains(t, tracker.open[0].Labels, "swarmfuzz")
	assert.Contains(t, tracker.open[0].Labels, "area:sync")
	assert.Contains(t, tracker.open[0].Labels, "severity:major")
}

func TestDuplicateByContainmentCommentsInstead(t *testing.T) {
	tracker := newFakeTracker()
	tracker.open = []TrackerIssue{{
		Ref:    "OLD-1",
		Title:  "[Sync] Entity count divergence at (3,4) between members",
		Labels: []string{"swarmfuzz", "area:sync"},
	}}
	g := NewGateway(tracker, nil, Config{MarkerLabel: "swarmfuzz"}, nil)

	ref, created, err := g.CreateIssue(context.Background(), testIssue("[Sync] Entity count divergence at (3,4)"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "OLD-1", ref)
	assert.Empty(t, tracker.created)
	require.Len(t, tracker.comments["OLD-1"], 1)
	assert.Contains(t, tracker.comments["OLD-1"][0], "Re-observed")
}

func TestDuplicateBySameAreaJaccard(t *testing.T) {
	tracker := newFakeTracker()
	tracker.open = []TrackerIssue{{
		Ref:    "OLD-2",
		Title:  "[Sync] Co-located members fuzz-1 and fuzz-2 see 5 vs 1 entities",
		Labels: []string{"swarmfuzz", "area:sync"},
	}}
	g := NewGateway(tracker, nil, Config{MarkerLabel: "swarmfuzz", SimilarityThreshold: 0.5}, nil)

	ref, created, err := g.CreateIssue(context.Background(),
		testIssue("[Sync] Co-located members fuzz-3 and fuzz-4 see 5 vs 1 entities"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "OLD-2", ref)
}

func TestSimilarTitleDifferentAreaIsNotDuplicate(t *testing.T) {
	tracker := newFakeTracker()
	tracker.open = []TrackerIssue{{
		Ref:    "OLD-3",
		Title:  "[Chat] Members alpha and beta disagree on channel global contents",
		Labels: []string{"swarmfuzz", "area:chat"},
	}}
	g := NewGateway(tracker, nil, Config{MarkerLabel: "swarmfuzz", SimilarityThreshold: 0.5}, nil)

	_, created, err := g.CreateIssue(context.Background(),
		testIssue("[Sync] Members alpha and beta disagree on entity counts observed"))
	require.NoError(t, err)
	assert.True(t, created, "area gate must block Jaccard-only duplicates across areas")
}

func TestListFailureDoesNotBlockReporting(t *testing.T) {
	tracker := newFakeTracker()
	tracker.listErr = errors.New("tracker down")
	g := NewGateway(tracker, nil, Config{MarkerLabel: "swarmfuzz"}, nil)

	_, created, err := g.CreateIssue(context.Background(), testIssue("[Sync] divergence"))
	require.NoError(t, err)
	assert.True(t, created)
}

func TestDryRunCreatesNothing(t *testing.T) {
	tracker := newFakeTracker()
	g := NewGateway(tracker, nil, Config{DryRun: true}, nil)

	ref, created, err := g.CreateIssue(context.Background(), testIssue("[Sync] divergence"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Empty(t, ref)
	assert.Empty(t, tracker.created)

	require.NoError(t, g.CommentCooldown(context.Background(), "", testIssue("[Sync] divergence")))
	assert.Empty(t, tracker.comments)
}

func TestCommentCooldown(t *testing.T) {
	tracker := newFakeTracker()
	g := NewGateway(tracker, nil, Config{MarkerLabel: "swarmfuzz"}, nil)

	require.NoError(t, g.CommentCooldown(context.Background(), "ISSUE-9", testIssue("[Sync] divergence")))
	require.Len(t, tracker.comments["ISSUE-9"], 1)
	assert.Contains(t, tracker.comments["ISSUE-9"][0], "Still occurring")
}

func TestFormatBodyContainsSections(t *testing.T) {
	issue := testIssue("[Sync] divergence")
	issue.Evidence.Participants = []string{"fuzz-1", "fuzz-2"}
	issue.Evidence.StateTable = map[string]string{"fuzz-1": "role=explorer"}
	issue.Evidence.Logs = []string{"line one", "line two"}

	body := FormatBody(issue, "first observed")
	assert.Contains(t, body, "## Expected")
	assert.Contains(t, body, "## Observed")
	assert.Contains(t, body, "## Reproduction")
	assert.Contains(t, body, "fuzz-1, fuzz-2")
	assert.Contains(t, body, "| fuzz-1 | role=explorer |")
	assert.Contains(t, body, "first observed")
	assert.Contains(t, body, "line two")
}
