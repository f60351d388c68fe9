package report

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"swarmfuzz/internal/detect"
	"swarmfuzz/internal/logging"
)

// Archive records created issues across runs and answers how often a
// fingerprint has been seen before. A nil Archive degrades frequency hints
// to "unknown" and nothing else.
type Archive interface {
	RecordIssue(fingerprint, area, title, severity, ref string, at time.Time) error
	RecordDuplicate(fingerprint string, at time.Time) error
	Occurrences(fingerprint string) (int, error)
}

// Config holds gateway construction parameters.
type Config struct {
	DryRun              bool
	MarkerLabel         string
	SimilarityThreshold float64
	CheckInterval       time.Duration
}

// Gateway deduplicates against the tracker and publishes formatted reports.
type Gateway struct {
	tracker Tracker
	archive Archive
	cfg     Config
	log     *zap.Logger

	mu       sync.Mutex
	cached   []TrackerIssue
	cachedAt time.Time
}

// NewGateway creates the reporting gateway. archive may be nil.
func NewGateway(tracker Tracker, archive Archive, cfg Config, log *zap.Logger) *Gateway {
	if cfg.MarkerLabel == "" {
		cfg.MarkerLabel = "swarmfuzz"
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = 0.6
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{tracker: tracker, archive: archive, cfg: cfg, log: log.Named("report")}
}

// CreateIssue publishes the issue unless an open tracker issue already
// covers it, in which case a re-observed comment is appended instead.
// Returns the tracker reference and whether a new issue was created.
func (g *Gateway) CreateIssue(ctx context.Context, issue *detect.Issue) (string, bool, error) {
	fp := string(issue.Fingerprint())
	frequency := g.frequencyHint(fp)

	if g.cfg.DryRun {
		g.log.Info("dry-run: would create issue",
			zap.String("title", issue.Title),
			zap.String("area", issue.Area),
			zap.String("severity", string(issue.Severity)),
			zap.String("frequency", frequency))
		logging.Trace(logging.CategoryReport, "dry-run issue body:\n%s", FormatBody(issue, frequency))
		return "", true, nil
	}

	if dup := g.findDuplicate(ctx, issue); dup != nil {
		comment := fmt.Sprintf("Re-observed at %s.\n\n%s",
			issue.DetectedAt.Format(time.RFC3339), issue.Observed)
		if err := g.tracker.Comment(ctx, dup.Ref, comment); err != nil {
			return "", false, fmt.Errorf("comment on duplicate %s: %w", dup.Ref, err)
		}
		if g.archive != nil {
			if err := g.archive.RecordDuplicate(fp, issue.DetectedAt); err != nil {
				g.log.Warn("archive duplicate record failed", zap.Error(err))
			}
		}
		g.log.Info("duplicate detection, commented instead",
			zap.String("ref", dup.Ref), zap.String("title", issue.Title))
		return dup.Ref, false, nil
	}

	labels := []string{g.cfg.MarkerLabel, "area:" + strings.ToLower(issue.Area), "severity:" + strings.ToLower(string(issue.Severity))}
	ref, err := g.tracker.Create(ctx, issue.Title, FormatBody(issue, frequency), labels)
	if err != nil {
		return "", false, fmt.Errorf("create issue: %w", err)
	}

	if g.archive != nil {
		if err := g.archive.RecordIssue(fp, issue.Area, issue.Title, string(issue.Severity), ref, issue.DetectedAt); err != nil {
			g.log.Warn("archive record failed", zap.Error(err))
		}
	}

	// The open-issue cache is now stale.
	g.mu.Lock()
	g.cachedAt = time.Time{}
	g.mu.Unlock()

	g.log.Info("issue created", zap.String("ref", ref), zap.String("title", issue.Title))
	logging.Trace(logging.CategoryReport, "created %s: %s", ref, issue.Title)
	return ref, true, nil
}

// CommentCooldown appends a re-observed comment to the issue behind a
// cooling fingerprint.
func (g *Gateway) CommentCooldown(ctx context.Context, ref string, issue *detect.Issue) error {
	if g.cfg.DryRun || ref == "" {
		g.log.Info("dry-run: would comment re-observation",
			zap.String("ref", ref), zap.String("title", issue.Title))
		return nil
	}
	body := fmt.Sprintf("Still occurring as of %s.\n\n%s",
		issue.DetectedAt.Format(time.RFC3339), issue.Observed)
	if err := g.tracker.Comment(ctx, ref, body); err != nil {
		return fmt.Errorf("cooldown comment on %s: %w", ref, err)
	}
	if g.archive != nil {
		if err := g.archive.RecordDuplicate(string(issue.Fingerprint()), issue.DetectedAt); err != nil {
			g.log.Warn("archive duplicate record failed", zap.Error(err))
		}
	}
	return nil
}

// findDuplicate returns the first open tracker issue considered the same
// as the candidate, or nil.
func (g *Gateway) findDuplicate(ctx context.Context, issue *detect.Issue) *TrackerIssue {
	open := g.openIssues(ctx)
	normNew := NormalizeTitle(issue.Title)
	areaLabel := "area:" + strings.ToLower(issue.Area)

	for i := range open {
		existing := &open[i]
		normOld := NormalizeTitle(existing.Title)
		if normNew == "" || normOld == "" {
			continue
		}
		if strings.Contains(normOld, normNew) || strings.Contains(normNew, normOld) {
			return existing
		}
		if hasLabel(existing.Labels, areaLabel) &&
			tokenJaccard(normNew, normOld) >= g.cfg.SimilarityThreshold {
			return existing
		}
	}
	return nil
}

// openIssues lists marker-labeled open issues, cached for the check interval.
// A listing failure is treated as "no duplicates known" rather than blocking
// the report.
func (g *Gateway) openIssues(ctx context.Context) []TrackerIssue {
	g.mu.Lock()
	if time.Since(g.cachedAt) < g.cfg.CheckInterval {
		cached := g.cached
		g.mu.Unlock()
		return cached
	}
	g.mu.Unlock()

	issues, err := g.tracker.ListOpen(ctx, g.cfg.MarkerLabel)
	if err != nil {
		g.log.Warn("listing open issues failed, skipping dedup", zap.Error(err))
		return nil
	}

	g.mu.Lock()
	g.cached = issues
	g.cachedAt = time.Now()
	g.mu.Unlock()
	return issues
}

func (g *Gateway) frequencyHint(fingerprint string) string {
	if g.archive == nil {
		return "unknown"
	}
	n, err := g.archive.Occurrences(fingerprint)
	if err != nil {
		return "unknown"
	}
	if n == 0 {
		return "first observed"
	}
	return fmt.Sprintf("seen %d time(s) across runs", n)
}

var (
	bracketTagRe = regexp.MustCompile(`\[[^\]]*\]`)
	nonAlnumRe   = regexp.MustCompile(`[^a-z0-9]+`)
)

// NormalizeTitle strips bracketed tags, lowercases, and collapses runs of
// non-alphanumerics to single spaces.
func NormalizeTitle(title string) string {
	s := bracketTagRe.ReplaceAllString(title, " ")
	s = strings.ToLower(s)
	s = nonAlnumRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// tokenJaccard is the Jaccard similarity of the word sets of two normalized
// titles.
func tokenJaccard(a, b string) float64 {
	setA, setB := tokenSet(a), tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	inter := 0
	for tok := range setA {
		if setB[tok] {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(s) {
		set[tok] = true
	}
	return set
}

func hasLabel(labels []string, want string) bool {
	for _, l := range labels {
		if l == want {
			return true
		}
	}
	return false
}
