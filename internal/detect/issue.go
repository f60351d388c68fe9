package detect

import (
	"time"

	"swarmfuzz/internal/worldapi"
)

// Severity grades an issue.
type Severity string

const (
	SeverityCritical Severity = "Critical"
	SeverityMajor    Severity = "Major"
	SeverityMinor    Severity = "Minor"
)

// Evidence is the supporting material attached to an issue.
type Evidence struct {
	// Participants are the server identities (or local names) involved.
	Participants []string

	// Timestamps are the observation times the detection is built on.
	Timestamps []time.Time

	// Logs are free-text lines describing what each participant saw.
	Logs []string

	// HTTPDetail carries the structured failure of the triggering call,
	// when one exists.
	HTTPDetail *worldapi.APIError

	// StateTable maps participant -> one-line state summary.
	StateTable map[string]string

	// Coverage lists the endpoints collectively called so far (coverage
	// detections only).
	Coverage []string
}

// Issue is one detected anomaly. At most one is produced per cycle, by
// exactly one detector, and it is immutable once created.
type Issue struct {
	Area     string
	Title    string
	Expected string
	Observed string
	Steps    []string
	Severity Severity

	// Frequency is a cross-run occurrence hint. Detectors leave it empty;
	// the reporting path derives it from the archive when formatting.
	Frequency string

	Evidence Evidence

	// Detector and Key feed the fingerprint.
	Detector string
	Key      string

	DetectedAt time.Time
}

// Fingerprint derives the dedup key for this issue.
func (i *Issue) Fingerprint() Fingerprint {
	return NewFingerprint(i.Area, i.Detector, i.Key)
}
