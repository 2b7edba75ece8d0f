package sync

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/wikimirror/internal/audit"
)

// Outcome is the terminal state of a sync run.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeAuditFailed Outcome = "audit_failed"
	OutcomeFailed      Outcome = "failed"
	OutcomeCanceled    Outcome = "canceled"
)

// RunReport captures everything a run did: counts, per-stage timing, and
// the audit verdict. It is printed after the run, saved as JSON, and
// appended to the run history store.
type RunReport struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Outcome    Outcome   `json:"outcome"`
	Error      string    `json:"error,omitempty"`

	Pages            int   `json:"pages"`
	Requests         int64 `json:"requests"`
	LinksRewritten   int   `json:"links_rewritten"`
	LinksUnchanged   int   `json:"links_unchanged"`
	AssetsDownloaded int   `json:"assets_downloaded"`
	AssetsReused     int   `json:"assets_reused"`
	AssetsFailed     int   `json:"assets_failed"`

	Violations []audit.Violation        `json:"violations,omitempty"`
	Stages     map[string]time.Duration `json:"stage_durations"`
	Published  bool                     `json:"published,omitempty"`
}

func newRunReport() *RunReport {
	return &RunReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Stages:    make(map[string]time.Duration),
	}
}

func (r *RunReport) finish(outcome Outcome, err error) {
	r.FinishedAt = time.Now()
	r.Outcome = outcome
	if err != nil {
		r.Error = err.Error()
	}
}

// Duration is the wall-clock time of the whole run.
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Summary renders the human-readable run summary printed after a sync.
func (r *RunReport) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s: %s in %s\n", r.RunID, r.Outcome, r.Duration().Round(time.Millisecond))
	fmt.Fprintf(&b, "  pages %d, requests %d\n", r.Pages, r.Requests)
	fmt.Fprintf(&b, "  links rewritten %d, left unchanged %d\n", r.LinksRewritten, r.LinksUnchanged)
	fmt.Fprintf(&b, "  assets downloaded %d, reused %d, failed %d\n",
		r.AssetsDownloaded, r.AssetsReused, r.AssetsFailed)
	if len(r.Violations) > 0 {
		fmt.Fprintf(&b, "  dangling references (%d):\n", len(r.Violations))
		for _, v := range r.Violations {
			fmt.Fprintf(&b, "    %s\n", v)
		}
	}
	if r.Published {
		b.WriteString("  published\n")
	}
	return b.String()
}

// Save writes the report as indented JSON. Best effort; callers log and
// move on when it fails.
func (r *RunReport) Save(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write run report: %w", err)
	}
	return nil
}
