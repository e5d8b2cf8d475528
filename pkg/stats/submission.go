package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/platinummonkey/portstats/pkg/storage"
)

// Submission is one persisted usage report. Submissions are never updated.
type Submission struct {
	ID          int64
	UserID      int64
	Timestamp   time.Time
	Environment Environment
	RawJSON     string
}

// Recorder persists submissions.
type Recorder struct {
	opts Options
}

// NewRecorder creates a Recorder.
func NewRecorder(opts Options) *Recorder {
	return &Recorder{opts: opts.withDefaults()}
}

const insertSubmissionSQL = `
	INSERT INTO submissions (
		user_id, timestamp, macports_version, os_version, xcode_version, os_arch,
		os_platform, build_arch, cxx_stdlib, gcc_version, prefix, raw_json
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	RETURNING id
`

// Record inserts exactly one submission for identity at the server timestamp at.
// q is normally the transaction that will also hold the submission's installations.
func (r *Recorder) Record(ctx context.Context, q storage.Querier, identity *Identity, report *Report, raw []byte, at time.Time) (*Submission, error) {
	if identity == nil || report == nil {
		return nil, fmt.Errorf("%w: missing identity or report", ErrMalformedSubmission)
	}
	if report.ActivePorts == nil {
		return nil, fmt.Errorf("%w: missing active_ports", ErrMalformedSubmission)
	}

	sub := &Submission{
		UserID:      identity.ID,
		Timestamp:   at.UTC(),
		Environment: report.Environment,
		RawJSON:     string(raw),
	}
	env := sub.Environment

	err := q.QueryRowContext(ctx, insertSubmissionSQL,
		sub.UserID, sub.Timestamp, env.MacPortsVersion, env.OSVersion, env.XcodeVersion, env.OSArch,
		env.OSPlatform, env.BuildArch, env.CXXStdlib, env.GCCVersion, env.Prefix, sub.RawJSON,
	).Scan(&sub.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert submission: %w", err)
	}

	return sub, nil
}
