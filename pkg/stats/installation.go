package stats

import (
	"context"
	"fmt"
	"strings"

	"github.com/platinummonkey/portstats/pkg/storage"
)

// insertBatchSize bounds the rows per INSERT statement; SQLite allows 32766
// parameters and each row uses 10.
const insertBatchSize = 500

// Installation is one active port reported by a submission. The environment
// columns are a copy of the submission's values taken when the fact is created.
type Installation struct {
	SubmissionID    int64
	Port            string
	Version         string
	Variants        string
	Requested       bool
	OSVersion       string
	BuildArch       string
	CXXStdlib       string
	XcodeVersion    string
	MacPortsVersion string
}

// Expand turns a submission's active ports into installation facts. Entries
// without a name are dropped; the number dropped is returned alongside.
func Expand(sub *Submission, ports []ActivePort) ([]Installation, int) {
	facts := make([]Installation, 0, len(ports))
	skipped := 0
	for _, p := range ports {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			skipped++
			continue
		}
		facts = append(facts, Installation{
			SubmissionID:    sub.ID,
			Port:            name,
			Version:         p.Version,
			Variants:        string(p.Variants),
			Requested:       bool(p.Requested),
			OSVersion:       sub.Environment.OSVersion,
			BuildArch:       sub.Environment.BuildArch,
			CXXStdlib:       sub.Environment.CXXStdlib,
			XcodeVersion:    sub.Environment.XcodeVersion,
			MacPortsVersion: sub.Environment.MacPortsVersion,
		})
	}
	return facts, skipped
}

// Expander writes installation facts.
type Expander struct {
	opts Options
}

// NewExpander creates an Expander.
func NewExpander(opts Options) *Expander {
	return &Expander{opts: opts.withDefaults()}
}

// Insert writes facts using multi-row inserts. Callers pass the submission's
// transaction so the batch commits or rolls back as a unit.
func (e *Expander) Insert(ctx context.Context, q storage.Querier, facts []Installation) error {
	for start := 0; start < len(facts); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(facts) {
			end = len(facts)
		}
		query, args := buildInstallationInsert(facts[start:end])
		if _, err := q.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert installations: %w", err)
		}
	}
	return nil
}

func buildInstallationInsert(facts []Installation) (string, []interface{}) {
	const columns = 10
	var sb strings.Builder
	sb.WriteString(`INSERT INTO installations (submission_id, port, version, variants, requested, ` +
		`os_version, build_arch, cxx_stdlib, xcode_version, macports_version) VALUES `)

	args := make([]interface{}, 0, len(facts)*columns)
	n := 1
	for i, f := range facts {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for c := 0; c < columns; c++ {
			if c > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", n)
			n++
		}
		sb.WriteString(")")
		args = append(args, f.SubmissionID, f.Port, f.Version, f.Variants, f.Requested,
			f.OSVersion, f.BuildArch, f.CXXStdlib, f.XcodeVersion, f.MacPortsVersion)
	}
	return sb.String(), args
}
