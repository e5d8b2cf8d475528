package stats

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/portstats/pkg/async"
	"github.com/platinummonkey/portstats/pkg/observability"
	"github.com/platinummonkey/portstats/pkg/storage"
)

// Archiver stores raw submission payloads outside the database.
type Archiver interface {
	PutObject(ctx context.Context, key string, content io.Reader, contentType string) error
}

// IngestResult describes an accepted submission.
type IngestResult struct {
	SubmissionID  int64 `json:"submission_id"`
	UserID        int64 `json:"user_id"`
	Installations int   `json:"installations"`
	Skipped       int   `json:"skipped"`
	NewIdentity   bool  `json:"new_identity"`
}

// Ingestor accepts raw reports and persists them.
type Ingestor struct {
	db       *sql.DB
	resolver *Resolver
	recorder *Recorder
	expander *Expander
	opts     Options

	archiver      Archiver
	archivePrefix string
}

// NewIngestor wires the resolver, recorder and expander over the primary database.
func NewIngestor(db *sql.DB, dialect storage.Dialect, opts Options) *Ingestor {
	opts = opts.withDefaults()
	return &Ingestor{
		db:       db,
		resolver: NewResolver(db, dialect, opts),
		recorder: NewRecorder(opts),
		expander: NewExpander(opts),
		opts:     opts,
	}
}

// WithArchiver copies every accepted payload to archiver under prefix.
func (i *Ingestor) WithArchiver(archiver Archiver, prefix string) *Ingestor {
	i.archiver = archiver
	i.archivePrefix = prefix
	return i
}

// Submit parses, validates and stores one raw report. A malformed report is
// rejected before anything is written. The submission and its installations are
// committed in one transaction.
//
// The client identity is resolved and committed before that transaction, so a
// failed submission can leave a new identity with no submissions. Such a row
// is harmless: it is reused by the client's next report and is never counted,
// since every statistic joins through submissions.
func (i *Ingestor) Submit(ctx context.Context, raw []byte) (*IngestResult, error) {
	logger := observability.FromContext(ctx)

	report, err := ParseReport(raw)
	if err != nil {
		i.opts.Metrics.RecordSubmission("malformed", 0, 0)
		return nil, err
	}

	identity, err := i.resolver.Resolve(ctx, report.ClientID)
	if err != nil {
		i.opts.Metrics.RecordSubmission("error", 0, 0)
		return nil, err
	}

	at := i.opts.Clock.Now().UTC()

	var result *IngestResult
	err = i.inTx(ctx, func(tx *sql.Tx) error {
		sub, err := i.recorder.Record(ctx, tx, identity, report, raw, at)
		if err != nil {
			return err
		}
		facts, skipped := Expand(sub, report.ActivePorts)
		if err := i.expander.Insert(ctx, tx, facts); err != nil {
			return err
		}
		result = &IngestResult{
			SubmissionID:  sub.ID,
			UserID:        identity.ID,
			Installations: len(facts),
			Skipped:       skipped,
			NewIdentity:   identity.New,
		}
		return nil
	})
	if err != nil {
		status := "error"
		if errors.Is(err, ErrMalformedSubmission) {
			status = "malformed"
		}
		i.opts.Metrics.RecordSubmission(status, 0, 0)
		return nil, err
	}

	i.opts.Metrics.RecordSubmission("accepted", result.Installations, result.Skipped)
	entry := logger.WithFields(logrus.Fields{
		"submission_id": result.SubmissionID,
		"user_id":       result.UserID,
		"installations": result.Installations,
	})
	if result.Skipped > 0 {
		entry = entry.WithField("skipped", result.Skipped)
	}
	entry.Debug("submission recorded")

	i.archive(ctx, result.SubmissionID, at, raw)
	return result, nil
}

func (i *Ingestor) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit submission: %w", err)
	}
	return nil
}

// ArchiveKey is the object key for a raw payload: <prefix>/YYYY/MM/DD/<id>.json.
func ArchiveKey(prefix string, id int64, at time.Time) string {
	key := fmt.Sprintf("%s/%d.json", at.UTC().Format("2006/01/02"), id)
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}

func (i *Ingestor) archive(ctx context.Context, id int64, at time.Time, raw []byte) {
	if i.archiver == nil {
		return
	}
	key := ArchiveKey(i.archivePrefix, id, at)
	payload := append([]byte(nil), raw...)
	metrics := i.opts.Metrics
	async.SafeGo(context.WithoutCancel(ctx), 30*time.Second, "submission archive", func(ctx context.Context) error {
		err := i.archiver.PutObject(ctx, key, bytes.NewReader(payload), "application/json")
		if metrics != nil {
			status := "ok"
			if err != nil {
				status = "error"
			}
			metrics.ArchiveUploadsTotal.WithLabelValues(status).Inc()
		}
		return err
	})
}
