package stats

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/platinummonkey/portstats/pkg/storage"
)

// Identity is the internal user behind an opaque client identifier.
type Identity struct {
	ID   int64
	UUID string
	// New is true when this call created the identity.
	New bool
}

// Resolver maps client identifiers to identities, creating them on first sight.
type Resolver struct {
	db      storage.Querier
	dialect storage.Dialect
	opts    Options

	maxRetries uint64
}

// NewResolver creates a resolver writing to db.
func NewResolver(db storage.Querier, dialect storage.Dialect, opts Options) *Resolver {
	return &Resolver{
		db:         db,
		dialect:    dialect,
		opts:       opts.withDefaults(),
		maxRetries: 3,
	}
}

// Resolve returns the identity for clientID. Concurrent first submissions for the
// same identifier race on the uuids unique constraint; the loser re-reads the
// winner's row instead of failing.
func (r *Resolver) Resolve(ctx context.Context, clientID string) (*Identity, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return nil, fmt.Errorf("%w: empty client id", ErrMalformedSubmission)
	}

	var identity *Identity
	op := func() error {
		found, err := r.lookup(ctx, clientID)
		if err != nil {
			return backoff.Permanent(err)
		}
		if found != nil {
			identity = found
			return nil
		}

		created, err := r.create(ctx, clientID)
		if err == nil {
			identity = created
			return nil
		}
		if r.dialect.IsUniqueViolation(err) {
			if r.opts.Metrics != nil {
				r.opts.Metrics.IdentityRacesTotal.Inc()
			}
			r.opts.Logger.WithField("client_id", clientID).Debug("identity created concurrently, re-reading")
			return err
		}
		return backoff.Permanent(err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxElapsedTime = 0
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, r.maxRetries), ctx)); err != nil {
		return nil, fmt.Errorf("failed to resolve identity: %w", err)
	}

	if identity.New && r.opts.Metrics != nil {
		r.opts.Metrics.IdentitiesCreatedTotal.Inc()
	}
	return identity, nil
}

func (r *Resolver) lookup(ctx context.Context, clientID string) (*Identity, error) {
	var identity Identity
	err := r.db.QueryRowContext(ctx, `SELECT id, uuid FROM uuids WHERE uuid = $1`, clientID).
		Scan(&identity.ID, &identity.UUID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up identity: %w", err)
	}
	return &identity, nil
}

func (r *Resolver) create(ctx context.Context, clientID string) (*Identity, error) {
	identity := Identity{UUID: clientID, New: true}
	err := r.db.QueryRowContext(ctx, `INSERT INTO uuids (uuid) VALUES ($1) RETURNING id`, clientID).
		Scan(&identity.ID)
	if err != nil {
		return nil, err
	}
	return &identity, nil
}
