package stats

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/platinummonkey/portstats/pkg/storage"
)

var (
	lookupIdentitySQL = regexp.QuoteMeta(`SELECT id, uuid FROM uuids WHERE uuid = $1`)
	createIdentitySQL = regexp.QuoteMeta(`INSERT INTO uuids (uuid) VALUES ($1) RETURNING id`)
)

func TestResolve_ExistingIdentity(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(lookupIdentitySQL).WithArgs("client-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "uuid"}).AddRow(7, "client-1"))

	identity, err := NewResolver(db, storage.Postgres, Options{}).Resolve(context.Background(), "client-1")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if identity.ID != 7 || identity.New {
		t.Errorf("Expected existing identity 7, got %+v", identity)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestResolve_CreatesIdentity(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(lookupIdentitySQL).WithArgs("client-2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "uuid"}))
	mock.ExpectQuery(createIdentitySQL).WithArgs("client-2").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))

	identity, err := NewResolver(db, storage.Postgres, Options{}).Resolve(context.Background(), "client-2")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if identity.ID != 11 || !identity.New {
		t.Errorf("Expected new identity 11, got %+v", identity)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestResolve_ConcurrentCreateRereads(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(lookupIdentitySQL).WithArgs("client-3").
		WillReturnRows(sqlmock.NewRows([]string{"id", "uuid"}))
	mock.ExpectQuery(createIdentitySQL).WithArgs("client-3").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})
	mock.ExpectQuery(lookupIdentitySQL).WithArgs("client-3").
		WillReturnRows(sqlmock.NewRows([]string{"id", "uuid"}).AddRow(12, "client-3"))

	identity, err := NewResolver(db, storage.Postgres, Options{}).Resolve(context.Background(), "client-3")
	if err != nil {
		t.Fatalf("Resolve should recover from the race, got: %v", err)
	}
	if identity.ID != 12 || identity.New {
		t.Errorf("Expected the concurrently created identity 12, got %+v", identity)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestResolve_StorageFailureIsNotRetried(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	defer db.Close()

	outage := errors.New("connection refused")
	mock.ExpectQuery(lookupIdentitySQL).WithArgs("client-4").WillReturnError(outage)

	_, err = NewResolver(db, storage.Postgres, Options{}).Resolve(context.Background(), "client-4")
	if !errors.Is(err, outage) {
		t.Errorf("Expected storage error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestResolve_EmptyClientID(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	defer db.Close()

	_, err = NewResolver(db, storage.Postgres, Options{}).Resolve(context.Background(), " ")
	if !errors.Is(err, ErrMalformedSubmission) {
		t.Errorf("Expected ErrMalformedSubmission, got %v", err)
	}
}
