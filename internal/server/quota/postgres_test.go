package quota

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func newGuardWithMock(t *testing.T, defaultLimit int64) (*PostgresGuard, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresGuard(db, defaultLimit), mock, db
}

const selectQuota = `SELECT limit_bytes, used_bytes FROM user_quotas WHERE user_id=\$1`

func TestCheckUploadAllowed_WithinLimit(t *testing.T) {
	guard, mock, db := newGuardWithMock(t, 1000)
	defer db.Close()

	mock.ExpectQuery(selectQuota).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"limit_bytes", "used_bytes"}).AddRow(int64(500), int64(200)))

	d, err := guard.CheckUploadAllowed(context.Background(), "u1", 300)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Allowed || d.RemainingBytes != 300 || d.RequestedBytes != 300 {
		t.Fatalf("unexpected decision: %+v", d)
	}
}

func TestCheckUploadAllowed_Exceeded(t *testing.T) {
	guard, mock, db := newGuardWithMock(t, 1000)
	defer db.Close()

	mock.ExpectQuery(selectQuota).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"limit_bytes", "used_bytes"}).AddRow(int64(500), int64(200)))

	d, err := guard.CheckUploadAllowed(context.Background(), "u1", 301)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Allowed {
		t.Fatalf("want rejection, got %+v", d)
	}
	if d.RemainingBytes != 300 {
		t.Fatalf("want remaining=300, got %d", d.RemainingBytes)
	}
}

// Users without a quota row fall back to the configured default limit.
func TestCheckUploadAllowed_DefaultLimit(t *testing.T) {
	guard, mock, db := newGuardWithMock(t, 1000)
	defer db.Close()

	mock.ExpectQuery(selectQuota).
		WithArgs("new-user").
		WillReturnError(sql.ErrNoRows)

	d, err := guard.CheckUploadAllowed(context.Background(), "new-user", 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Allowed || d.RemainingBytes != 1000 {
		t.Fatalf("unexpected decision: %+v", d)
	}
}

// An over-committed account never reports negative remaining space.
func TestCheckUploadAllowed_NegativeRemaining(t *testing.T) {
	guard, mock, db := newGuardWithMock(t, 1000)
	defer db.Close()

	mock.ExpectQuery(selectQuota).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"limit_bytes", "used_bytes"}).AddRow(int64(500), int64(700)))

	d, err := guard.CheckUploadAllowed(context.Background(), "u1", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Allowed || d.RemainingBytes != 0 {
		t.Fatalf("unexpected decision: %+v", d)
	}
}

func TestCheckUploadAllowed_DBErr(t *testing.T) {
	guard, mock, db := newGuardWithMock(t, 1000)
	defer db.Close()

	mock.ExpectQuery(selectQuota).
		WithArgs("u1").
		WillReturnError(errors.New("db err"))

	_, err := guard.CheckUploadAllowed(context.Background(), "u1", 1)
	if err == nil || !regexp.MustCompile(`failed to select quota: .*db err`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped select error, got %v", err)
	}
}

const (
	insertLedger  = `(?s)INSERT INTO usage_ledger .*ON CONFLICT \(object_key\) DO NOTHING`
	upsertCounter = `(?s)INSERT INTO user_quotas .*ON CONFLICT \(user_id\) DO UPDATE SET used_bytes`
)

func TestCommitUsage_FirstCharge(t *testing.T) {
	guard, mock, db := newGuardWithMock(t, 1000)
	defer db.Close()

	mock.ExpectExec(insertLedger).
		WithArgs("users/u1/k", "u1", int64(100)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(upsertCounter).
		WithArgs("u1", int64(1000), int64(100)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := guard.CommitUsage(context.Background(), "u1", 100, "users/u1/k"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// A repeated commit for the same object key hits the ledger conflict and must
// not touch the usage counter.
func TestCommitUsage_AlreadyCharged(t *testing.T) {
	guard, mock, db := newGuardWithMock(t, 1000)
	defer db.Close()

	mock.ExpectExec(insertLedger).
		WithArgs("users/u1/k", "u1", int64(100)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := guard.CommitUsage(context.Background(), "u1", 100, "users/u1/k"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("counter must not be updated on a duplicate charge: %v", err)
	}
}

func TestCommitUsage_LedgerErr(t *testing.T) {
	guard, mock, db := newGuardWithMock(t, 1000)
	defer db.Close()

	mock.ExpectExec(insertLedger).
		WithArgs("users/u1/k", "u1", int64(100)).
		WillReturnError(errors.New("db down"))

	err := guard.CommitUsage(context.Background(), "u1", 100, "users/u1/k")
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestCommitUsage_CounterErr(t *testing.T) {
	guard, mock, db := newGuardWithMock(t, 1000)
	defer db.Close()

	mock.ExpectExec(insertLedger).
		WithArgs("users/u1/k", "u1", int64(100)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(upsertCounter).
		WithArgs("u1", int64(1000), int64(100)).
		WillReturnError(errors.New("db down"))

	err := guard.CommitUsage(context.Background(), "u1", 100, "users/u1/k")
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}
