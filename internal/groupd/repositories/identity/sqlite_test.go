package identity

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/nymstr/nymstr-groupd/internal/common"
	"github.com/nymstr/nymstr-groupd/internal/groupd/models"
)

func newRepoWithMock(t *testing.T) (*SQLiteRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewSQLiteRepository(db), mock, db
}

const insertQ = `(?s)^INSERT\s+OR\s+IGNORE\s+INTO\s+users\s*\(username,\s*public_key,\s*status,\s*created_at\)\s*VALUES\s*\(\?,\s*\?,\s*'pending',\s*\?\)\s*$`

func TestInsertPending_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(insertQ).
		WithArgs("alice", "PUBKEY", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.InsertPending(context.Background(), "alice", "PUBKEY"); err != nil {
		t.Fatalf("InsertPending error: %v", err)
	}
}

func TestInsertPending_Conflict(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(insertQ).
		WithArgs("alice", "PUBKEY", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.InsertPending(context.Background(), "alice", "PUBKEY")
	if !errors.Is(err, common.ErrConflict) {
		t.Fatalf("want common.ErrConflict, got %v", err)
	}
}

func TestInsertPending_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(insertQ).
		WithArgs("alice", "PUBKEY", sqlmock.AnyArg()).
		WillReturnError(errors.New("db down"))

	err := repo.InsertPending(context.Background(), "alice", "PUBKEY")
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

const lookupQ = `(?s)^SELECT\s+username,\s*public_key,\s*status,\s*created_at,\s*approved_at\s+FROM\s+users\s+WHERE\s+username\s*=\s*\?\s*$`

func TestLookup_FoundPending(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"username", "public_key", "status", "created_at", "approved_at"}).
		AddRow("alice", "PUBKEY", "pending", created, nil)
	mock.ExpectQuery(lookupQ).
		WithArgs("alice").
		WillReturnRows(rows)

	got, err := repo.Lookup(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Lookup error: %v", err)
	}
	if got.Username != "alice" || got.Status != models.StatusPending || got.ApprovedAt != nil {
		t.Fatalf("unexpected user: %+v", got)
	}
}

func TestLookup_FoundApproved(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	approved := created.Add(time.Hour)
	rows := sqlmock.NewRows([]string{"username", "public_key", "status", "created_at", "approved_at"}).
		AddRow("alice", "PUBKEY", "approved", created, approved)
	mock.ExpectQuery(lookupQ).
		WithArgs("alice").
		WillReturnRows(rows)

	got, err := repo.Lookup(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Lookup error: %v", err)
	}
	if !got.Approved() {
		t.Fatalf("expected approved user, got %+v", got)
	}
	if got.ApprovedAt == nil || !got.ApprovedAt.Equal(approved) {
		t.Fatalf("unexpected ApprovedAt: %v", got.ApprovedAt)
	}
}

func TestLookup_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(lookupQ).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Lookup(context.Background(), "ghost")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want common.ErrNotFound, got %v", err)
	}
}

const approveQ = `(?s)^UPDATE\s+users\s+SET\s+status\s*=\s*'approved',\s*approved_at\s*=\s*\?\s+WHERE\s+username\s*=\s*\?\s+AND\s+status\s*=\s*'pending'\s*$`
const statusQ = `(?s)^SELECT\s+status\s+FROM\s+users\s+WHERE\s+username\s*=\s*\?\s*$`

func TestMarkApproved_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(approveQ).
		WithArgs(sqlmock.AnyArg(), "alice").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.MarkApproved(context.Background(), "alice"); err != nil {
		t.Fatalf("MarkApproved error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMarkApproved_AlreadyApproved(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(approveQ).
		WithArgs(sqlmock.AnyArg(), "alice").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(statusQ).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("approved"))
	mock.ExpectRollback()

	err := repo.MarkApproved(context.Background(), "alice")
	if !errors.Is(err, common.ErrAlreadyApproved) {
		t.Fatalf("want common.ErrAlreadyApproved, got %v", err)
	}
}

func TestMarkApproved_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(approveQ).
		WithArgs(sqlmock.AnyArg(), "ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(statusQ).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := repo.MarkApproved(context.Background(), "ghost")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want common.ErrNotFound, got %v", err)
	}
}

func TestMarkApproved_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(approveQ).
		WithArgs(sqlmock.AnyArg(), "alice").
		WillReturnError(errors.New("db down"))
	mock.ExpectRollback()

	err := repo.MarkApproved(context.Background(), "alice")
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}
