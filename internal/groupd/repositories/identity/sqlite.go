package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nymstr/nymstr-groupd/internal/common"
	"github.com/nymstr/nymstr-groupd/internal/dbx"
	"github.com/nymstr/nymstr-groupd/internal/groupd/models"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// InsertPending creates a new pending user. The primary key on username
// enforces uniqueness; a lost race surfaces as common.ErrConflict.
func (r *SQLiteRepository) InsertPending(ctx context.Context, username, publicKey string) error {

	query :=
		`INSERT OR IGNORE INTO users (username, public_key, status, created_at)
         VALUES (?, ?, 'pending', ?)
		 `

	res, err := r.db.ExecContext(ctx, query, username, publicKey, now())
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return common.ErrConflict
	}

	return nil
}

func (r *SQLiteRepository) Lookup(ctx context.Context, username string) (*models.User, error) {
	query :=
		`SELECT username, public_key, status, created_at, approved_at FROM users
		 WHERE username = ?
		 `

	user := &models.User{}
	var approvedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, username).
		Scan(&user.Username, &user.PublicKey, &user.Status, &user.CreatedAt, &approvedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if approvedAt.Valid {
		t := approvedAt.Time
		user.ApprovedAt = &t
	}

	return user, nil
}

// MarkApproved performs the pending -> approved transition. The update and
// the diagnosis of a zero-row outcome run in one transaction so a concurrent
// writer cannot change the answer in between.
func (r *SQLiteRepository) MarkApproved(ctx context.Context, username string) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {

		query :=
			`UPDATE users SET status = 'approved', approved_at = ?
			 WHERE username = ? AND status = 'pending'
			 `

		res, err := tx.ExecContext(ctx, query, now(), username)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		if affected > 0 {
			return nil
		}

		var status string
		err = tx.QueryRowContext(ctx, `SELECT status FROM users WHERE username = ?`, username).Scan(&status)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return common.ErrNotFound
			}
			return fmt.Errorf("db error: %w", err)
		}
		if status == string(models.StatusApproved) {
			return common.ErrAlreadyApproved
		}
		return fmt.Errorf("db error: unexpected status %q for %s", status, username)
	})
}

// now returns the UTC wall clock at the millisecond precision the store keeps.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
