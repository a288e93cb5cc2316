package journey

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
)

// PostgresStore persists attempts in PostgreSQL. The attempt is stored as a
// JSON document (json, not jsonb, so shared state keeps its key order) next
// to the columns used for lookups and expiry. The table is created by the
// goose migrations in migrations/.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed attempt store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, a *Attempt) error {
	doc, err := encodeAttempt(a)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO auth_attempts (id, journey, status, document, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		a.ID,
		a.Journey,
		string(a.Status),
		string(doc),
		a.CreatedAt,
		a.UpdatedAt,
		a.ExpiresAt,
	)
	if err != nil {
		return errors.Wrap(err, "journey: insert attempt")
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Attempt, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `
		SELECT document FROM auth_attempts
		WHERE id = $1 AND expires_at > NOW() - make_interval(secs => $2)
	`, id, ExpiredRetention.Seconds()).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "journey: select attempt")
	}
	return decodeAttempt([]byte(doc))
}

func (s *PostgresStore) Update(ctx context.Context, a *Attempt) error {
	doc, err := encodeAttempt(a)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE auth_attempts
		SET status = $2, document = $3, updated_at = $4
		WHERE id = $1
	`, a.ID, string(a.Status), string(doc), a.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "journey: update attempt")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "journey: update attempt")
	}
	if n == 0 {
		return ErrAttemptNotFound
	}
	return nil
}

// DeleteExpired removes attempts past their expiry and retention.
func (s *PostgresStore) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM auth_attempts WHERE expires_at <= NOW() - make_interval(secs => $1)`,
		ExpiredRetention.Seconds())
	if err != nil {
		return 0, errors.Wrap(err, "journey: delete expired attempts")
	}
	return res.RowsAffected()
}

// Ping checks database connectivity for readiness probes.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
