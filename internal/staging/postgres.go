package staging

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(20)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CountPending(ctx context.Context, language string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM pending_quotes WHERE language=$1 AND approved=FALSE
	`, language).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pending quotes: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) Insert(ctx context.Context, quote PendingQuote) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_quotes (id, text, source, language, submitted_by, submitted_at, approved)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, quote.ID, quote.Text, quote.Source, quote.Language, quote.SubmittedBy, quote.Timestamp, quote.Approved)
	if err != nil {
		return fmt.Errorf("insert pending quote: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (PendingQuote, error) {
	var quote PendingQuote
	err := s.db.QueryRowContext(ctx, `
		SELECT id, text, source, language, submitted_by, submitted_at, approved
		FROM pending_quotes
		WHERE id=$1
	`, id).Scan(&quote.ID, &quote.Text, &quote.Source, &quote.Language, &quote.SubmittedBy, &quote.Timestamp, &quote.Approved)
	if errors.Is(err, sql.ErrNoRows) {
		return PendingQuote{}, ErrNotFound
	}
	if err != nil {
		return PendingQuote{}, fmt.Errorf("get pending quote: %w", err)
	}
	return quote, nil
}

func (s *PostgresStore) ListOldest(ctx context.Context, language string, limit int) ([]PendingQuote, error) {
	query := `
		SELECT id, text, source, language, submitted_by, submitted_at, approved
		FROM pending_quotes
		WHERE approved=FALSE AND language=$1
		ORDER BY submitted_at ASC, id ASC
		LIMIT $2
	`
	args := []any{language, limit}
	if language == AllLanguages {
		query = `
			SELECT id, text, source, language, submitted_by, submitted_at, approved
			FROM pending_quotes
			WHERE approved=FALSE
			ORDER BY submitted_at ASC, id ASC
			LIMIT $1
		`
		args = []any{limit}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pending quotes: %w", err)
	}
	defer rows.Close()

	quotes := make([]PendingQuote, 0, limit)
	for rows.Next() {
		var quote PendingQuote
		if err := rows.Scan(&quote.ID, &quote.Text, &quote.Source, &quote.Language, &quote.SubmittedBy, &quote.Timestamp, &quote.Approved); err != nil {
			return nil, fmt.Errorf("scan pending quote: %w", err)
		}
		quotes = append(quotes, quote)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending quotes: %w", err)
	}
	return quotes, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM pending_quotes WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete pending quote: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete pending quote: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
