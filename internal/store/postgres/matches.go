package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/photo-sentry/internal/store"
)

// MatchRepository provides PostgreSQL-backed match record storage.
type MatchRepository struct {
	pool *Pool
}

// NewMatchRepository creates a new PostgreSQL match repository
func NewMatchRepository(pool *Pool) *MatchRepository {
	return &MatchRepository{pool: pool}
}

// InScanTx runs fn inside one transaction bounded by timeout. Scan runs can
// take minutes, so the deadline covers the whole callback, not individual
// statements.
func (r *MatchRepository) InScanTx(ctx context.Context, timeout time.Duration, fn func(store.ScanTx) error) error {
	txCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		txCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := r.pool.BeginTx(txCtx, nil)
	if err != nil {
		return err
	}

	if err := fn(&scanTx{tx: tx}); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing scan transaction: %w", err)
	}

	return nil
}

// scanTx wraps one open scan-run transaction. Every upsert runs inside its
// own savepoint: a failed statement aborts only the savepoint, and the
// transaction keeps accepting writes.
type scanTx struct {
	tx  *sql.Tx
	seq int
}

// UpsertMatch creates or refreshes the (protected_asset_id, source_url) row.
// A later sighting advances last_seen_at and the verification-derived fields;
// status, created_at, match type, engines and linkage stay as first written.
func (s *scanTx) UpsertMatch(ctx context.Context, record *store.MatchRecord) (*store.UpsertOutcome, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Status == "" {
		record.Status = store.MatchStatusNew
	}

	s.seq++
	savepoint := fmt.Sprintf("match_upsert_%d", s.seq)

	if _, err := s.tx.ExecContext(ctx, "SAVEPOINT "+savepoint); err != nil {
		return nil, fmt.Errorf("create savepoint: %w", err)
	}

	query := `
		INSERT INTO match_records
			(id, protected_asset_id, source_url, match_type, similarity,
			 discovery_engine, verification_engine, parent_candidate_id,
			 candidate_group_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (protected_asset_id, source_url) DO UPDATE
		SET last_seen_at = NOW(),
			similarity = EXCLUDED.similarity,
			verification_engine = EXCLUDED.verification_engine
		RETURNING id, (xmax = 0)
	`

	var outcome store.UpsertOutcome
	err := s.tx.QueryRowContext(ctx, query,
		record.ID,
		record.ProtectedAssetID,
		record.SourceURL,
		record.MatchType,
		record.Similarity,
		record.DiscoveryEngine,
		record.VerificationEngine,
		nullIfEmpty(record.ParentCandidateID),
		record.CandidateGroupID,
		record.Status,
	).Scan(&outcome.ID, &outcome.Created)
	if err != nil {
		if _, rbErr := s.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+savepoint); rbErr != nil {
			return nil, fmt.Errorf("upsert match record: %w (savepoint rollback failed: %v)", err, rbErr)
		}
		return nil, fmt.Errorf("upsert match record: %w", err)
	}

	if _, err := s.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+savepoint); err != nil {
		return nil, fmt.Errorf("release savepoint: %w", err)
	}

	record.ID = outcome.ID
	return &outcome, nil
}

const matchColumns = `id, protected_asset_id, source_url, match_type, similarity,
	discovery_engine, verification_engine, COALESCE(parent_candidate_id::text, ''),
	candidate_group_id, status, created_at, last_seen_at`

// GetMatch retrieves a match record by id, returns nil if not found
func (r *MatchRepository) GetMatch(ctx context.Context, id string) (*store.MatchRecord, error) {
	query := `SELECT ` + matchColumns + ` FROM match_records WHERE id = $1`

	record, err := scanMatch(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query match record: %w", err)
	}

	return record, nil
}

// ListMatchesByAsset returns all match records for one asset, newest first
func (r *MatchRepository) ListMatchesByAsset(ctx context.Context, assetID string) ([]store.MatchRecord, error) {
	query := `
		SELECT ` + matchColumns + `
		FROM match_records
		WHERE protected_asset_id = $1
		ORDER BY last_seen_at DESC
	`
	return r.listMatches(ctx, query, assetID)
}

// ListMatchesByGroup returns the records written by one scan run
func (r *MatchRepository) ListMatchesByGroup(ctx context.Context, groupID string) ([]store.MatchRecord, error) {
	query := `
		SELECT ` + matchColumns + `
		FROM match_records
		WHERE candidate_group_id = $1
		ORDER BY created_at
	`
	return r.listMatches(ctx, query, groupID)
}

// CountMatches returns the total number of match records
func (r *MatchRepository) CountMatches(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM match_records").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count match records: %w", err)
	}
	return count, nil
}

func (r *MatchRepository) listMatches(ctx context.Context, query string, arg any) ([]store.MatchRecord, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query match records: %w", err)
	}
	defer rows.Close()

	var records []store.MatchRecord
	for rows.Next() {
		record, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan match record: %w", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate match records: %w", err)
	}

	return records, nil
}

func scanMatch(row rowScanner) (*store.MatchRecord, error) {
	var record store.MatchRecord
	err := row.Scan(
		&record.ID,
		&record.ProtectedAssetID,
		&record.SourceURL,
		&record.MatchType,
		&record.Similarity,
		&record.DiscoveryEngine,
		&record.VerificationEngine,
		&record.ParentCandidateID,
		&record.CandidateGroupID,
		&record.Status,
		&record.CreatedAt,
		&record.LastSeenAt,
	)
	if err != nil {
		return nil, err
	}
	return &record, nil
}
