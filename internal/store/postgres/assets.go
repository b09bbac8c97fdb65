package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/photo-sentry/internal/store"
)

// AssetRepository provides PostgreSQL-backed protected asset storage.
type AssetRepository struct {
	pool *Pool
}

// NewAssetRepository creates a new PostgreSQL asset repository
func NewAssetRepository(pool *Pool) *AssetRepository {
	return &AssetRepository{pool: pool}
}

const assetColumns = `id, owner_id, name, image_url, identity_vector, content_vector,
	COALESCE(content_fingerprint, ''), status, created_at, updated_at`

// CreateAsset stores a new protected asset, generating the id when missing.
func (r *AssetRepository) CreateAsset(ctx context.Context, asset *store.ProtectedAsset) error {
	if asset.ID == "" {
		asset.ID = uuid.NewString()
	}
	if asset.Status == "" {
		asset.Status = store.AssetStatusActive
	}

	query := `
		INSERT INTO protected_assets
			(id, owner_id, name, image_url, identity_vector, content_vector, content_fingerprint, status)
		VALUES ($1, $2, $3, $4, $5::vector, $6::vector, $7, $8)
		RETURNING created_at, updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		asset.ID,
		asset.OwnerID,
		asset.Name,
		asset.ImageURL,
		vectorOrNil(asset.IdentityVector),
		vectorOrNil(asset.ContentVector),
		nullIfEmpty(asset.ContentFingerprint),
		asset.Status,
	).Scan(&asset.CreatedAt, &asset.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert protected asset: %w", err)
	}

	return nil
}

// GetAsset retrieves an asset by id, returns nil if not found
func (r *AssetRepository) GetAsset(ctx context.Context, id string) (*store.ProtectedAsset, error) {
	query := `SELECT ` + assetColumns + ` FROM protected_assets WHERE id = $1`

	asset, err := scanAsset(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query protected asset: %w", err)
	}

	return asset, nil
}

// ListAssets returns assets filtered by status; an empty status returns all
func (r *AssetRepository) ListAssets(ctx context.Context, status string) ([]store.ProtectedAsset, error) {
	query := `
		SELECT ` + assetColumns + `
		FROM protected_assets
		WHERE $1 = '' OR status = $1
		ORDER BY created_at
	`

	rows, err := r.pool.Query(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("query protected assets: %w", err)
	}
	defer rows.Close()

	var assets []store.ProtectedAsset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan protected asset: %w", err)
		}
		assets = append(assets, *asset)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate protected assets: %w", err)
	}

	return assets, nil
}

// UpdateAssetVectors refreshes the stored vectors and fingerprint. Nil
// vectors and an empty fingerprint keep the stored values.
func (r *AssetRepository) UpdateAssetVectors(ctx context.Context, id string, identity, content []float32, fingerprint string) error {
	query := `
		UPDATE protected_assets
		SET identity_vector = COALESCE($2::vector, identity_vector),
			content_vector = COALESCE($3::vector, content_vector),
			content_fingerprint = COALESCE($4, content_fingerprint),
			updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id,
		vectorOrNil(identity),
		vectorOrNil(content),
		nullIfEmpty(fingerprint),
	)
	if err != nil {
		return fmt.Errorf("update asset vectors: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update asset vectors rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("asset %s not found", id)
	}

	return nil
}

// rowScanner covers sql.Row and sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAsset(row rowScanner) (*store.ProtectedAsset, error) {
	var asset store.ProtectedAsset
	var identityVec, contentVec *pgvector.Vector

	err := row.Scan(
		&asset.ID,
		&asset.OwnerID,
		&asset.Name,
		&asset.ImageURL,
		&identityVec,
		&contentVec,
		&asset.ContentFingerprint,
		&asset.Status,
		&asset.CreatedAt,
		&asset.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if identityVec != nil {
		asset.IdentityVector = identityVec.Slice()
	}
	if contentVec != nil {
		asset.ContentVector = contentVec.Slice()
	}

	return &asset, nil
}

// vectorOrNil keeps SQL NULL for absent vectors.
func vectorOrNil(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	return pgvector.NewVector(v)
}

// nullIfEmpty keeps SQL NULL for absent strings.
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
