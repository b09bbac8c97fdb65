package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/kozaktomas/photo-sentry/internal/store"
)

// AlertRepository provides PostgreSQL-backed alert storage.
type AlertRepository struct {
	pool *Pool
}

// NewAlertRepository creates a new PostgreSQL alert repository
func NewAlertRepository(pool *Pool) *AlertRepository {
	return &AlertRepository{pool: pool}
}

// CreateAlert stores a new alert and fills in its id and creation time
func (r *AlertRepository) CreateAlert(ctx context.Context, alert *store.Alert) error {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}

	query := `
		INSERT INTO alerts (id, owner_id, match_record_id, severity, alert_type, message, analysis_info)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`

	err := r.pool.QueryRow(ctx, query,
		alert.ID,
		alert.OwnerID,
		alert.MatchRecordID,
		alert.Severity,
		alert.Type,
		alert.Message,
		alert.AnalysisInfo,
	).Scan(&alert.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}

	return nil
}

// ListAlertsByOwner returns all alerts for one owner, newest first
func (r *AlertRepository) ListAlertsByOwner(ctx context.Context, ownerID string) ([]store.Alert, error) {
	query := `
		SELECT id, owner_id, match_record_id, severity, alert_type, message, analysis_info, created_at
		FROM alerts
		WHERE owner_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []store.Alert
	for rows.Next() {
		var alert store.Alert
		err := rows.Scan(
			&alert.ID,
			&alert.OwnerID,
			&alert.MatchRecordID,
			&alert.Severity,
			&alert.Type,
			&alert.Message,
			&alert.AnalysisInfo,
			&alert.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}

	return alerts, nil
}
