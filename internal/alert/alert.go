// Package alert dispatches owner notifications for qualifying match records.
package alert

import (
	"context"
	"fmt"

	"github.com/kozaktomas/photo-sentry/internal/logging"
	"github.com/kozaktomas/photo-sentry/internal/store"
)

// Alerter persists alerts and logs every dispatch. It is called strictly
// after the scan-run transaction commits; a failed dispatch is the caller's
// to count and is never retried.
type Alerter struct {
	alerts store.AlertStore
	log    *logging.Logger
}

// New creates an alerter backed by the given alert store
func New(alerts store.AlertStore, log *logging.Logger) *Alerter {
	return &Alerter{alerts: alerts, log: log}
}

// Send persists one alert and fills in its id and creation time
func (a *Alerter) Send(ctx context.Context, alert *store.Alert) error {
	if err := a.alerts.CreateAlert(ctx, alert); err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}

	a.log.Info("alert dispatched",
		"owner", alert.OwnerID,
		"severity", alert.Severity,
		"type", alert.Type,
		"match", alert.MatchRecordID,
	)
	return nil
}

// SeverityFor maps a match type to an alert severity. Exact copies and
// confirmed identity matches are the findings owners act on immediately.
func SeverityFor(matchType string) string {
	switch matchType {
	case store.MatchTypeIdentity, store.MatchTypeExactCopy:
		return store.AlertSeverityHigh
	default:
		return store.AlertSeverityMedium
	}
}

// MessageFor builds the owner-facing alert message for one finding.
func MessageFor(assetName, matchType, sourceURL string) string {
	switch matchType {
	case store.MatchTypeIdentity:
		return fmt.Sprintf("Person from %q found at %s", assetName, sourceURL)
	case store.MatchTypeExactCopy:
		return fmt.Sprintf("Exact copy of %q found at %s", assetName, sourceURL)
	case store.MatchTypeAlteredCopy:
		return fmt.Sprintf("Altered copy of %q found at %s", assetName, sourceURL)
	default:
		return fmt.Sprintf("Possible reuse of %q found at %s", assetName, sourceURL)
	}
}
