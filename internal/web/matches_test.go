package web

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/kozaktomas/photo-sentry/internal/store"
)

func seedMatch(ts *testServer, id, assetID, groupID string) {
	ts.matches.AddMatch(store.MatchRecord{
		ID:               id,
		ProtectedAssetID: assetID,
		SourceURL:        fmt.Sprintf("https://reuse.example.com/%s", id),
		MatchType:        store.MatchTypeIdentity,
		Similarity:       0.88,
		DiscoveryEngine:  "facecheck",
		CandidateGroupID: groupID,
		Status:           store.MatchStatusNew,
		CreatedAt:        time.Now(),
		LastSeenAt:       time.Now(),
	})
}

func TestGetMatch(t *testing.T) {
	ts := newTestServer(t)
	seedMatch(ts, "match-1", "asset-1", "group-1")

	rec := ts.get(t, "/api/v1/matches/match-1")

	assertStatusCode(t, rec, http.StatusOK)
	var payload matchPayload
	parseJSONResponse(t, rec, &payload)
	if payload.ID != "match-1" || payload.AssetID != "asset-1" {
		t.Errorf("unexpected match: %+v", payload)
	}
	if payload.MatchType != store.MatchTypeIdentity {
		t.Errorf("expected an identity match, got '%s'", payload.MatchType)
	}
	if payload.DiscoveryEngine != "facecheck" {
		t.Errorf("expected engine 'facecheck', got '%s'", payload.DiscoveryEngine)
	}
}

func TestGetMatch_NotFound(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.get(t, "/api/v1/matches/ghost")

	assertStatusCode(t, rec, http.StatusNotFound)
	assertJSONError(t, rec, "match not found")
}

func TestListMatchesByGroup(t *testing.T) {
	ts := newTestServer(t)
	seedMatch(ts, "match-1", "asset-1", "group-1")
	seedMatch(ts, "match-2", "asset-1", "group-1")
	seedMatch(ts, "match-3", "asset-2", "group-2")

	rec := ts.get(t, "/api/v1/matches?group=group-1")

	assertStatusCode(t, rec, http.StatusOK)
	var payloads []matchPayload
	parseJSONResponse(t, rec, &payloads)
	if len(payloads) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(payloads))
	}
	for _, p := range payloads {
		if p.CandidateGroupID != "group-1" {
			t.Errorf("unexpected group on match %s: %s", p.ID, p.CandidateGroupID)
		}
	}
}

func TestListMatchesByGroup_MissingGroup(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.get(t, "/api/v1/matches")

	assertStatusCode(t, rec, http.StatusBadRequest)
	assertJSONError(t, rec, "group query parameter is required")
}

func TestListAlerts(t *testing.T) {
	ts := newTestServer(t)
	for i, owner := range []string{"owner-1", "owner-1", "owner-2"} {
		alert := &store.Alert{
			OwnerID:       owner,
			MatchRecordID: fmt.Sprintf("match-%d", i+1),
			Severity:      store.AlertSeverityHigh,
			Type:          store.MatchTypeIdentity,
			Message:       "your photo appeared on a new page",
		}
		if err := ts.alerts.CreateAlert(context.Background(), alert); err != nil {
			t.Fatalf("failed to seed alert: %v", err)
		}
	}

	rec := ts.get(t, "/api/v1/alerts?owner_id=owner-1")

	assertStatusCode(t, rec, http.StatusOK)
	var payloads []alertPayload
	parseJSONResponse(t, rec, &payloads)
	if len(payloads) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(payloads))
	}
	for _, p := range payloads {
		if p.OwnerID != "owner-1" {
			t.Errorf("unexpected owner on alert %s: %s", p.ID, p.OwnerID)
		}
		if p.Severity != store.AlertSeverityHigh {
			t.Errorf("unexpected severity on alert %s: %s", p.ID, p.Severity)
		}
	}
}

func TestListAlerts_MissingOwner(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.get(t, "/api/v1/alerts")

	assertStatusCode(t, rec, http.StatusBadRequest)
	assertJSONError(t, rec, "owner_id query parameter is required")
}

func TestListAlerts_StoreFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.alerts.ListAlertsError = fmt.Errorf("connection reset")

	rec := ts.get(t, "/api/v1/alerts?owner_id=owner-1")

	assertStatusCode(t, rec, http.StatusInternalServerError)
	assertJSONError(t, rec, "failed to list alerts")
}
