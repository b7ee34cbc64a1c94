package core_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"studycore/internal/core"
	"studycore/internal/infra/persistence/memory"
	"studycore/pkg/domain"
)

var engineEpoch = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func newEngineFixture(t *testing.T) (*core.Engine, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	store.SetNowFunc(func() time.Time { return engineEpoch })
	engine := core.NewEngine(store, store, core.WithClock(domain.FixedClock{Instant: engineEpoch}))
	return engine, store
}

func seedStudy(t *testing.T, store *memory.Store, status domain.StudyStatus, versionStatuses ...domain.VersionStatus) domain.Study {
	t.Helper()
	var study domain.Study
	err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		created, err := tx.CreateStudy(domain.Study{Code: "ONC-001", Title: "Oncology Phase II", Status: status})
		if err != nil {
			return err
		}
		study = created
		for i, vs := range versionStatuses {
			ver := domain.ProtocolVersion{
				StudyID:       study.ID,
				VersionNumber: domain.FormatVersionNumber(i+1, 0),
				Status:        vs,
			}
			if _, err := tx.CreateProtocolVersion(ver); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed study: %v", err)
	}
	return study
}

func TestComputeStatusAppliesDerivedStatus(t *testing.T) {
	engine, store := newEngineFixture(t)
	study := seedStudy(t, store, domain.StudyStatusProtocolDevelopment, domain.VersionStatusUnderReview)

	res, err := engine.ComputeStatus(context.Background(), study.ID, "review submitted")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if !res.Success || !res.StatusChanged {
		t.Fatalf("expected applied change, got %+v", res)
	}
	if res.OldStatus != domain.StudyStatusProtocolDevelopment || res.NewStatus != domain.StudyStatusUnderReview {
		t.Fatalf("unexpected statuses: %s -> %s", res.OldStatus, res.NewStatus)
	}

	stored, ok := store.GetStudy(study.ID)
	if !ok {
		t.Fatalf("study vanished")
	}
	if stored.Status != domain.StudyStatusUnderReview {
		t.Fatalf("stored status = %s", stored.Status)
	}
	if stored.Revision != study.Revision+1 {
		t.Fatalf("revision not bumped: %d", stored.Revision)
	}

	history, err := engine.ComputationHistory(context.Background(), study.ID, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected one log entry, got %d", len(history))
	}
	entry := history[0]
	if !entry.Success || !entry.StatusChanged || entry.Reason != "review submitted" {
		t.Fatalf("unexpected log entry: %+v", entry)
	}
}

func TestComputeStatusIsIdempotent(t *testing.T) {
	engine, store := newEngineFixture(t)
	study := seedStudy(t, store, domain.StudyStatusProtocolDevelopment, domain.VersionStatusUnderReview)

	if _, err := engine.ComputeStatus(context.Background(), study.ID, ""); err != nil {
		t.Fatalf("first compute: %v", err)
	}
	res, err := engine.ComputeStatus(context.Background(), study.ID, "")
	if err != nil {
		t.Fatalf("second compute: %v", err)
	}
	if !res.Success || res.StatusChanged {
		t.Fatalf("second run must be a successful no-op, got %+v", res)
	}
	if res.OldStatus != domain.StudyStatusUnderReview || res.NewStatus != domain.StudyStatusUnderReview {
		t.Fatalf("unexpected statuses: %s -> %s", res.OldStatus, res.NewStatus)
	}
}

func TestComputeStatusLeavesTerminalStudiesAlone(t *testing.T) {
	engine, store := newEngineFixture(t)
	study := seedStudy(t, store, domain.StudyStatusCompleted, domain.VersionStatusActive)

	res, err := engine.ComputeStatus(context.Background(), study.ID, "")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if !res.Success || res.StatusChanged {
		t.Fatalf("terminal study must not change, got %+v", res)
	}
	if res.NewStatus != domain.StudyStatusCompleted {
		t.Fatalf("status = %s", res.NewStatus)
	}
}

func TestComputeStatusPreservesSuspension(t *testing.T) {
	engine, store := newEngineFixture(t)
	study := seedStudy(t, store, domain.StudyStatusSuspended, domain.VersionStatusActive)

	res, err := engine.ComputeStatus(context.Background(), study.ID, "")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if res.StatusChanged || res.NewStatus != domain.StudyStatusSuspended {
		t.Fatalf("suspension must never lift automatically, got %+v", res)
	}
}

func TestComputeStatusRejectsIllegalDerivation(t *testing.T) {
	engine, store := newEngineFixture(t)
	// An ACTIVE version on a PLANNING study derives ACTIVE, which the study
	// machine does not allow from PLANNING.
	study := seedStudy(t, store, domain.StudyStatusPlanning, domain.VersionStatusActive)

	res, err := engine.ComputeStatus(context.Background(), study.ID, "")
	if err != nil {
		t.Fatalf("illegal derivation is a recorded failure, not an error: %v", err)
	}
	if res.Success {
		t.Fatalf("expected failed result, got %+v", res)
	}
	if !strings.Contains(res.Error, "derived status rejected") {
		t.Fatalf("unexpected error text: %s", res.Error)
	}

	stored, _ := store.GetStudy(study.ID)
	if stored.Status != domain.StudyStatusPlanning {
		t.Fatalf("status must be untouched, got %s", stored.Status)
	}

	history, err := engine.ComputationHistory(context.Background(), study.ID, 1)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].Success || history[0].ErrorMessage == nil {
		t.Fatalf("failure must be logged with an error message: %+v", history)
	}
}

func TestComputeStatusValidationGate(t *testing.T) {
	engine, store := newEngineFixture(t)
	// Two ACTIVE versions derive ACTIVE from APPROVED; the transition is
	// legal but cross-entity validation rejects the aggregate.
	study := seedStudy(t, store, domain.StudyStatusApproved, domain.VersionStatusActive, domain.VersionStatusActive)

	res, err := engine.ComputeStatus(context.Background(), study.ID, "")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if res.Success {
		t.Fatalf("expected validation failure, got %+v", res)
	}
	if !strings.Contains(res.Error, "validation failed") {
		t.Fatalf("unexpected error text: %s", res.Error)
	}

	stored, _ := store.GetStudy(study.ID)
	if stored.Status != domain.StudyStatusApproved {
		t.Fatalf("status must be untouched, got %s", stored.Status)
	}
}

func TestComputeStatusUnknownStudy(t *testing.T) {
	engine, _ := newEngineFixture(t)

	res, err := engine.ComputeStatus(context.Background(), "missing", "")
	if err == nil {
		t.Fatalf("expected not-found error")
	}
	var notFound domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if res.Success {
		t.Fatalf("result must report failure: %+v", res)
	}
}

func TestBatchComputeIsolatesFailures(t *testing.T) {
	engine, store := newEngineFixture(t)
	healthy := seedStudy(t, store, domain.StudyStatusProtocolDevelopment, domain.VersionStatusUnderReview)
	broken := seedStudy(t, store, domain.StudyStatusPlanning, domain.VersionStatusActive)

	summary, err := engine.BatchCompute(context.Background())
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if summary.Total != 2 || summary.Succeeded != 1 || summary.Failed != 1 || summary.Changed != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.Cancelled {
		t.Fatalf("batch was not cancelled")
	}

	healthyStored, _ := store.GetStudy(healthy.ID)
	if healthyStored.Status != domain.StudyStatusUnderReview {
		t.Fatalf("healthy study not updated: %s", healthyStored.Status)
	}
	brokenStored, _ := store.GetStudy(broken.ID)
	if brokenStored.Status != domain.StudyStatusPlanning {
		t.Fatalf("broken study must be untouched: %s", brokenStored.Status)
	}
}

func TestBatchComputeHonorsCancellation(t *testing.T) {
	engine, store := newEngineFixture(t)
	seedStudy(t, store, domain.StudyStatusProtocolDevelopment, domain.VersionStatusUnderReview)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := engine.BatchCompute(ctx)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if !summary.Cancelled || summary.Total != 0 {
		t.Fatalf("expected cancelled empty batch, got %+v", summary)
	}
}

func TestCheckSystemHealthThreshold(t *testing.T) {
	engine, store := newEngineFixture(t)
	ctx := context.Background()

	report, err := engine.CheckSystemHealth(ctx)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if !report.Healthy || report.RecentComputations != 0 {
		t.Fatalf("idle system must be healthy: %+v", report)
	}

	// Four successes and one failure is a 20% error rate, above the default
	// 10% threshold.
	for i := 0; i < 5; i++ {
		entry := domain.ComputationLogEntry{
			StudyID:    "st-1",
			OldStatus:  domain.StudyStatusActive,
			NewStatus:  domain.StudyStatusActive,
			Success:    i != 0,
			Reason:     "scheduled batch computation",
			RecordedAt: engineEpoch.Add(-time.Hour),
		}
		if err := store.AppendComputation(ctx, entry); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	report, err = engine.CheckSystemHealth(ctx)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if report.Healthy {
		t.Fatalf("20%% error rate must be unhealthy: %+v", report)
	}
	if report.RecentComputations != 5 || report.RecentErrors != 1 {
		t.Fatalf("unexpected counts: %+v", report)
	}
}

func TestAnalyticsWindows(t *testing.T) {
	engine, store := newEngineFixture(t)
	ctx := context.Background()

	appendEntry := func(studyID string, changed, success bool, age time.Duration) {
		t.Helper()
		err := store.AppendComputation(ctx, domain.ComputationLogEntry{
			StudyID:       studyID,
			OldStatus:     domain.StudyStatusApproved,
			NewStatus:     domain.StudyStatusActive,
			StatusChanged: changed,
			Success:       success,
			RecordedAt:    engineEpoch.Add(-age),
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	appendEntry("st-1", true, true, 2*24*time.Hour)
	appendEntry("st-1", true, true, 3*24*time.Hour)
	appendEntry("st-2", true, true, 1*24*time.Hour)
	appendEntry("st-2", false, false, 12*time.Hour)
	appendEntry("st-3", true, true, 30*24*time.Hour) // outside the window

	changes, err := engine.RecentStatusChanges(ctx, 7)
	if err != nil {
		t.Fatalf("recent changes: %v", err)
	}
	if len(changes) != 3 {
		t.Fatalf("expected 3 changes in window, got %d", len(changes))
	}

	frequent, err := engine.StudiesWithFrequentChanges(ctx, 7, 2)
	if err != nil {
		t.Fatalf("frequent changes: %v", err)
	}
	if len(frequent) != 1 || frequent[0].StudyID != "st-1" || frequent[0].Changes != 2 {
		t.Fatalf("unexpected frequent list: %+v", frequent)
	}

	failures, err := engine.ComputationErrors(ctx, 7)
	if err != nil {
		t.Fatalf("errors: %v", err)
	}
	if len(failures) != 1 || failures[0].StudyID != "st-2" {
		t.Fatalf("unexpected failures: %+v", failures)
	}
}

func TestDeriveStudyStatusPrecedence(t *testing.T) {
	mk := func(statuses ...domain.VersionStatus) []domain.ProtocolVersion {
		out := make([]domain.ProtocolVersion, len(statuses))
		for i, s := range statuses {
			out[i] = domain.ProtocolVersion{Status: s}
		}
		return out
	}

	cases := []struct {
		name     string
		current  domain.StudyStatus
		versions []domain.ProtocolVersion
		want     domain.StudyStatus
	}{
		{"no versions", domain.StudyStatusActive, nil, domain.StudyStatusPlanning},
		{"active wins over approved", domain.StudyStatusApproved, mk(domain.VersionStatusApproved, domain.VersionStatusActive), domain.StudyStatusActive},
		{"approved wins over review", domain.StudyStatusUnderReview, mk(domain.VersionStatusUnderReview, domain.VersionStatusApproved), domain.StudyStatusApproved},
		{"submitted counts as review", domain.StudyStatusProtocolDevelopment, mk(domain.VersionStatusSubmitted), domain.StudyStatusUnderReview},
		{"draft only", domain.StudyStatusPlanning, mk(domain.VersionStatusDraft), domain.StudyStatusProtocolDevelopment},
		{"suspension sticks", domain.StudyStatusSuspended, mk(domain.VersionStatusActive), domain.StudyStatusSuspended},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := core.DeriveStudyStatus(tc.current, tc.versions)
			if got != tc.want {
				t.Fatalf("derive(%s, ...) = %s, want %s", tc.current, got, tc.want)
			}
		})
	}
}
