package memory_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"studycore/internal/infra/persistence/memory"
	"studycore/pkg/domain"
)

var epoch = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func newStore() *memory.Store {
	s := memory.NewStore()
	s.SetNowFunc(func() time.Time { return epoch })
	return s
}

func TestTransactionRollbackOnError(t *testing.T) {
	store := newStore()
	ctx := context.Background()

	err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.CreateStudy(domain.Study{Code: "A-1", Title: "A"}); err != nil {
			return err
		}
		return fmt.Errorf("boom")
	})
	if err == nil || err.Error() != "boom" {
		t.Fatalf("expected propagated error, got %v", err)
	}
	if studies := store.ListStudies(); len(studies) != 0 {
		t.Fatalf("failed transaction must not commit, found %d studies", len(studies))
	}
}

func TestUpdateStudyRevisionConflict(t *testing.T) {
	store := newStore()
	ctx := context.Background()

	var study domain.Study
	if err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		study, err = tx.CreateStudy(domain.Study{Code: "A-1", Title: "A", Status: domain.StudyStatusPlanning})
		return err
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if study.Revision != 1 {
		t.Fatalf("fresh study revision = %d", study.Revision)
	}

	err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateStudy(study.ID, study.Revision+5, func(s *domain.Study) error {
			s.Title = "B"
			return nil
		})
		return err
	})
	var conflict domain.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if conflict.ActualRevision != 1 {
		t.Fatalf("unexpected conflict: %+v", conflict)
	}

	if err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		updated, err := tx.UpdateStudy(study.ID, study.Revision, func(s *domain.Study) error {
			s.Title = "B"
			return nil
		})
		if err != nil {
			return err
		}
		if updated.Revision != 2 {
			t.Fatalf("revision not bumped: %d", updated.Revision)
		}
		return nil
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
}

func TestDeleteProtocolVersionCascadesAmendments(t *testing.T) {
	store := newStore()
	ctx := context.Background()

	var versionID string
	if err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		study, err := tx.CreateStudy(domain.Study{Code: "A-1", Title: "A"})
		if err != nil {
			return err
		}
		version, err := tx.CreateProtocolVersion(domain.ProtocolVersion{StudyID: study.ID, VersionNumber: "v1.0", Status: domain.VersionStatusDraft})
		if err != nil {
			return err
		}
		versionID = version.ID
		_, err = tx.CreateAmendment(domain.Amendment{ProtocolVersionID: versionID, AmendmentNumber: 1, Status: domain.AmendmentStatusDraft, Type: domain.AmendmentTypeMinor, Title: "x"})
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.DeleteProtocolVersion(versionID)
	}); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if err := store.View(ctx, func(view domain.TransactionView) error {
		if _, ok := view.FindProtocolVersion(versionID); ok {
			t.Fatalf("version survived deletion")
		}
		if amendments := view.ListAmendments(versionID); len(amendments) != 0 {
			t.Fatalf("amendments survived deletion: %d", len(amendments))
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestCreateAmendmentRejectsDuplicateNumber(t *testing.T) {
	store := newStore()
	ctx := context.Background()

	err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		study, err := tx.CreateStudy(domain.Study{Code: "A-1", Title: "A"})
		if err != nil {
			return err
		}
		version, err := tx.CreateProtocolVersion(domain.ProtocolVersion{StudyID: study.ID, VersionNumber: "v1.0", Status: domain.VersionStatusDraft})
		if err != nil {
			return err
		}
		if _, err := tx.CreateAmendment(domain.Amendment{ProtocolVersionID: version.ID, AmendmentNumber: 1, Status: domain.AmendmentStatusDraft, Type: domain.AmendmentTypeMinor}); err != nil {
			return err
		}
		_, err = tx.CreateAmendment(domain.Amendment{ProtocolVersionID: version.ID, AmendmentNumber: 1, Status: domain.AmendmentStatusDraft, Type: domain.AmendmentTypeMinor})
		return err
	})
	if err == nil {
		t.Fatalf("expected duplicate amendment number rejection")
	}
}

func TestComputationLogOrderingAndLimit(t *testing.T) {
	store := newStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		entry := domain.ComputationLogEntry{
			StudyID:    "st-1",
			OldStatus:  domain.StudyStatusPlanning,
			NewStatus:  domain.StudyStatusPlanning,
			Success:    true,
			Reason:     fmt.Sprintf("run %d", i),
			RecordedAt: epoch.Add(time.Duration(i) * time.Minute),
		}
		if err := store.AppendComputation(ctx, entry); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := store.AppendComputation(ctx, domain.ComputationLogEntry{StudyID: "st-2", Success: true, RecordedAt: epoch}); err != nil {
		t.Fatalf("append other study: %v", err)
	}

	history, err := store.ComputationHistory(ctx, "st-1", 2)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("limit ignored, got %d entries", len(history))
	}
	if history[0].Reason != "run 2" || history[1].Reason != "run 1" {
		t.Fatalf("expected newest first, got %s then %s", history[0].Reason, history[1].Reason)
	}

	since, err := store.ComputationsSince(ctx, epoch.Add(90*time.Second))
	if err != nil {
		t.Fatalf("since: %v", err)
	}
	if len(since) != 1 || since[0].Reason != "run 2" {
		t.Fatalf("unexpected window result: %+v", since)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	store := newStore()
	ctx := context.Background()

	if err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		study, err := tx.CreateStudy(domain.Study{Code: "A-1", Title: "A", Status: domain.StudyStatusActive})
		if err != nil {
			return err
		}
		version, err := tx.CreateProtocolVersion(domain.ProtocolVersion{StudyID: study.ID, VersionNumber: "v1.0", Status: domain.VersionStatusActive})
		if err != nil {
			return err
		}
		_, err = tx.CreateAmendment(domain.Amendment{ProtocolVersionID: version.ID, AmendmentNumber: 1, Status: domain.AmendmentStatusApproved, Type: domain.AmendmentTypeMinor})
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.AppendComputation(ctx, domain.ComputationLogEntry{StudyID: "st-1", Success: true, RecordedAt: epoch}); err != nil {
		t.Fatalf("append: %v", err)
	}

	restored := memory.NewStore()
	restored.ImportState(store.ExportState())

	if len(restored.ListStudies()) != 1 {
		t.Fatalf("studies lost in round trip")
	}
	history, err := restored.ComputationHistory(ctx, "st-1", 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("computation log lost in round trip")
	}
}
