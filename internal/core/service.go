package core

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"studycore/pkg/domain"
)

// Service exposes the lifecycle operations callers drive directly: creating
// studies, versions, and amendments, and moving them through their state
// machines. Illegal transitions and validation failures are results the
// caller must branch on, not errors; only infrastructure faults and
// optimistic-lock conflicts surface as errors.
type Service struct {
	store     PersistentStore
	validator *CrossEntityValidator
	clock     Clock
	logger    zerolog.Logger
}

// NewService constructs a service backed by the supplied store. A nil clock
// falls back to the system clock.
func NewService(store PersistentStore, clock Clock) *Service {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &Service{
		store:     store,
		validator: NewCrossEntityValidator(),
		clock:     clock,
		logger:    zerolog.Nop(),
	}
}

// SetLogger replaces the service logger.
func (s *Service) SetLogger(logger zerolog.Logger) { s.logger = logger }

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore { return s.store }

// TransitionOutcome reports how a requested status change was handled. When
// the decision rejects or validation fails, Applied is false and the entity
// is unchanged. Validation stays empty and valid when the validator never
// ran, so a rejected change does not read as a validation failure.
type TransitionOutcome struct {
	Decision   Decision          `json:"decision"`
	Validation ValidationResult  `json:"validation"`
	Applied    bool              `json:"applied"`
	Events     []TransitionEvent `json:"events,omitempty"`
}

// CreateStudy persists a new study. Status defaults to PLANNING.
func (s *Service) CreateStudy(ctx context.Context, study Study) (Study, error) {
	if study.Status == "" {
		study.Status = StudyStatusPlanning
	}
	if !study.Status.Valid() {
		return Study{}, fmt.Errorf("unknown study status %q", study.Status)
	}
	var created Study
	err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		created, err = tx.CreateStudy(study)
		return err
	})
	return created, err
}

// UpdateStudyDetails edits study metadata. Edits are allowed only while the
// study is in an early lifecycle state; once approved the record is frozen.
func (s *Service) UpdateStudyDetails(ctx context.Context, studyID string, revision int64, title, description, sponsor *string) (Study, error) {
	var updated Study
	err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		study, ok := tx.Snapshot().FindStudy(studyID)
		if !ok {
			return ErrNotFound{Kind: KindStudy, ID: studyID}
		}
		if !study.Status.AllowsModification() {
			return fmt.Errorf("study %s is %s and no longer editable", studyID, study.Status)
		}
		var err error
		updated, err = tx.UpdateStudy(studyID, revision, func(st *Study) error {
			if title != nil {
				st.Title = *title
			}
			if description != nil {
				st.Description = description
			}
			if sponsor != nil {
				st.Sponsor = *sponsor
			}
			return nil
		})
		return err
	})
	return updated, err
}

// CreateProtocolVersion proposes the next protocol version for a study. The
// version number is derived from the newest existing version and the
// amendment type; the first version is always v1.0 with type INITIAL.
func (s *Service) CreateProtocolVersion(ctx context.Context, studyID string, amendmentType AmendmentType, summary *string) (ProtocolVersion, error) {
	if amendmentType != "" && !amendmentType.Valid() {
		return ProtocolVersion{}, fmt.Errorf("unknown amendment type %q", amendmentType)
	}
	var created ProtocolVersion
	err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		view := tx.Snapshot()
		if _, ok := view.FindStudy(studyID); !ok {
			return ErrNotFound{Kind: KindStudy, ID: studyID}
		}
		latest, err := newestVersion(view.ListProtocolVersions(studyID))
		if err != nil {
			return err
		}

		version := ProtocolVersion{
			StudyID:       studyID,
			Status:        VersionStatusDraft,
			AmendmentType: amendmentType,
			Summary:       summary,
		}
		if latest == nil {
			version.VersionNumber = domain.InitialVersionNumber
			version.AmendmentType = AmendmentTypeInitial
		} else {
			next, err := domain.NextVersionNumber(latest.VersionNumber, amendmentType)
			if err != nil {
				return err
			}
			version.VersionNumber = next
			prev := latest.ID
			version.PreviousVersionID = &prev
		}
		created, err = tx.CreateProtocolVersion(version)
		return err
	})
	return created, err
}

func newestVersion(versions []ProtocolVersion) (*ProtocolVersion, error) {
	var latest *ProtocolVersion
	for i := range versions {
		ver := versions[i]
		if latest == nil {
			latest = &ver
			continue
		}
		cmp, err := domain.CompareVersionNumbers(ver.VersionNumber, latest.VersionNumber)
		if err != nil {
			return nil, err
		}
		if cmp > 0 {
			latest = &ver
		}
	}
	return latest, nil
}

// FileAmendment records a new amendment against a protocol version. A zero
// amendment number is assigned the next free number; an explicit duplicate is
// rejected.
func (s *Service) FileAmendment(ctx context.Context, versionID string, amendment Amendment) (Amendment, error) {
	if amendment.Status == "" {
		amendment.Status = AmendmentStatusDraft
	}
	if !amendment.Status.Valid() {
		return Amendment{}, fmt.Errorf("unknown amendment status %q", amendment.Status)
	}
	if amendment.Type != "" && !amendment.Type.Valid() {
		return Amendment{}, fmt.Errorf("unknown amendment type %q", amendment.Type)
	}
	var created Amendment
	err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		view := tx.Snapshot()
		if _, ok := view.FindProtocolVersion(versionID); !ok {
			return ErrNotFound{Kind: KindProtocolVersion, ID: versionID}
		}
		highest := 0
		for _, existing := range view.ListAmendments(versionID) {
			if existing.AmendmentNumber == amendment.AmendmentNumber && amendment.AmendmentNumber != 0 {
				return fmt.Errorf("amendment number %d already exists on protocol version %s", amendment.AmendmentNumber, versionID)
			}
			if existing.AmendmentNumber > highest {
				highest = existing.AmendmentNumber
			}
		}
		if amendment.AmendmentNumber == 0 {
			amendment.AmendmentNumber = highest + 1
		}
		amendment.ProtocolVersionID = versionID
		var err error
		created, err = tx.CreateAmendment(amendment)
		return err
	})
	return created, err
}

// ChangeStudyStatus requests a study transition. The state machine is
// consulted first, then the cross-entity validator for the target; the
// change is applied only when both pass. The caller's revision token guards
// against racing a stale snapshot.
func (s *Service) ChangeStudyStatus(ctx context.Context, studyID string, revision int64, target StudyStatus) (Study, TransitionOutcome, error) {
	var updated Study
	outcome := TransitionOutcome{Validation: domain.NewValidationResult()}
	err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		view := tx.Snapshot()
		study, ok := view.FindStudy(studyID)
		if !ok {
			return ErrNotFound{Kind: KindStudy, ID: studyID}
		}
		updated = study

		outcome.Decision = domain.CanTransitionStudy(study.Status, target)
		if !outcome.Decision.Allowed || outcome.Decision.NoOp {
			return nil
		}

		versions := view.ListProtocolVersions(studyID)
		amendments := view.ListStudyAmendments(studyID)
		outcome.Validation = s.validator.Validate(study, versions, amendments, &target, "status_change")
		if !outcome.Validation.Valid {
			return nil
		}

		now := s.clock.Now()
		var err error
		updated, err = tx.UpdateStudy(studyID, revision, func(st *Study) error {
			st.Status = target
			return nil
		})
		if err != nil {
			return err
		}
		outcome.Applied = true
		outcome.Events = append(outcome.Events, TransitionEvent{
			Entity:     KindStudy,
			EntityID:   studyID,
			From:       string(study.Status),
			To:         string(target),
			OccurredAt: now,
		})
		return nil
	})
	if err == nil && outcome.Applied {
		s.logger.Info().
			Str("study_id", studyID).
			Str("from", outcome.Events[0].From).
			Str("to", outcome.Events[0].To).
			Msg("study status changed")
	}
	return updated, outcome, err
}

// ChangeVersionStatus requests a protocol version transition, applying the
// mandated side effects atomically with the transition itself: entering
// APPROVED stamps the approver and timestamp, entering ACTIVE supersedes any
// other active version of the study and defaults the effective date.
func (s *Service) ChangeVersionStatus(ctx context.Context, versionID string, revision int64, target VersionStatus, approver string) (ProtocolVersion, TransitionOutcome, error) {
	var updated ProtocolVersion
	outcome := TransitionOutcome{Validation: domain.NewValidationResult()}
	err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		view := tx.Snapshot()
		version, ok := view.FindProtocolVersion(versionID)
		if !ok {
			return ErrNotFound{Kind: KindProtocolVersion, ID: versionID}
		}
		updated = version

		outcome.Decision = domain.CanTransitionVersion(version.Status, target)
		if !outcome.Decision.Allowed || outcome.Decision.NoOp {
			return nil
		}
		if target == VersionStatusApproved && approver == "" {
			return fmt.Errorf("approver required to approve protocol version %s", versionID)
		}

		now := s.clock.Now()
		if target == VersionStatusActive {
			for _, other := range view.ListProtocolVersions(version.StudyID) {
				if other.ID == versionID || other.Status != VersionStatusActive {
					continue
				}
				if _, err := tx.UpdateProtocolVersion(other.ID, other.Revision, func(v *ProtocolVersion) error {
					v.Status = VersionStatusSuperseded
					return nil
				}); err != nil {
					return err
				}
				outcome.Events = append(outcome.Events, TransitionEvent{
					Entity:     KindProtocolVersion,
					EntityID:   other.ID,
					From:       string(VersionStatusActive),
					To:         string(VersionStatusSuperseded),
					OccurredAt: now,
				})
			}
		}

		var err error
		updated, err = tx.UpdateProtocolVersion(versionID, revision, func(v *ProtocolVersion) error {
			v.Status = target
			switch target {
			case VersionStatusApproved:
				by := approver
				at := now
				v.ApprovedBy = &by
				v.ApprovedAt = &at
			case VersionStatusActive:
				if v.EffectiveDate == nil {
					effective := now
					v.EffectiveDate = &effective
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		outcome.Applied = true
		outcome.Events = append(outcome.Events, TransitionEvent{
			Entity:     KindProtocolVersion,
			EntityID:   versionID,
			From:       string(version.Status),
			To:         string(target),
			OccurredAt: now,
		})
		return nil
	})
	return updated, outcome, err
}

// ChangeAmendmentStatus requests an amendment transition.
func (s *Service) ChangeAmendmentStatus(ctx context.Context, amendmentID string, revision int64, target AmendmentStatus) (Amendment, TransitionOutcome, error) {
	var updated Amendment
	outcome := TransitionOutcome{Validation: domain.NewValidationResult()}
	err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		view := tx.Snapshot()
		found, ok := view.FindAmendment(amendmentID)
		if !ok {
			return ErrNotFound{Kind: KindAmendment, ID: amendmentID}
		}
		updated = found

		outcome.Decision = domain.CanTransitionAmendment(found.Status, target)
		if !outcome.Decision.Allowed || outcome.Decision.NoOp {
			return nil
		}

		now := s.clock.Now()
		var err error
		updated, err = tx.UpdateAmendment(amendmentID, revision, func(a *Amendment) error {
			a.Status = target
			return nil
		})
		if err != nil {
			return err
		}
		outcome.Applied = true
		outcome.Events = append(outcome.Events, TransitionEvent{
			Entity:     KindAmendment,
			EntityID:   amendmentID,
			From:       string(found.Status),
			To:         string(target),
			OccurredAt: now,
		})
		return nil
	})
	return updated, outcome, err
}

// DeleteProtocolVersion removes a version that never left DRAFT. Versions in
// any later state are part of the study's regulatory history and stay.
func (s *Service) DeleteProtocolVersion(ctx context.Context, versionID string) error {
	return s.store.RunInTransaction(ctx, func(tx Transaction) error {
		version, ok := tx.Snapshot().FindProtocolVersion(versionID)
		if !ok {
			return ErrNotFound{Kind: KindProtocolVersion, ID: versionID}
		}
		if version.Status != VersionStatusDraft {
			return fmt.Errorf("protocol version %s is %s; only DRAFT versions can be deleted", versionID, version.Status)
		}
		return tx.DeleteProtocolVersion(versionID)
	})
}

// ValidateStudy runs the cross-entity validator against the study's current
// persisted state, either for an intended target status or, when target is
// nil, for current-state consistency.
func (s *Service) ValidateStudy(ctx context.Context, studyID string, target *StudyStatus) (ValidationResult, error) {
	var result ValidationResult
	err := s.store.View(ctx, func(view TransactionView) error {
		study, ok := view.FindStudy(studyID)
		if !ok {
			return ErrNotFound{Kind: KindStudy, ID: studyID}
		}
		versions := view.ListProtocolVersions(studyID)
		amendments := view.ListStudyAmendments(studyID)
		result = s.validator.Validate(study, versions, amendments, target, "validate")
		return nil
	})
	return result, err
}
