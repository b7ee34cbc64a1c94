package core_test

import (
	"strings"
	"testing"
	"time"

	"studycore/internal/core"
	"studycore/pkg/domain"
)

func statusPtr(s domain.StudyStatus) *domain.StudyStatus { return &s }

func containsMessage(messages []string, fragment string) bool {
	for _, msg := range messages {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

func TestValidateReviewRequiresProtocolVersion(t *testing.T) {
	v := core.NewCrossEntityValidator()
	study := domain.Study{Base: domain.Base{ID: "st-1"}, Status: domain.StudyStatusPlanning}

	res := v.Validate(study, nil, nil, statusPtr(domain.StudyStatusUnderReview), "change_status")
	if res.Valid {
		t.Fatalf("expected invalid result, got %+v", res)
	}
	if !containsMessage(res.Errors, "at least one protocol version before review") {
		t.Fatalf("missing review error, got %v", res.Errors)
	}
}

func TestValidateActiveRejectsTwoActiveVersions(t *testing.T) {
	v := core.NewCrossEntityValidator()
	study := domain.Study{Base: domain.Base{ID: "st-1"}, Status: domain.StudyStatusActive}
	versions := []domain.ProtocolVersion{
		{Base: domain.Base{ID: "pv-1"}, StudyID: "st-1", VersionNumber: "v1.0", Status: domain.VersionStatusActive},
		{Base: domain.Base{ID: "pv-2"}, StudyID: "st-1", VersionNumber: "v2.0", Status: domain.VersionStatusActive},
	}

	res := v.Validate(study, versions, nil, statusPtr(domain.StudyStatusActive), "change_status")
	if res.Valid {
		t.Fatalf("expected invalid result with two active versions")
	}
	if !containsMessage(res.Errors, "only one is allowed") {
		t.Fatalf("missing single-active error, got %v", res.Errors)
	}
	if !containsMessage(res.Errors, "superseded by newer active version v2.0") {
		t.Fatalf("missing supersession error, got %v", res.Errors)
	}
	if res.Details["activeVersions"] != 2 {
		t.Fatalf("expected activeVersions detail 2, got %v", res.Details["activeVersions"])
	}
}

func TestValidateActiveRequiresActiveVersion(t *testing.T) {
	v := core.NewCrossEntityValidator()
	study := domain.Study{Base: domain.Base{ID: "st-1"}, Status: domain.StudyStatusApproved}
	versions := []domain.ProtocolVersion{
		{Base: domain.Base{ID: "pv-1"}, StudyID: "st-1", VersionNumber: "v1.0", Status: domain.VersionStatusApproved},
	}

	res := v.Validate(study, versions, nil, statusPtr(domain.StudyStatusActive), "change_status")
	if res.Valid {
		t.Fatalf("expected invalid result without an active version")
	}
	if !containsMessage(res.Errors, "no active protocol version") {
		t.Fatalf("missing active-version error, got %v", res.Errors)
	}
}

func TestValidateIntegrityDuplicateAmendmentNumbers(t *testing.T) {
	v := core.NewCrossEntityValidator()
	study := domain.Study{Base: domain.Base{ID: "st-1"}, Status: domain.StudyStatusActive}
	versions := []domain.ProtocolVersion{
		{Base: domain.Base{ID: "pv-1"}, StudyID: "st-1", VersionNumber: "v1.0", Status: domain.VersionStatusActive},
	}
	amendments := []domain.Amendment{
		{Base: domain.Base{ID: "am-1"}, ProtocolVersionID: "pv-1", AmendmentNumber: 3, Status: domain.AmendmentStatusApproved, Type: domain.AmendmentTypeMinor},
		{Base: domain.Base{ID: "am-2"}, ProtocolVersionID: "pv-1", AmendmentNumber: 3, Status: domain.AmendmentStatusDraft, Type: domain.AmendmentTypeMinor},
	}

	res := v.Validate(study, versions, amendments, nil, "inspect")
	if res.Valid {
		t.Fatalf("expected invalid result with duplicate amendment numbers")
	}
	if !containsMessage(res.Errors, "duplicate amendment number 3 on protocol version pv-1") {
		t.Fatalf("missing duplicate-number error, got %v", res.Errors)
	}
}

func TestValidateIntegrityOrphanedAmendment(t *testing.T) {
	v := core.NewCrossEntityValidator()
	study := domain.Study{Base: domain.Base{ID: "st-1"}, Status: domain.StudyStatusPlanning}
	amendments := []domain.Amendment{
		{Base: domain.Base{ID: "am-1"}, ProtocolVersionID: "pv-missing", AmendmentNumber: 1, Status: domain.AmendmentStatusDraft, Type: domain.AmendmentTypeMinor},
	}

	res := v.Validate(study, nil, amendments, nil, "inspect")
	if res.Valid {
		t.Fatalf("expected invalid result with orphaned amendment")
	}
	if !containsMessage(res.Errors, "references unknown protocol version pv-missing") {
		t.Fatalf("missing orphan error, got %v", res.Errors)
	}
}

func TestValidateSharedEffectiveDateWarns(t *testing.T) {
	v := core.NewCrossEntityValidator()
	study := domain.Study{Base: domain.Base{ID: "st-1"}, Status: domain.StudyStatusActive}
	date := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	versions := []domain.ProtocolVersion{
		{Base: domain.Base{ID: "pv-1"}, StudyID: "st-1", VersionNumber: "v1.0", Status: domain.VersionStatusSuperseded, EffectiveDate: &date},
		{Base: domain.Base{ID: "pv-2"}, StudyID: "st-1", VersionNumber: "v2.0", Status: domain.VersionStatusActive, EffectiveDate: &date},
	}

	res := v.Validate(study, versions, nil, nil, "inspect")
	if !res.Valid {
		t.Fatalf("shared effective dates must warn, not invalidate: %v", res.Errors)
	}
	if !containsMessage(res.Warnings, "share effective date 2026-03-01") {
		t.Fatalf("missing shared-date warning, got %v", res.Warnings)
	}
}

func TestValidateWithdrawnRejectsActiveVersion(t *testing.T) {
	v := core.NewCrossEntityValidator()
	study := domain.Study{Base: domain.Base{ID: "st-1"}, Status: domain.StudyStatusActive}
	versions := []domain.ProtocolVersion{
		{Base: domain.Base{ID: "pv-1"}, StudyID: "st-1", VersionNumber: "v1.0", Status: domain.VersionStatusActive},
	}

	res := v.Validate(study, versions, nil, statusPtr(domain.StudyStatusWithdrawn), "change_status")
	if res.Valid {
		t.Fatalf("expected invalid result when withdrawing with active version")
	}
	if !containsMessage(res.Errors, "still ACTIVE on withdrawn study") {
		t.Fatalf("missing withdrawal error, got %v", res.Errors)
	}
	if !containsMessage(res.Warnings, "documents the withdrawal reason") {
		t.Fatalf("missing withdrawal-reason warning, got %v", res.Warnings)
	}
}

func TestValidateTerminatedAcceptsDocumentedReason(t *testing.T) {
	v := core.NewCrossEntityValidator()
	study := domain.Study{Base: domain.Base{ID: "st-1"}, Status: domain.StudyStatusActive}
	versions := []domain.ProtocolVersion{
		{Base: domain.Base{ID: "pv-1"}, StudyID: "st-1", VersionNumber: "v1.0", Status: domain.VersionStatusSuperseded},
	}
	amendments := []domain.Amendment{
		{
			Base:              domain.Base{ID: "am-1"},
			ProtocolVersionID: "pv-1",
			AmendmentNumber:   1,
			Status:            domain.AmendmentStatusApproved,
			Type:              domain.AmendmentTypeAdministrative,
			Title:             "Early termination due to enrollment futility",
		},
	}

	res := v.Validate(study, versions, amendments, statusPtr(domain.StudyStatusTerminated), "change_status")
	if !res.Valid {
		t.Fatalf("expected valid result, got errors %v", res.Errors)
	}
	if containsMessage(res.Warnings, "documents the termination reason") {
		t.Fatalf("termination reason is documented, warning is wrong: %v", res.Warnings)
	}
}

func TestValidateCurrentActiveStudyWithoutActiveVersion(t *testing.T) {
	v := core.NewCrossEntityValidator()
	study := domain.Study{Base: domain.Base{ID: "st-1"}, Status: domain.StudyStatusActive}
	versions := []domain.ProtocolVersion{
		{Base: domain.Base{ID: "pv-1"}, StudyID: "st-1", VersionNumber: "v1.0", Status: domain.VersionStatusApproved},
	}

	res := v.Validate(study, versions, nil, nil, "inspect")
	if res.Valid {
		t.Fatalf("ACTIVE study without active version must be invalid")
	}
	if !containsMessage(res.Errors, "is ACTIVE but has no active protocol version") {
		t.Fatalf("missing consistency error, got %v", res.Errors)
	}
}

func TestValidateSuspendedWarnsOnPendingSafetyAmendmentAnyVersion(t *testing.T) {
	v := core.NewCrossEntityValidator()
	study := domain.Study{Base: domain.Base{ID: "st-1"}, Status: domain.StudyStatusActive}
	versions := []domain.ProtocolVersion{
		{Base: domain.Base{ID: "pv-1"}, StudyID: "st-1", VersionNumber: "v1.0", Status: domain.VersionStatusActive},
		{Base: domain.Base{ID: "pv-2"}, StudyID: "st-1", VersionNumber: "v2.0", Status: domain.VersionStatusApproved},
	}
	amendments := []domain.Amendment{
		{Base: domain.Base{ID: "am-1"}, ProtocolVersionID: "pv-2", AmendmentNumber: 1, Status: domain.AmendmentStatusSubmitted, Type: domain.AmendmentTypeSafety},
	}

	res := v.Validate(study, versions, amendments, statusPtr(domain.StudyStatusSuspended), "change_status")
	if !res.Valid {
		t.Fatalf("pending safety amendment should warn, not invalidate: %v", res.Errors)
	}
	if !containsMessage(res.Warnings, "safety amendment 1 on version v2.0 is pending during suspension") {
		t.Fatalf("missing safety-amendment warning, got %v", res.Warnings)
	}
}

func TestValidateSuspendedWithoutActiveVersion(t *testing.T) {
	v := core.NewCrossEntityValidator()
	study := domain.Study{Base: domain.Base{ID: "st-1"}, Status: domain.StudyStatusActive}
	versions := []domain.ProtocolVersion{
		{Base: domain.Base{ID: "pv-1"}, StudyID: "st-1", VersionNumber: "v1.0", Status: domain.VersionStatusSuperseded},
	}
	amendments := []domain.Amendment{
		{Base: domain.Base{ID: "am-1"}, ProtocolVersionID: "pv-1", AmendmentNumber: 1, Status: domain.AmendmentStatusUnderReview, Type: domain.AmendmentTypeSafety},
	}

	res := v.Validate(study, versions, amendments, statusPtr(domain.StudyStatusSuspended), "change_status")
	if !containsMessage(res.Warnings, "no protocol version remains active while study is suspended") {
		t.Fatalf("missing no-active-version warning, got %v", res.Warnings)
	}
	if !containsMessage(res.Warnings, "safety amendment 1 on version v1.0 is pending during suspension") {
		t.Fatalf("missing safety-amendment warning, got %v", res.Warnings)
	}
}

func TestValidateCompletedWarnsWithoutCloseout(t *testing.T) {
	v := core.NewCrossEntityValidator()
	study := domain.Study{Base: domain.Base{ID: "st-1"}, Status: domain.StudyStatusActive}
	versions := []domain.ProtocolVersion{
		{Base: domain.Base{ID: "pv-1"}, StudyID: "st-1", VersionNumber: "v1.0", Status: domain.VersionStatusActive},
	}

	res := v.Validate(study, versions, nil, statusPtr(domain.StudyStatusCompleted), "change_status")
	if !res.Valid {
		t.Fatalf("completion without close-out amendment should warn only: %v", res.Errors)
	}
	if !containsMessage(res.Warnings, "close-out") {
		t.Fatalf("missing close-out warning, got %v", res.Warnings)
	}
}

func TestValidateCompletedReportsVersionNumberForPendingAmendment(t *testing.T) {
	v := core.NewCrossEntityValidator()
	study := domain.Study{Base: domain.Base{ID: "st-1"}, Status: domain.StudyStatusActive}
	versions := []domain.ProtocolVersion{
		{Base: domain.Base{ID: "pv-1"}, StudyID: "st-1", VersionNumber: "v1.0", Status: domain.VersionStatusActive},
	}
	amendments := []domain.Amendment{
		{Base: domain.Base{ID: "am-1"}, ProtocolVersionID: "pv-1", AmendmentNumber: 2, Status: domain.AmendmentStatusSubmitted, Type: domain.AmendmentTypeMinor},
	}

	res := v.Validate(study, versions, amendments, statusPtr(domain.StudyStatusCompleted), "change_status")
	if !containsMessage(res.Warnings, "amendment 2 on version v1.0 is not final") {
		t.Fatalf("warning should name the version number, got %v", res.Warnings)
	}
}
