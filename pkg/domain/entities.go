// Package domain defines the core persistent entities, value types, and
// transition primitives used by studycore.
package domain

import "time"

// EntityKind identifies the type of record stored in the core domain.
type EntityKind string

// Supported entity kind identifiers used in transition events and persistence buckets.
const (
	// KindStudy identifies a clinical study record.
	KindStudy EntityKind = "study"
	// KindProtocolVersion identifies a protocol version record.
	KindProtocolVersion EntityKind = "protocol_version"
	// KindAmendment identifies an amendment record.
	KindAmendment EntityKind = "amendment"
)

// StudyStatus enumerates the top-level study lifecycle states.
type StudyStatus string

// Canonical study statuses. PLANNING is the initial state; COMPLETED,
// TERMINATED, and WITHDRAWN are terminal.
const (
	StudyStatusPlanning            StudyStatus = "PLANNING"
	StudyStatusProtocolDevelopment StudyStatus = "PROTOCOL_DEVELOPMENT"
	StudyStatusUnderReview         StudyStatus = "UNDER_REVIEW"
	StudyStatusApproved            StudyStatus = "APPROVED"
	StudyStatusActive              StudyStatus = "ACTIVE"
	StudyStatusSuspended           StudyStatus = "SUSPENDED"
	StudyStatusCompleted           StudyStatus = "COMPLETED"
	StudyStatusTerminated          StudyStatus = "TERMINATED"
	StudyStatusWithdrawn           StudyStatus = "WITHDRAWN"
)

// VersionStatus enumerates protocol version lifecycle states.
type VersionStatus string

// Canonical protocol version statuses. SUPERSEDED and WITHDRAWN are terminal.
const (
	VersionStatusDraft           VersionStatus = "DRAFT"
	VersionStatusUnderReview     VersionStatus = "UNDER_REVIEW"
	VersionStatusAmendmentReview VersionStatus = "AMENDMENT_REVIEW"
	VersionStatusSubmitted       VersionStatus = "SUBMITTED"
	VersionStatusApproved        VersionStatus = "APPROVED"
	VersionStatusActive          VersionStatus = "ACTIVE"
	VersionStatusSuperseded      VersionStatus = "SUPERSEDED"
	VersionStatusWithdrawn       VersionStatus = "WITHDRAWN"
)

// AmendmentStatus enumerates amendment lifecycle states.
type AmendmentStatus string

// Canonical amendment statuses. DRAFT, UNDER_REVIEW, and SUBMITTED are
// pending; the rest are final.
const (
	AmendmentStatusDraft       AmendmentStatus = "DRAFT"
	AmendmentStatusUnderReview AmendmentStatus = "UNDER_REVIEW"
	AmendmentStatusSubmitted   AmendmentStatus = "SUBMITTED"
	AmendmentStatusApproved    AmendmentStatus = "APPROVED"
	AmendmentStatusImplemented AmendmentStatus = "IMPLEMENTED"
	AmendmentStatusRejected    AmendmentStatus = "REJECTED"
	AmendmentStatusWithdrawn   AmendmentStatus = "WITHDRAWN"
)

// AmendmentType classifies the regulatory weight of a protocol change. The
// classification drives version numbering: MAJOR and SAFETY bump the major
// component, MINOR and ADMINISTRATIVE bump the minor component.
type AmendmentType string

// Canonical amendment type classifications shared by versions and amendments.
const (
	AmendmentTypeInitial        AmendmentType = "INITIAL"
	AmendmentTypeMajor          AmendmentType = "MAJOR"
	AmendmentTypeMinor          AmendmentType = "MINOR"
	AmendmentTypeSafety         AmendmentType = "SAFETY"
	AmendmentTypeAdministrative AmendmentType = "ADMINISTRATIVE"
)

// Base contains common fields for all domain records. Revision is the
// optimistic-concurrency token incremented on every committed update.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Revision  int64     `json:"revision"`
}

// Study represents a clinical study tracked by the system. Studies are
// created in PLANNING and are never hard-deleted; closure happens through
// the terminal statuses.
type Study struct {
	Base
	Code        string      `json:"code"`
	Title       string      `json:"title"`
	Description *string     `json:"description,omitempty"`
	Status      StudyStatus `json:"status"`
	Sponsor     string      `json:"sponsor"`
}

// ProtocolVersion is a versioned snapshot of a study's protocol. At most one
// version per study may be ACTIVE at any time.
type ProtocolVersion struct {
	Base
	StudyID           string        `json:"study_id"`
	VersionNumber     string        `json:"version_number"`
	Status            VersionStatus `json:"status"`
	AmendmentType     AmendmentType `json:"amendment_type"`
	EffectiveDate     *time.Time    `json:"effective_date"`
	PreviousVersionID *string       `json:"previous_version_id"`
	ApprovedBy        *string       `json:"approved_by,omitempty"`
	ApprovedAt        *time.Time    `json:"approved_at"`
	Summary           *string       `json:"summary,omitempty"`
}

// Amendment is a change request filed against a specific protocol version.
// Amendment numbers are unique within their version.
type Amendment struct {
	Base
	ProtocolVersionID string          `json:"protocol_version_id"`
	AmendmentNumber   int             `json:"amendment_number"`
	Status            AmendmentStatus `json:"status"`
	Type              AmendmentType   `json:"type"`
	Title             string          `json:"title"`
	Description       *string         `json:"description,omitempty"`
}

// ComputationLogEntry is the immutable record of one status-computation run.
// Entries are append-only; retention is an external concern.
type ComputationLogEntry struct {
	ID            string      `json:"id"`
	StudyID       string      `json:"study_id"`
	OldStatus     StudyStatus `json:"old_status"`
	NewStatus     StudyStatus `json:"new_status"`
	StatusChanged bool        `json:"status_changed"`
	Success       bool        `json:"success"`
	ErrorMessage  *string     `json:"error_message,omitempty"`
	Reason        string      `json:"reason"`
	DurationMS    float64     `json:"duration_ms"`
	RecordedAt    time.Time   `json:"recorded_at"`
}

// TransitionEvent is the audit record emitted when a state-machine transition
// is applied. It is produced by the transition itself rather than inferred by
// diffing entities after the fact.
type TransitionEvent struct {
	Entity     EntityKind `json:"entity"`
	EntityID   string     `json:"entity_id"`
	From       string     `json:"from"`
	To         string     `json:"to"`
	OccurredAt time.Time  `json:"occurred_at"`
}
