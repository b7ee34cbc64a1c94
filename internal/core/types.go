package core

import "studycore/pkg/domain"

type (
	EntityKind           = domain.EntityKind
	StudyStatus          = domain.StudyStatus
	VersionStatus        = domain.VersionStatus
	AmendmentStatus      = domain.AmendmentStatus
	AmendmentType        = domain.AmendmentType
	Base                 = domain.Base
	Study                = domain.Study
	ProtocolVersion      = domain.ProtocolVersion
	Amendment            = domain.Amendment
	ComputationLogEntry  = domain.ComputationLogEntry
	TransitionEvent      = domain.TransitionEvent
	Decision             = domain.Decision
	ValidationResult     = domain.ValidationResult
	InfrastructureStatus = domain.InfrastructureStatus
	Transaction          = domain.Transaction
	TransactionView      = domain.TransactionView
	PersistentStore      = domain.PersistentStore
	ComputationLogStore  = domain.ComputationLogStore
	Clock                = domain.Clock
	ErrNotFound          = domain.ErrNotFound
	ConflictError        = domain.ConflictError
)

const (
	KindStudy           = domain.KindStudy
	KindProtocolVersion = domain.KindProtocolVersion
	KindAmendment       = domain.KindAmendment
)

const (
	StudyStatusPlanning            = domain.StudyStatusPlanning
	StudyStatusProtocolDevelopment = domain.StudyStatusProtocolDevelopment
	StudyStatusUnderReview         = domain.StudyStatusUnderReview
	StudyStatusApproved            = domain.StudyStatusApproved
	StudyStatusActive              = domain.StudyStatusActive
	StudyStatusSuspended           = domain.StudyStatusSuspended
	StudyStatusCompleted           = domain.StudyStatusCompleted
	StudyStatusTerminated          = domain.StudyStatusTerminated
	StudyStatusWithdrawn           = domain.StudyStatusWithdrawn
)

const (
	VersionStatusDraft           = domain.VersionStatusDraft
	VersionStatusUnderReview     = domain.VersionStatusUnderReview
	VersionStatusAmendmentReview = domain.VersionStatusAmendmentReview
	VersionStatusSubmitted       = domain.VersionStatusSubmitted
	VersionStatusApproved        = domain.VersionStatusApproved
	VersionStatusActive          = domain.VersionStatusActive
	VersionStatusSuperseded      = domain.VersionStatusSuperseded
	VersionStatusWithdrawn       = domain.VersionStatusWithdrawn
)

const (
	AmendmentStatusDraft       = domain.AmendmentStatusDraft
	AmendmentStatusUnderReview = domain.AmendmentStatusUnderReview
	AmendmentStatusSubmitted   = domain.AmendmentStatusSubmitted
	AmendmentStatusApproved    = domain.AmendmentStatusApproved
	AmendmentStatusImplemented = domain.AmendmentStatusImplemented
	AmendmentStatusRejected    = domain.AmendmentStatusRejected
	AmendmentStatusWithdrawn   = domain.AmendmentStatusWithdrawn
)

const (
	AmendmentTypeInitial        = domain.AmendmentTypeInitial
	AmendmentTypeMajor          = domain.AmendmentTypeMajor
	AmendmentTypeMinor          = domain.AmendmentTypeMinor
	AmendmentTypeSafety         = domain.AmendmentTypeSafety
	AmendmentTypeAdministrative = domain.AmendmentTypeAdministrative
)
