package domain

import (
	"fmt"
	"sort"
)

// Decision reports whether a proposed state transition is allowed. A
// same-state transition is reported as an allowed no-op.
type Decision struct {
	Allowed bool
	NoOp    bool
	Reason  string
}

// Allow returns an allowing decision.
func allow() Decision { return Decision{Allowed: true} }

func noop() Decision { return Decision{Allowed: true, NoOp: true} }

func reject(format string, args ...any) Decision {
	return Decision{Reason: fmt.Sprintf(format, args...)}
}

// studyTransitions is the canonical study status adjacency map. The source
// system carried a second, slightly divergent table with DRAFT and REJECTED
// states; this table is the authoritative one (see DESIGN.md).
var studyTransitions = map[StudyStatus]map[StudyStatus]struct{}{
	StudyStatusPlanning: {
		StudyStatusProtocolDevelopment: {},
		StudyStatusWithdrawn:           {},
	},
	StudyStatusProtocolDevelopment: {
		StudyStatusUnderReview: {},
		StudyStatusWithdrawn:   {},
	},
	StudyStatusUnderReview: {
		StudyStatusApproved:            {},
		StudyStatusProtocolDevelopment: {},
		StudyStatusWithdrawn:           {},
	},
	StudyStatusApproved: {
		StudyStatusActive:    {},
		StudyStatusWithdrawn: {},
	},
	StudyStatusActive: {
		StudyStatusSuspended:  {},
		StudyStatusCompleted:  {},
		StudyStatusTerminated: {},
	},
	StudyStatusSuspended: {
		StudyStatusActive:     {},
		StudyStatusTerminated: {},
	},
	StudyStatusCompleted:  {},
	StudyStatusTerminated: {},
	StudyStatusWithdrawn:  {},
}

var versionTransitions = map[VersionStatus]map[VersionStatus]struct{}{
	VersionStatusDraft: {
		VersionStatusUnderReview:     {},
		VersionStatusAmendmentReview: {},
		VersionStatusSubmitted:       {},
		VersionStatusWithdrawn:       {},
	},
	VersionStatusUnderReview: {
		VersionStatusDraft:           {},
		VersionStatusAmendmentReview: {},
		VersionStatusSubmitted:       {},
		VersionStatusApproved:        {},
		VersionStatusWithdrawn:       {},
	},
	VersionStatusAmendmentReview: {
		VersionStatusDraft:       {},
		VersionStatusUnderReview: {},
		VersionStatusSubmitted:   {},
		VersionStatusApproved:    {},
		VersionStatusWithdrawn:   {},
	},
	VersionStatusSubmitted: {
		VersionStatusUnderReview:     {},
		VersionStatusAmendmentReview: {},
		VersionStatusApproved:        {},
		VersionStatusWithdrawn:       {},
	},
	VersionStatusApproved: {
		VersionStatusActive:    {},
		VersionStatusWithdrawn: {},
	},
	VersionStatusActive: {
		VersionStatusSuperseded: {},
	},
	VersionStatusSuperseded: {},
	VersionStatusWithdrawn:  {},
}

// amendmentTransitions models the amendment lifecycle. The cross-entity
// validator reasons only in terms of pending-vs-final, but the service still
// guards individual amendment moves through this table.
var amendmentTransitions = map[AmendmentStatus]map[AmendmentStatus]struct{}{
	AmendmentStatusDraft: {
		AmendmentStatusUnderReview: {},
		AmendmentStatusSubmitted:   {},
		AmendmentStatusWithdrawn:   {},
	},
	AmendmentStatusUnderReview: {
		AmendmentStatusDraft:     {},
		AmendmentStatusSubmitted: {},
		AmendmentStatusApproved:  {},
		AmendmentStatusRejected:  {},
		AmendmentStatusWithdrawn: {},
	},
	AmendmentStatusSubmitted: {
		AmendmentStatusUnderReview: {},
		AmendmentStatusApproved:    {},
		AmendmentStatusRejected:    {},
		AmendmentStatusWithdrawn:   {},
	},
	AmendmentStatusApproved: {
		AmendmentStatusImplemented: {},
		AmendmentStatusWithdrawn:   {},
	},
	AmendmentStatusImplemented: {},
	AmendmentStatusRejected:    {},
	AmendmentStatusWithdrawn:   {},
}

// Valid reports whether the status is a known study status.
func (s StudyStatus) Valid() bool {
	_, ok := studyTransitions[s]
	return ok
}

// IsTerminal reports whether the status admits no outbound transitions.
func (s StudyStatus) IsTerminal() bool {
	next, ok := studyTransitions[s]
	return ok && len(next) == 0
}

// AllowsModification reports whether study metadata may still be edited.
func (s StudyStatus) AllowsModification() bool {
	switch s {
	case StudyStatusPlanning, StudyStatusProtocolDevelopment, StudyStatusUnderReview:
		return true
	default:
		return false
	}
}

// RequiresProtocolVersion reports whether the status presumes at least one
// protocol version exists.
func (s StudyStatus) RequiresProtocolVersion() bool {
	switch s {
	case StudyStatusUnderReview, StudyStatusApproved, StudyStatusActive,
		StudyStatusSuspended, StudyStatusCompleted:
		return true
	default:
		return false
	}
}

// Valid reports whether the status is a known protocol version status.
func (s VersionStatus) Valid() bool {
	_, ok := versionTransitions[s]
	return ok
}

// IsTerminal reports whether the version status admits no outbound transitions.
func (s VersionStatus) IsTerminal() bool {
	next, ok := versionTransitions[s]
	return ok && len(next) == 0
}

// Valid reports whether the status is a known amendment status.
func (s AmendmentStatus) Valid() bool {
	_, ok := amendmentTransitions[s]
	return ok
}

// IsFinal reports whether the amendment has reached a final status.
func (s AmendmentStatus) IsFinal() bool {
	switch s {
	case AmendmentStatusApproved, AmendmentStatusImplemented,
		AmendmentStatusRejected, AmendmentStatusWithdrawn:
		return true
	default:
		return false
	}
}

// IsPending reports whether the amendment is still being worked.
func (s AmendmentStatus) IsPending() bool {
	return s.Valid() && !s.IsFinal()
}

// Valid reports whether the amendment type is a known classification.
func (t AmendmentType) Valid() bool {
	switch t {
	case AmendmentTypeInitial, AmendmentTypeMajor, AmendmentTypeMinor,
		AmendmentTypeSafety, AmendmentTypeAdministrative:
		return true
	default:
		return false
	}
}

// CanTransitionStudy decides whether a study may move between the given statuses.
func CanTransitionStudy(from, to StudyStatus) Decision {
	return decide("study", string(from), string(to), from.Valid(), to.Valid(), func() bool {
		_, ok := studyTransitions[from][to]
		return ok
	})
}

// CanTransitionVersion decides whether a protocol version may move between the given statuses.
func CanTransitionVersion(from, to VersionStatus) Decision {
	return decide("protocol version", string(from), string(to), from.Valid(), to.Valid(), func() bool {
		_, ok := versionTransitions[from][to]
		return ok
	})
}

// CanTransitionAmendment decides whether an amendment may move between the given statuses.
func CanTransitionAmendment(from, to AmendmentStatus) Decision {
	return decide("amendment", string(from), string(to), from.Valid(), to.Valid(), func() bool {
		_, ok := amendmentTransitions[from][to]
		return ok
	})
}

func decide(label, from, to string, fromValid, toValid bool, allowed func() bool) Decision {
	if !fromValid {
		return reject("unknown %s status %q", label, from)
	}
	if !toValid {
		return reject("unknown %s status %q", label, to)
	}
	if from == to {
		return noop()
	}
	if allowed() {
		return allow()
	}
	return reject("%s cannot move from %s to %s", label, from, to)
}

// EvaluateTransition dispatches a transition check by entity kind. Unknown
// kinds and unknown statuses are rejected with a descriptive reason.
func EvaluateTransition(kind EntityKind, from, to string) Decision {
	switch kind {
	case KindStudy:
		return CanTransitionStudy(StudyStatus(from), StudyStatus(to))
	case KindProtocolVersion:
		return CanTransitionVersion(VersionStatus(from), VersionStatus(to))
	case KindAmendment:
		return CanTransitionAmendment(AmendmentStatus(from), AmendmentStatus(to))
	default:
		return reject("unknown entity kind %q", kind)
	}
}

// AllowedStudyTransitions returns the sorted set of statuses reachable from the given one.
func AllowedStudyTransitions(from StudyStatus) []StudyStatus {
	next, ok := studyTransitions[from]
	if !ok {
		return nil
	}
	out := make([]StudyStatus, 0, len(next))
	for to := range next {
		out = append(out, to)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AllowedVersionTransitions returns the sorted set of statuses reachable from the given one.
func AllowedVersionTransitions(from VersionStatus) []VersionStatus {
	next, ok := versionTransitions[from]
	if !ok {
		return nil
	}
	out := make([]VersionStatus, 0, len(next))
	for to := range next {
		out = append(out, to)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// StudyStatuses returns all known study statuses in sorted order.
func StudyStatuses() []StudyStatus {
	out := make([]StudyStatus, 0, len(studyTransitions))
	for s := range studyTransitions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// VersionStatuses returns all known protocol version statuses in sorted order.
func VersionStatuses() []VersionStatus {
	out := make([]VersionStatus, 0, len(versionTransitions))
	for s := range versionTransitions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AmendmentStatuses returns all known amendment statuses in sorted order.
func AmendmentStatuses() []AmendmentStatus {
	out := make([]AmendmentStatus, 0, len(amendmentTransitions))
	for s := range amendmentTransitions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
