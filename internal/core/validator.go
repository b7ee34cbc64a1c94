package core

import (
	"sort"
	"strings"

	"studycore/pkg/domain"
)

// CrossEntityValidator checks consistency across a study, its protocol
// versions, and their amendments. Individual state machines cannot express
// these invariants; the validator owns them.
//
// Dispatch is a table from target study status to an independent rule
// function. Errors invalidate the result, warnings never do, and the details
// map carries raw counts for observability only.
type CrossEntityValidator struct {
	targets map[StudyStatus]targetRule
}

type targetRule func(in *validationInput, res *ValidationResult)

type validationInput struct {
	study      Study
	versions   []ProtocolVersion
	amendments []Amendment
	operation  string
	byVersion  map[string][]Amendment
}

// NewCrossEntityValidator constructs a validator with the built-in rule table.
func NewCrossEntityValidator() *CrossEntityValidator {
	v := &CrossEntityValidator{}
	v.targets = map[StudyStatus]targetRule{
		StudyStatusUnderReview: v.validateProtocolReview,
		StudyStatusApproved:    v.validateApproved,
		StudyStatusActive:      v.validateActive,
		StudyStatusSuspended:   v.validateSuspended,
		StudyStatusCompleted:   v.validateCompleted,
		StudyStatusTerminated:  v.validateTerminated,
		StudyStatusWithdrawn:   v.validateWithdrawn,
	}
	return v
}

// Validate runs the rule set for the target status, or the current-state
// consistency rules when target is nil. Cross-cutting integrity checks run
// regardless of target.
func (v *CrossEntityValidator) Validate(study Study, versions []ProtocolVersion, amendments []Amendment, target *StudyStatus, operation string) ValidationResult {
	in := newValidationInput(study, versions, amendments, operation)
	res := domain.NewValidationResult()

	v.validateIntegrity(in, &res)

	if target != nil {
		if rule, ok := v.targets[*target]; ok {
			rule(in, &res)
		}
	} else {
		v.validateCurrent(in, &res)
	}

	res.Detail("totalVersions", len(in.versions))
	res.Detail("activeVersions", len(in.versionsIn(VersionStatusActive)))
	res.Detail("approvedVersions", len(in.versionsIn(VersionStatusApproved)))
	res.Detail("pendingAmendments", in.pendingAmendmentCount())
	res.Detail("operation", operation)
	return res
}

func newValidationInput(study Study, versions []ProtocolVersion, amendments []Amendment, operation string) *validationInput {
	byVersion := make(map[string][]Amendment, len(versions))
	for _, a := range amendments {
		byVersion[a.ProtocolVersionID] = append(byVersion[a.ProtocolVersionID], a)
	}
	return &validationInput{
		study:      study,
		versions:   versions,
		amendments: amendments,
		operation:  operation,
		byVersion:  byVersion,
	}
}

func (in *validationInput) versionsIn(statuses ...VersionStatus) []ProtocolVersion {
	var out []ProtocolVersion
	for _, ver := range in.versions {
		for _, s := range statuses {
			if ver.Status == s {
				out = append(out, ver)
				break
			}
		}
	}
	return out
}

func (in *validationInput) pendingAmendmentCount() int {
	count := 0
	for _, a := range in.amendments {
		if a.Status.IsPending() {
			count++
		}
	}
	return count
}

// versionLabel resolves a version ID to its human-readable version number,
// falling back to the raw ID for dangling references.
func (in *validationInput) versionLabel(id string) string {
	for _, ver := range in.versions {
		if ver.ID == id {
			return ver.VersionNumber
		}
	}
	return id
}

func (in *validationInput) pendingSafetyAmendments(versionID string) []Amendment {
	var out []Amendment
	for _, a := range in.byVersion[versionID] {
		if a.Type == AmendmentTypeSafety && a.Status.IsPending() {
			out = append(out, a)
		}
	}
	return out
}

// validateIntegrity runs the cross-cutting data-integrity checks: orphaned
// amendment references, duplicate amendment numbers, and versions sharing an
// effective date.
func (v *CrossEntityValidator) validateIntegrity(in *validationInput, res *ValidationResult) {
	known := make(map[string]struct{}, len(in.versions))
	for _, ver := range in.versions {
		known[ver.ID] = struct{}{}
	}

	for _, a := range in.amendments {
		if _, ok := known[a.ProtocolVersionID]; !ok {
			res.AddError("amendment %s references unknown protocol version %s", a.ID, a.ProtocolVersionID)
		}
	}

	for versionID, amendments := range in.byVersion {
		seen := map[int][]string{}
		for _, a := range amendments {
			seen[a.AmendmentNumber] = append(seen[a.AmendmentNumber], a.ID)
		}
		numbers := make([]int, 0, len(seen))
		for n := range seen {
			numbers = append(numbers, n)
		}
		sort.Ints(numbers)
		for _, n := range numbers {
			if len(seen[n]) > 1 {
				res.AddError("duplicate amendment number %d on protocol version %s", n, versionID)
			}
		}
	}

	byDate := map[string][]string{}
	for _, ver := range in.versions {
		if ver.EffectiveDate == nil {
			continue
		}
		key := ver.EffectiveDate.UTC().Format("2006-01-02")
		byDate[key] = append(byDate[key], ver.ID)
	}
	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	for _, d := range dates {
		if len(byDate[d]) > 1 {
			res.AddWarning("%d protocol versions share effective date %s", len(byDate[d]), d)
		}
	}
}

func (v *CrossEntityValidator) validateProtocolReview(in *validationInput, res *ValidationResult) {
	if len(in.versions) == 0 {
		res.AddError("study %s must have at least one protocol version before review", in.study.ID)
		return
	}
	if len(in.versionsIn(VersionStatusDraft, VersionStatusUnderReview)) == 0 {
		res.AddWarning("no protocol version is in DRAFT or UNDER_REVIEW")
	}
	if pending := in.pendingAmendmentCount(); pending > 0 {
		res.AddWarning("%d amendments are still pending", pending)
	}
}

func (v *CrossEntityValidator) validateApproved(in *validationInput, res *ValidationResult) {
	approved := in.versionsIn(VersionStatusApproved)
	if len(approved) == 0 {
		res.AddError("study %s has no approved protocol version", in.study.ID)
		return
	}
	for _, ver := range approved {
		for _, a := range in.byVersion[ver.ID] {
			if a.Status != AmendmentStatusApproved && a.Status != AmendmentStatusImplemented {
				res.AddWarning("amendment %d on approved version %s is still %s", a.AmendmentNumber, ver.VersionNumber, a.Status)
			}
		}
	}
}

func (v *CrossEntityValidator) validateActive(in *validationInput, res *ValidationResult) {
	active := in.versionsIn(VersionStatusActive)
	switch {
	case len(active) == 0:
		res.AddError("study %s has no active protocol version", in.study.ID)
		return
	case len(active) > 1:
		res.AddError("study %s has %d active protocol versions; only one is allowed", in.study.ID, len(active))
	}

	// Data-corruption guard: an older version still marked ACTIVE alongside a
	// newer active one means a supersession was half-applied upstream.
	for _, older := range active {
		for _, newer := range active {
			if older.ID == newer.ID {
				continue
			}
			cmp, err := domain.CompareVersionNumbers(older.VersionNumber, newer.VersionNumber)
			if err != nil {
				res.AddError("cannot order active versions %s and %s: %v", older.ID, newer.ID, err)
				continue
			}
			if cmp < 0 {
				res.AddError("version %s is still ACTIVE but superseded by newer active version %s", older.VersionNumber, newer.VersionNumber)
			}
		}
	}

	for _, ver := range active {
		for _, a := range in.pendingSafetyAmendments(ver.ID) {
			res.AddWarning("safety amendment %d on active version %s is pending", a.AmendmentNumber, ver.VersionNumber)
		}
	}
}

func (v *CrossEntityValidator) validateSuspended(in *validationInput, res *ValidationResult) {
	if len(in.versionsIn(VersionStatusActive)) == 0 {
		res.AddWarning("no protocol version remains active while study is suspended")
	}
	// Every pending safety amendment is flagged, whatever version it targets.
	for _, a := range in.amendments {
		if a.Type == AmendmentTypeSafety && a.Status.IsPending() {
			res.AddWarning("safety amendment %d on version %s is pending during suspension", a.AmendmentNumber, in.versionLabel(a.ProtocolVersionID))
		}
	}
}

func (v *CrossEntityValidator) validateCompleted(in *validationInput, res *ValidationResult) {
	for _, a := range in.amendments {
		if !a.Status.IsFinal() {
			res.AddWarning("amendment %d on version %s is not final", a.AmendmentNumber, in.versionLabel(a.ProtocolVersionID))
		}
	}
	if !hasDocumentedClosureReason(in.amendments, "completion", "close-out", "closeout") {
		res.AddWarning("no administrative completion amendment documents study close-out")
	}
}

func (v *CrossEntityValidator) validateTerminated(in *validationInput, res *ValidationResult) {
	if !hasDocumentedClosureReason(in.amendments, "termination", "terminate") {
		res.AddWarning("no administrative amendment documents the termination reason")
	}
}

func (v *CrossEntityValidator) validateWithdrawn(in *validationInput, res *ValidationResult) {
	for _, ver := range in.versionsIn(VersionStatusActive) {
		res.AddError("protocol version %s is still ACTIVE on withdrawn study %s", ver.VersionNumber, in.study.ID)
	}
	if !hasDocumentedClosureReason(in.amendments, "withdrawal", "withdrawn") {
		res.AddWarning("no administrative amendment documents the withdrawal reason")
	}
}

// validateCurrent checks current-state consistency with no explicit target:
// an ACTIVE study implies exactly one ACTIVE version, and active versions on
// a non-active study are suspicious but not fatal.
func (v *CrossEntityValidator) validateCurrent(in *validationInput, res *ValidationResult) {
	active := in.versionsIn(VersionStatusActive)
	if in.study.Status == StudyStatusActive {
		switch {
		case len(active) == 0:
			res.AddError("study %s is ACTIVE but has no active protocol version", in.study.ID)
		case len(active) > 1:
			res.AddError("study %s has %d active protocol versions; only one is allowed", in.study.ID, len(active))
		}
		return
	}
	if len(active) > 0 {
		res.AddWarning("%d protocol versions are ACTIVE while study status is %s", len(active), in.study.Status)
	}
}

// hasDocumentedClosureReason reports whether an administrative amendment
// mentions one of the given keywords. Free-text matching is a weak signal
// kept behind this predicate so it can be replaced with a structured flag.
func hasDocumentedClosureReason(amendments []Amendment, keywords ...string) bool {
	for _, a := range amendments {
		if a.Type != AmendmentTypeAdministrative {
			continue
		}
		text := strings.ToLower(a.Title)
		if a.Description != nil {
			text += " " + strings.ToLower(*a.Description)
		}
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				return true
			}
		}
	}
	return false
}
