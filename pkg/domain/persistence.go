package domain

import (
	"context"
	"time"
)

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope. Update operations take the caller's
// revision token and fail with ConflictError on a stale snapshot.
type Transaction interface {
	Snapshot() TransactionView
	CreateStudy(Study) (Study, error)
	UpdateStudy(id string, revision int64, mutator func(*Study) error) (Study, error)
	CreateProtocolVersion(ProtocolVersion) (ProtocolVersion, error)
	UpdateProtocolVersion(id string, revision int64, mutator func(*ProtocolVersion) error) (ProtocolVersion, error)
	DeleteProtocolVersion(id string) error
	CreateAmendment(Amendment) (Amendment, error)
	UpdateAmendment(id string, revision int64, mutator func(*Amendment) error) (Amendment, error)
}

// TransactionView provides read-only access to snapshot data.
type TransactionView interface {
	ListStudies() []Study
	FindStudy(id string) (Study, bool)
	ListProtocolVersions(studyID string) []ProtocolVersion
	FindProtocolVersion(id string) (ProtocolVersion, bool)
	ListAmendments(versionID string) []Amendment
	ListStudyAmendments(studyID string) []Amendment
	FindAmendment(id string) (Amendment, bool)
}

// InfrastructureStatus reports presence of the external database objects the
// computation engine depends on. The booleans are supplied by the persistence
// implementation; the core only aggregates them into the health report.
type InfrastructureStatus struct {
	LogStorePresent bool `json:"log_store_present"`
	TriggersPresent bool `json:"triggers_present"`
	ProceduresReady bool `json:"procedures_ready"`
}

// Present reports whether every required infrastructure object exists.
func (s InfrastructureStatus) Present() bool {
	return s.LogStorePresent && s.TriggersPresent && s.ProceduresReady
}

// PersistentStore is a minimal abstraction over durable backends. Each
// RunInTransaction call executes as a single atomic unit against the backing
// store; a concurrent writer can never observe a half-applied supersession.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) error
	View(ctx context.Context, fn func(TransactionView) error) error
	GetStudy(id string) (Study, bool)
	ListStudies() []Study
	Infrastructure(ctx context.Context) (InfrastructureStatus, error)
}

// ComputationLogStore is the append-only port for computation audit history.
// Entries are never mutated or deleted through this interface.
type ComputationLogStore interface {
	AppendComputation(ctx context.Context, entry ComputationLogEntry) error
	ComputationHistory(ctx context.Context, studyID string, limit int) ([]ComputationLogEntry, error)
	ComputationsSince(ctx context.Context, since time.Time) ([]ComputationLogEntry, error)
}

// Clock abstracts the time source so effective dates and log timestamps are
// deterministic under test.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production clock.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always reports the same instant. Test use only.
type FixedClock struct {
	Instant time.Time
}

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time { return c.Instant }
