// Package memory provides an in-memory implementation of the core
// persistence store used for tests and ephemeral environments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"studycore/pkg/domain"
)

// Compile-time contract assertions.
var (
	_ domain.PersistentStore     = (*Store)(nil)
	_ domain.ComputationLogStore = (*Store)(nil)
)

type (
	// Study aliases domain.Study for in-memory persistence operations.
	Study = domain.Study
	// ProtocolVersion aliases domain.ProtocolVersion.
	ProtocolVersion = domain.ProtocolVersion
	// Amendment aliases domain.Amendment.
	Amendment = domain.Amendment
	// ComputationLogEntry aliases domain.ComputationLogEntry.
	ComputationLogEntry = domain.ComputationLogEntry
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	studies    map[string]Study
	versions   map[string]ProtocolVersion
	amendments map[string]Amendment
}

// Snapshot captures a point-in-time clone of the store state, including the
// computation log, for durable backends that persist whole-state snapshots.
type Snapshot struct {
	Studies        map[string]Study           `json:"studies"`
	Versions       map[string]ProtocolVersion `json:"versions"`
	Amendments     map[string]Amendment       `json:"amendments"`
	ComputationLog []ComputationLogEntry      `json:"computation_log"`
}

func newMemoryState() memoryState {
	return memoryState{
		studies:    make(map[string]Study),
		versions:   make(map[string]ProtocolVersion),
		amendments: make(map[string]Amendment),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.studies {
		cloned.studies[k] = v
	}
	for k, v := range s.versions {
		cloned.versions[k] = v
	}
	for k, v := range s.amendments {
		cloned.amendments[k] = v
	}
	return cloned
}

// Store keeps all domain state in process memory guarded by a single lock.
// Transactions operate on a cloned state that replaces the committed state
// only when the transactional function succeeds.
type Store struct {
	mu    sync.RWMutex
	state memoryState
	log   []ComputationLogEntry
	nowFn func() time.Time
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{
		state: newMemoryState(),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the store clock. Test use only.
func (s *Store) SetNowFunc(fn func() time.Time) {
	if fn != nil {
		s.nowFn = fn
	}
}

func newID() string { return uuid.NewString() }

// RunInTransaction executes fn within a transactional copy of the store
// state. The copy is committed only when fn returns nil, so a failing
// transaction never leaves a half-applied mutation behind.
func (s *Store) RunInTransaction(_ context.Context, fn func(tx Transaction) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		state: s.state.clone(),
		now:   s.nowFn(),
	}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	return fn(transactionView{state: &snapshot})
}

// GetStudy retrieves a study by ID from committed state.
func (s *Store) GetStudy(id string) (Study, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	study, ok := s.state.studies[id]
	return study, ok
}

// ListStudies returns all studies from committed state.
func (s *Store) ListStudies() []Study {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Study, 0, len(s.state.studies))
	for _, study := range s.state.studies {
		out = append(out, study)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Infrastructure reports the store's supporting objects. The in-memory
// backend carries everything it needs by construction.
func (s *Store) Infrastructure(context.Context) (domain.InfrastructureStatus, error) {
	return domain.InfrastructureStatus{
		LogStorePresent: true,
		TriggersPresent: true,
		ProceduresReady: true,
	}, nil
}

// AppendComputation appends one immutable log entry.
func (s *Store) AppendComputation(_ context.Context, entry ComputationLogEntry) error {
	if entry.StudyID == "" {
		return fmt.Errorf("computation log entry requires a study id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == "" {
		entry.ID = newID()
	}
	s.log = append(s.log, entry)
	return nil
}

// ComputationHistory returns entries for a study, newest first, bounded by
// limit when positive.
func (s *Store) ComputationHistory(_ context.Context, studyID string, limit int) ([]ComputationLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ComputationLogEntry
	for i := len(s.log) - 1; i >= 0; i-- {
		if s.log[i].StudyID != studyID {
			continue
		}
		out = append(out, s.log[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// ComputationsSince returns entries recorded at or after the given instant,
// in append order.
func (s *Store) ComputationsSince(_ context.Context, since time.Time) ([]ComputationLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ComputationLogEntry
	for _, entry := range s.log {
		if !entry.RecordedAt.Before(since) {
			out = append(out, entry)
		}
	}
	return out, nil
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Studies:        make(map[string]Study, len(s.state.studies)),
		Versions:       make(map[string]ProtocolVersion, len(s.state.versions)),
		Amendments:     make(map[string]Amendment, len(s.state.amendments)),
		ComputationLog: append([]ComputationLogEntry(nil), s.log...),
	}
	for k, v := range s.state.studies {
		snap.Studies[k] = v
	}
	for k, v := range s.state.versions {
		snap.Versions[k] = v
	}
	for k, v := range s.state.amendments {
		snap.Amendments[k] = v
	}
	return snap
}

// ImportState replaces the store state from a snapshot.
func (s *Store) ImportState(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := newMemoryState()
	for k, v := range snap.Studies {
		state.studies[k] = v
	}
	for k, v := range snap.Versions {
		state.versions[k] = v
	}
	for k, v := range snap.Amendments {
		state.amendments[k] = v
	}
	s.state = state
	s.log = append([]ComputationLogEntry(nil), snap.ComputationLog...)
}

type transaction struct {
	state memoryState
	now   time.Time
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return transactionView{state: &tx.state}
}

// CreateStudy stores a new study within the transaction.
func (tx *transaction) CreateStudy(study Study) (Study, error) {
	if study.ID == "" {
		study.ID = newID()
	}
	if _, exists := tx.state.studies[study.ID]; exists {
		return Study{}, fmt.Errorf("study %q already exists", study.ID)
	}
	study.CreatedAt = tx.now
	study.UpdatedAt = tx.now
	study.Revision = 1
	tx.state.studies[study.ID] = study
	return study, nil
}

// UpdateStudy mutates a study after checking the caller's revision token.
func (tx *transaction) UpdateStudy(id string, revision int64, mutator func(*Study) error) (Study, error) {
	current, ok := tx.state.studies[id]
	if !ok {
		return Study{}, domain.ErrNotFound{Kind: domain.KindStudy, ID: id}
	}
	if current.Revision != revision {
		return Study{}, domain.ConflictError{
			Kind:             domain.KindStudy,
			ID:               id,
			ExpectedRevision: revision,
			ActualRevision:   current.Revision,
		}
	}
	if err := mutator(&current); err != nil {
		return Study{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	current.Revision++
	tx.state.studies[id] = current
	return current, nil
}

// CreateProtocolVersion stores a new protocol version within the transaction.
func (tx *transaction) CreateProtocolVersion(version ProtocolVersion) (ProtocolVersion, error) {
	if version.StudyID == "" {
		return ProtocolVersion{}, fmt.Errorf("protocol version requires a study id")
	}
	if _, ok := tx.state.studies[version.StudyID]; !ok {
		return ProtocolVersion{}, domain.ErrNotFound{Kind: domain.KindStudy, ID: version.StudyID}
	}
	if version.ID == "" {
		version.ID = newID()
	}
	if _, exists := tx.state.versions[version.ID]; exists {
		return ProtocolVersion{}, fmt.Errorf("protocol version %q already exists", version.ID)
	}
	version.CreatedAt = tx.now
	version.UpdatedAt = tx.now
	version.Revision = 1
	tx.state.versions[version.ID] = version
	return version, nil
}

// UpdateProtocolVersion mutates a version after checking the revision token.
func (tx *transaction) UpdateProtocolVersion(id string, revision int64, mutator func(*ProtocolVersion) error) (ProtocolVersion, error) {
	current, ok := tx.state.versions[id]
	if !ok {
		return ProtocolVersion{}, domain.ErrNotFound{Kind: domain.KindProtocolVersion, ID: id}
	}
	if current.Revision != revision {
		return ProtocolVersion{}, domain.ConflictError{
			Kind:             domain.KindProtocolVersion,
			ID:               id,
			ExpectedRevision: revision,
			ActualRevision:   current.Revision,
		}
	}
	if err := mutator(&current); err != nil {
		return ProtocolVersion{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	current.Revision++
	tx.state.versions[id] = current
	return current, nil
}

// DeleteProtocolVersion removes a version and its amendments.
func (tx *transaction) DeleteProtocolVersion(id string) error {
	if _, ok := tx.state.versions[id]; !ok {
		return domain.ErrNotFound{Kind: domain.KindProtocolVersion, ID: id}
	}
	delete(tx.state.versions, id)
	for amendmentID, amendment := range tx.state.amendments {
		if amendment.ProtocolVersionID == id {
			delete(tx.state.amendments, amendmentID)
		}
	}
	return nil
}

// CreateAmendment stores a new amendment within the transaction.
func (tx *transaction) CreateAmendment(amendment Amendment) (Amendment, error) {
	if amendment.ProtocolVersionID == "" {
		return Amendment{}, fmt.Errorf("amendment requires a protocol version id")
	}
	if _, ok := tx.state.versions[amendment.ProtocolVersionID]; !ok {
		return Amendment{}, domain.ErrNotFound{Kind: domain.KindProtocolVersion, ID: amendment.ProtocolVersionID}
	}
	if amendment.ID == "" {
		amendment.ID = newID()
	}
	if _, exists := tx.state.amendments[amendment.ID]; exists {
		return Amendment{}, fmt.Errorf("amendment %q already exists", amendment.ID)
	}
	for _, existing := range tx.state.amendments {
		if existing.ProtocolVersionID == amendment.ProtocolVersionID && existing.AmendmentNumber == amendment.AmendmentNumber {
			return Amendment{}, fmt.Errorf("amendment number %d already exists on protocol version %s",
				amendment.AmendmentNumber, amendment.ProtocolVersionID)
		}
	}
	amendment.CreatedAt = tx.now
	amendment.UpdatedAt = tx.now
	amendment.Revision = 1
	tx.state.amendments[amendment.ID] = amendment
	return amendment, nil
}

// UpdateAmendment mutates an amendment after checking the revision token.
func (tx *transaction) UpdateAmendment(id string, revision int64, mutator func(*Amendment) error) (Amendment, error) {
	current, ok := tx.state.amendments[id]
	if !ok {
		return Amendment{}, domain.ErrNotFound{Kind: domain.KindAmendment, ID: id}
	}
	if current.Revision != revision {
		return Amendment{}, domain.ConflictError{
			Kind:             domain.KindAmendment,
			ID:               id,
			ExpectedRevision: revision,
			ActualRevision:   current.Revision,
		}
	}
	if err := mutator(&current); err != nil {
		return Amendment{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	current.Revision++
	tx.state.amendments[id] = current
	return current, nil
}

type transactionView struct {
	state *memoryState
}

// ListStudies returns all studies in the snapshot.
func (v transactionView) ListStudies() []Study {
	out := make([]Study, 0, len(v.state.studies))
	for _, study := range v.state.studies {
		out = append(out, study)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindStudy retrieves a study by ID from the snapshot.
func (v transactionView) FindStudy(id string) (Study, bool) {
	study, ok := v.state.studies[id]
	return study, ok
}

// ListProtocolVersions returns a study's versions ordered by creation time.
func (v transactionView) ListProtocolVersions(studyID string) []ProtocolVersion {
	var out []ProtocolVersion
	for _, version := range v.state.versions {
		if version.StudyID == studyID {
			out = append(out, version)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// FindProtocolVersion retrieves a version by ID from the snapshot.
func (v transactionView) FindProtocolVersion(id string) (ProtocolVersion, bool) {
	version, ok := v.state.versions[id]
	return version, ok
}

// ListAmendments returns a version's amendments ordered by amendment number.
func (v transactionView) ListAmendments(versionID string) []Amendment {
	var out []Amendment
	for _, amendment := range v.state.amendments {
		if amendment.ProtocolVersionID == versionID {
			out = append(out, amendment)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AmendmentNumber < out[j].AmendmentNumber })
	return out
}

// ListStudyAmendments returns all amendments across a study's versions.
func (v transactionView) ListStudyAmendments(studyID string) []Amendment {
	var out []Amendment
	for _, amendment := range v.state.amendments {
		version, ok := v.state.versions[amendment.ProtocolVersionID]
		if ok && version.StudyID == studyID {
			out = append(out, amendment)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProtocolVersionID != out[j].ProtocolVersionID {
			return out[i].ProtocolVersionID < out[j].ProtocolVersionID
		}
		return out[i].AmendmentNumber < out[j].AmendmentNumber
	})
	return out
}

// FindAmendment retrieves an amendment by ID from the snapshot.
func (v transactionView) FindAmendment(id string) (Amendment, bool) {
	amendment, ok := v.state.amendments[id]
	return amendment, ok
}
