package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"studycore/pkg/domain"
)

// Engine operation names used for metrics, traces, and log reasons.
const (
	opComputeStatus = "compute_status"
	opBatchCompute  = "batch_compute"
	opRefreshStatus = "refresh_status"
	opCheckHealth   = "check_health"
)

// healthWindow bounds the log slice inspected by CheckSystemHealth.
const healthWindow = 24 * time.Hour

// defaultErrorRateThreshold is the error-rate percentage above which the
// system is reported unhealthy.
const defaultErrorRateThreshold = 10.0

// Engine recomputes derived study statuses from protocol version aggregates.
// Every run, successful or not, appends one ComputationLogEntry. A derived
// status is only ever applied when the resulting transition is legal; illegal
// derivations are logged as errors and the stored status is left untouched.
type Engine struct {
	store     PersistentStore
	logs      ComputationLogStore
	validator *CrossEntityValidator
	clock     Clock
	metrics   MetricsRecorder
	tracer    Tracer
	logger    zerolog.Logger
	threshold float64
}

// EngineOption customizes engine construction.
type EngineOption func(*Engine)

// WithClock injects a deterministic time source.
func WithClock(clock Clock) EngineOption {
	return func(e *Engine) { e.clock = clock }
}

// WithMetricsRecorder attaches a metrics sink.
func WithMetricsRecorder(rec MetricsRecorder) EngineOption {
	return func(e *Engine) { e.metrics = rec }
}

// WithTracer attaches a tracer.
func WithTracer(tracer Tracer) EngineOption {
	return func(e *Engine) { e.tracer = tracer }
}

// WithLogger attaches a structured logger.
func WithLogger(logger zerolog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// WithErrorRateThreshold overrides the health error-rate threshold (percent).
func WithErrorRateThreshold(pct float64) EngineOption {
	return func(e *Engine) { e.threshold = pct }
}

// NewEngine constructs an engine over the given store and log store.
func NewEngine(store PersistentStore, logs ComputationLogStore, opts ...EngineOption) *Engine {
	e := &Engine{
		store:     store,
		logs:      logs,
		validator: NewCrossEntityValidator(),
		clock:     domain.SystemClock{},
		metrics:   NopMetricsRecorder{},
		tracer:    NopTracer{},
		logger:    zerolog.Nop(),
		threshold: defaultErrorRateThreshold,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ComputationResult reports the outcome of one status recomputation.
type ComputationResult struct {
	StudyID       string           `json:"study_id"`
	OldStatus     StudyStatus      `json:"old_status"`
	NewStatus     StudyStatus      `json:"new_status"`
	StatusChanged bool             `json:"status_changed"`
	Success       bool             `json:"success"`
	Error         string           `json:"error,omitempty"`
	Reason        string           `json:"reason"`
	Validation    ValidationResult `json:"validation"`
	Duration      time.Duration    `json:"duration"`
}

// BatchResult summarizes a batch recomputation over all studies.
type BatchResult struct {
	Total     int                 `json:"total"`
	Succeeded int                 `json:"succeeded"`
	Failed    int                 `json:"failed"`
	Changed   int                 `json:"changed"`
	Cancelled bool                `json:"cancelled"`
	Outcomes  []ComputationResult `json:"outcomes"`
	Duration  time.Duration       `json:"duration"`
}

// HealthReport aggregates recent computation activity and infrastructure
// presence into a single health verdict.
type HealthReport struct {
	Healthy            bool                 `json:"healthy"`
	RecentComputations int                  `json:"recent_computations"`
	RecentErrors       int                  `json:"recent_errors"`
	ErrorRatePercent   float64              `json:"error_rate_percent"`
	Infrastructure     InfrastructureStatus `json:"infrastructure"`
	Window             time.Duration        `json:"window"`
	CheckedAt          time.Time            `json:"checked_at"`
}

// StudyChangeCount pairs a study with its status-change count in a window.
type StudyChangeCount struct {
	StudyID string `json:"study_id"`
	Changes int    `json:"changes"`
}

// DeriveStudyStatus computes the status a study should hold given its
// protocol version aggregate. Suspension is operator-driven and never lifted
// automatically.
func DeriveStudyStatus(current StudyStatus, versions []ProtocolVersion) StudyStatus {
	if current == StudyStatusSuspended {
		return current
	}
	if len(versions) == 0 {
		return StudyStatusPlanning
	}
	var hasActive, hasApproved, hasInReview bool
	for _, ver := range versions {
		switch ver.Status {
		case VersionStatusActive:
			hasActive = true
		case VersionStatusApproved:
			hasApproved = true
		case VersionStatusUnderReview, VersionStatusAmendmentReview, VersionStatusSubmitted:
			hasInReview = true
		}
	}
	switch {
	case hasActive:
		return StudyStatusActive
	case hasApproved:
		return StudyStatusApproved
	case hasInReview:
		return StudyStatusUnderReview
	default:
		return StudyStatusProtocolDevelopment
	}
}

// ComputeStatus recomputes and, when legal and consistent, applies the
// derived status for a single study. The reason is recorded in the log entry.
func (e *Engine) ComputeStatus(ctx context.Context, studyID, reason string) (ComputationResult, error) {
	if reason == "" {
		reason = "manual computation"
	}
	return e.compute(ctx, studyID, reason, opComputeStatus)
}

// RefreshStatus forces an immediate recomputation for operator-driven
// incident recovery. The engine holds no cache itself; the distinct
// operation name keeps any caching decorator in front of the store honest.
func (e *Engine) RefreshStatus(ctx context.Context, studyID string) (ComputationResult, error) {
	return e.compute(ctx, studyID, "operator refresh", opRefreshStatus)
}

func (e *Engine) compute(ctx context.Context, studyID, reason, op string) (ComputationResult, error) {
	start := e.clock.Now()
	ctx, span := e.tracer.Start(ctx, op)
	res := ComputationResult{StudyID: studyID, Reason: reason, Success: true}

	err := e.store.RunInTransaction(ctx, func(tx Transaction) error {
		view := tx.Snapshot()
		study, ok := view.FindStudy(studyID)
		if !ok {
			return ErrNotFound{Kind: KindStudy, ID: studyID}
		}
		res.OldStatus = study.Status
		res.NewStatus = study.Status
		if study.Status.IsTerminal() {
			return nil
		}

		versions := view.ListProtocolVersions(studyID)
		amendments := view.ListStudyAmendments(studyID)
		derived := DeriveStudyStatus(study.Status, versions)
		if derived == study.Status {
			return nil
		}

		decision := domain.CanTransitionStudy(study.Status, derived)
		if !decision.Allowed {
			res.Success = false
			res.Error = fmt.Sprintf("derived status rejected: %s", decision.Reason)
			return nil
		}

		validation := e.validator.Validate(study, versions, amendments, &derived, op)
		res.Validation = validation
		if !validation.Valid {
			res.Success = false
			res.Error = "validation failed: " + strings.Join(validation.Errors, "; ")
			return nil
		}

		if _, err := tx.UpdateStudy(studyID, study.Revision, func(s *Study) error {
			s.Status = derived
			return nil
		}); err != nil {
			return err
		}
		res.NewStatus = derived
		res.StatusChanged = true
		return nil
	})
	if err != nil {
		res.Success = false
		if res.Error == "" {
			res.Error = err.Error()
		}
	}
	res.Duration = e.clock.Now().Sub(start)

	logErr := e.appendLog(ctx, res)
	e.metrics.Observe(ctx, op, res.Success, res.Duration)
	span.End(err)

	evt := e.logger.Info()
	if !res.Success {
		evt = e.logger.Warn()
	}
	evt.Str("study_id", studyID).
		Str("old_status", string(res.OldStatus)).
		Str("new_status", string(res.NewStatus)).
		Bool("changed", res.StatusChanged).
		Str("operation", op).
		Msg("status computation finished")

	if err != nil {
		return res, err
	}
	if logErr != nil {
		return res, fmt.Errorf("append computation log: %w", logErr)
	}
	return res, nil
}

func (e *Engine) appendLog(ctx context.Context, res ComputationResult) error {
	entry := ComputationLogEntry{
		ID:            uuid.NewString(),
		StudyID:       res.StudyID,
		OldStatus:     res.OldStatus,
		NewStatus:     res.NewStatus,
		StatusChanged: res.StatusChanged,
		Success:       res.Success,
		Reason:        res.Reason,
		DurationMS:    float64(res.Duration) / float64(time.Millisecond),
		RecordedAt:    e.clock.Now(),
	}
	if res.Error != "" {
		msg := res.Error
		entry.ErrorMessage = &msg
	}
	return e.logs.AppendComputation(ctx, entry)
}

// BatchCompute recomputes every study sequentially. Per-study failures are
// counted and reported, never propagated; cancellation is honored between
// studies so no study is ever left half-applied.
func (e *Engine) BatchCompute(ctx context.Context) (BatchResult, error) {
	start := e.clock.Now()
	ctx, span := e.tracer.Start(ctx, opBatchCompute)

	studies := e.store.ListStudies()
	sort.Slice(studies, func(i, j int) bool { return studies[i].ID < studies[j].ID })

	var summary BatchResult
	for _, study := range studies {
		if ctx.Err() != nil {
			summary.Cancelled = true
			break
		}
		res, err := e.compute(ctx, study.ID, "scheduled batch computation", opComputeStatus)
		if err != nil && res.Error == "" {
			res.Success = false
			res.Error = err.Error()
		}
		summary.Outcomes = append(summary.Outcomes, res)
		summary.Total++
		if res.Success {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
		if res.StatusChanged {
			summary.Changed++
		}
	}
	summary.Duration = e.clock.Now().Sub(start)

	e.metrics.Observe(ctx, opBatchCompute, summary.Failed == 0, summary.Duration)
	span.End(nil)
	e.logger.Info().
		Int("total", summary.Total).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("changed", summary.Changed).
		Bool("cancelled", summary.Cancelled).
		Msg("batch computation finished")
	return summary, nil
}

// ComputationHistory returns the most recent log entries for a study, newest
// first, bounded by limit when positive.
func (e *Engine) ComputationHistory(ctx context.Context, studyID string, limit int) ([]ComputationLogEntry, error) {
	return e.logs.ComputationHistory(ctx, studyID, limit)
}

// RecentStatusChanges returns log entries from the last given days where the
// status actually changed.
func (e *Engine) RecentStatusChanges(ctx context.Context, days int) ([]ComputationLogEntry, error) {
	entries, err := e.logs.ComputationsSince(ctx, e.windowStart(days))
	if err != nil {
		return nil, err
	}
	var out []ComputationLogEntry
	for _, entry := range entries {
		if entry.StatusChanged {
			out = append(out, entry)
		}
	}
	return out, nil
}

// StudiesWithFrequentChanges lists studies whose status changed at least
// minChanges times in the last given days, most volatile first.
func (e *Engine) StudiesWithFrequentChanges(ctx context.Context, days, minChanges int) ([]StudyChangeCount, error) {
	entries, err := e.logs.ComputationsSince(ctx, e.windowStart(days))
	if err != nil {
		return nil, err
	}
	counts := map[string]int{}
	for _, entry := range entries {
		if entry.StatusChanged {
			counts[entry.StudyID]++
		}
	}
	var out []StudyChangeCount
	for studyID, n := range counts {
		if n >= minChanges {
			out = append(out, StudyChangeCount{StudyID: studyID, Changes: n})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Changes != out[j].Changes {
			return out[i].Changes > out[j].Changes
		}
		return out[i].StudyID < out[j].StudyID
	})
	return out, nil
}

// ComputationErrors returns failed runs from the last given days.
func (e *Engine) ComputationErrors(ctx context.Context, days int) ([]ComputationLogEntry, error) {
	entries, err := e.logs.ComputationsSince(ctx, e.windowStart(days))
	if err != nil {
		return nil, err
	}
	var out []ComputationLogEntry
	for _, entry := range entries {
		if !entry.Success {
			out = append(out, entry)
		}
	}
	return out, nil
}

// CheckSystemHealth reports recent computation volume, error rate, and
// infrastructure presence. Healthy means the error rate is below the
// threshold and all required infrastructure objects exist.
func (e *Engine) CheckSystemHealth(ctx context.Context) (HealthReport, error) {
	now := e.clock.Now()
	report := HealthReport{Window: healthWindow, CheckedAt: now}

	entries, err := e.logs.ComputationsSince(ctx, now.Add(-healthWindow))
	if err != nil {
		return report, err
	}
	report.RecentComputations = len(entries)
	for _, entry := range entries {
		if !entry.Success {
			report.RecentErrors++
		}
	}
	if report.RecentComputations > 0 {
		report.ErrorRatePercent = float64(report.RecentErrors) / float64(report.RecentComputations) * 100
	}

	infra, err := e.store.Infrastructure(ctx)
	if err != nil {
		return report, err
	}
	report.Infrastructure = infra
	report.Healthy = report.ErrorRatePercent < e.threshold && infra.Present()

	e.metrics.Observe(ctx, opCheckHealth, report.Healthy, e.clock.Now().Sub(now))
	return report, nil
}

func (e *Engine) windowStart(days int) time.Time {
	if days <= 0 {
		days = 1
	}
	return e.clock.Now().AddDate(0, 0, -days)
}
