package stage

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"flattener/internal/config"
	"flattener/internal/constants"
	"flattener/internal/logger"
	"flattener/pkg/cel"
	"flattener/pkg/errors"
	"flattener/pkg/metrics"
	"flattener/pkg/models"
	"flattener/pkg/transform"
)

// active is one published configuration. It is never mutated after Store.
type active struct {
	transform *transform.FieldValuesFlattener
	enabled   bool
	version   int
}

// Service hosts the field values flattener for one pipeline stage. Readers
// load the active transform through an atomic pointer; reconfiguration builds
// and configures a fresh instance and swaps it in, so a record is always
// processed by exactly one configuration.
type Service struct {
	cfg       config.TransformConfig
	stage     string
	repo      Repository
	predicate *cel.Predicate
	current   atomic.Pointer[active]
	mu        sync.Mutex
	logger    logger.Logger
}

// NewService builds the stage. With a nil repo the transform options come
// from cfg alone; otherwise cfg.FieldName is only the fallback used until
// ReloadConfig finds a stored config.
func NewService(cfg config.TransformConfig, repo Repository, log logger.Logger) (*Service, error) {
	s := &Service{
		cfg:    cfg,
		stage:  cfg.Stage,
		repo:   repo,
		logger: log,
	}
	if s.stage == "" {
		s.stage = constants.DefaultStageName
	}

	if cfg.Predicate.Expression != "" {
		evaluator, err := cel.NewEvaluator()
		if err != nil {
			return nil, fmt.Errorf("failed to create CEL evaluator: %w", err)
		}
		predicate, err := evaluator.CompilePredicate(cfg.Predicate.Expression, cfg.Predicate.Negate)
		if err != nil {
			return nil, errors.Configuration(fmt.Sprintf("invalid transform predicate: %v", err)).WithCause(err)
		}
		s.predicate = predicate
	}

	if cfg.FieldName != "" || repo == nil {
		if err := s.apply(context.Background(), map[string]interface{}{transform.FieldNameConfig: cfg.FieldName}, true, 0); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *Service) Stage() string {
	return s.stage
}

// FieldName returns the active field name, or "" when not configured.
func (s *Service) FieldName() string {
	if cur := s.current.Load(); cur != nil {
		return cur.transform.FieldName()
	}
	return ""
}

func (s *Service) Definition() *transform.ConfigDef {
	return transform.NewFieldValuesFlattener().Config()
}

func (s *Service) Snapshot() Snapshot {
	snap := Snapshot{
		Stage:      s.stage,
		Source:     s.cfg.Source,
		Definition: s.Definition().Keys(),
	}
	if snap.Source == "" {
		snap.Source = constants.TransformSourceStatic
	}
	if cur := s.current.Load(); cur != nil {
		snap.FieldName = cur.transform.FieldName()
		snap.Enabled = cur.enabled
		snap.Version = cur.version
	}
	if s.predicate != nil {
		snap.Predicate = &PredicateSnapshot{
			Expression: s.predicate.Expression(),
			Negate:     s.predicate.Negated(),
		}
	}
	return snap
}

// Process runs one record through the stage. Records the predicate rejects
// and records of a disabled stage pass through unchanged.
func (s *Service) Process(ctx context.Context, rec models.Record) (models.Record, string, error) {
	start := time.Now()

	out, outcome, err := s.process(ctx, rec)
	if err != nil {
		outcome = OutcomeRejected
	}

	if outcome == string(transform.OutcomeTransformed) {
		if values, ok := out.PayloadField(s.FieldName()); ok {
			if list, ok := values.([]interface{}); ok {
				metrics.ObserveProjectedValues(s.stage, len(list))
			}
		}
	}
	metrics.IncTransformRecord(s.stage, outcome)
	metrics.ObserveTransformDuration(s.stage, outcome, time.Since(start))
	return out, outcome, err
}

func (s *Service) process(ctx context.Context, rec models.Record) (models.Record, string, error) {
	cur := s.current.Load()
	if cur == nil {
		return rec, "", errors.Configuration("transform is not configured").WithDetail("stage", s.stage)
	}

	if !cur.enabled {
		return rec, OutcomeDisabled, nil
	}

	if s.predicate != nil {
		matched, err := s.predicate.Matches(ctx, rec)
		if err != nil {
			return rec, "", errors.ErrValidation.
				WithDetail("message", fmt.Sprintf("predicate evaluation failed: %v", err)).
				WithCause(err)
		}
		if !matched {
			return rec, OutcomePredicateSkipped, nil
		}
	}

	out, outcome, err := cur.transform.Flatten(rec)
	if err != nil {
		return rec, "", err
	}
	return out, string(outcome), nil
}

// Preview runs rec through the active configuration like Process but leaves
// the stage metrics untouched.
func (s *Service) Preview(ctx context.Context, rec models.Record) (models.Record, string, error) {
	return s.process(ctx, rec)
}

// Reconfigure applies props without persisting them. The enabled flag and
// stored version of the active configuration are kept.
func (s *Service) Reconfigure(ctx context.Context, props map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	enabled, version := true, 0
	if cur := s.current.Load(); cur != nil {
		enabled, version = cur.enabled, cur.version
	}
	return s.apply(ctx, props, enabled, version)
}

// ConfigureFieldName switches the active field name. Setting the current
// name again is a no-op.
func (s *Service) ConfigureFieldName(ctx context.Context, fieldName string) error {
	if cur := s.current.Load(); cur != nil && cur.transform.FieldName() == fieldName {
		return nil
	}
	return s.Reconfigure(ctx, map[string]interface{}{transform.FieldNameConfig: fieldName})
}

// Update validates props, persists them when the stage has a repository, and
// then activates them. Invalid props are never stored.
func (s *Service) Update(ctx context.Context, props map[string]interface{}, changedBy string) (*StageConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidate := transform.NewFieldValuesFlattener()
	if err := candidate.Configure(props); err != nil {
		metrics.IncConfigReload(s.stage, "failure")
		return nil, err
	}

	stored := &StageConfig{
		Stage:     s.stage,
		FieldName: candidate.FieldName(),
		Enabled:   true,
		UpdatedBy: changedBy,
		UpdatedAt: time.Now().UTC(),
	}
	if s.repo != nil {
		if err := s.repo.Save(ctx, stored); err != nil {
			return nil, fmt.Errorf("failed to persist stage config: %w", err)
		}
	}

	s.publish(ctx, &active{transform: candidate, enabled: stored.Enabled, version: stored.Version})
	return stored, nil
}

// UpdateFieldName is Update for the single field.name option.
func (s *Service) UpdateFieldName(ctx context.Context, fieldName, changedBy string) (*StageConfig, error) {
	return s.Update(ctx, map[string]interface{}{transform.FieldNameConfig: fieldName}, changedBy)
}

// ReloadConfig pulls the stored config and activates it when it differs from
// the active one. Stages without a repository have nothing to reload.
func (s *Service) ReloadConfig(ctx context.Context, skipJitter ...bool) error {
	if s.repo == nil {
		return nil
	}

	if err := s.applyJitter(ctx, len(skipJitter) > 0 && skipJitter[0]); err != nil {
		return err
	}

	stored, err := s.repo.Get(ctx, s.stage)
	if errors.IsNotFound(err) {
		if s.current.Load() == nil {
			return errors.Configuration(fmt.Sprintf("no transform config stored for stage %q and no fallback field name", s.stage)).
				WithCause(err)
		}
		s.logger.DebugwCtx(ctx, "No stored transform config, keeping active one", "stage", s.stage)
		return nil
	}
	if err != nil {
		metrics.IncConfigReload(s.stage, "failure")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cur := s.current.Load(); cur != nil {
		// An Update may have stored and activated a newer version while
		// this reload was reading.
		if stored.Version < cur.version {
			s.logger.DebugwCtx(ctx, "Skipping stale transform config",
				"stage", s.stage,
				"stored_version", stored.Version,
				"active_version", cur.version,
			)
			return nil
		}
		if cur.version == stored.Version &&
			cur.enabled == stored.Enabled &&
			cur.transform.FieldName() == stored.FieldName {
			return nil
		}
	}

	return s.apply(ctx, stored.Props(), stored.Enabled, stored.Version)
}

func (s *Service) applyJitter(ctx context.Context, skipJitter bool) error {
	if skipJitter || s.cfg.Reload.JitterMaxMilliseconds <= 0 {
		return nil
	}

	jitter := time.Duration(rand.Intn(s.cfg.Reload.JitterMaxMilliseconds)) * time.Millisecond
	s.logger.DebugwCtx(ctx, "Reload scheduled with jitter", "jitter_ms", jitter.Milliseconds())

	select {
	case <-time.After(jitter):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StartReloader reloads the stored config every reload interval until ctx is done.
func (s *Service) StartReloader(ctx context.Context) error {
	if s.repo == nil || s.cfg.Reload.IntervalSeconds <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(time.Duration(s.cfg.Reload.IntervalSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.ReloadConfig(ctx); err != nil && ctx.Err() == nil {
				s.logger.ErrorwCtx(ctx, "Failed to reload transform config",
					"stage", s.stage,
					"error", err,
				)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// apply must be called with s.mu held, or before the service is shared.
func (s *Service) apply(ctx context.Context, props map[string]interface{}, enabled bool, version int) error {
	next := transform.NewFieldValuesFlattener()
	if err := next.Configure(props); err != nil {
		metrics.IncConfigReload(s.stage, "failure")
		s.logger.WarnwCtx(ctx, "Rejected transform configuration",
			"stage", s.stage,
			"error", err,
		)
		return err
	}

	s.publish(ctx, &active{transform: next, enabled: enabled, version: version})
	return nil
}

func (s *Service) publish(ctx context.Context, next *active) {
	prev := s.current.Swap(next)
	if prev != nil {
		if err := prev.transform.Close(); err != nil {
			s.logger.WarnwCtx(ctx, "Failed to close previous transform", "error", err)
		}
	}

	metrics.IncConfigReload(s.stage, "success")
	s.logger.InfowCtx(ctx, "Transform configured",
		"stage", s.stage,
		"field_name", next.transform.FieldName(),
		"enabled", next.enabled,
		"version", next.version,
	)
}

// Close releases the active transform.
func (s *Service) Close() error {
	if cur := s.current.Swap(nil); cur != nil {
		return cur.transform.Close()
	}
	return nil
}
