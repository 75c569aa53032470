package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"rollout.io/rollout/internal/cache"
	"rollout.io/rollout/internal/constraint"
	"rollout.io/rollout/internal/domain"
	"rollout.io/rollout/internal/hashing"
	"rollout.io/rollout/internal/pkg/logger"
	"rollout.io/rollout/internal/pkg/metrics"
	"rollout.io/rollout/internal/pkg/worker"
)

// ExposureWriter records one exposure. *Recorder implements it.
type ExposureWriter interface {
	RecordExposure(ctx context.Context, in ExposureInput) (*domain.Exposure, error)
}

// Engine decides flags for a client.
type Engine struct {
	resolver  *FlagResolver
	cache     *cache.FlagCache
	exposures ExposureWriter
	pools     *worker.Pools
	log       *zap.Logger
}

// NewEngine creates an Engine. exposures and pools may be nil, in which case
// recordExposures requests are ignored.
func NewEngine(resolver *FlagResolver, flagCache *cache.FlagCache, exposures ExposureWriter, pools *worker.Pools) *Engine {
	return &Engine{
		resolver:  resolver,
		cache:     flagCache,
		exposures: exposures,
		pools:     pools,
		log:       logger.Named("decision"),
	}
}

// Decide evaluates each requested key independently. A key that fails with an
// unexpected error is reported as evaluation_error without affecting the rest.
func (e *Engine) Decide(ctx context.Context, req domain.DecisionRequest) map[string]domain.Decision {
	out := make(map[string]domain.Decision, len(req.FlagKeys))
	ctxHash := cache.ContextHash(req.Context)
	for _, key := range req.FlagKeys {
		if _, seen := out[key]; seen {
			continue
		}
		d, flagID := e.decideOne(ctx, req, ctxHash, key)
		metrics.Decisions.WithLabelValues(string(d.Reason)).Inc()
		out[key] = d
		if req.RecordExposures && flagID != "" {
			e.recordExposure(req, flagID, d)
		}
	}
	return out
}

// DecideAll evaluates every known flag for the client.
func (e *Engine) DecideAll(ctx context.Context, clientID string, attrs map[string]any, environment string) (map[string]domain.Decision, error) {
	keys, err := e.resolver.Keys(ctx)
	if err != nil {
		return nil, err
	}
	return e.Decide(ctx, domain.DecisionRequest{
		ClientID:    clientID,
		FlagKeys:    keys,
		Context:     attrs,
		Environment: environment,
	}), nil
}

// decideOne returns the decision and, when the flag resolved, its id. A panic
// while evaluating the key is reported as evaluation_error for that key only.
func (e *Engine) decideOne(ctx context.Context, req domain.DecisionRequest, ctxHash, key string) (d domain.Decision, flagID string) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("flag evaluation panicked",
				flagField(key),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			d, flagID = domain.Disabled(domain.ReasonEvaluationError), ""
		}
	}()

	if cached, ok := e.cache.GetDecision(ctx, req.ClientID, req.Environment, ctxHash, key); ok {
		if !req.RecordExposures {
			return cached, ""
		}
		// The cached decision carries no flag id; the snapshot lookup is a
		// cache hit in the common case.
		snap, err := e.resolver.Resolve(ctx, key)
		if err != nil {
			return cached, ""
		}
		return cached, snap.ID
	}

	snap, err := e.resolver.Resolve(ctx, key)
	if err != nil {
		if isNotFound(err) {
			return domain.Disabled(domain.ReasonFlagNotFound), ""
		}
		e.log.Error("resolve flag", flagField(key), zap.Error(err))
		return domain.Disabled(domain.ReasonEvaluationError), ""
	}

	d = Evaluate(snap, req.ClientID, req.Context, req.Environment)
	e.cache.SetDecision(ctx, req.ClientID, req.Environment, ctxHash, key, d)
	return d, snap.ID
}

// Evaluate runs the decision state machine on a resolved flag.
func Evaluate(snap *domain.FlagSnapshot, subjectID string, attrs map[string]any, environment string) domain.Decision {
	if !snap.Enabled {
		return domain.Disabled(domain.ReasonFlagDisabled)
	}

	percentage := domain.DefaultPercentage
	var rules *constraint.RuleSet
	if target := snap.TargetFor(environment); target != nil {
		percentage = target.Percentage
		rules = target.Constraints
	}
	if !constraint.Evaluate(rules, constraint.Context(attrs)) {
		return domain.Disabled(domain.ReasonConstraintsNotMet)
	}

	switch snap.Type {
	case domain.FlagTypeBoolean:
		return domain.Decision{Enabled: true, Reason: domain.ReasonBooleanFlag}
	case domain.FlagTypePercentage:
		if hashing.InRollout(subjectID, snap.Key, percentage) {
			return domain.Decision{Enabled: true, Reason: domain.ReasonRolloutIncluded}
		}
		return domain.Disabled(domain.ReasonRolloutExcluded)
	case domain.FlagTypeVariant:
		return selectVariant(snap, subjectID)
	default:
		return domain.Disabled(domain.ReasonUnknownFlagType)
	}
}

func selectVariant(snap *domain.FlagSnapshot, subjectID string) domain.Decision {
	if len(snap.Variants) == 0 {
		return domain.Disabled(domain.ReasonNoVariantsDefined)
	}
	weighted := make([]hashing.Weighted, len(snap.Variants))
	for i, v := range snap.Variants {
		weighted[i] = hashing.Weighted{Key: v.Key, Weight: v.Weight}
	}
	key, ok, fallback := hashing.SelectVariant(subjectID, snap.Key, weighted)
	if !ok {
		return domain.Disabled(domain.ReasonZeroTotalWeight)
	}
	if fallback {
		return domain.Decision{Enabled: true, Variant: key, Reason: domain.ReasonVariantFallback}
	}
	return domain.Decision{Enabled: true, Variant: key, Reason: domain.ReasonVariantSelected}
}

// recordExposure hands the exposure to the events pool. Failures are logged
// and never reach the caller.
func (e *Engine) recordExposure(req domain.DecisionRequest, flagID string, d domain.Decision) {
	if e.exposures == nil || e.pools == nil {
		return
	}
	in := ExposureInput{
		FlagID:    flagID,
		UserID:    optional(req.ClientID),
		Timestamp: time.Now().UTC(),
		Metadata: map[string]any{
			"reason":  string(d.Reason),
			"enabled": d.Enabled,
		},
	}
	if d.Variant != "" {
		in.VariantKey = optional(d.Variant)
	}
	if req.Environment != "" {
		in.Metadata["environment"] = req.Environment
	}
	err := e.pools.SubmitDetached(worker.PoolEvents, func(ctx context.Context) {
		if _, err := e.exposures.RecordExposure(ctx, in); err != nil {
			e.log.Warn("record exposure", zap.String("flag_id", flagID), zap.Error(err))
		}
	})
	if err != nil {
		e.log.Warn("submit exposure", zap.String("flag_id", flagID), zap.Error(err))
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
