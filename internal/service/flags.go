package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"rollout.io/rollout/internal/cache"
	"rollout.io/rollout/internal/domain"
	"rollout.io/rollout/internal/pkg/logger"
)

// FlagAdminStore is the relational side of flag administration.
type FlagAdminStore interface {
	cache.SnapshotLoader
	GetSnapshotByID(ctx context.Context, id string) (*domain.FlagSnapshot, error)
	SetEnabled(ctx context.Context, id string, enabled bool) (domain.FeatureFlag, error)
}

// FlagService toggles flags and manages the flag cache.
type FlagService struct {
	store      FlagAdminStore
	cache      *cache.FlagCache
	dispatcher *domain.EventDispatcher
	log        *zap.Logger
}

// NewFlagService creates a FlagService and subscribes cache invalidation to
// the dispatcher's flag events.
func NewFlagService(store FlagAdminStore, flagCache *cache.FlagCache, dispatcher *domain.EventDispatcher) *FlagService {
	s := &FlagService{
		store:      store,
		cache:      flagCache,
		dispatcher: dispatcher,
		log:        logger.Named("flags"),
	}
	dispatcher.Register(s.invalidate, domain.EventFlagEnabled, domain.EventFlagDisabled, domain.EventFlagPurged)
	return s
}

func (s *FlagService) invalidate(ctx context.Context, event *domain.FlagEvent) error {
	return s.cache.Invalidate(ctx, event.FlagID, event.FlagKey)
}

// SetEnabled commits the new state and then invalidates the cached flag.
// An invalidation failure is logged; the cached entry expires on its TTL.
func (s *FlagService) SetEnabled(ctx context.Context, id string, enabled bool) (domain.FeatureFlag, error) {
	flag, err := s.store.SetEnabled(ctx, id, enabled)
	if err != nil {
		return domain.FeatureFlag{}, err
	}
	s.publish(ctx, domain.ToggleEventType(enabled), flag.ID, flag.Key)
	s.log.Info("flag toggled",
		zap.String("flag_id", flag.ID),
		zap.String("flag_key", flag.Key),
		zap.Bool("enabled", enabled),
	)
	return flag, nil
}

// Purge drops one flag and its cached decisions from the cache.
func (s *FlagService) Purge(ctx context.Context, id string) (string, error) {
	key := ""
	if snap, ok := s.cache.GetByID(ctx, id); ok {
		key = snap.Key
	} else {
		snap, err := s.store.GetSnapshotByID(ctx, id)
		if err != nil {
			return "", err
		}
		key = snap.Key
	}
	if err := s.dispatcher.Dispatch(ctx, s.event(domain.EventFlagPurged, id, key)); err != nil {
		return "", fmt.Errorf("purge flag %s: %w", id, err)
	}
	return key, nil
}

// WarmUp loads every flag into the cache.
func (s *FlagService) WarmUp(ctx context.Context) (int, error) {
	return s.cache.WarmUp(ctx, s.store)
}

func (s *FlagService) publish(ctx context.Context, eventType domain.EventType, id, key string) {
	if err := s.dispatcher.Dispatch(ctx, s.event(eventType, id, key)); err != nil {
		s.log.Warn("flag event not fully handled",
			zap.String("flag_id", id),
			zap.String("flag_key", key),
			zap.Error(err),
		)
	}
}

func (s *FlagService) event(eventType domain.EventType, id, key string) *domain.FlagEvent {
	return &domain.FlagEvent{
		EventID:    newEventID(),
		EventType:  eventType,
		FlagID:     id,
		FlagKey:    key,
		OccurredAt: time.Now().UTC(),
	}
}
