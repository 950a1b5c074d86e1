package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"order_dashboard/internal/filter"
	"order_dashboard/internal/redis"
)

// PreferenceStore keeps small JSON documents per key.
type PreferenceStore interface {
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
}

// PreferenceService remembers the last facets a user applied to each view.
type PreferenceService struct {
	store PreferenceStore
	ttl   time.Duration
}

func NewPreferenceService(store PreferenceStore, ttl time.Duration) *PreferenceService {
	return &PreferenceService{store: store, ttl: ttl}
}

func preferenceKey(userID, view string) string {
	return fmt.Sprintf("prefs:%s:%s", userID, view)
}

func (s *PreferenceService) SaveFacets(ctx context.Context, userID, view string, f filter.Facets) error {
	return s.store.SetJSON(ctx, preferenceKey(userID, view), f, s.ttl)
}

// LoadFacets returns the saved facets, or zero facets when none were saved.
func (s *PreferenceService) LoadFacets(ctx context.Context, userID, view string) (filter.Facets, error) {
	var f filter.Facets
	err := s.store.GetJSON(ctx, preferenceKey(userID, view), &f)
	if errors.Is(err, redis.ErrNotFound) {
		return filter.Facets{}, nil
	}
	return f, err
}

// ResetFacets forgets the saved facets of a view.
func (s *PreferenceService) ResetFacets(ctx context.Context, userID, view string) error {
	return s.store.Delete(ctx, preferenceKey(userID, view))
}
