// Package settings keeps the live application settings. Components that
// depend on a setting receive the Store and either read it per request or
// subscribe to changes.
package settings

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// Source persists settings. repository.SettingRepository implements it.
type Source interface {
	GetAll(ctx context.Context) ([]model.AppSetting, error)
	UpsertMany(ctx context.Context, values map[string]string) error
}

// Store holds the current AppSettings.
type Store struct {
	src Source
	log zerolog.Logger

	mu      sync.RWMutex
	current model.AppSettings
	nextID  int
	subs    map[int]func(model.AppSettings)
}

// NewStore creates a Store seeded with defaults. Call Load to read the table.
func NewStore(src Source, defaults model.AppSettings, log zerolog.Logger) *Store {
	return &Store{
		src:     src,
		log:     log.With().Str("component", "settings").Logger(),
		current: defaults,
		subs:    make(map[int]func(model.AppSettings)),
	}
}

// Load replaces the current settings with the persisted ones. Keys that are
// missing or unparsable keep their current value.
func (s *Store) Load(ctx context.Context) error {
	rows, err := s.src.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	s.mu.Lock()
	next := s.current
	for _, row := range rows {
		s.apply(&next, row.Key, row.Value)
	}
	s.current = next
	fns := s.subscribers()
	s.mu.Unlock()

	s.log.Info().
		Int("max_violations", next.MaxViolations).
		Int("pass_threshold", next.PassThreshold).
		Msg("Settings loaded")
	notify(fns, next)
	return nil
}

// Get returns the current settings.
func (s *Store) Get() model.AppSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update persists the non-nil fields of req and publishes the result.
func (s *Store) Update(ctx context.Context, req model.UpdateSettingsRequest) (model.AppSettings, error) {
	values := make(map[string]string, 4)
	if req.SchoolName != nil {
		values[model.SettingSchoolName] = *req.SchoolName
	}
	if req.AppName != nil {
		values[model.SettingAppName] = *req.AppName
	}
	if req.MaxViolations != nil {
		values[model.SettingMaxViolations] = strconv.Itoa(*req.MaxViolations)
	}
	if req.PassThreshold != nil {
		values[model.SettingPassThreshold] = strconv.Itoa(*req.PassThreshold)
	}

	if err := s.src.UpsertMany(ctx, values); err != nil {
		return model.AppSettings{}, fmt.Errorf("save settings: %w", err)
	}

	s.mu.Lock()
	next := s.current
	for k, v := range values {
		s.apply(&next, k, v)
	}
	s.current = next
	fns := s.subscribers()
	s.mu.Unlock()

	notify(fns, next)
	return next, nil
}

// Subscribe registers fn for every change. The returned func unsubscribes.
func (s *Store) Subscribe(fn func(model.AppSettings)) (unsubscribe func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// subscribers is called with mu held.
func (s *Store) subscribers() []func(model.AppSettings) {
	fns := make([]func(model.AppSettings), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	return fns
}

func notify(fns []func(model.AppSettings), v model.AppSettings) {
	for _, fn := range fns {
		fn(v)
	}
}

func (s *Store) apply(dst *model.AppSettings, key, value string) {
	switch key {
	case model.SettingSchoolName:
		dst.SchoolName = value
	case model.SettingAppName:
		dst.AppName = value
	case model.SettingMaxViolations:
		if n, err := strconv.Atoi(value); err == nil && n >= 1 {
			dst.MaxViolations = n
		} else {
			s.log.Warn().Str("key", key).Str("value", value).Msg("Ignoring invalid setting")
		}
	case model.SettingPassThreshold:
		if n, err := strconv.Atoi(value); err == nil && n >= 0 && n <= 100 {
			dst.PassThreshold = n
		} else {
			s.log.Warn().Str("key", key).Str("value", value).Msg("Ignoring invalid setting")
		}
	}
}
