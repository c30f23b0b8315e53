package settings

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/model"
)

type memSource struct {
	mu      sync.Mutex
	rows    map[string]string
	failErr error
}

func (m *memSource) GetAll(context.Context) ([]model.AppSetting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return nil, m.failErr
	}
	out := make([]model.AppSetting, 0, len(m.rows))
	for k, v := range m.rows {
		out = append(out, model.AppSetting{Key: k, Value: v})
	}
	return out, nil
}

func (m *memSource) UpsertMany(_ context.Context, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	for k, v := range values {
		m.rows[k] = v
	}
	return nil
}

var defaults = model.AppSettings{AppName: "ExStem", MaxViolations: 3, PassThreshold: 70}

func intPtr(n int) *int       { return &n }
func strPtr(s string) *string { return &s }

func TestStore_LoadOverridesDefaults(t *testing.T) {
	src := &memSource{rows: map[string]string{
		model.SettingSchoolName:    "SMA Negeri 1",
		model.SettingMaxViolations: "5",
		model.SettingPassThreshold: "abc",
	}}
	s := NewStore(src, defaults, zerolog.Nop())

	require.NoError(t, s.Load(context.Background()))

	got := s.Get()
	assert.Equal(t, "SMA Negeri 1", got.SchoolName)
	assert.Equal(t, "ExStem", got.AppName)
	assert.Equal(t, 5, got.MaxViolations)
	assert.Equal(t, 70, got.PassThreshold, "unparsable values keep the current one")
}

func TestStore_LoadError(t *testing.T) {
	boom := errors.New("db down")
	s := NewStore(&memSource{failErr: boom}, defaults, zerolog.Nop())

	assert.ErrorIs(t, s.Load(context.Background()), boom)
	assert.Equal(t, defaults, s.Get())
}

func TestStore_UpdateNotifiesSubscribers(t *testing.T) {
	src := &memSource{rows: map[string]string{}}
	s := NewStore(src, defaults, zerolog.Nop())

	var seen []model.AppSettings
	unsubscribe := s.Subscribe(func(v model.AppSettings) { seen = append(seen, v) })

	got, err := s.Update(context.Background(), model.UpdateSettingsRequest{
		AppName:       strPtr("Ujian"),
		PassThreshold: intPtr(60),
	})
	require.NoError(t, err)
	assert.Equal(t, 60, got.PassThreshold)
	assert.Equal(t, 3, got.MaxViolations)
	assert.Equal(t, "60", src.rows[model.SettingPassThreshold])
	assert.NotContains(t, src.rows, model.SettingMaxViolations)
	require.Len(t, seen, 1)
	assert.Equal(t, got, seen[0])

	unsubscribe()
	unsubscribe()
	_, err = s.Update(context.Background(), model.UpdateSettingsRequest{MaxViolations: intPtr(4)})
	require.NoError(t, err)
	assert.Len(t, seen, 1)
	assert.Equal(t, 4, s.Get().MaxViolations)
}

func TestStore_UpdateFailureKeepsCurrent(t *testing.T) {
	src := &memSource{rows: map[string]string{}, failErr: errors.New("db down")}
	s := NewStore(src, defaults, zerolog.Nop())

	_, err := s.Update(context.Background(), model.UpdateSettingsRequest{PassThreshold: intPtr(10)})
	require.Error(t, err)
	assert.Equal(t, 70, s.Get().PassThreshold)
}
