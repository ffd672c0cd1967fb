package streamstatus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/eventpass/streamgate/internal/models"
)

var base = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

func scheduled(start, end time.Duration) *models.StreamSession {
	return &models.StreamSession{
		ProviderName:   models.ProviderYouTube,
		ScheduledStart: base.Add(start),
		ScheduledEnd:   base.Add(end),
	}
}

func TestDerive_NilSessionIsLoading(t *testing.T) {
	assert.Equal(t, Loading, Derive(nil, base))
}

func TestDerive_ActiveFlagDominatesSchedule(t *testing.T) {
	for _, offset := range []time.Duration{-48 * time.Hour, 0, 2 * time.Hour, 10 * time.Hour} {
		s := scheduled(time.Hour, 3*time.Hour)
		s.IsCurrentlyActive = true
		s.ReplayPermitted = true
		assert.Equal(t, Live, Derive(s, base.Add(offset)), "offset %s", offset)
	}
}

func TestDerive_ActiveFlagOverridesMalformedSchedule(t *testing.T) {
	s := &models.StreamSession{IsCurrentlyActive: true}
	state, err := Evaluate(s, base)
	assert.Equal(t, Live, state)
	assert.NoError(t, err)
}

func TestDerive_Schedule(t *testing.T) {
	tests := []struct {
		name   string
		now    time.Duration
		replay bool
		want   DisplayState
	}{
		{"before start", 0, false, StartingSoon},
		{"before start with replay", 0, true, StartingSoon},
		{"at start", time.Hour, false, Offline},
		{"inside window", 2 * time.Hour, true, Offline},
		{"at end", 3 * time.Hour, true, Offline},
		{"after end with replay", 4 * time.Hour, true, ReplayAvailable},
		{"after end without replay", 4 * time.Hour, false, Ended},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := scheduled(time.Hour, 3*time.Hour)
			s.ReplayPermitted = tt.replay
			assert.Equal(t, tt.want, Derive(s, base.Add(tt.now)))
		})
	}
}

func TestEvaluate_MissingTimestampsFailToOffline(t *testing.T) {
	s := scheduled(time.Hour, 3*time.Hour)
	s.ScheduledEnd = time.Time{}
	state, err := Evaluate(s, base.Add(5*time.Hour))
	assert.Equal(t, Offline, state)
	assert.ErrorIs(t, err, ErrMalformedSession)
}

func TestEvaluate_InvertedScheduleFailsClosed(t *testing.T) {
	s := scheduled(3*time.Hour, time.Hour)
	s.ReplayPermitted = true
	for _, now := range []time.Duration{0, 2 * time.Hour, 5 * time.Hour} {
		state, err := Evaluate(s, base.Add(now))
		assert.Equal(t, Ended, state)
		assert.ErrorIs(t, err, ErrInvalidSchedule)
	}
}

func TestDerive_EndToEndScenario(t *testing.T) {
	s := scheduled(time.Hour, 3*time.Hour)
	assert.Equal(t, StartingSoon, Derive(s, base))
	assert.Equal(t, Offline, Derive(s, base.Add(2*time.Hour)))
	s.ReplayPermitted = true
	assert.Equal(t, ReplayAvailable, Derive(s, base.Add(4*time.Hour)))
}
