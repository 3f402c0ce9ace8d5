package pricing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func windowConfig(version int, from time.Time, to *time.Time) *Config {
	cfg := DefaultConfig
	cfg.Version = version
	cfg.EffectiveFrom = from
	cfg.EffectiveTo = to
	return &cfg
}

func TestActiveAt_SingleCoveringConfig(t *testing.T) {
	cutover := testNow.Add(24 * time.Hour)
	configs := []*Config{
		windowConfig(1, testNow.Add(-48*time.Hour), &cutover),
		windowConfig(2, cutover, nil),
	}

	active, err := activeAt(configs, testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, active.Version)

	active, err = activeAt(configs, cutover.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, active.Version)
}

func TestActiveAt_NoCoveringConfig(t *testing.T) {
	configs := []*Config{
		windowConfig(1, testNow.Add(time.Hour), nil),
	}

	_, err := activeAt(configs, testNow)
	assert.ErrorIs(t, err, ErrNoActiveConfig)
}

func TestActiveAt_OverlapIsAnErrorNotAWinner(t *testing.T) {
	configs := []*Config{
		windowConfig(1, testNow.Add(-48*time.Hour), nil),
		windowConfig(2, testNow.Add(-time.Hour), nil),
	}

	_, err := activeAt(configs, testNow)
	assert.ErrorIs(t, err, ErrOverlappingConfigs)
}
