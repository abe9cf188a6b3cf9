package metrics

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetricsInitialization(t *testing.T) {
	assert.NotNil(t, CacheLookupsTotal)
	assert.NotNil(t, CachePromotionsTotal)
	assert.NotNil(t, CacheEvictionsTotal)
	assert.NotNil(t, CommitActionsTotal)
	assert.NotNil(t, CommitFailuresTotal)
	assert.NotNil(t, RemoteCallsTotal)
	assert.NotNil(t, RemoteCallDuration)
	assert.NotNil(t, TrackerFastPathTotal)
	assert.NotNil(t, SessionsActive)
	assert.NotNil(t, SessionOutcomesTotal)
}

func TestResult(t *testing.T) {
	assert.Equal(t, "ok", Result(nil))
	assert.Equal(t, "error", Result(errors.New("x")))
}
