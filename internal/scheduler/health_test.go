package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealth_SetHealthy(t *testing.T) {
	h := NewHealth()

	h.SetHealthy(ComponentSearch, "all good")

	status := h.GetStatus(ComponentSearch)
	require.NotNil(t, status)
	assert.True(t, status.Healthy)
	assert.Equal(t, "all good", status.Message)
	assert.Nil(t, status.LastError)
	assert.WithinDuration(t, time.Now(), status.LastCheck, time.Second)
	assert.WithinDuration(t, time.Now(), status.LastSuccess, time.Second)
}

func TestHealth_SetUnhealthy(t *testing.T) {
	h := NewHealth()
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return at }
	h.SetHealthy(ComponentState, "ok")

	at = at.Add(time.Minute)
	err := assert.AnError
	h.SetUnhealthy(ComponentState, err)

	status := h.GetStatus(ComponentState)
	require.NotNil(t, status)
	assert.False(t, status.Healthy)
	assert.Equal(t, err, status.LastError)
	assert.Equal(t, err.Error(), status.Message)
	assert.Equal(t, at, status.LastCheck)
	assert.Equal(t, at.Add(-time.Minute), status.LastSuccess, "last success survives a failure")
}

func TestHealth_GetStatus_NotFound(t *testing.T) {
	h := NewHealth()

	status := h.GetStatus("nonexistent")
	assert.Nil(t, status)
}

func TestHealth_GetStatus_ReturnsCopy(t *testing.T) {
	h := NewHealth()
	h.SetHealthy(ComponentAuth, "ok")

	status := h.GetStatus(ComponentAuth)
	status.Healthy = false

	assert.True(t, h.GetStatus(ComponentAuth).Healthy)
}

func TestHealth_GetAllStatuses(t *testing.T) {
	h := NewHealth()

	h.SetHealthy("comp1", "ok")
	h.SetHealthy("comp2", "ok")
	h.SetUnhealthy("comp3", assert.AnError)

	statuses := h.GetAllStatuses()
	assert.Len(t, statuses, 3)
	assert.True(t, statuses["comp1"].Healthy)
	assert.True(t, statuses["comp2"].Healthy)
	assert.False(t, statuses["comp3"].Healthy)
}

func TestHealth_IsOverallHealthy(t *testing.T) {
	t.Run("all healthy", func(t *testing.T) {
		h := NewHealth()
		h.SetHealthy("comp1", "ok")
		h.SetHealthy("comp2", "ok")

		assert.True(t, h.IsOverallHealthy())
		assert.Empty(t, h.Unhealthy())
	})

	t.Run("one unhealthy", func(t *testing.T) {
		h := NewHealth()
		h.SetHealthy("comp1", "ok")
		h.SetUnhealthy("comp2", assert.AnError)

		assert.False(t, h.IsOverallHealthy())
		assert.Equal(t, []string{"comp2"}, h.Unhealthy())
	})

	t.Run("empty", func(t *testing.T) {
		h := NewHealth()
		assert.True(t, h.IsOverallHealthy())
	})
}
