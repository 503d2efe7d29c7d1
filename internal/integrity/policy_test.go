package integrity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ppah/verify-server-go/internal/model"
)

func TestApplyTrustScore(t *testing.T) {
	t.Run("low score freezes an active session", func(t *testing.T) {
		tr := ApplyTrustScore(model.SessionStatusActive, 39)
		assert.Equal(t, model.SessionStatusFrozen, tr.Status)
		assert.Contains(t, tr.FreezeReason, "39")
		assert.False(t, tr.Recovered)
	})

	t.Run("low score keeps a frozen session frozen", func(t *testing.T) {
		tr := ApplyTrustScore(model.SessionStatusFrozen, 10)
		assert.Equal(t, model.SessionStatusFrozen, tr.Status)
		assert.NotEmpty(t, tr.FreezeReason)
	})

	t.Run("threshold score recovers a frozen session", func(t *testing.T) {
		tr := ApplyTrustScore(model.SessionStatusFrozen, TrustScoreThreshold)
		assert.Equal(t, model.SessionStatusActive, tr.Status)
		assert.True(t, tr.Recovered)
		assert.Empty(t, tr.FreezeReason)
	})

	t.Run("good score leaves an active session unchanged", func(t *testing.T) {
		tr := ApplyTrustScore(model.SessionStatusActive, 95)
		assert.Equal(t, model.SessionStatusActive, tr.Status)
		assert.False(t, tr.Recovered)
		assert.Empty(t, tr.FreezeReason)
	})

	t.Run("score just below threshold freezes", func(t *testing.T) {
		tr := ApplyTrustScore(model.SessionStatusActive, TrustScoreThreshold-1)
		assert.Equal(t, model.SessionStatusFrozen, tr.Status)
	})
}
