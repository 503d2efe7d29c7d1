package integrity

import (
	"fmt"

	"github.com/ppah/verify-server-go/internal/model"
)

// TrustScoreThreshold is the score below which a session is soft-frozen.
const TrustScoreThreshold = 40

// ScoreTransition is the outcome of applying the trust-score policy.
type ScoreTransition struct {
	Status       model.SessionStatus
	FreezeReason string // set when transitioning into frozen
	Recovered    bool   // true when a frozen session recovered
}

// ApplyTrustScore derives the status transition for a reported score.
// Score freezes are soft: they heal automatically once the score recovers,
// as long as signature and sequencing checks keep passing. The caller must
// not apply the result to a hard-frozen session.
func ApplyTrustScore(status model.SessionStatus, score int) ScoreTransition {
	if score < TrustScoreThreshold {
		return ScoreTransition{
			Status:       model.SessionStatusFrozen,
			FreezeReason: fmt.Sprintf("Trust score %d below threshold %d", score, TrustScoreThreshold),
		}
	}

	if status == model.SessionStatusFrozen {
		return ScoreTransition{
			Status:    model.SessionStatusActive,
			Recovered: true,
		}
	}

	return ScoreTransition{Status: status}
}
