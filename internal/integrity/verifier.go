// Package integrity holds the pure decision functions of the verification
// protocol: the per-segment signature/sequencing verifier and the trust-score
// policy. Nothing in this package touches storage or the network.
package integrity

import (
	"fmt"

	"github.com/ppah/verify-server-go/internal/util"
)

// SequenceOutcome classifies an in-window segment report. The three accept
// outcomes drive different side effects in the engine (chain append vs no-op),
// so they must stay distinguishable.
type SequenceOutcome int

const (
	SequenceInOrder SequenceOutcome = iota
	SequenceGapTolerated
	SequenceStaleIgnored
)

func (o SequenceOutcome) String() string {
	switch o {
	case SequenceInOrder:
		return "in_order"
	case SequenceGapTolerated:
		return "gap_tolerated"
	case SequenceStaleIgnored:
		return "stale_ignored"
	}
	return "unknown"
}

// ViolationKind identifies a hard verification failure.
type ViolationKind string

const (
	ViolationSignature ViolationKind = "signature"
	ViolationSequence  ViolationKind = "sequence"
)

// Violation is a hard failure: evidence of tampering or injection.
// The engine freezes the session and the freeze is not recoverable by a
// later high trust score.
type Violation struct {
	Kind   ViolationKind
	Detail string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("%s violation: %s", v.Kind, v.Detail)
}

// VerifySignature checks the HMAC-SHA256 signature of a segment report
// against the session's secret key using a constant-time comparison.
// A missing session key fails closed.
func VerifySignature(sessionKey, sessionID string, segmentID int, hash, signature string, trustScore int) *Violation {
	if sessionKey == "" {
		return &Violation{
			Kind:   ViolationSignature,
			Detail: "missing session key",
		}
	}

	expected := util.SegmentSignature(sessionKey, sessionID, segmentID, hash, trustScore)
	if !util.ConstantTimeEqual(expected, signature) {
		return &Violation{
			Kind:   ViolationSignature,
			Detail: fmt.Sprintf("HMAC mismatch for segment %d", segmentID),
		}
	}

	return nil
}

// CheckSequence applies the sliding-window sequencing rules. segmentCount is
// the highest segment id accepted so far.
//
//	count+1  -> in order
//	count+2  -> exactly one segment dropped; tolerated, chain advances
//	<= count -> stale or duplicate; idempotent no-op
//	anything further ahead is treated as possible injection
func CheckSequence(segmentCount, segmentID int) (SequenceOutcome, *Violation) {
	expected := segmentCount + 1

	switch {
	case segmentID == expected:
		return SequenceInOrder, nil
	case segmentID == expected+1:
		return SequenceGapTolerated, nil
	case segmentID <= segmentCount:
		return SequenceStaleIgnored, nil
	default:
		return 0, &Violation{
			Kind:   ViolationSequence,
			Detail: fmt.Sprintf("expected %d, got %d", expected, segmentID),
		}
	}
}
