package util

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
)

const (
	sessionIDBytes  = 16
	sessionKeyBytes = 32
)

// GenerateSessionID returns a 128-bit random hex token.
func GenerateSessionID() (string, error) {
	return randomHex(sessionIDBytes)
}

// GenerateSessionKey returns a 256-bit random hex key. It is handed to the
// client exactly once, in the session-init response.
func GenerateSessionKey() (string, error) {
	return randomHex(sessionKeyBytes)
}

func randomHex(n int) (string, error) {
	bytes := make([]byte, n)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// SegmentSignature computes the HMAC-SHA256 hex signature the client is
// expected to send with a segment report. The message is the exact
// concatenation of session id, segment id, hash and trust score.
func SegmentSignature(sessionKey, sessionID string, segmentID int, hash string, trustScore int) string {
	message := sessionID + strconv.Itoa(segmentID) + hash + strconv.Itoa(trustScore)
	return HmacSHA256(sessionKey, message)
}

func HmacSHA256(secret, data string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
