// Package integrity computes and verifies tamper-evident digests for audit
// payloads. The digest is a keyed HMAC-SHA256 over the event type, the
// canonical encrypted payload, and the creation timestamp; it is computed
// once at creation time and only ever recomputed for comparison.
package integrity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Hasher produces hex-encoded HMAC-SHA256 digests with a fixed key.
type Hasher struct {
	key []byte
}

func New(key []byte) (*Hasher, error) {
	if len(key) == 0 {
		return nil, errors.New("integrity key is empty")
	}
	return &Hasher{key: key}, nil
}

// Compute returns the digest of eventType || payload || unix timestamp.
// The payload must already be canonical (see Canonicalize).
func (h *Hasher) Compute(eventType string, canonicalPayload []byte, createdAt time.Time) string {
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(eventType))
	mac.Write(canonicalPayload)
	mac.Write([]byte(strconv.FormatInt(createdAt.Unix(), 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the digest and compares it against the expected value in
// constant time. Any structural problem (undecodable expected hash) verifies
// as false rather than erroring: a digest that cannot be compared is a
// failed comparison.
func (h *Hasher) Verify(eventType string, canonicalPayload []byte, createdAt time.Time, expected string) bool {
	want, err := hex.DecodeString(expected)
	if err != nil {
		return false
	}
	got, err := hex.DecodeString(h.Compute(eventType, canonicalPayload, createdAt))
	if err != nil {
		return false
	}
	return hmac.Equal(got, want)
}

// Canonicalize renders a payload as deterministic JSON. encoding/json sorts
// map keys, which is the only ordering guarantee the digest relies on.
func Canonicalize(payload map[string]any) ([]byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("canonicalize payload: %w", err)
	}
	return b, nil
}
