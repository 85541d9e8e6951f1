package strategy

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math"
)

// PriceBucket maps a price onto a 5-cent bucket: floor(price*100) cents,
// integer-divided by 5. Prices inside the same bucket hash identically, so
// near-duplicate signals produced a tick apart collide on purpose.
func PriceBucket(price float64) int64 {
	return int64(math.Floor(price*100)) / 5
}

// ComputeSignalHash fingerprints a signal for cooldown tracking. The hash
// is deliberately short (8 hex chars of md5): it only has to distinguish
// signals within the cooldown window, not be collision-free forever.
func ComputeSignalHash(symbol, signalType, action, reason string, price float64) string {
	payload := fmt.Sprintf("%s_%s_%s_%s_%d", symbol, signalType, action, reason, PriceBucket(price))
	sum := md5.Sum([]byte(payload))
	return hex.EncodeToString(sum[:])[:8]
}

// ComputeHash fills the signal's Hash field from its identifying fields.
func (s *Signal) ComputeHash() {
	s.Hash = ComputeSignalHash(s.Symbol, s.Type, s.Action, s.Reason, s.ReferencePrice)
}
