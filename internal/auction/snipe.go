package auction

import (
	"time"

	"github.com/alanyoungcy/gemauction/internal/domain"
)

// MaybeExtend decides whether a bid accepted at acceptedAt pushes the close
// time out. It returns the new extended end time and true when it fires.
//
// The extension fires whenever the time remaining before the effective close
// is within the auction's threshold, so repeated late bids keep pushing it.
// maxTotal caps how far past the original EndTime the close may move; zero
// leaves it unbounded.
func MaybeExtend(a *domain.Auction, acceptedAt time.Time, maxTotal time.Duration) (time.Time, bool) {
	if !a.AutoExtend || a.ExtendMinutes <= 0 {
		return time.Time{}, false
	}

	effective := a.EffectiveEndTime()
	threshold := time.Duration(a.ExtendThresholdMinutes) * time.Minute
	if effective.Sub(acceptedAt) > threshold {
		return time.Time{}, false
	}

	next := effective.Add(time.Duration(a.ExtendMinutes) * time.Minute)
	if maxTotal > 0 {
		if limit := a.EndTime.Add(maxTotal); next.After(limit) {
			next = limit
		}
	}
	if !next.After(effective) {
		return time.Time{}, false
	}
	return next, true
}
