package workers

import (
	"context"
	"math/rand"
	"time"
)

// sleepWithJitter pauses for a random duration in [min, max], bailing
// early on context cancellation.
func sleepWithJitter(ctx context.Context, min, max time.Duration) {
	d := min
	if max > min {
		d += time.Duration(rand.Int63n(int64(max - min)))
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
