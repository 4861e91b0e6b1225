package worker

import (
	"math/rand"
	"time"
)

// Backoff returns the wait before the next poll after the given number of
// consecutive failures. The base doubles per failure up to max, and the result
// is drawn from the upper half of that window.
func Backoff(failures int, base, max time.Duration) time.Duration {
	if failures < 1 {
		failures = 1
	}
	if base <= 0 {
		base = time.Millisecond
	}
	if max < base {
		max = base
	}

	d := base
	for i := 1; i < failures && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}

	half := d / 2
	return half + time.Duration(rand.Int63n(int64(d-half+1)))
}
