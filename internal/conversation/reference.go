package conversation

import (
	"fmt"
	"math/rand"
	"time"
)

// newReferenceNumber builds a booking reference such as WCA0829143247:
// a fixed prefix, the current month/day/hour/minute, and two random
// digits. Collisions are possible within a minute, so callers retry
// once on a duplicate.
func newReferenceNumber(now time.Time) string {
	return fmt.Sprintf("WCA%s%d", now.Format("01021504"), 10+rand.Intn(90))
}
