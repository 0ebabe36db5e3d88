package accountage

import (
	"sort"
	"time"
)

// extrapolationLimit caps how far past the newest anchor an estimate may
// reach: above 1.3x the last calibrated ID the table says nothing useful.
const extrapolationLimit = 1.3

// Estimator estimates account age from a platform-assigned numeric ID by
// piecewise-linear interpolation over an anchor table. Pure: the caller
// supplies the clock.
type Estimator struct {
	anchors Table
}

func New(anchors Table) *Estimator {
	return &Estimator{anchors: anchors}
}

// EstimateDays returns the estimated account age in whole days at time now.
// ok is false when the ID is non-positive or beyond the extrapolation limit.
func (e *Estimator) EstimateDays(id int64, now time.Time) (int, bool) {
	if id <= 0 {
		return 0, false
	}
	last := e.anchors[len(e.anchors)-1]
	if float64(id) > extrapolationLimit*float64(last.ID) {
		return 0, false
	}

	est := e.estimateTime(id)
	days := int(now.Sub(est) / (24 * time.Hour))
	if days < 0 {
		days = 0
	}
	return days, true
}

// estimateTime maps an ID onto the calibration timeline.
func (e *Estimator) estimateTime(id int64) time.Time {
	first := e.anchors[0]
	if id <= first.ID {
		// Predates the calibration range; the first anchor is a lower
		// bound on the true registration time.
		return first.Time
	}

	// Bracketing pair with lower.ID <= id < upper.ID. At or past the last
	// anchor the final segment extrapolates.
	i := sort.Search(len(e.anchors), func(i int) bool { return e.anchors[i].ID > id })
	var lower, upper Anchor
	if i == len(e.anchors) {
		lower = e.anchors[len(e.anchors)-2]
		upper = e.anchors[len(e.anchors)-1]
	} else {
		lower = e.anchors[i-1]
		upper = e.anchors[i]
	}

	fraction := float64(id-lower.ID) / float64(upper.ID-lower.ID)
	offset := time.Duration(fraction * float64(upper.Time.Sub(lower.Time)))
	return lower.Time.Add(offset)
}
