package accountage

import (
	"fmt"
	"time"
)

// Anchor is a calibration point: a messaging-platform user ID whose
// registration time is known.
type Anchor struct {
	ID   int64
	Time time.Time
}

// Table is an ordered set of anchors, ascending by ID. Immutable once built.
type Table []Anchor

// NewTable validates that anchors ascend strictly by both ID and time.
func NewTable(anchors []Anchor) (Table, error) {
	if len(anchors) < 2 {
		return nil, fmt.Errorf("anchor table needs at least 2 points, got %d", len(anchors))
	}
	for i := 1; i < len(anchors); i++ {
		if anchors[i].ID <= anchors[i-1].ID {
			return nil, fmt.Errorf("anchor %d: id %d not greater than previous %d", i, anchors[i].ID, anchors[i-1].ID)
		}
		if !anchors[i].Time.After(anchors[i-1].Time) {
			return nil, fmt.Errorf("anchor %d: time %s not after previous %s", i,
				anchors[i].Time.Format(time.RFC3339), anchors[i-1].Time.Format(time.RFC3339))
		}
	}
	out := make(Table, len(anchors))
	copy(out, anchors)
	return out, nil
}

// defaultAnchors maps known messaging-platform IDs to observed registration
// months, late 2013 through early 2025. ID assignment accelerated with
// platform growth, hence the widening gaps.
var defaultAnchors = []Anchor{
	{ID: 2768409, Time: time.Date(2013, time.November, 1, 0, 0, 0, 0, time.UTC)},
	{ID: 7679610, Time: time.Date(2014, time.March, 15, 0, 0, 0, 0, time.UTC)},
	{ID: 15835244, Time: time.Date(2015, time.April, 1, 0, 0, 0, 0, time.UTC)},
	{ID: 23646077, Time: time.Date(2015, time.October, 1, 0, 0, 0, 0, time.UTC)},
	{ID: 38015510, Time: time.Date(2016, time.April, 1, 0, 0, 0, 0, time.UTC)},
	{ID: 54845238, Time: time.Date(2017, time.April, 1, 0, 0, 0, 0, time.UTC)},
	{ID: 101260938, Time: time.Date(2017, time.November, 1, 0, 0, 0, 0, time.UTC)},
	{ID: 109393468, Time: time.Date(2018, time.May, 1, 0, 0, 0, 0, time.UTC)},
	{ID: 124872445, Time: time.Date(2018, time.October, 1, 0, 0, 0, 0, time.UTC)},
	{ID: 133909606, Time: time.Date(2019, time.February, 1, 0, 0, 0, 0, time.UTC)},
	{ID: 237798498, Time: time.Date(2019, time.December, 1, 0, 0, 0, 0, time.UTC)},
	{ID: 566565179, Time: time.Date(2021, time.January, 1, 0, 0, 0, 0, time.UTC)},
	{ID: 1500000000, Time: time.Date(2021, time.October, 1, 0, 0, 0, 0, time.UTC)},
	{ID: 2500000000, Time: time.Date(2022, time.June, 1, 0, 0, 0, 0, time.UTC)},
	{ID: 5000000000, Time: time.Date(2023, time.February, 1, 0, 0, 0, 0, time.UTC)},
	{ID: 6500000000, Time: time.Date(2023, time.November, 1, 0, 0, 0, 0, time.UTC)},
	{ID: 7300000000, Time: time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)},
	{ID: 7800000000, Time: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)},
}

// DefaultTable returns a copy of the built-in calibration set.
func DefaultTable() Table {
	out := make(Table, len(defaultAnchors))
	copy(out, defaultAnchors)
	return out
}
