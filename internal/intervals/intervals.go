// Package intervals describes the valid-sample views of a detector
// timestream. An interval is an inclusive range of sample indices; a view is
// an ordered, non-overlapping sequence of intervals. Kernels only touch
// samples inside a view.
package intervals

import (
	"errors"
	"fmt"
)

var ErrInvalid = errors.New("invalid interval list")

// Interval is an inclusive range of sample indices, First <= Last.
type Interval struct {
	First int64
	Last  int64
}

// Len returns the number of samples covered by the interval.
func (iv Interval) Len() int64 {
	return iv.Last - iv.First + 1
}

// List is an ordered sequence of non-overlapping intervals.
type List []Interval

// Validate checks ordering, non-overlap and bounds against nSamp. An empty
// list is valid and means no samples are touched.
func (l List) Validate(nSamp int64) error {
	prev := int64(-1)
	for i, iv := range l {
		if iv.First < 0 || iv.Last < iv.First {
			return fmt.Errorf("%w: interval %d [%d,%d]", ErrInvalid, i, iv.First, iv.Last)
		}
		if iv.First <= prev {
			return fmt.Errorf("%w: interval %d starts at %d, overlaps previous end %d", ErrInvalid, i, iv.First, prev)
		}
		if iv.Last >= nSamp {
			return fmt.Errorf("%w: interval %d ends at %d, only %d samples", ErrInvalid, i, iv.Last, nSamp)
		}
		prev = iv.Last
	}
	return nil
}

// TotalSamples returns the number of samples covered by the list.
func (l List) TotalSamples() int64 {
	var n int64
	for _, iv := range l {
		n += iv.Len()
	}
	return n
}

// AmpViews returns, per interval, the number of offset-template amplitudes
// the interval consumes. Step boundaries sit on the absolute sample grid
// (isamp / stepLength), so an interval spanning samples [first,last] covers
// steps first/stepLength through last/stepLength inclusive.
func (l List) AmpViews(stepLength int64) ([]int64, error) {
	if stepLength <= 0 {
		return nil, fmt.Errorf("%w: step length %d", ErrInvalid, stepLength)
	}
	views := make([]int64, len(l))
	for i, iv := range l {
		views[i] = iv.Last/stepLength - iv.First/stepLength + 1
	}
	return views, nil
}

// TotalAmps returns the sum of AmpViews, the total number of amplitude
// coefficients a detector consumes across the list.
func (l List) TotalAmps(stepLength int64) (int64, error) {
	views, err := l.AmpViews(stepLength)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, v := range views {
		n += v
	}
	return n, nil
}
