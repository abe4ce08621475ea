package dataset

import (
	"fmt"
	"time"
)

// SplitByDate extracts the contiguous [start, end] range of the panel as a
// new panel, sorted by (date, tic) with dates re-factorized into dense codes.
func SplitByDate(p *Panel, start, end time.Time) *Panel {
	var rows []Row
	for _, row := range p.Rows() {
		if !row.Date.Before(start) && !row.Date.After(end) {
			rows = append(rows, row)
		}
	}
	return NewPanel(rows)
}

// NextDate returns the date that is offset positions after the given date in
// the panel's sorted unique-date sequence. When no such date exists the zero
// time is returned; callers check with IsZero. Lookups never fail loudly
// here: running off the end of the calendar is an expected condition.
func NextDate(p *Panel, after time.Time, offset int) time.Time {
	if offset < 1 {
		offset = 1
	}

	remaining := offset
	for _, date := range p.Calendar() {
		if date.After(after) {
			remaining--
			if remaining == 0 {
				return date
			}
		}
	}
	return time.Time{}
}

// Fold is one train/test pair of date-index ranges produced by the
// time-series splitter. Indices address the panel's calendar.
type Fold struct {
	TrainStart, TrainEnd int // inclusive calendar indices
	TestStart, TestEnd   int // inclusive calendar indices
}

// TimeSeriesSplitter produces ordered, non-overlapping walk-forward folds:
// each test window follows its train window in time, and train windows grow
// (or are capped at MaxTrainSize) as folds advance.
type TimeSeriesSplitter struct {
	NSplits      int // number of folds, minimum 2
	MaxTrainSize int // cap on train window length, 0 means unbounded
	TestSize     int // test window length, 0 derives it from NSplits
	Gap          int // dates excluded between train end and test start
}

// Split generates the folds for a calendar of n dates.
func (s TimeSeriesSplitter) Split(n int) ([]Fold, error) {
	nSplits := s.NSplits
	if nSplits < 2 {
		nSplits = 5
	}

	testSize := s.TestSize
	if testSize <= 0 {
		testSize = n / (nSplits + 1)
	}
	if testSize < 1 {
		return nil, fmt.Errorf("cannot produce %d folds from %d dates", nSplits, n)
	}

	firstTest := n - nSplits*testSize
	if firstTest-s.Gap < 1 {
		return nil, fmt.Errorf("cannot produce %d folds of test size %d with gap %d from %d dates",
			nSplits, testSize, s.Gap, n)
	}

	folds := make([]Fold, 0, nSplits)
	for i := 0; i < nSplits; i++ {
		testStart := firstTest + i*testSize
		trainEnd := testStart - s.Gap - 1

		trainStart := 0
		if s.MaxTrainSize > 0 && trainEnd-s.MaxTrainSize+1 > 0 {
			trainStart = trainEnd - s.MaxTrainSize + 1
		}

		folds = append(folds, Fold{
			TrainStart: trainStart,
			TrainEnd:   trainEnd,
			TestStart:  testStart,
			TestEnd:    testStart + testSize - 1,
		})
	}
	return folds, nil
}
