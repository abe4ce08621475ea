package dataset

import (
	"testing"
	"time"
)

func TestSplitByDate(t *testing.T) {
	p := NewPanel(testRows())

	sub := SplitByDate(p, day(2), day(3))
	if len(sub.Calendar()) != 2 {
		t.Fatalf("SplitByDate() calendar has %d dates, want 2", len(sub.Calendar()))
	}
	// Codes must restart at zero in the sub-panel.
	if sub.DateCode(0) != 0 {
		t.Errorf("DateCode(0) = %d, want 0", sub.DateCode(0))
	}

	// Range is inclusive on both ends.
	full := SplitByDate(p, day(1), day(3))
	if full.Len() != p.Len() {
		t.Errorf("SplitByDate() over full range has %d rows, want %d", full.Len(), p.Len())
	}
}

func TestNextDate(t *testing.T) {
	p := NewPanel(testRows())

	if got := NextDate(p, day(1), 1); !got.Equal(day(2)) {
		t.Errorf("NextDate(+1) = %v, want %v", got, day(2))
	}
	if got := NextDate(p, day(1), 2); !got.Equal(day(3)) {
		t.Errorf("NextDate(+2) = %v, want %v", got, day(3))
	}

	// Off the end of the calendar: zero time, not an error.
	if got := NextDate(p, day(3), 1); !got.IsZero() {
		t.Errorf("NextDate() past calendar end = %v, want zero time", got)
	}
	if got := NextDate(p, day(1), 5); !got.IsZero() {
		t.Errorf("NextDate() with large offset = %v, want zero time", got)
	}

	// Non-positive offsets behave like 1.
	if got := NextDate(p, day(1), 0); !got.Equal(day(2)) {
		t.Errorf("NextDate(0) = %v, want %v", got, day(2))
	}
}

func TestTimeSeriesSplitterFolds(t *testing.T) {
	s := TimeSeriesSplitter{NSplits: 3, TestSize: 5}
	folds, err := s.Split(30)
	if err != nil {
		t.Fatalf("Split() error: %v", err)
	}
	if len(folds) != 3 {
		t.Fatalf("Split() produced %d folds, want 3", len(folds))
	}

	for i, f := range folds {
		if f.TrainStart != 0 {
			t.Errorf("fold %d TrainStart = %d, want 0", i, f.TrainStart)
		}
		if f.TrainEnd >= f.TestStart {
			t.Errorf("fold %d train end %d overlaps test start %d", i, f.TrainEnd, f.TestStart)
		}
		if f.TestEnd-f.TestStart+1 != 5 {
			t.Errorf("fold %d test size = %d, want 5", i, f.TestEnd-f.TestStart+1)
		}
		if i > 0 && f.TestStart != folds[i-1].TestEnd+1 {
			t.Errorf("fold %d test start %d does not follow previous test end %d",
				i, f.TestStart, folds[i-1].TestEnd)
		}
	}

	if folds[len(folds)-1].TestEnd != 29 {
		t.Errorf("last fold ends at %d, want 29", folds[len(folds)-1].TestEnd)
	}
}

func TestTimeSeriesSplitterMaxTrainSize(t *testing.T) {
	s := TimeSeriesSplitter{NSplits: 2, TestSize: 5, MaxTrainSize: 4}
	folds, err := s.Split(20)
	if err != nil {
		t.Fatalf("Split() error: %v", err)
	}
	for i, f := range folds {
		if size := f.TrainEnd - f.TrainStart + 1; size != 4 {
			t.Errorf("fold %d train size = %d, want 4", i, size)
		}
	}
}

func TestTimeSeriesSplitterGap(t *testing.T) {
	s := TimeSeriesSplitter{NSplits: 2, TestSize: 3, Gap: 2}
	folds, err := s.Split(20)
	if err != nil {
		t.Fatalf("Split() error: %v", err)
	}
	for i, f := range folds {
		if f.TestStart-f.TrainEnd-1 != 2 {
			t.Errorf("fold %d gap = %d, want 2", i, f.TestStart-f.TrainEnd-1)
		}
	}
}

func TestTimeSeriesSplitterTooShort(t *testing.T) {
	s := TimeSeriesSplitter{NSplits: 5}
	if _, err := s.Split(4); err == nil {
		t.Error("Split() on a tiny calendar should fail")
	}
}

func TestSplitByDateEmptyRange(t *testing.T) {
	p := NewPanel(testRows())
	sub := SplitByDate(p, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2030, 1, 2, 0, 0, 0, 0, time.UTC))
	if sub.Len() != 0 {
		t.Errorf("SplitByDate() outside the panel has %d rows, want 0", sub.Len())
	}
}
