package dataset

import (
	"testing"
	"time"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func testRows() []Row {
	// Deliberately out of order to exercise sorting.
	return []Row{
		{Date: day(3), Tic: "BBB", Close: 21},
		{Date: day(1), Tic: "BBB", Close: 20},
		{Date: day(2), Tic: "AAA", Close: 11},
		{Date: day(1), Tic: "AAA", Close: 10},
		{Date: day(3), Tic: "AAA", Close: 12},
		{Date: day(2), Tic: "BBB", Close: 22},
	}
}

func TestNewPanelSortsAndFactorizes(t *testing.T) {
	p := NewPanel(testRows())

	if p.Len() != 6 {
		t.Fatalf("Len() = %d, want 6", p.Len())
	}

	rows := p.Rows()
	for i := 1; i < len(rows); i++ {
		prev, cur := rows[i-1], rows[i]
		if cur.Date.Before(prev.Date) {
			t.Fatalf("rows not sorted by date at %d", i)
		}
		if cur.Date.Equal(prev.Date) && cur.Tic < prev.Tic {
			t.Fatalf("rows not sorted by ticker within date at %d", i)
		}
	}

	wantCodes := []int{0, 0, 1, 1, 2, 2}
	for i := range wantCodes {
		if p.DateCode(i) != wantCodes[i] {
			t.Errorf("DateCode(%d) = %d, want %d", i, p.DateCode(i), wantCodes[i])
		}
	}
}

func TestPanelCalendar(t *testing.T) {
	p := NewPanel(testRows())

	calendar := p.Calendar()
	if len(calendar) != 3 {
		t.Fatalf("Calendar() has %d dates, want 3", len(calendar))
	}
	for i, want := range []time.Time{day(1), day(2), day(3)} {
		if !calendar[i].Equal(want) {
			t.Errorf("Calendar()[%d] = %v, want %v", i, calendar[i], want)
		}
	}
}

func TestPanelSlice(t *testing.T) {
	p := NewPanel(testRows())

	slice := p.Slice(day(2))
	if len(slice) != 2 {
		t.Fatalf("Slice() has %d rows, want 2", len(slice))
	}
	if slice[0].Tic != "AAA" || slice[1].Tic != "BBB" {
		t.Errorf("Slice() order = %s, %s, want AAA, BBB", slice[0].Tic, slice[1].Tic)
	}
	if slice[0].Close != 11 || slice[1].Close != 22 {
		t.Errorf("Slice() closes = %v, %v, want 11, 22", slice[0].Close, slice[1].Close)
	}

	if got := p.Slice(day(9)); len(got) != 0 {
		t.Errorf("Slice() of absent date returned %d rows", len(got))
	}
}

func TestPanelTickers(t *testing.T) {
	p := NewPanel(testRows())
	tics := p.Tickers()
	if len(tics) != 2 || tics[0] != "AAA" || tics[1] != "BBB" {
		t.Errorf("Tickers() = %v, want [AAA BBB]", tics)
	}
}
