package journal

import (
	"math"
	"testing"
	"time"

	"treasury-systemv1/internal/model"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := New(":memory:")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func sampleDecision(ts time.Time, side model.Side, size float64) model.Decision {
	return model.Decision{
		EpochTS:       ts,
		Price:         112,
		MovingAverage: 100,
		StdDev:        10,
		PctBand:       0.8,
		Side:          side,
		OrderSize:     size,
		NumIntervals:  24,
		OrderID:       "ord-1",
	}
}

func TestRecordAndRecent(t *testing.T) {
	j := newTestJournal(t)
	ts := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	if err := j.Record(sampleDecision(ts, model.SideSell, 600)); err != nil {
		t.Fatalf("Record: %v", err)
	}

	recs, err := j.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("len(recs)=%d, want 1", len(recs))
	}
	r := recs[0]
	if r.Side != string(model.SideSell) || r.OrderID != "ord-1" || r.NumIntervals != 24 {
		t.Errorf("record=%+v", r)
	}
	if math.Abs(r.OrderSize-600) > 1e-9 || math.Abs(r.PctBand-0.8) > 1e-9 {
		t.Errorf("record=%+v", r)
	}
	if r.EpochTS != ts.Format(time.RFC3339Nano) {
		t.Errorf("EpochTS=%q, want %q", r.EpochTS, ts.Format(time.RFC3339Nano))
	}
}

func TestRecent_NewestFirstAndLimited(t *testing.T) {
	j := newTestJournal(t)
	ts := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		d := sampleDecision(ts.Add(time.Duration(i)*time.Hour), model.SideBuy, float64(100*(i+1)))
		if err := j.Record(d); err != nil {
			t.Fatalf("Record %d: %v", i, err)
		}
	}

	recs, err := j.Recent(3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("len(recs)=%d, want 3", len(recs))
	}
	if recs[0].OrderSize != 500 || recs[1].OrderSize != 400 || recs[2].OrderSize != 300 {
		t.Errorf("order sizes %v %v %v, want newest first", recs[0].OrderSize, recs[1].OrderSize, recs[2].OrderSize)
	}
}

func TestRecord_DeadZoneDecision(t *testing.T) {
	j := newTestJournal(t)

	d := model.Decision{
		EpochTS:       time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		Price:         100,
		MovingAverage: 100,
		StdDev:        5,
		PctBand:       0.5,
		Side:          model.SideNone,
		NumIntervals:  24,
	}
	if err := j.Record(d); err != nil {
		t.Fatalf("Record: %v", err)
	}

	recs, err := j.Recent(1)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if recs[0].Side != string(model.SideNone) || recs[0].OrderID != "" || recs[0].OrderSize != 0 {
		t.Errorf("record=%+v", recs[0])
	}
}

func TestRecent_Empty(t *testing.T) {
	j := newTestJournal(t)
	recs, err := j.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("len(recs)=%d, want 0", len(recs))
	}
}

func TestDB_Pingable(t *testing.T) {
	j := newTestJournal(t)
	if err := j.DB().Ping(); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
