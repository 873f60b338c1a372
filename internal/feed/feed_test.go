package feed

import (
	"errors"
	"testing"
	"time"
)

func TestManualFeed_NoReadingYet(t *testing.T) {
	f := NewManualFeed("asset/base", 8)

	if _, err := f.LatestReading(); !errors.Is(err, ErrNoReading) {
		t.Errorf("err=%v, want ErrNoReading", err)
	}
}

func TestManualFeed_SetAndRead(t *testing.T) {
	f := NewManualFeed("asset/base", 8)
	ts := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	f.Set(175_00000000, ts)
	r, err := f.LatestReading()
	if err != nil {
		t.Fatalf("LatestReading: %v", err)
	}
	if r.Value != 175_00000000 {
		t.Errorf("Value=%d, want 17500000000", r.Value)
	}
	if !r.UpdatedAt.Equal(ts) {
		t.Errorf("UpdatedAt=%s, want %s", r.UpdatedAt, ts)
	}

	// Later reading replaces the earlier one.
	f.Set(180_00000000, ts.Add(time.Hour))
	r, err = f.LatestReading()
	if err != nil {
		t.Fatalf("LatestReading: %v", err)
	}
	if r.Value != 180_00000000 {
		t.Errorf("Value=%d, want 18000000000", r.Value)
	}
}

func TestManualFeed_Metadata(t *testing.T) {
	f := NewManualFeed("reserve/base", 6)
	if f.Name() != "reserve/base" {
		t.Errorf("Name()=%q", f.Name())
	}
	if f.Decimals() != 6 {
		t.Errorf("Decimals()=%d, want 6", f.Decimals())
	}
}
