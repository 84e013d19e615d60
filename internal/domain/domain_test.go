package domain

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"
)

func TestParseMoodPayload(t *testing.T) {
	testCases := []struct {
		payload string
		want    MoodValue
		wantErr bool
	}{
		{payload: "mood_1", want: MoodGood},
		{payload: "mood_0", want: MoodNeutral},
		{payload: "mood_-1", want: MoodBad},
		{payload: "mood_abc", wantErr: true},
		{payload: "mood_2", wantErr: true},
		{payload: "mood_+1", wantErr: true},
		{payload: "mood_01", wantErr: true},
		{payload: "mood_", wantErr: true},
		{payload: "1", wantErr: true},
		{payload: "", wantErr: true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.payload, func(t *testing.T) {
			got, err := ParseMoodPayload(tc.payload)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseMoodPayload(%q) expected error, got %d", tc.payload, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseMoodPayload(%q) unexpected error: %v", tc.payload, err)
			}
			if got != tc.want {
				t.Errorf("ParseMoodPayload(%q) = %d, want %d", tc.payload, got, tc.want)
			}
		})
	}
}

func TestParseMoodPayload_OutOfRangeIsInvalidMood(t *testing.T) {
	_, err := ParseMoodPayload("mood_5")
	if !errors.Is(err, ErrInvalidMood) {
		t.Fatalf("expected ErrInvalidMood, got %v", err)
	}
}

func TestMoodPayloadRoundTrip(t *testing.T) {
	for _, m := range Moods {
		got, err := ParseMoodPayload(m.Payload())
		if err != nil || got != m {
			t.Errorf("round trip of %d failed: got %d, err %v", m, got, err)
		}
	}
}

func TestComputeStats(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("no entries", func(t *testing.T) {
		stats := ComputeStats(nil, now)
		if stats.Weekly != 0 || stats.Monthly != 0 {
			t.Fatalf("expected zero stats, got %+v", stats)
		}
	})

	t.Run("recent entries", func(t *testing.T) {
		entries := []MoodEntry{
			{Value: MoodGood, CreatedAt: now.Add(-time.Hour)},
			{Value: MoodGood, CreatedAt: now.Add(-48 * time.Hour)},
			{Value: MoodBad, CreatedAt: now.Add(-6 * 24 * time.Hour)},
		}
		stats := ComputeStats(entries, now)
		if got := fmt.Sprintf("%.2f", stats.Weekly); got != "0.33" {
			t.Errorf("weekly = %s, want 0.33", got)
		}
		if got := fmt.Sprintf("%.2f", stats.Monthly); got != "0.33" {
			t.Errorf("monthly = %s, want 0.33", got)
		}
	})

	t.Run("monthly covers full history", func(t *testing.T) {
		entries := []MoodEntry{
			{Value: MoodBad, CreatedAt: now.Add(-400 * 24 * time.Hour)},
			{Value: MoodBad, CreatedAt: now.Add(-45 * 24 * time.Hour)},
			{Value: MoodGood, CreatedAt: now.Add(-time.Hour)},
		}
		stats := ComputeStats(entries, now)
		if stats.Weekly != 1 {
			t.Errorf("weekly = %v, want 1", stats.Weekly)
		}
		if math.Abs(stats.Monthly-(-1.0/3.0)) > 1e-9 {
			t.Errorf("monthly = %v, want -1/3 over unbounded history", stats.Monthly)
		}
	})
}

func TestParseClockTime(t *testing.T) {
	c, err := ParseClockTime("10:00")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Hour != 10 || c.Minute != 0 {
		t.Fatalf("got %+v", c)
	}
	if c.String() != "10:00" {
		t.Errorf("String() = %q", c.String())
	}
	if c.CronSpec() != "0 10 * * *" {
		t.Errorf("CronSpec() = %q", c.CronSpec())
	}

	for _, bad := range []string{"", "25:00", "10:61", "noon"} {
		if _, err := ParseClockTime(bad); err == nil {
			t.Errorf("ParseClockTime(%q) expected error", bad)
		}
	}
}

func TestClockTimeNext(t *testing.T) {
	at := ClockTime{Hour: 10, Minute: 0}
	before := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	after := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

	if got := at.Next(before); !got.Equal(time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("Next(before) = %v", got)
	}
	if got := at.Next(after); !got.Equal(time.Date(2025, 3, 11, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("Next(at fire time) = %v", got)
	}
}
