package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// MoodPayloadPrefix prefixes the callback payload of every mood button.
const MoodPayloadPrefix = "mood_"

// MoodValue is a daily mood rating.
type MoodValue int

const (
	MoodBad     MoodValue = -1
	MoodNeutral MoodValue = 0
	MoodGood    MoodValue = 1
)

// ErrInvalidMood is returned for values outside {-1, 0, 1}.
var ErrInvalidMood = errors.New("mood value must be one of -1, 0, 1")

// Moods lists the choices in the order they are offered to the user.
var Moods = []MoodValue{MoodGood, MoodNeutral, MoodBad}

// Valid reports whether m is one of the three ratings.
func (m MoodValue) Valid() bool {
	return m == MoodBad || m == MoodNeutral || m == MoodGood
}

// Icon returns the emoji rendered on the mood button.
func (m MoodValue) Icon() string {
	switch m {
	case MoodGood:
		return "😊"
	case MoodNeutral:
		return "😐"
	case MoodBad:
		return "😞"
	default:
		return "❔"
	}
}

// Key returns the catalog key suffix used for the mood label.
func (m MoodValue) Key() string {
	switch m {
	case MoodGood:
		return "good"
	case MoodNeutral:
		return "neutral"
	case MoodBad:
		return "bad"
	default:
		return "unknown"
	}
}

// Payload returns the callback payload encoding m, e.g. "mood_-1".
func (m MoodValue) Payload() string {
	return fmt.Sprintf("%s%d", MoodPayloadPrefix, int(m))
}

// ParseMoodPayload decodes a "mood_<value>" callback payload. Only the canonical encodings
// produced by Payload are accepted.
func ParseMoodPayload(payload string) (MoodValue, error) {
	raw, ok := strings.CutPrefix(payload, MoodPayloadPrefix)
	if !ok {
		return 0, fmt.Errorf("payload %q: missing %q prefix", payload, MoodPayloadPrefix)
	}

	for _, m := range Moods {
		if raw == fmt.Sprintf("%d", int(m)) {
			return m, nil
		}
	}

	return 0, fmt.Errorf("payload %q: %w", payload, ErrInvalidMood)
}

// MoodEntry is one append-only mood record.
type MoodEntry struct {
	ID        int64
	UserID    int64
	Value     MoodValue
	CreatedAt time.Time
}

// StatsWindow is the trailing window used for the weekly average.
const StatsWindow = 7 * 24 * time.Hour

// Stats holds the rolling averages shown after each answer.
type Stats struct {
	Weekly float64
	// Monthly is the mean over the user's entire history; it is not limited to 30 days.
	Monthly float64
}

// ComputeStats derives Stats from entries relative to now. Both averages are 0 when there is no data.
func ComputeStats(entries []MoodEntry, now time.Time) Stats {
	cutoff := now.Add(-StatsWindow)

	var (
		weekSum, allSum     int
		weekCount, allCount int
	)
	for _, e := range entries {
		allSum += int(e.Value)
		allCount++
		if !e.CreatedAt.Before(cutoff) {
			weekSum += int(e.Value)
			weekCount++
		}
	}

	var stats Stats
	if weekCount > 0 {
		stats.Weekly = float64(weekSum) / float64(weekCount)
	}
	if allCount > 0 {
		stats.Monthly = float64(allSum) / float64(allCount)
	}
	return stats
}
