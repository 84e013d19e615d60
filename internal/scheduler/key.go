package scheduler

import (
	"strconv"
	"strings"
)

const jobKeyPrefix = "mood_notification_"

// JobKey is the deterministic registry key of a user's daily job.
func JobKey(userID int64) string {
	return jobKeyPrefix + strconv.FormatInt(userID, 10)
}

// UserFromJobKey reverses JobKey.
func UserFromJobKey(key string) (int64, bool) {
	raw, ok := strings.CutPrefix(key, jobKeyPrefix)
	if !ok {
		return 0, false
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
