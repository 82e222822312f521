package analysis

import (
	"fmt"
	"time"

	"github.com/jengzang/records-tracks-go/internal/models"
)

// DayBounds returns the inclusive unix range of a UTC day (YYYY-MM-DD).
func DayBounds(day string) (start, end int64, err error) {
	t, err := time.Parse(models.DayLayout, day)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid day %q: %w", day, err)
	}
	start = t.UTC().Unix()
	return start, start + 24*60*60 - 1, nil
}

// Today returns the UTC day of now.
func Today(now time.Time) string {
	return now.UTC().Format(models.DayLayout)
}
