package usecase

import (
	"fmt"
	"strings"
	"time"
)

// folderDate parses the leading date folder of a remote key.
func folderDate(key, layout string) (time.Time, error) {
	folder, _, found := strings.Cut(strings.TrimPrefix(key, "/"), "/")
	if !found {
		return time.Time{}, fmt.Errorf("invalid key format: no date folder in %q", key)
	}
	return time.ParseInLocation(layout, folder, time.Local)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
