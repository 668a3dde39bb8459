package entitlement

import (
	"fmt"
	"time"
)

const expiredLabel = "expired"

// TimeLeft is a floored days/hours/minutes breakdown of a remaining duration.
type TimeLeft struct {
	Expired bool  `json:"expired"`
	Days    int64 `json:"days"`
	Hours   int64 `json:"hours"`
	Minutes int64 `json:"minutes"`
}

// NewTimeLeft decomposes d, flooring at every step. Non-positive durations
// are not treated as expired here; callers decide that.
func NewTimeLeft(d time.Duration) TimeLeft {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	const (
		msPerMinute = int64(time.Minute / time.Millisecond)
		msPerHour   = int64(time.Hour / time.Millisecond)
		msPerDay    = 24 * msPerHour
	)
	days := ms / msPerDay
	ms -= days * msPerDay
	hours := ms / msPerHour
	ms -= hours * msPerHour
	return TimeLeft{Days: days, Hours: hours, Minutes: ms / msPerMinute}
}

// ExpiredTimeLeft is the sentinel for a window that has run out.
func ExpiredTimeLeft() TimeLeft {
	return TimeLeft{Expired: true}
}

// String renders "<d>d <h>h <m>m" or "expired".
func (t TimeLeft) String() string {
	if t.Expired {
		return expiredLabel
	}
	return fmt.Sprintf("%dd %dh %dm", t.Days, t.Hours, t.Minutes)
}

// Clock renders the zero-padded "DD:HH:MM" form shown by the extension popup.
func (t TimeLeft) Clock() string {
	if t.Expired {
		return "00:00:00"
	}
	return fmt.Sprintf("%02d:%02d:%02d", t.Days, t.Hours, t.Minutes)
}
