package thread

import "time"

const (
	timeLayout     = "15:04"
	dateTimeLayout = "Jan 2, 2006 15:04"
)

// FormatTimestamp renders t for the message list: the time alone for
// messages from today, date and time otherwise. Both are compared in now's
// location.
func FormatTimestamp(t, now time.Time) string {
	t = t.In(now.Location())
	ty, tm, td := t.Date()
	ny, nm, nd := now.Date()
	if ty == ny && tm == nm && td == nd {
		return t.Format(timeLayout)
	}
	return t.Format(dateTimeLayout)
}
