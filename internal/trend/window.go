package trend

import (
	"context"
	"time"
)

type newsHistory interface {
	RecentKeywords(ctx context.Context, since time.Time, languageCode string) ([]string, error)
}

// ExclusionWindow yields the keywords of recently published news. The
// window is a trailing number of days; anything inside it is off limits
// for reselection.
type ExclusionWindow struct {
	history newsHistory
	days    int
	now     func() time.Time
}

func NewExclusionWindow(history newsHistory, days int) *ExclusionWindow {
	if days <= 0 {
		days = 7
	}
	return &ExclusionWindow{history: history, days: days, now: time.Now}
}

// Keywords returns the excluded keywords for the language, newest
// first.
func (w *ExclusionWindow) Keywords(ctx context.Context, languageCode string) ([]string, error) {
	since := w.now().AddDate(0, 0, -w.days)
	return w.history.RecentKeywords(ctx, since, languageCode)
}
