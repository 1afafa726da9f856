package widget_test

import (
	"testing"
	"time"

	"github.com/MegaGrindStone/chatbot-widget/internal/widget"
	"github.com/stretchr/testify/assert"
)

func TestFormatTimestamp(t *testing.T) {
	now := time.Date(2026, 10, 17, 15, 4, 0, 0, time.UTC)

	tests := []struct {
		name string
		t    time.Time
		want string
	}{
		{name: "Now", t: now, want: "3:04 PM"},
		{name: "Early today", t: time.Date(2026, 10, 17, 0, 5, 0, 0, time.UTC), want: "12:05 AM"},
		{name: "Prior day this year", t: time.Date(2026, 3, 9, 11, 0, 0, 0, time.UTC), want: "Mar 9"},
		{name: "Yesterday", t: now.Add(-24 * time.Hour), want: "Oct 16"},
		{name: "Prior year", t: time.Date(2025, 12, 31, 23, 0, 0, 0, time.UTC), want: "Dec 31, 25"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, widget.FormatTimestamp(tt.t, now))
		})
	}
}

func TestFormatTimestampUsesNowLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	now := time.Date(2026, 10, 17, 8, 0, 0, 0, tokyo)
	// 23:30 UTC on the 16th is 08:30 on the 17th in Tokyo.
	msg := time.Date(2026, 10, 16, 23, 30, 0, 0, time.UTC)

	assert.Equal(t, "8:30 AM", widget.FormatTimestamp(msg, now))
}

func TestTimeAgo(t *testing.T) {
	now := time.Date(2026, 10, 17, 15, 4, 0, 0, time.UTC)

	tests := []struct {
		ago  time.Duration
		want string
	}{
		{ago: 0, want: "Just now"},
		{ago: 59 * time.Second, want: "Just now"},
		{ago: -2 * time.Second, want: "Just now"},
		{ago: 60 * time.Second, want: "1 minute ago"},
		{ago: 89 * time.Second, want: "1 minute ago"},
		{ago: 90 * time.Second, want: "2 minutes ago"},
		{ago: 150 * time.Second, want: "3 minutes ago"},
		{ago: 5 * time.Minute, want: "5 minutes ago"},
		{ago: 61 * time.Minute, want: "1 hour ago"},
		{ago: time.Hour + 59*time.Minute, want: "2 hours ago"},
		{ago: 5 * time.Hour, want: "5 hours ago"},
		{ago: 30 * time.Hour, want: "1 day ago"},
		{ago: 3 * 24 * time.Hour, want: "3 days ago"},
		{ago: 10 * 24 * time.Hour, want: "1 week ago"},
		{ago: 45 * 24 * time.Hour, want: "2 months ago"},
		{ago: 361 * 24 * time.Hour, want: "12 months ago"},
		{ago: 365 * 24 * time.Hour, want: "1 year ago"},
		{ago: 400 * 24 * time.Hour, want: "1 year ago"},
	}

	for _, tt := range tests {
		t.Run(tt.ago.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, widget.TimeAgo(now.Add(-tt.ago), now))
		})
	}
}
