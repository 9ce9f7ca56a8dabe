package sys

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abcd...", Truncate("abcdefghij", 7))
	assert.Equal(t, "ab", Truncate("abcdef", 2))
	assert.Equal(t, "héllo", Truncate("héllo", 5))
}

func TestTruncateWithPreserve(t *testing.T) {
	got := TruncateWithPreserve("an extremely long song title that keeps on going", 40, "[YT] ", " - Band")
	assert.LessOrEqual(t, len([]rune(got)), 40)
	assert.True(t, strings.HasPrefix(got, "[YT] an"))
	assert.True(t, strings.HasSuffix(got, "going - Band"))

	assert.Equal(t, "[YT] song - Band", TruncateWithPreserve("song", 100, "[YT] ", " - Band"))
}

func TestFormatTrackDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "LIVE"},
		{-time.Second, "LIVE"},
		{500 * time.Millisecond, "00:01"},
		{59 * time.Second, "00:59"},
		{3*time.Minute + 5*time.Second, "03:05"},
		{time.Hour, "01:00:00"},
		{25*time.Hour + 2*time.Minute + 3*time.Second, "01:01:02:03"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatTrackDuration(tt.in))
		})
	}
}
