package tunnel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		in        string
		wantStart int64
		wantEnd   int64
		wantErr   bool
	}{
		{"bytes=0-16383", 0, 16383, false},
		{"bytes=99000-99999", 99000, 99999, false},
		{" bytes=5-5 ", 5, 5, false},
		{"bytes=100-", 100, -1, false},
		{"bytes=-500", 0, 0, true},
		{"bytes=10-5", 0, 0, true},
		{"bytes=0-1,4-5", 0, 0, true},
		{"items=0-1", 0, 0, true},
		{"bytes=a-b", 0, 0, true},
		{"bytes=0", 0, 0, true},
		{"", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			start, end, err := ParseRange(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrBadRange)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStart, start)
			assert.Equal(t, tt.wantEnd, end)
		})
	}
}

func TestFormatRangeRoundTrip(t *testing.T) {
	start, end, err := ParseRange(FormatRange(98304, 99999))
	require.NoError(t, err)
	assert.Equal(t, int64(98304), start)
	assert.Equal(t, int64(99999), end)
}
