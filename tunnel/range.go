package tunnel

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrBadRange indicates a Range header that cannot be parsed.
var ErrBadRange = errors.New("bad range header")

const rangeUnit = "bytes="

// FormatRange returns the Range header value for the inclusive span [start, end].
func FormatRange(start, end int64) string {
	return fmt.Sprintf("%s%d-%d", rangeUnit, start, end)
}

// ParseRange parses "bytes=<start>-<end>" with inclusive, zero-based offsets.
// An omitted end ("bytes=100-") is returned as -1 and means "to the end of the
// file". Suffix ranges and multiple ranges are not supported.
func ParseRange(v string) (start, end int64, err error) {
	set, ok := strings.CutPrefix(strings.TrimSpace(v), rangeUnit)
	if !ok {
		return 0, 0, fmt.Errorf("%w: missing %q unit in %q", ErrBadRange, rangeUnit, v)
	}
	if strings.Contains(set, ",") {
		return 0, 0, fmt.Errorf("%w: multiple ranges in %q", ErrBadRange, v)
	}

	first, last, ok := strings.Cut(set, "-")
	if !ok || first == "" {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadRange, v)
	}

	start, err = strconv.ParseInt(first, 10, 64)
	if err != nil || start < 0 {
		return 0, 0, fmt.Errorf("%w: bad start in %q", ErrBadRange, v)
	}
	if last == "" {
		return start, -1, nil
	}

	end, err = strconv.ParseInt(last, 10, 64)
	if err != nil || end < start {
		return 0, 0, fmt.Errorf("%w: bad end in %q", ErrBadRange, v)
	}
	return start, end, nil
}
