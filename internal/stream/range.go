package stream

import (
	"strconv"
	"strings"
)

// Range is an inclusive byte range [Start, End] within an object of a
// known total size.
type Range struct {
	Start int64
	End   int64
}

// rangePrefix is the only unit this parser accepts, per the contract's
// "bytes=A-B syntax" rule.
const rangePrefix = "bytes="

// ParseRange parses an HTTP Range header value against an object of the
// given size, following spec's three accepted forms (A-B, A-, -N) and
// rejection rules. A malformed range is reported via ok=false,
// satisfiable=true, meaning "ignore the header and serve the whole
// object" — the caller must not treat this as an error.
// satisfiable=false means the range is well-formed but starts at or
// beyond size (A >= size) and the response must be 416; this is the only
// case ok is false with satisfiable also false.
//
// Three return states:
//   - ok=true:  a valid Range was parsed, serve it as 206.
//   - ok=false, satisfiable=true:  no usable range, serve whole object as 200.
//   - ok=false, satisfiable=false: range is out of bounds, respond 416.
func ParseRange(header string, size int64) (r Range, ok bool, satisfiable bool) {
	if header == "" || size <= 0 {
		return Range{}, false, true
	}
	if !strings.HasPrefix(header, rangePrefix) {
		return Range{}, false, true
	}
	spec := strings.TrimPrefix(header, rangePrefix)

	if strings.Contains(spec, ",") {
		return Range{}, false, true
	}

	dash := strings.IndexByte(spec, '-')
	if dash < 0 {
		return Range{}, false, true
	}
	startStr, endStr := spec[:dash], spec[dash+1:]

	if startStr == "" {
		if endStr == "" {
			return Range{}, false, true
		}
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 {
			return Range{}, false, true
		}
		start := size - n
		if start < 0 {
			start = 0
		}
		return Range{Start: start, End: size - 1}, true, true
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return Range{}, false, true
	}
	if start >= size {
		return Range{}, false, false
	}

	if endStr == "" {
		return Range{Start: start, End: size - 1}, true, true
	}

	end, err := strconv.ParseInt(endStr, 10, 64)
	if err != nil || end < 0 || end < start {
		return Range{}, false, true
	}
	if end > size-1 {
		end = size - 1
	}
	return Range{Start: start, End: end}, true, true
}
