package upload

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/graph-core-go/pkg/sdkerrors"
)

// Session is an upload session as returned by the service.
type Session struct {
	UploadURL          string    `json:"uploadUrl"`
	ExpirationDateTime time.Time `json:"expirationDateTime,omitzero"`
	NextExpectedRanges []string  `json:"nextExpectedRanges"`
}

// IsExpired reports whether the session expired at now. A session without
// expiration never expires.
func (s *Session) IsExpired(now time.Time) bool {
	return !s.ExpirationDateTime.IsZero() && !now.Before(s.ExpirationDateTime)
}

// Range is an inclusive byte range.
type Range struct {
	Begin int64
	End   int64
}

// Len returns the number of bytes in the range.
func (r Range) Len() int64 {
	return r.End - r.Begin + 1
}

// ParseRanges converts "begin-end" strings to ranges. An empty end means
// "through totalLength-1".
func ParseRanges(ranges []string, totalLength int64) ([]Range, error) {
	out := make([]Range, 0, len(ranges))
	for _, raw := range ranges {
		r, err := parseRange(raw, totalLength)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func parseRange(raw string, totalLength int64) (Range, error) {
	beginStr, endStr, ok := strings.Cut(strings.TrimSpace(raw), "-")
	if !ok {
		return Range{}, sdkerrors.Newf(sdkerrors.CodeInvalidArgument, "invalid range %q", raw)
	}

	begin, err := strconv.ParseInt(beginStr, 10, 64)
	if err != nil {
		return Range{}, sdkerrors.Wrap(sdkerrors.CodeInvalidArgument, fmt.Sprintf("invalid range begin %q", raw), err)
	}

	end := totalLength - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil {
			return Range{}, sdkerrors.Wrap(sdkerrors.CodeInvalidArgument, fmt.Sprintf("invalid range end %q", raw), err)
		}
	}

	if begin < 0 || end < begin || end >= totalLength {
		return Range{}, sdkerrors.Newf(sdkerrors.CodeInvalidArgument,
			"range %q outside of stream length %d", raw, totalLength)
	}
	return Range{Begin: begin, End: end}, nil
}
