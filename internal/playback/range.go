package playback

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInvalidRange  = errors.New("invalid range format")
	ErrUnsatisfiable = errors.New("range not satisfiable")
)

// Range is an inclusive byte range within a file.
type Range struct {
	Start int64
	End   int64
}

func (r Range) ContentLength() int64 {
	return r.End - r.Start + 1
}

func (r Range) ContentRange(total int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, total)
}

// ParseRange parses a single-range Range header against a file of size
// bytes. An empty header yields nil. Only the first range of a multi-range
// request is honoured; video players never need more.
func ParseRange(header string, size int64) (*Range, error) {
	if header == "" {
		return nil, nil
	}

	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return nil, ErrInvalidRange
	}
	if first, _, found := strings.Cut(spec, ","); found {
		spec = first
	}
	spec = strings.TrimSpace(spec)

	startStr, endStr, ok := strings.Cut(spec, "-")
	if !ok || strings.Contains(endStr, "-") {
		return nil, ErrInvalidRange
	}

	var r Range
	switch {
	case startStr == "":
		// Suffix form: the last n bytes.
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 {
			return nil, ErrInvalidRange
		}
		if size == 0 {
			return nil, ErrUnsatisfiable
		}
		r.Start = max(size-n, 0)
		r.End = size - 1
	default:
		start, err := strconv.ParseInt(startStr, 10, 64)
		if err != nil || start < 0 {
			return nil, ErrInvalidRange
		}
		r.Start = start
		r.End = size - 1
		if endStr != "" {
			end, err := strconv.ParseInt(endStr, 10, 64)
			if err != nil || end < 0 {
				return nil, ErrInvalidRange
			}
			r.End = min(end, size-1)
			if end < start {
				return nil, ErrUnsatisfiable
			}
		}
	}

	if r.Start >= size {
		return nil, ErrUnsatisfiable
	}
	return &r, nil
}
