package models

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var (
	ErrRangeFull    = errors.New("full range (..) is not allowed, leave the flag unset instead")
	ErrRangeTwoWay  = errors.New("two-way ranges (a..b) are not supported")
	ErrRangeInvalid = errors.New("invalid range, expected N, N.. or ..N")
)

type RangeKind int

const (
	RangeExact RangeKind = iota
	RangeAtLeast
	RangeAtMost
)

// Range is a one-sided or exact numeric constraint in catalog syntax.
type Range struct {
	Kind  RangeKind
	Value int
}

// ParseRange parses "N", "N.." and "..N".
func ParseRange(s string) (Range, error) {
	s = strings.TrimSpace(s)
	if s == ".." {
		return Range{}, ErrRangeFull
	}
	if strings.Count(s, "..") > 1 {
		return Range{}, fmt.Errorf("%w: %q", ErrRangeInvalid, s)
	}

	left, right, found := strings.Cut(s, "..")
	if !found {
		n, err := parseBound(s)
		if err != nil {
			return Range{}, err
		}
		return Range{Kind: RangeExact, Value: n}, nil
	}

	switch {
	case left != "" && right != "":
		return Range{}, fmt.Errorf("%w: %q", ErrRangeTwoWay, s)
	case left != "":
		n, err := parseBound(left)
		if err != nil {
			return Range{}, err
		}
		return Range{Kind: RangeAtLeast, Value: n}, nil
	default:
		n, err := parseBound(right)
		if err != nil {
			return Range{}, err
		}
		return Range{Kind: RangeAtMost, Value: n}, nil
	}
}

func parseBound(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q", ErrRangeInvalid, s)
	}
	return n, nil
}

func (r Range) String() string {
	switch r.Kind {
	case RangeAtLeast:
		return fmt.Sprintf("%d..", r.Value)
	case RangeAtMost:
		return fmt.Sprintf("..%d", r.Value)
	default:
		return strconv.Itoa(r.Value)
	}
}

// Contains reports whether n satisfies the range.
func (r Range) Contains(n int) bool {
	switch r.Kind {
	case RangeAtLeast:
		return n >= r.Value
	case RangeAtMost:
		return n <= r.Value
	default:
		return n == r.Value
	}
}

// Set and Type let a Range be used directly as a pflag value.
func (r *Range) Set(s string) error {
	parsed, err := ParseRange(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

func (r *Range) Type() string { return "range" }

// Filters is the full set of catalog query parameters for one download run.
type Filters struct {
	Tags   string
	Rating RatingFilter
	Width  Range
	Height Range
}

// NormalizedTags splits on whitespace and commas, lowercases, de-duplicates and sorts.
func (f Filters) NormalizedTags() []string {
	fields := strings.FieldsFunc(strings.ToLower(f.Tags), func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	seen := make(map[string]struct{}, len(fields))
	tags := make([]string, 0, len(fields))
	for _, t := range fields {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// Canonical renders the filters in a fixed field order with normalized tags.
func (f Filters) Canonical() string {
	return fmt.Sprintf("tags=%s;rating=%s;width=%s;height=%s",
		strings.Join(f.NormalizedTags(), " "), f.Rating, f.Width, f.Height)
}

// QueryTags renders the catalog "tags" parameter.
func (f Filters) QueryTags() string {
	parts := append(f.NormalizedTags(),
		"rating:"+f.Rating.String(),
		"width:"+f.Width.String(),
		"height:"+f.Height.String(),
	)
	return strings.Join(parts, " ")
}
