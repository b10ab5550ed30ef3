package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownRating       = errors.New("unknown rating, must be one of: Safe|safe|s, Questionable|questionable|q, Explicit|explicit|e")
	ErrUnknownRatingFilter = errors.New("unknown rating filter, must be one of: safe|s, questionable|q, explicit|e, questionableplus|qe, questionableless|qs")
	ErrUnknownCategory     = errors.New("unknown category, must be one of: Liked|l, Disliked|d, Borked|b")
	ErrUnknownVariant      = errors.New("unknown variant, must be one of: Original, Cropped")
)

// Rating is the content rating of a single post.
type Rating string

const (
	RatingSafe         Rating = "Safe"
	RatingQuestionable Rating = "Questionable"
	RatingExplicit     Rating = "Explicit"
)

// ParseRating accepts the long form in either case and the catalog's one-letter code.
func ParseRating(s string) (Rating, error) {
	switch s {
	case "Safe", "safe", "s":
		return RatingSafe, nil
	case "Questionable", "questionable", "q":
		return RatingQuestionable, nil
	case "Explicit", "explicit", "e":
		return RatingExplicit, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRating, s)
}

func (r Rating) String() string { return string(r) }

func (r Rating) MarshalText() ([]byte, error) {
	return []byte(r), nil
}

func (r *Rating) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*r = ""
		return nil
	}
	parsed, err := ParseRating(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// RatingFilter is the rating term sent with a catalog query.
type RatingFilter string

const (
	FilterSafe                    RatingFilter = "safe"
	FilterQuestionable            RatingFilter = "questionable"
	FilterExplicit                RatingFilter = "explicit"
	FilterQuestionableAndExplicit RatingFilter = "questionableplus"
	FilterQuestionableAndSafe     RatingFilter = "questionableless"
)

func ParseRatingFilter(s string) (RatingFilter, error) {
	switch s {
	case "Safe", "safe", "s":
		return FilterSafe, nil
	case "Questionable", "questionable", "q":
		return FilterQuestionable, nil
	case "Explicit", "explicit", "e":
		return FilterExplicit, nil
	case "QuestionableAndExplicit", "questionableplus", "qe":
		return FilterQuestionableAndExplicit, nil
	case "QuestionableAndSafe", "questionableless", "qs":
		return FilterQuestionableAndSafe, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRatingFilter, s)
}

func (f RatingFilter) String() string { return string(f) }

// Allows reports whether a post with the given rating satisfies the filter.
func (f RatingFilter) Allows(r Rating) bool {
	switch f {
	case FilterSafe:
		return r == RatingSafe
	case FilterQuestionable:
		return r == RatingQuestionable
	case FilterExplicit:
		return r == RatingExplicit
	case FilterQuestionableAndExplicit:
		return r == RatingQuestionable || r == RatingExplicit
	case FilterQuestionableAndSafe:
		return r == RatingQuestionable || r == RatingSafe
	}
	return false
}

// Category is the operator's verdict on a candidate.
type Category string

const (
	CategoryLiked    Category = "Liked"
	CategoryDisliked Category = "Disliked"
	CategoryBorked   Category = "Borked"
)

// Categories lists every concrete category in menu order.
var Categories = []Category{CategoryLiked, CategoryDisliked, CategoryBorked}

func ParseCategory(s string) (Category, error) {
	switch s {
	case "Liked", "liked", "l":
		return CategoryLiked, nil
	case "Disliked", "disliked", "d":
		return CategoryDisliked, nil
	case "Borked", "borked", "b":
		return CategoryBorked, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

func (c Category) String() string { return string(c) }

func (c *Category) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*c = ""
		return nil
	}
	parsed, err := ParseCategory(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Variant selects which artifact of a candidate is displayed.
type Variant string

const (
	VariantOriginal Variant = "Original"
	VariantCropped  Variant = "Cropped"
)

func (v Variant) String() string { return string(v) }

func (v *Variant) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "original", "":
		*v = VariantOriginal
	case "cropped":
		*v = VariantCropped
	default:
		return fmt.Errorf("%w: %q", ErrUnknownVariant, string(b))
	}
	return nil
}
