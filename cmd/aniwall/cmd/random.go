package cmd

import (
	"errors"
	"strings"

	"go-aniwall/internal/models"
)

// ErrNoMatch is returned when no stored record satisfies a random selection.
var ErrNoMatch = errors.New("no wallpaper matches the selection")

const anyValue = "any"

// randomSelector matches records by rating and category. A nil field matches anything.
type randomSelector struct {
	rating   *models.Rating
	category *models.Category
}

func newRandomSelector(rating, category string) (randomSelector, error) {
	var s randomSelector
	if !strings.EqualFold(rating, anyValue) {
		r, err := models.ParseRating(rating)
		if err != nil {
			return s, err
		}
		s.rating = &r
	}
	if !strings.EqualFold(category, anyValue) {
		c, err := models.ParseCategory(category)
		if err != nil {
			return s, err
		}
		s.category = &c
	}
	return s, nil
}

func (s randomSelector) matches(c models.Candidate) bool {
	if s.rating != nil && c.Rating != *s.rating {
		return false
	}
	if s.category != nil && c.Category != *s.category {
		return false
	}
	return true
}

// pickRandom shuffles once and returns the first match that is not currentID.
func pickRandom(cands []models.Candidate, sel randomSelector, currentID string, shuffle func(n int, swap func(i, j int))) (models.Candidate, error) {
	shuffled := make([]models.Candidate, len(cands))
	copy(shuffled, cands)
	shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	for _, c := range shuffled {
		if c.ID == currentID {
			continue
		}
		if sel.matches(c) {
			return c, nil
		}
	}
	return models.Candidate{}, ErrNoMatch
}
