package decision

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go-aniwall/internal/models"

	"github.com/manifoldco/promptui"
	log "github.com/sirupsen/logrus"
)

type OutcomeKind int

const (
	Categorized OutcomeKind = iota
	ToggleCrop
	Interrupted
)

func (k OutcomeKind) String() string {
	switch k {
	case Categorized:
		return "Categorized"
	case ToggleCrop:
		return "ToggleCrop"
	case Interrupted:
		return "Interrupted"
	}
	return fmt.Sprintf("OutcomeKind(%d)", int(k))
}

// Outcome is the operator's answer for one prompt. Category is set only for Categorized.
type Outcome struct {
	Kind     OutcomeKind
	Category models.Category
}

// Station asks the operator about one candidate. isCropped says which variant is on screen.
type Station interface {
	Decide(ctx context.Context, c models.Candidate, isCropped bool) (Outcome, error)
}

// Option is one menu entry.
type Option struct {
	Label   string
	Outcome Outcome
}

func (o Option) String() string { return o.Label }

const (
	labelNeedsCropping      = "Do smart cropping, and go show me when it's done"
	labelDidNotNeedCropping = "Did not need cropping, go back to uncropped"
)

var categoryLabels = map[models.Category]string{
	models.CategoryLiked:    "I like it",
	models.CategoryDisliked: "I don't like it",
	models.CategoryBorked:   "It's borked",
}

// Menu builds the options: the crop toggle first, then the categories.
func Menu(isCropped bool) []Option {
	toggle := labelNeedsCropping
	if isCropped {
		toggle = labelDidNotNeedCropping
	}
	options := []Option{{Label: toggle, Outcome: Outcome{Kind: ToggleCrop}}}
	for _, cat := range models.Categories {
		options = append(options, Option{
			Label:   categoryLabels[cat],
			Outcome: Outcome{Kind: Categorized, Category: cat},
		})
	}
	return options
}

// Label is the prompt header for a candidate.
func Label(c models.Candidate) string {
	return fmt.Sprintf("%s\t Size: %dx%d.", c.ID, c.OriginalWidth, c.OriginalHeight)
}

// PromptStation renders the menu with promptui on the terminal.
type PromptStation struct {
	Stdin  io.ReadCloser
	Stdout io.WriteCloser
}

type selection struct {
	index int
	err   error
}

// Decide runs the prompt on its own goroutine. Cancelling ctx returns Interrupted
// right away; the abandoned prompt goroutine ends with the process.
func (s *PromptStation) Decide(ctx context.Context, c models.Candidate, isCropped bool) (Outcome, error) {
	if ctx.Err() != nil {
		return Outcome{Kind: Interrupted}, nil
	}
	menu := Menu(isCropped)
	done := make(chan selection, 1)

	go func() {
		prompt := promptui.Select{
			Label:  Label(c),
			Items:  menu,
			Size:   len(menu),
			Stdin:  s.Stdin,
			Stdout: s.Stdout,
		}
		idx, _, err := prompt.Run()
		done <- selection{index: idx, err: err}
	}()

	select {
	case <-ctx.Done():
		return Outcome{Kind: Interrupted}, nil
	case sel := <-done:
		return outcomeFor(menu, sel)
	}
}

func outcomeFor(menu []Option, sel selection) (Outcome, error) {
	if sel.err != nil {
		if isInterrupt(sel.err) {
			log.Debug("Prompt interrupted by operator")
			return Outcome{Kind: Interrupted}, nil
		}
		return Outcome{}, fmt.Errorf("prompt failed: %w", sel.err)
	}
	if sel.index < 0 || sel.index >= len(menu) {
		return Outcome{}, fmt.Errorf("prompt returned out of range selection %d", sel.index)
	}
	return menu[sel.index].Outcome, nil
}

func isInterrupt(err error) bool {
	return errors.Is(err, promptui.ErrInterrupt) ||
		errors.Is(err, promptui.ErrEOF) ||
		errors.Is(err, promptui.ErrAbort)
}
