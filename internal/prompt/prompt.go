package prompt

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Choice is one answer to a prompt.
type Choice int

const (
	// ChoiceNotNow declines for now. Dismissed prompts resolve to it.
	ChoiceNotNow Choice = iota
	ChoiceYes
	// ChoiceNever declines and asks not to be asked again for the same file.
	ChoiceNever
)

func (c Choice) String() string {
	switch c {
	case ChoiceYes:
		return "Yes"
	case ChoiceNever:
		return "Never"
	default:
		return "Not now"
	}
}

// Prompter asks the user questions and shows messages.
type Prompter interface {
	// Choose presents message with choices and blocks until one is picked.
	// A dismissed prompt returns ChoiceNotNow.
	Choose(ctx context.Context, message string, choices ...Choice) (Choice, error)
	Info(message string)
	Error(message string)
}

func allowed(choice Choice, choices []Choice) bool {
	for _, candidate := range choices {
		if candidate == choice {
			return true
		}
	}
	return false
}

// Auto answers every prompt with a fixed choice. It backs --yes and
// non-interactive sessions.
type Auto struct {
	Answer Choice
	Out    io.Writer
	ErrOut io.Writer

	mu sync.Mutex
}

func (a *Auto) Choose(ctx context.Context, message string, choices ...Choice) (Choice, error) {
	if err := ctx.Err(); err != nil {
		return ChoiceNotNow, err
	}
	answer := ChoiceNotNow
	if allowed(a.Answer, choices) {
		answer = a.Answer
	}
	a.write(a.Out, fmt.Sprintf("%s %s\n", strings.TrimSpace(message), answer))
	return answer, nil
}

func (a *Auto) Info(message string) {
	a.write(a.Out, message+"\n")
}

func (a *Auto) Error(message string) {
	a.write(a.ErrOut, "error: "+message+"\n")
}

func (a *Auto) write(w io.Writer, text string) {
	if w == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	_, _ = io.WriteString(w, text)
}
