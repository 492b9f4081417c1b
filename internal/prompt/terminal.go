package prompt

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// Terminal prompts on a line-oriented reader and writer pair, typically
// stdin and stderr. Prompts are serialized; an empty line, end of input or
// a cancelled context dismisses the prompt.
type Terminal struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	startOnce sync.Once
	lines     chan string

	promptMu sync.Mutex
	writeMu  sync.Mutex
}

func NewTerminal(in io.Reader, out, errOut io.Writer) *Terminal {
	if errOut == nil {
		errOut = out
	}
	return &Terminal{in: in, out: out, errOut: errOut}
}

func (t *Terminal) start() {
	t.startOnce.Do(func() {
		t.lines = make(chan string)
		go func() {
			defer close(t.lines)
			if t.in == nil {
				return
			}
			scanner := bufio.NewScanner(t.in)
			for scanner.Scan() {
				t.lines <- scanner.Text()
			}
		}()
	})
}

func (t *Terminal) Choose(ctx context.Context, message string, choices ...Choice) (Choice, error) {
	if len(choices) == 0 {
		choices = []Choice{ChoiceYes, ChoiceNotNow}
	}
	t.start()
	t.promptMu.Lock()
	defer t.promptMu.Unlock()

	for {
		t.write(t.out, formatPrompt(message, choices))
		select {
		case <-ctx.Done():
			t.write(t.out, "\n")
			return ChoiceNotNow, ctx.Err()
		case line, ok := <-t.lines:
			if !ok {
				t.write(t.out, "\n")
				return ChoiceNotNow, nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				return ChoiceNotNow, nil
			}
			if choice, ok := parseChoice(line, choices); ok {
				return choice, nil
			}
			t.write(t.errOut, fmt.Sprintf("unrecognized answer %q\n", line))
		}
	}
}

func (t *Terminal) Info(message string) {
	t.write(t.out, message+"\n")
}

func (t *Terminal) Error(message string) {
	t.write(t.errOut, "error: "+message+"\n")
}

func (t *Terminal) write(w io.Writer, text string) {
	if w == nil {
		return
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_, _ = io.WriteString(w, text)
}

func formatPrompt(message string, choices []Choice) string {
	var builder strings.Builder
	builder.WriteString(strings.TrimSpace(message))
	builder.WriteString("\n")
	for i, choice := range choices {
		fmt.Fprintf(&builder, "  [%d] %s\n", i+1, choice)
	}
	builder.WriteString("> ")
	return builder.String()
}

// parseChoice accepts a 1-based index, a label, or y/n, case-insensitively.
func parseChoice(answer string, choices []Choice) (Choice, bool) {
	if index, err := strconv.Atoi(answer); err == nil {
		if index >= 1 && index <= len(choices) {
			return choices[index-1], true
		}
		return ChoiceNotNow, false
	}
	answer = strings.ToLower(answer)
	for _, choice := range choices {
		if strings.ToLower(choice.String()) == answer {
			return choice, true
		}
	}
	for _, choice := range choices {
		if answer == aliasFor(choice) {
			return choice, true
		}
	}
	return ChoiceNotNow, false
}

func aliasFor(choice Choice) string {
	switch choice {
	case ChoiceYes:
		return "y"
	case ChoiceNotNow:
		return "n"
	default:
		return ""
	}
}
