package capture

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Continuer decides, before each interactive round, whether to go on.
type Continuer interface {
	Continue(ctx context.Context) (bool, error)
}

// DefaultPrompt is shown before every interactive round.
const DefaultPrompt = "Press Enter to capture a signature (or type 'stop' to finish): "

var stopWords = map[string]bool{
	"stop":  true,
	"salir": true,
	"exit":  true,
	"quit":  true,
	"q":     true,
}

// IsStopWord reports whether input asks the interactive loop to end.
func IsStopWord(input string) bool {
	return stopWords[strings.ToLower(strings.TrimSpace(input))]
}

// Prompt is a Continuer reading answers line by line from an input stream,
// usually stdin. End of input counts as a stop.
type Prompt struct {
	in      io.Reader
	out     io.Writer
	Message string

	once    sync.Once
	answers chan string
}

// NewPrompt returns a Prompt reading from in and writing the prompt to out.
func NewPrompt(in io.Reader, out io.Writer) *Prompt {
	return &Prompt{
		in:      in,
		out:     out,
		Message: DefaultPrompt,
		answers: make(chan string),
	}
}

func (p *Prompt) read() {
	go func() {
		defer close(p.answers)
		scan := bufio.NewScanner(p.in)
		for scan.Scan() {
			p.answers <- scan.Text()
		}
	}()
}

// Continue shows the prompt and waits for an answer or ctx cancellation.
func (p *Prompt) Continue(ctx context.Context) (bool, error) {
	if p.out != nil && p.Message != "" {
		if _, err := fmt.Fprint(p.out, p.Message); err != nil {
			return false, fmt.Errorf("failed to write prompt: %w", err)
		}
	}
	p.once.Do(p.read)

	select {
	case answer, ok := <-p.answers:
		if !ok {
			return false, nil
		}
		return !IsStopWord(answer), nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
