package executor

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Decision is an operator's choice after a task failure
type Decision string

const (
	DecisionRetry Decision = "retry"
	DecisionSkip  Decision = "skip"
	DecisionStop  Decision = "stop"
)

// DecisionProvider supplies the operator decision at a failure
// suspension point. Implementations may block until the operator
// responds; tests inject scripted providers.
type DecisionProvider interface {
	AskChoice(prompt string, options []Decision) (Decision, error)
}

// TerminalPrompter reads decisions from an interactive terminal
type TerminalPrompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewTerminalPrompter creates a prompter on stdin/stdout
func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{
		in:  bufio.NewReader(os.Stdin),
		out: os.Stdout,
	}
}

// AskChoice prints the prompt and options and reads until the operator
// enters a valid choice (full word or first letter). A read error is
// surfaced to the caller, which treats it as a stop request.
func (p *TerminalPrompter) AskChoice(prompt string, options []Decision) (Decision, error) {
	labels := make([]string, len(options))
	for i, opt := range options {
		labels[i] = string(opt)
	}

	for {
		fmt.Fprintf(p.out, "%s [%s]: ", prompt, strings.Join(labels, "/"))

		line, err := p.in.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("reading choice: %w", err)
		}

		answer := strings.ToLower(strings.TrimSpace(line))
		for _, opt := range options {
			if answer == string(opt) || (len(answer) == 1 && strings.HasPrefix(string(opt), answer)) {
				return opt, nil
			}
		}

		fmt.Fprintf(p.out, "Please answer one of: %s\n", strings.Join(labels, ", "))
	}
}

// StaticPrompter always answers with a fixed decision. Used for
// unattended runs (retry once, then the loop's own bounds apply) and in
// tests.
type StaticPrompter struct {
	Decision Decision
}

// AskChoice returns the configured decision
func (p *StaticPrompter) AskChoice(prompt string, options []Decision) (Decision, error) {
	return p.Decision, nil
}
