// Package prompt provides the small stdin helpers behind the interactive
// menu and review loops.
package prompt

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Prompter reads user answers line by line.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

// New returns a Prompter reading from stdin and writing to stdout.
func New() *Prompter {
	return &Prompter{in: bufio.NewReader(os.Stdin), out: os.Stdout}
}

// NewWith returns a Prompter over custom streams, for tests.
func NewWith(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// Input prints the label and returns the trimmed line the user types.
func (p *Prompter) Input(label string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", label)
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// InputDefault is Input with a fallback when the user just hits enter.
func (p *Prompter) InputDefault(label, def string) (string, error) {
	answer, err := p.Input(fmt.Sprintf("%s [%s]", label, def))
	if err != nil {
		return "", err
	}
	if answer == "" {
		return def, nil
	}
	return answer, nil
}

// Confirm asks a yes/no question. Empty input means no.
func (p *Prompter) Confirm(label string) (bool, error) {
	answer, err := p.Input(label + " (y/n)")
	if err != nil {
		return false, err
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes", nil
}

// Select prints numbered options and returns the chosen index.
func (p *Prompter) Select(label string, options []string) (int, error) {
	fmt.Fprintln(p.out, label)
	for i, opt := range options {
		fmt.Fprintf(p.out, "  %d) %s\n", i+1, opt)
	}
	for {
		answer, err := p.Input("choice")
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(answer)
		if err == nil && n >= 1 && n <= len(options) {
			return n - 1, nil
		}
		fmt.Fprintf(p.out, "enter a number between 1 and %d\n", len(options))
	}
}

// Int asks for an integer, reprompting until one is given.
func (p *Prompter) Int(label string) (int, error) {
	for {
		answer, err := p.Input(label)
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(answer)
		if err == nil {
			return n, nil
		}
		fmt.Fprintln(p.out, "enter a number")
	}
}
