package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Prompter reads interactive input. Passwords are read without echo when stdin is a
// terminal.
type Prompter struct {
	in           *bufio.Reader
	out          io.Writer
	readPassword func() ([]byte, error)
}

// NewPrompter reads lines from in and prompts on out. A nil readPassword reads from the
// process terminal.
func NewPrompter(in io.Reader, out io.Writer, readPassword func() ([]byte, error)) *Prompter {
	p := &Prompter{in: bufio.NewReader(in), out: out, readPassword: readPassword}
	if p.readPassword == nil {
		p.readPassword = p.terminalPassword
	}
	return p
}

func (p *Prompter) terminalPassword() ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := p.line()
		return []byte(line), err
	}
	return term.ReadPassword(fd)
}

// Text asks for a line of input. An empty answer is an error.
func (p *Prompter) Text(label string) (string, error) {
	if _, err := fmt.Fprintf(p.out, "%s: ", label); err != nil {
		return "", err
	}
	v, err := p.line()
	if err != nil {
		return "", err
	}
	if v == "" {
		return "", fmt.Errorf("%s is required", strings.ToLower(label))
	}
	return v, nil
}

// Password asks for a secret without echo.
func (p *Prompter) Password(label string) (string, error) {
	if _, err := fmt.Fprintf(p.out, "%s: ", label); err != nil {
		return "", err
	}
	pw, err := p.readPassword()
	fmt.Fprintln(p.out)
	if err != nil {
		return "", err
	}
	v := strings.TrimRight(string(pw), "\r\n")
	if v == "" {
		return "", fmt.Errorf("%s is required", strings.ToLower(label))
	}
	return v, nil
}

func (p *Prompter) line() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// orPrompt returns v when set, otherwise asks for it.
func (p *Prompter) orPrompt(v, label string) (string, error) {
	if v = strings.TrimSpace(v); v != "" {
		return v, nil
	}
	return p.Text(label)
}
