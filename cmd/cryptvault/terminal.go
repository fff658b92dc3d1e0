package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/absfs/cryptvault"
	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"go.uber.org/zap"
	"golang.org/x/term"
)

// readPassword prompts without echo on a terminal. Otherwise the next input
// line is taken as the password.
func (a *app) readPassword(prompt string) ([]byte, error) {
	if a.stdin != nil && term.IsTerminal(int(a.stdin.Fd())) {
		fmt.Fprint(a.errOut, prompt)
		password, err := term.ReadPassword(int(a.stdin.Fd()))
		fmt.Fprintln(a.errOut)
		if err != nil {
			return nil, fmt.Errorf("failed to read password: %w", err)
		}
		return password, nil
	}

	line, err := a.readLine()
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	return []byte(line), nil
}

// readNewPassword asks for a password twice.
func (a *app) readNewPassword(prompt string) ([]byte, error) {
	password, err := a.readPassword(prompt)
	if err != nil {
		return nil, err
	}
	confirm, err := a.readPassword("Confirm " + strings.ToLower(prompt[:1]) + prompt[1:])
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(password, confirm) {
		return nil, errors.New("passwords do not match")
	}
	return password, nil
}

// readLine returns the next input line without its terminator.
func (a *app) readLine() (string, error) {
	line, err := a.in.ReadString('\n')
	if err == io.EOF && line != "" {
		err = nil
	}
	if err != nil {
		if err == io.EOF {
			return "", io.ErrUnexpectedEOF
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (a *app) successf(format string, args ...any) {
	fmt.Fprintln(a.out, color.GreenString("✓"), fmt.Sprintf(format, args...))
}

func (a *app) infof(format string, args ...any) {
	fmt.Fprintln(a.out, color.CyanString("→"), fmt.Sprintf(format, args...))
}

func (a *app) warnf(format string, args ...any) {
	fmt.Fprintln(a.errOut, color.YellowString("!"), fmt.Sprintf(format, args...))
}

// progressSpinner shows a percentage while a container operation runs.
// Without a terminal, or under --verbose, progress goes to the debug log.
type progressSpinner struct {
	a       *app
	s       *spinner.Spinner
	message string
	active  bool
}

func (a *app) startSpinner(message string) *progressSpinner {
	p := &progressSpinner{a: a, message: message}
	if a.verbose || !a.interactive() {
		a.log.Info(message)
		return p
	}

	p.s = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(a.errOut))
	p.s.Suffix = " " + message
	if err := p.s.Color("cyan"); err != nil {
		a.log.Debug("failed to set spinner color", zap.Error(err))
	}
	p.s.Start()
	p.active = true
	return p
}

// progress returns the callback handed to the vault.
func (p *progressSpinner) progress() cryptvault.ProgressFunc {
	return func(percent int) {
		if !p.active {
			p.a.log.Debug(p.message, zap.Int("percent", percent))
			return
		}
		p.s.Lock()
		p.s.Suffix = fmt.Sprintf(" %s %d%%", p.message, percent)
		p.s.Unlock()
	}
}

// stop ends the spinner, printing a final status line for err.
func (p *progressSpinner) stop(err error, done string) {
	if p.active {
		p.s.Stop()
	}
	if err != nil {
		return
	}
	p.a.successf("%s", done)
}
