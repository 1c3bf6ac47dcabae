package main

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// errAborted is returned when the user cancels a prompt.
var errAborted = errors.New("aborted")

// line input is buffered across prompts so piped answers are not lost.
var (
	lineSource io.Reader
	lineReader *bufio.Reader
)

func terminalInput(cmd *cobra.Command) (*os.File, bool) {
	f, ok := cmd.InOrStdin().(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return nil, false
	}
	return f, true
}

// readLine reads a single line from the command's input, trimming the
// trailing newline.
func readLine(cmd *cobra.Command) (string, error) {
	in := cmd.InOrStdin()
	if in != lineSource {
		lineSource = in
		lineReader = bufio.NewReader(in)
	}
	line, err := lineReader.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		if err == io.EOF {
			return "", io.EOF
		}
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r"), nil
}

// readSecret prompts for a secret without echo on a terminal. Piped input
// is read a line at a time.
func readSecret(cmd *cobra.Command, prompt string) ([]byte, error) {
	f, ok := terminalInput(cmd)
	if !ok {
		line, err := readLine(cmd)
		if err != nil {
			return nil, err
		}
		return []byte(line), nil
	}

	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	secret, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	return secret, nil
}

// readNewSecret prompts twice and requires both entries to match.
func readNewSecret(cmd *cobra.Command, what string) ([]byte, error) {
	first, err := readSecret(cmd, fmt.Sprintf("Enter %s: ", what))
	if err != nil {
		return nil, err
	}
	second, err := readSecret(cmd, fmt.Sprintf("Confirm %s: ", what))
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(first, second) {
		return nil, fmt.Errorf("%ss do not match", what)
	}
	if len(first) == 0 {
		return nil, fmt.Errorf("%s cannot be empty", what)
	}
	return first, nil
}

// ask shows prompt and returns the answer. Terminals get line editing.
func ask(cmd *cobra.Command, prompt string) (string, error) {
	if _, ok := terminalInput(cmd); ok {
		line := liner.NewLiner()
		defer line.Close()
		line.SetCtrlCAborts(true)

		answer, err := line.Prompt(prompt)
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			return "", errAborted
		}
		return strings.TrimSpace(answer), err
	}

	fmt.Fprint(cmd.OutOrStdout(), prompt)
	answer, err := readLine(cmd)
	if errors.Is(err, io.EOF) {
		return "", errAborted
	}
	return strings.TrimSpace(answer), err
}

// confirm asks a yes/no question. Any prefix of "yes" is a yes.
func confirm(cmd *cobra.Command, prompt string) (bool, error) {
	answer, err := ask(cmd, prompt)
	if err != nil {
		return false, err
	}
	return isYes(answer), nil
}

func isYes(answer string) bool {
	answer = strings.ToLower(answer)
	return answer != "" && strings.HasPrefix("yes", answer)
}

func isQuit(answer string) bool {
	answer = strings.ToLower(answer)
	return answer != "" && strings.HasPrefix("quit", answer)
}
