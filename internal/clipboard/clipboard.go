// Package clipboard delivers credential fields to the system clipboard.
package clipboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/forest6511/safeword/pkg/vault"
)

// Field names a credential field that can be copied.
type Field string

const (
	FieldUsername Field = "username"
	FieldPassword Field = "password"
)

// Clipboard errors
var (
	ErrNoTool       = errors.New("clipboard tool not found: install wl-clipboard, xclip or xsel")
	ErrFieldAbsent  = errors.New("clipboard: field is not set")
	ErrUnknownField = errors.New("clipboard: unknown field")
)

// Reader resolves credentials.
type Reader interface {
	ReadCredential(id int64) (*vault.Credential, error)
}

// Secret returns one field of credential id. An absent field is
// ErrFieldAbsent; a present empty string is returned as is.
func Secret(r Reader, id int64, field Field) (string, error) {
	cred, err := r.ReadCredential(id)
	if err != nil {
		return "", err
	}

	var value *string
	switch field {
	case FieldUsername:
		value = cred.Username
	case FieldPassword:
		value = cred.Password
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	if value == nil {
		return "", fmt.Errorf("%w: credential %d has no %s", ErrFieldAbsent, id, field)
	}
	return *value, nil
}

// Tool is a clipboard command line program.
type Tool struct {
	Name string
	// Args copy stdin to the clipboard and return.
	Args []string
	// OnceArgs serve a single paste and then exit, staying in the
	// foreground until they do. Nil if the tool cannot do that.
	OnceArgs []string
}

// SupportsOnce reports whether the tool can serve a single paste.
func (t Tool) SupportsOnce() bool { return t.OnceArgs != nil }

var (
	wlCopy = Tool{Name: "wl-copy", OnceArgs: []string{"--paste-once", "--foreground"}}
	xclip  = Tool{
		Name:     "xclip",
		Args:     []string{"-selection", "clipboard"},
		OnceArgs: []string{"-selection", "clipboard", "-loops", "1", "-quiet"},
	}
	xsel   = Tool{Name: "xsel", Args: []string{"--clipboard", "--input"}}
	pbcopy = Tool{Name: "pbcopy"}
	clip   = Tool{Name: "clip"}
)

// Detect picks the clipboard tool for the current platform.
func Detect() (Tool, error) {
	return detect(runtime.GOOS, os.Getenv("WAYLAND_DISPLAY") != "", exec.LookPath)
}

func detect(goos string, wayland bool, lookPath func(string) (string, error)) (Tool, error) {
	var candidates []Tool
	switch goos {
	case "darwin":
		candidates = []Tool{pbcopy}
	case "windows":
		candidates = []Tool{clip}
	case "linux", "freebsd", "openbsd", "netbsd":
		if wayland {
			candidates = append(candidates, wlCopy)
		}
		candidates = append(candidates, xclip, xsel)
	default:
		return Tool{}, fmt.Errorf("clipboard not supported on %s", goos)
	}

	for _, t := range candidates {
		if _, err := lookPath(t.Name); err == nil {
			return t, nil
		}
	}
	return Tool{}, ErrNoTool
}

// Copy puts text on the clipboard and returns once it is there.
func (t Tool) Copy(ctx context.Context, text string) error {
	cmd := exec.CommandContext(ctx, t.Name, t.Args...)
	cmd.Stdin = strings.NewReader(text)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s failed: %w: %s", t.Name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// CopyOnce offers text for a single paste. The returned channel yields the
// tool's exit status after the paste, or after ctx is cancelled.
func (t Tool) CopyOnce(ctx context.Context, text string) (<-chan error, error) {
	if !t.SupportsOnce() {
		return nil, fmt.Errorf("%s cannot serve a single paste", t.Name)
	}
	cmd := exec.CommandContext(ctx, t.Name, t.OnceArgs...)
	cmd.Stdin = strings.NewReader(text)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", t.Name, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	return done, nil
}

// Clear empties the clipboard.
func (t Tool) Clear(ctx context.Context) error {
	if t.Name == wlCopy.Name {
		return exec.CommandContext(ctx, t.Name, "--clear").Run()
	}
	return t.Copy(ctx, "")
}
