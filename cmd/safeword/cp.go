package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/forest6511/safeword/internal/cli"
	"github.com/forest6511/safeword/internal/clipboard"
	"github.com/forest6511/safeword/pkg/audit"
	"github.com/forest6511/safeword/pkg/vault"
)

var (
	cpUsername bool
	cpPassword bool
	cpSeconds  int
)

func init() {
	rootCmd.AddCommand(cpCmd)

	cpCmd.Flags().BoolVarP(&cpUsername, "username", "u", false, "Copy the username")
	cpCmd.Flags().BoolVarP(&cpPassword, "password", "p", false, "Copy the password")
	cpCmd.Flags().IntVarP(&cpSeconds, "time", "t", -1, "Seconds before the clipboard is cleared; 0 never clears (default from config, 10)")
}

var cpCmd = &cobra.Command{
	Use:   "cp [-u] [-p] [-t SECONDS] ID",
	Short: "Copy a credential to the clipboard",
	Long: `Copy the password of a credential to the clipboard and clear it after a
timeout.

When -u or -p is given each named field may be pasted only once: the username
is offered first and, once it has been pasted, the password. Single-use
delivery needs wl-copy or xclip; other tools fall back to the timeout.`,
	Args: cobra.ExactArgs(1),
	RunE: executeCopy,
}

func executeCopy(cmd *cobra.Command, args []string) error {
	id, err := cli.ParseID(args[0])
	if err != nil {
		return err
	}

	timeout := cfg.ClipboardTimeout
	if cpSeconds >= 0 {
		timeout = time.Duration(cpSeconds) * time.Second
	}

	fields := []clipboard.Field{clipboard.FieldPassword}
	if cpUsername || cpPassword {
		fields = fields[:0]
		if cpUsername {
			fields = append(fields, clipboard.FieldUsername)
		}
		if cpPassword {
			fields = append(fields, clipboard.FieldPassword)
		}
	}

	// The vault is closed before waiting on the clipboard.
	var secrets []string
	var once bool
	err = withVault(func(v *vault.Vault) error {
		if cpUsername || cpPassword {
			one := "1"
			if err := v.SetConfig(vault.KeyCopyOnce, &one, false); err != nil {
				return err
			}
		}
		once = v.Config().CopyOnce
		for _, field := range fields {
			secret, err := clipboard.Secret(v, id, field)
			recordAudit(audit.OpCredentialCopy, audit.CredentialTarget(id), err, map[string]string{"field": string(field)})
			if err != nil {
				return err
			}
			secrets = append(secrets, secret)
		}
		return nil
	})
	if err != nil {
		return err
	}

	tool, err := detectClipboard()
	if err != nil {
		return err
	}
	if once && !tool.SupportsOnce() {
		slog.Warn("clipboard tool cannot serve a single paste, falling back to the timeout", "tool", tool.Name)
		once = false
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	out := cmd.ErrOrStderr()
	for i, field := range fields {
		if err := deliver(ctx, tool, secrets[i], once, timeout); err != nil {
			return err
		}
		if ctx.Err() != nil {
			fmt.Fprintln(out, "Clipboard cleared")
			return nil
		}
		if once {
			fmt.Fprintf(out, "%s pasted\n", field)
		}
	}
	if timeout > 0 || once {
		fmt.Fprintln(out, "Clipboard cleared")
	} else {
		fmt.Fprintln(out, "Copied to clipboard")
	}
	return nil
}

// deliver puts secret on the clipboard and, unless it may stay there, waits
// for the paste, the timeout or ctx before clearing it.
func deliver(ctx context.Context, tool clipboard.Tool, secret string, once bool, timeout time.Duration) error {
	var done <-chan error
	if once {
		onceCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		var err error
		if done, err = tool.CopyOnce(onceCtx, secret); err != nil {
			return err
		}
	} else {
		if err := tool.Copy(ctx, secret); err != nil {
			return err
		}
		if timeout <= 0 {
			return nil
		}
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case err := <-done:
		if err != nil && ctx.Err() == nil {
			slog.Debug("clipboard tool exited", "tool", tool.Name, "err", err)
		}
		return nil
	case <-expired:
	case <-ctx.Done():
	}
	return tool.Clear(context.Background())
}
