package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forest6511/safeword/internal/cli"
	"github.com/forest6511/safeword/internal/clipboard"
	"github.com/forest6511/safeword/pkg/audit"
	"github.com/forest6511/safeword/pkg/vault"
)

const (
	lowerLetters = "abcdefghijklmnopqrstuvwxyz"
	upperLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitChars   = "0123456789"
	symbolChars  = "!@#$%^&*()_+-=[]{}|;:,.<>?"

	defaultPasswordLength = 24
)

// recipe describes which passwords generate produces.
type recipe struct {
	Length   int
	Count    int
	Upper    bool
	Digits   bool
	Symbols  bool
	Excluded string
}

// defaultRecipe is what add -g uses.
var defaultRecipe = recipe{Length: defaultPasswordLength, Count: 1, Upper: true, Digits: true, Symbols: true}

var (
	genRecipe    = defaultRecipe
	genNoUpper   bool
	genNoDigits  bool
	genNoSymbols bool
	genCopy      bool
	genSet       string
)

// detectClipboard is replaced in tests.
var detectClipboard = clipboard.Detect

func init() {
	rootCmd.AddCommand(generateCmd)

	f := generateCmd.Flags()
	f.IntVarP(&genRecipe.Length, "length", "l", defaultRecipe.Length, "Password length (8-256)")
	f.IntVarP(&genRecipe.Count, "count", "n", defaultRecipe.Count, "Number of passwords to generate (1-100)")
	f.BoolVar(&genNoSymbols, "no-symbols", false, "Leave out symbols")
	f.BoolVar(&genNoDigits, "no-numbers", false, "Leave out digits")
	f.BoolVar(&genNoUpper, "no-uppercase", false, "Leave out uppercase letters")
	f.StringVar(&genRecipe.Excluded, "exclude", "", "Characters never to use")
	f.BoolVarP(&genCopy, "copy", "c", false, "Put the first password on the clipboard")
	f.StringVar(&genSet, "set", "", "Store the password on credential ID")
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate random passwords",
	Long: `Generate random passwords from crypto/rand. Lowercase letters are always
used; the other classes can be switched off.

Examples:
  safeword generate
  safeword generate -l 32 --no-symbols
  safeword generate -n 5 --exclude "0O1lI"
  safeword generate --set 12`,
	Args: cobra.NoArgs,
	RunE: runGenerate,
}

func runGenerate(cmd *cobra.Command, args []string) error {
	r := genRecipe
	r.Upper, r.Digits, r.Symbols = !genNoUpper, !genNoDigits, !genNoSymbols
	if genSet != "" && r.Count != 1 {
		return errors.New("--set stores a single password; drop --count")
	}
	passwords, err := r.generate()
	if err != nil {
		return err
	}

	if genSet != "" {
		id, err := cli.ParseID(genSet)
		if err != nil {
			return err
		}
		err = withVault(func(v *vault.Vault) error {
			err := v.UpdateCredential(id, vault.CredentialFields{Password: &passwords[0]})
			recordAudit(audit.OpCredentialUpdate, audit.CredentialTarget(id), err, map[string]string{"fields": "password", "generated": "true"})
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to update credential %d: %w", id, err)
		}
		success.Fprintf(cmd.ErrOrStderr(), "Password of credential %d replaced\n", id)
	}

	out := cmd.OutOrStdout()
	for _, p := range passwords {
		fmt.Fprintln(out, p)
	}

	if genCopy {
		tool, err := detectClipboard()
		if err == nil {
			err = tool.Copy(context.Background(), passwords[0])
		}
		if err != nil {
			caution.Fprintf(cmd.ErrOrStderr(), "Warning: failed to copy to clipboard: %v\n", err)
		} else {
			fmt.Fprintln(cmd.ErrOrStderr(), "Password copied to clipboard")
		}
	}
	return nil
}

func (r recipe) validate() error {
	switch {
	case r.Length < 8 || r.Length > 256:
		return fmt.Errorf("password length must be between 8 and 256, got %d", r.Length)
	case r.Count < 1 || r.Count > 100:
		return fmt.Errorf("count must be between 1 and 100, got %d", r.Count)
	case len(r.Excluded) > 256:
		return errors.New("--exclude takes at most 256 characters")
	}
	return nil
}

// alphabet returns the characters passwords are drawn from.
func (r recipe) alphabet() (string, error) {
	classes := []string{lowerLetters}
	if r.Upper {
		classes = append(classes, upperLetters)
	}
	if r.Digits {
		classes = append(classes, digitChars)
	}
	if r.Symbols {
		classes = append(classes, symbolChars)
	}

	alphabet := strings.Map(func(c rune) rune {
		if strings.ContainsRune(r.Excluded, c) {
			return -1
		}
		return c
	}, strings.Join(classes, ""))
	if alphabet == "" {
		return "", errors.New("character set is empty: exclude fewer characters")
	}
	return alphabet, nil
}

func (r recipe) generate() ([]string, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	alphabet, err := r.alphabet()
	if err != nil {
		return nil, err
	}

	size := big.NewInt(int64(len(alphabet)))
	passwords := make([]string, r.Count)
	for i := range passwords {
		buf := make([]byte, r.Length)
		for j := range buf {
			n, err := rand.Int(rand.Reader, size)
			if err != nil {
				return nil, fmt.Errorf("failed to read random number: %w", err)
			}
			buf[j] = alphabet[n.Int64()]
		}
		passwords[i] = string(buf)
	}
	return passwords, nil
}
