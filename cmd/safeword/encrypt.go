package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/forest6511/safeword/pkg/crypto"
)

// encryptedExt is appended by encrypt and stripped by decrypt.
const encryptedExt = ".swenc"

var (
	encryptOutput string
	encryptForce  bool
	decryptOutput string
	decryptForce  bool
	decryptInfo   bool
)

func init() {
	rootCmd.AddCommand(encryptCmd, decryptCmd)

	encryptCmd.Flags().StringVarP(&encryptOutput, "output", "o", "", "Output file (default: FILE"+encryptedExt+")")
	encryptCmd.Flags().BoolVarP(&encryptForce, "force", "f", false, "Overwrite an existing output file")

	decryptCmd.Flags().StringVarP(&decryptOutput, "output", "o", "", "Output file (default: FILE without "+encryptedExt+")")
	decryptCmd.Flags().BoolVarP(&decryptForce, "force", "f", false, "Overwrite an existing output file")
	decryptCmd.Flags().BoolVar(&decryptInfo, "info", false, "Print the cleartext header without decrypting")
}

var encryptCmd = &cobra.Command{
	Use:   "encrypt FILE",
	Short: "Encrypt a file with a password",
	Long: `Encrypt any file with a password. The result is independent of the vault
and can be decrypted with 'safeword decrypt'.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := args[0]
		out := encryptOutput
		if out == "" {
			out = in + encryptedExt
		}
		if err := checkOutput(out, encryptForce); err != nil {
			return err
		}

		plaintext, err := os.ReadFile(in)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", in, err)
		}
		defer crypto.SecureWipe(plaintext)

		password, err := readNewSecret(cmd, "password")
		if err != nil {
			return err
		}
		defer crypto.SecureWipe(password)

		var buf bytes.Buffer
		header := &crypto.Header{Kind: crypto.KindFile, Name: filepath.Base(in), KDF: kdfParams}
		if err := crypto.Seal(&buf, password, plaintext, header); err != nil {
			return err
		}
		if err := writeSecureFile(out, buf.Bytes()); err != nil {
			return err
		}
		success.Fprintf(cmd.OutOrStdout(), "Encrypted %s to %s (%s)\n", in, out, humanize.Bytes(uint64(buf.Len())))
		return nil
	},
}

var decryptCmd = &cobra.Command{
	Use:   "decrypt FILE",
	Short: "Decrypt a file made by encrypt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := args[0]
		f, err := os.Open(in)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", in, err)
		}
		defer f.Close()

		if decryptInfo {
			h, err := crypto.ReadHeader(f)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s %s\n", heading.Sprint("Kind:   "), h.Kind)
			fmt.Fprintf(w, "%s %s\n", heading.Sprint("Name:   "), h.Name)
			fmt.Fprintf(w, "%s %s\n", heading.Sprint("Size:   "), humanize.Bytes(uint64(h.Size)))
			fmt.Fprintf(w, "%s %s (%s)\n", heading.Sprint("Created:"), h.CreatedAt.Local().Format(time.RFC1123), humanize.Time(h.CreatedAt))
			fmt.Fprintf(w, "%s %s\n", heading.Sprint("ID:     "), h.ID)
			return nil
		}

		out := decryptOutput
		if out == "" {
			out = strings.TrimSuffix(in, encryptedExt)
			if out == in {
				out = in + ".dec"
			}
		}
		if err := checkOutput(out, decryptForce); err != nil {
			return err
		}

		password, err := readSecret(cmd, "Password: ")
		if err != nil {
			return err
		}
		defer crypto.SecureWipe(password)

		h, plaintext, err := crypto.Open(f, password)
		if err != nil {
			return err
		}
		defer crypto.SecureWipe(plaintext)
		if h.Kind != crypto.KindFile {
			return fmt.Errorf("%s holds a %s; use 'safeword restore'", in, h.Kind)
		}

		if err := writeSecureFile(out, plaintext); err != nil {
			return err
		}
		success.Fprintf(cmd.OutOrStdout(), "Decrypted %s to %s\n", in, out)
		return nil
	},
}

func checkOutput(path string, force bool) error {
	if force {
		return nil
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("'%s' already exists. Use --force to overwrite", path)
	}
	return nil
}
