package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/forest6511/safeword/internal/cli"
	"github.com/forest6511/safeword/pkg/audit"
	"github.com/forest6511/safeword/pkg/crypto"
	"github.com/forest6511/safeword/pkg/vault"
)

var (
	editUsername    string
	editPassword    string
	editDescription string
	editNote        string
)

// errNoEditor is returned when no editor can be found.
var errNoEditor = errors.New("no editor found: set \"editor\" in the config file or $EDITOR")

func init() {
	rootCmd.AddCommand(editCmd)

	editCmd.Flags().StringVarP(&editUsername, "username", "u", "", "New username")
	editCmd.Flags().StringVarP(&editPassword, "password", "p", "", "New password")
	editCmd.Flags().StringVarP(&editDescription, "message", "m", "", "New description")
	editCmd.Flags().StringVarP(&editNote, "note", "n", "", "New note")
}

var editCmd = &cobra.Command{
	Use:   "edit ID",
	Short: "Change the fields of a credential",
	Long: `Change the fields of a credential. Only the flags given are changed.

Without any flag the credential is opened in an editor as a YAML document.
Deleting a line there clears the field to an empty value; it does not become
absent again. The editor is taken from the config file, then $EDITOR, then
vi or nano.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := cli.ParseID(args[0])
		if err != nil {
			return err
		}

		var patch vault.CredentialFields
		flags := cmd.Flags()
		if flags.Changed("username") {
			patch.Username = &editUsername
		}
		if flags.Changed("password") {
			patch.Password = &editPassword
		}
		if flags.Changed("message") {
			patch.Description = &editDescription
		}
		if flags.Changed("note") {
			patch.Note = &editNote
		}

		return withVault(func(v *vault.Vault) error {
			if patch.Empty() {
				var err error
				if patch, err = editInEditor(v, id); err != nil {
					return err
				}
				if patch.Empty() {
					fmt.Fprintln(cmd.OutOrStdout(), "No changes")
					return nil
				}
			}
			err := v.UpdateCredential(id, patch)
			recordAudit(audit.OpCredentialUpdate, audit.CredentialTarget(id), err, changedFields(patch))
			if err != nil {
				return err
			}
			success.Fprintf(cmd.OutOrStdout(), "Updated credential %d\n", id)
			return nil
		})
	},
}

// changedFields names the fields a patch touches, never their values.
func changedFields(patch vault.CredentialFields) map[string]string {
	var fields []string
	for name, set := range map[string]bool{
		"username":    patch.Username != nil,
		"password":    patch.Password != nil,
		"description": patch.Description != nil,
		"note":        patch.Note != nil,
	} {
		if set {
			fields = append(fields, name)
		}
	}
	sort.Strings(fields)
	return map[string]string{"fields": strings.Join(fields, ",")}
}

// editDocument is the YAML form shown in the editor.
type editDocument struct {
	Description *string `yaml:"description"`
	Username    *string `yaml:"username"`
	Password    *string `yaml:"password"`
	Note        *string `yaml:"note"`
}

// editInEditor returns the fields that differ after the user saves the
// document. A field removed from the document is cleared to the empty
// string, since a patch cannot unset a field.
func editInEditor(v *vault.Vault, id int64) (vault.CredentialFields, error) {
	c, err := v.ReadCredential(id)
	if err != nil {
		return vault.CredentialFields{}, err
	}
	before := editDocument{Description: c.Description, Username: c.Username, Password: c.Password, Note: c.Note}

	data, err := yaml.Marshal(before)
	if err != nil {
		return vault.CredentialFields{}, fmt.Errorf("failed to encode credential: %w", err)
	}
	defer crypto.SecureWipe(data)

	f, err := os.CreateTemp("", "safeword-edit-*.yaml")
	if err != nil {
		return vault.CredentialFields{}, fmt.Errorf("failed to create temp file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	_, err = f.Write(data)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return vault.CredentialFields{}, fmt.Errorf("failed to write temp file: %w", err)
	}

	editor, err := resolveEditor(cfg.Editor, os.Getenv("EDITOR"))
	if err != nil {
		return vault.CredentialFields{}, err
	}
	cmd := exec.Command(editor, path)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	if err := cmd.Run(); err != nil {
		return vault.CredentialFields{}, fmt.Errorf("editor failed: %w", err)
	}

	edited, err := os.ReadFile(path)
	if err != nil {
		return vault.CredentialFields{}, fmt.Errorf("failed to read temp file: %w", err)
	}
	defer crypto.SecureWipe(edited)

	var after editDocument
	if err := yaml.Unmarshal(edited, &after); err != nil {
		return vault.CredentialFields{}, fmt.Errorf("invalid document: %w", err)
	}
	return diffDocument(before, after), nil
}

func diffDocument(before, after editDocument) vault.CredentialFields {
	changed := func(old, next *string) *string {
		if next == nil {
			if old == nil || *old == "" {
				return nil
			}
			empty := ""
			return &empty
		}
		if old != nil && *old == *next {
			return nil
		}
		return next
	}
	return vault.CredentialFields{
		Description: changed(before.Description, after.Description),
		Username:    changed(before.Username, after.Username),
		Password:    changed(before.Password, after.Password),
		Note:        changed(before.Note, after.Note),
	}
}

// resolveEditor picks the configured editor, then $EDITOR, then vi, then nano.
func resolveEditor(configured, env string) (string, error) {
	for _, candidate := range []string{configured, env, "vi", "nano"} {
		if candidate == "" {
			continue
		}
		if _, err := exec.LookPath(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", errNoEditor
}

