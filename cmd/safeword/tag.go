package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forest6511/safeword/internal/cli"
	"github.com/forest6511/safeword/pkg/audit"
	"github.com/forest6511/safeword/pkg/vault"
)

var (
	tagDelete  bool
	tagForce   bool
	tagMove    bool
	tagWiki    string
	tagUntag   bool
	tagRelated bool
)

func init() {
	rootCmd.AddCommand(tagCmd)

	tagCmd.Flags().BoolVarP(&tagDelete, "delete", "d", false, "Delete tags")
	tagCmd.Flags().BoolVarP(&tagForce, "force", "f", false, "Delete without asking, even tags that are in use")
	tagCmd.Flags().BoolVarP(&tagMove, "move", "m", false, "Rename tag OLD to NEW")
	tagCmd.Flags().StringVarP(&tagWiki, "wiki", "w", "", "Set the wiki of TAG from FILE, or stdin if FILE is '-'")
	tagCmd.Flags().BoolVar(&tagUntag, "untag", false, "Remove TAGS from credentials IDS")
	tagCmd.Flags().BoolVar(&tagRelated, "related", false, "List tags that co-occur with TAGS")
	tagCmd.MarkFlagsMutuallyExclusive("delete", "move", "wiki", "untag", "related")
}

var tagCmd = &cobra.Command{
	Use:   "tag [IDS] [TAGS...]",
	Short: "Manage tags",
	Long: `Map tags to credentials and manage the tags themselves.

  safeword tag                     list tags with their credential counts
  safeword tag 1,4 work email      tag credentials 1 and 4
  safeword tag 3                   show the tags of credential 3
  safeword tag --untag 1 email     remove a tag from credential 1
  safeword tag -d old-*            delete tags, asking for each
  safeword tag -m work job         rename a tag
  safeword tag -w notes.md work    set the markdown wiki of a tag
  safeword tag --related email     tags that appear next to 'email'`,
	RunE: executeTag,
}

func executeTag(cmd *cobra.Command, args []string) error {
	return withVault(func(v *vault.Vault) error {
		switch {
		case tagDelete:
			return deleteTags(cmd, v, args)
		case tagMove:
			if len(args) != 2 {
				return fmt.Errorf("--move takes OLD and NEW tag names")
			}
			err := v.RenameTag(args[0], args[1])
			recordAudit(audit.OpTagRename, audit.TagTarget(args[0]), err, map[string]string{"to": args[1]})
			if err != nil {
				return err
			}
			success.Fprintf(cmd.OutOrStdout(), "Renamed tag '%s' to '%s'\n", args[0], args[1])
			return nil
		case cmd.Flags().Changed("wiki"):
			return updateWiki(cmd, v, args)
		case tagRelated:
			return relatedTags(cmd, v, args)
		case tagUntag:
			return untag(cmd, v, args)
		case len(args) == 0:
			return listTags(cmd, v)
		default:
			return tagCredentials(cmd, v, args)
		}
	})
}

func listTags(cmd *cobra.Command, v *vault.Vault) error {
	tags, err := v.ListTags()
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	for _, t := range tags {
		n, err := v.TagLinkCount(t.Name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s %s\n", heading.Sprint(t.Name), faint.Sprintf("(%d)", n))
	}
	return nil
}

func tagCredentials(cmd *cobra.Command, v *vault.Vault, args []string) error {
	ids, err := cli.ParseIDs(args[0])
	if err != nil {
		return err
	}
	tags := cli.SplitList(args[1:]...)

	w := cmd.OutOrStdout()
	if len(tags) == 0 {
		for _, id := range ids {
			c, err := v.ReadCredential(id)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s: %s\n", heading.Sprint(id), strings.Join(c.Tags, ", "))
		}
		return nil
	}

	for _, id := range ids {
		for _, tag := range tags {
			err := v.TagCredential(id, tag)
			recordAudit(audit.OpTagLink, audit.TagTarget(tag), err, map[string]string{"credential": strconv.FormatInt(id, 10)})
			if err != nil {
				return fmt.Errorf("failed to tag credential %d with '%s': %w", id, tag, err)
			}
		}
	}
	slog.Info("tags linked", "credentials", len(ids), "tags", len(tags))
	return nil
}

func untag(cmd *cobra.Command, v *vault.Vault, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("--untag takes IDS and TAGS")
	}
	ids, err := cli.ParseIDs(args[0])
	if err != nil {
		return err
	}
	tags, err := expandTags(v, cli.SplitList(args[1:]...))
	if err != nil {
		return err
	}
	for _, id := range ids {
		for _, tag := range tags {
			err := v.UntagCredential(id, tag)
			if errors.Is(err, vault.ErrNotTagged) {
				slog.Warn("credential does not carry tag", "id", id, "tag", tag)
				continue
			}
			recordAudit(audit.OpTagUnlink, audit.TagTarget(tag), err, map[string]string{"credential": strconv.FormatInt(id, 10)})
			if err != nil {
				return fmt.Errorf("failed to untag credential %d: %w", id, err)
			}
		}
	}
	return nil
}

func deleteTags(cmd *cobra.Command, v *vault.Vault, args []string) error {
	tags, err := expandTags(v, cli.SplitList(args...))
	if err != nil {
		return err
	}
	if len(tags) == 0 {
		return fmt.Errorf("no tags specified")
	}

	for _, tag := range tags {
		n, err := v.TagLinkCount(tag)
		if err != nil {
			return err
		}
		if !tagForce {
			if n > 0 {
				caution.Fprintf(cmd.ErrOrStderr(), "tag '%s' is mapped to %d credential(s); use --force to delete it\n", tag, n)
				continue
			}
			answer, err := ask(cmd, fmt.Sprintf("delete tag '%s'? (y/N) ", tag))
			if err != nil {
				return err
			}
			if isQuit(answer) {
				return nil
			}
			if !isYes(answer) {
				continue
			}
		}
		err = v.DeleteTag(tag)
		recordAudit(audit.OpTagDelete, audit.TagTarget(tag), err, map[string]string{"links": strconv.Itoa(n)})
		if err != nil {
			return err
		}
		success.Fprintf(cmd.OutOrStdout(), "Deleted tag '%s'\n", tag)
	}
	return nil
}

func updateWiki(cmd *cobra.Command, v *vault.Vault, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("--wiki takes exactly one TAG")
	}

	var data []byte
	var err error
	if tagWiki == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(tagWiki)
	}
	if err != nil {
		return fmt.Errorf("failed to read wiki: %w", err)
	}

	if len(data) == 0 {
		err = v.UpdateTagAnnotation(args[0], nil)
	} else {
		wiki := string(data)
		_, err = v.CreateTag(args[0], &wiki)
	}
	recordAudit(audit.OpTagWiki, audit.TagTarget(args[0]), err, map[string]string{"cleared": strconv.FormatBool(len(data) == 0)})
	return err
}

func relatedTags(cmd *cobra.Command, v *vault.Vault, args []string) error {
	filter, err := expandTags(v, cli.SplitList(args...))
	if err != nil {
		return err
	}
	if len(filter) == 0 {
		return fmt.Errorf("--related needs at least one tag")
	}
	tags, err := v.ListTags(filter...)
	if err != nil {
		return err
	}
	for _, t := range tags {
		fmt.Fprintln(cmd.OutOrStdout(), t.Name)
	}
	return nil
}
