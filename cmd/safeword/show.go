package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forest6511/safeword/internal/cli"
	"github.com/forest6511/safeword/pkg/vault"
)

func init() {
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(infoCmd)
}

var showCmd = &cobra.Command{
	Use:   "show ID|TAG",
	Short: "Print a credential, or the wiki of a tag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		return withVault(func(v *vault.Vault) error {
			if cli.IsID(args[0]) {
				id, _ := cli.ParseID(args[0])
				c, err := v.ReadCredential(id)
				if err != nil {
					return err
				}
				printCredential(w, c)
				return nil
			}

			wiki, err := v.ReadTagAnnotation(args[0])
			if err != nil {
				return err
			}
			if wiki != nil {
				fmt.Fprintln(w, strings.TrimRight(*wiki, "\n"))
			}
			return nil
		})
	},
}

var infoCmd = &cobra.Command{
	Use:   "info ID|TAG",
	Short: "Describe a credential or a tag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		return withVault(func(v *vault.Vault) error {
			if cli.IsID(args[0]) {
				id, _ := cli.ParseID(args[0])
				c, err := v.ReadCredential(id)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s: %d\n", heading.Sprint("ID         "), c.ID)
				fmt.Fprintf(w, "%s: %s\n", heading.Sprint("DESCRIPTION"), orNone(c.Description))
				fmt.Fprintf(w, "%s: %s\n", heading.Sprint("USERNAME   "), orNone(c.Username))
				fmt.Fprintf(w, "%s: %s\n", heading.Sprint("PASSWORD   "), orNone(c.Password))
				fmt.Fprintf(w, "%s: %s\n", heading.Sprint("NOTE       "), orNone(c.Note))
				fmt.Fprintf(w, "%s: %s\n", heading.Sprint("TAGS       "), strings.Join(c.Tags, ", "))
				return nil
			}

			tag, err := v.LookupTag(args[0])
			if err != nil {
				return err
			}
			count, err := v.TagLinkCount(tag.Name)
			if err != nil {
				return err
			}
			related, err := v.ListTags(tag.Name)
			if err != nil {
				return err
			}
			names := make([]string, len(related))
			for i, t := range related {
				names[i] = t.Name
			}

			fmt.Fprintf(w, "%s: %s\n", heading.Sprint("TAG        "), tag.Name)
			fmt.Fprintf(w, "%s: %d\n", heading.Sprint("CREDENTIALS"), count)
			fmt.Fprintf(w, "%s: %s\n", heading.Sprint("RELATED    "), strings.Join(names, ", "))
			if tag.Wiki != nil {
				fmt.Fprintf(w, "%s:\n%s\n", heading.Sprint("WIKI       "), strings.TrimRight(*tag.Wiki, "\n"))
			}
			return nil
		})
	},
}
