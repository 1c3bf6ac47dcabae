package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/forest6511/safeword/internal/mcp"
	"github.com/forest6511/safeword/pkg/vault"
)

func init() {
	rootCmd.AddCommand(mcpServerCmd)
}

// mcpServerCmd starts the MCP server for AI assistant integration
var mcpServerCmd = &cobra.Command{
	Use:   "mcp-server",
	Short: "Start the MCP server for AI assistant integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio that lets an AI
assistant browse the vault without ever receiving a password.

Available tools:
  - credential_list:  List credentials by tag (id, description, tags)
  - credential_info:  Show one credential with a masked password (e.g. "****WXYZ")
  - tag_list:         List tags with counts, optionally related to other tags
  - tag_wiki:         Read a tag's wiki
  - security_report:  Password strength and reuse report
  - credential_copy:  Put a username or password on the local clipboard

Policy:
  Create mcp-policy.yaml (mode 0600) next to the config file to choose which
  tags the assistant may see and whether it may reveal usernames or copy:

    version: 1
    default_action: deny
    allowed_tags: [work, "dev-*"]
    denied_tags: [bank]
    reveal_usernames: false
    allow_copy: true

  Without a policy every credential is listed, usernames stay hidden and
  credential_copy is disabled.

Example MCP client configuration:
  {
    "mcpServers": {
      "safeword": {
        "type": "stdio",
        "command": "/path/to/safeword",
        "args": ["mcp-server"]
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(func(v *vault.Vault) error {
			return runMCPServer(v)
		})
	},
}

func runMCPServer(v *vault.Vault) error {
	server, err := mcp.NewServer(mcp.ServerOptions{
		Vault:      v,
		PolicyDir:  filepath.Dir(configPath),
		ClearAfter: cfg.ClipboardTimeout,
		Audit:      openAuditLog(),
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx); err != nil {
		// Don't report context canceled as an error
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}
