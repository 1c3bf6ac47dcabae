// Package mcp implements the MCP (Model Context Protocol) server for safeword.
// Clients see credential metadata and masked values; plaintext secrets only
// ever reach the local clipboard.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/forest6511/safeword/internal/clipboard"
	"github.com/forest6511/safeword/internal/config"
	"github.com/forest6511/safeword/pkg/audit"
	"github.com/forest6511/safeword/pkg/vault"
)

// maxPendingCopies is how many credential_copy values may wait for their
// clipboard clear at once.
const maxPendingCopies = 1

// Server represents the MCP server for safeword.
type Server struct {
	server *mcp.Server
	vault  *vault.Vault
	policy *Policy // nil: restricted mode
	audit  *audit.Logger

	detect     func() (clipboard.Tool, error)
	clearAfter time.Duration
	copySem    chan struct{}

	stop     chan struct{}
	stopOnce sync.Once
	pending  sync.WaitGroup
}

// ServerOptions contains configuration options for the MCP server.
type ServerOptions struct {
	// Vault is an open vault. The caller closes it after Run returns.
	Vault *vault.Vault

	// PolicyDir holds mcp-policy.yaml. Without a readable policy the
	// server runs restricted: metadata only, no usernames, no copy.
	PolicyDir string

	// ClearAfter is how long a copied value stays on the clipboard.
	// Zero means config.DefaultClipboardTimeout.
	ClearAfter time.Duration

	// Audit receives credential_copy events. Nil disables auditing.
	Audit *audit.Logger

	Version string
}

// NewServer creates a new MCP server instance.
func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Vault == nil {
		return nil, errors.New("mcp: a vault is required")
	}

	policy, err := LoadPolicy(opts.PolicyDir)
	switch {
	case errors.Is(err, ErrPolicyNotFound):
		slog.Info("no MCP policy, running restricted", "dir", opts.PolicyDir)
	case err != nil:
		slog.Warn("failed to load MCP policy, running restricted", "error", err)
		policy = nil
	}

	s := newServer(opts.Vault, policy, opts.ClearAfter)
	s.audit = opts.Audit
	s.server = mcp.NewServer(
		&mcp.Implementation{
			Name:    "safeword",
			Version: opts.Version,
		},
		nil,
	)
	s.registerTools()
	return s, nil
}

func newServer(v *vault.Vault, policy *Policy, clearAfter time.Duration) *Server {
	if clearAfter <= 0 {
		clearAfter = config.DefaultClipboardTimeout
	}
	return &Server{
		vault:      v,
		policy:     policy,
		detect:     clipboard.Detect,
		clearAfter: clearAfter,
		copySem:    make(chan struct{}, maxPendingCopies),
		stop:       make(chan struct{}),
	}
}

// record appends an audit event when an audit log is configured.
func (s *Server) record(op, target string, err error, ctx map[string]string) {
	if s.audit == nil {
		return
	}
	if werr := s.audit.Record(op, audit.SourceMCP, target, err, ctx); werr != nil {
		slog.Warn("failed to write audit log", "error", werr)
	}
}

func (s *Server) deny(op, target, reason string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Denied(op, audit.SourceMCP, target, reason); err != nil {
		slog.Warn("failed to write audit log", "error", err)
	}
}

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "credential_list",
		Description: "List credentials with their id, description and tags. Can filter by tags or return untagged credentials. Does NOT return usernames or passwords.",
	}, s.handleCredentialList)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "credential_info",
		Description: "Show one credential: tags, which fields are set, a masked password (e.g. '****WXYZ') and its strength. The username is included only if the policy allows it.",
	}, s.handleCredentialInfo)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "tag_list",
		Description: "List tags with credential counts. With related_to, list only tags that co-occur with all the given tags.",
	}, s.handleTagList)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "tag_wiki",
		Description: "Read the free-text wiki attached to a tag.",
	}, s.handleTagWiki)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "security_report",
		Description: "Score password strength and reuse across visible credentials and list the issues found.",
	}, s.handleSecurityReport)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "credential_copy",
		Description: "Copy a credential's username or password to the user's clipboard, cleared after a timeout. The value is never returned. Requires policy approval.",
	}, s.handleCredentialCopy)
}

// Run starts the MCP server using stdio transport.
func (s *Server) Run(ctx context.Context) error {
	defer s.Close()
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Close clears any pending clipboard value and waits for that to finish.
// The vault stays open.
func (s *Server) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	s.pending.Wait()
	return nil
}
