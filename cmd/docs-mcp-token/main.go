// Package main is docs-mcp-token, a helper for minting and revoking caller
// tokens for docs-mcp.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/acmecorp/docs-mcp/internal/auth"
	"github.com/acmecorp/docs-mcp/internal/config"
)

const usage = `usage:
  docs-mcp-token issue --sub <subject> [--scope <scope>]... [--exp 8h] [--secret <secret>] [--algorithm HS256] [--jti <id>] [--dev]
  docs-mcp-token revoke --jti <id> [--ttl $MCP_REVOCATION_TTL] [--redis-url redis://localhost:6379/0]
`

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(2)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return flag.ErrHelp
	}

	switch args[0] {
	case "issue":
		return runIssue(args[1:], stdout, stderr)
	case "revoke":
		return runRevoke(ctx, args[1:], stdout, stderr)
	case "-h", "--help", "help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// scopeList collects repeated --scope flags. A single flag may also carry
// several space or comma separated scopes.
type scopeList []string

func (s *scopeList) String() string {
	return strings.Join(*s, " ")
}

func (s *scopeList) Set(value string) error {
	for _, item := range strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == ' ' }) {
		*s = append(*s, item)
	}
	return nil
}

func runIssue(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("issue", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var scopes scopeList
	subject := fs.String("sub", "", "Token subject (required)")
	fs.Var(&scopes, "scope", "Scope to grant; repeat for several")
	ttl := fs.Duration("exp", auth.DefaultTokenTTL, "Token lifetime; negative values mint an expired token")
	secret := fs.String("secret", os.Getenv("MCP_JWT_SECRET_KEY"), "HMAC signing secret")
	secretFile := fs.String("secret-file", os.Getenv("MCP_JWT_SECRET_FILE"), "File holding the signing secret")
	algorithm := fs.String("algorithm", envOrDefault("MCP_JWT_ALGORITHM", "HS256"), "HMAC algorithm (HS256, HS384, HS512)")
	tokenID := fs.String("jti", "", "Token id; a random UUID when empty")
	dev := fs.Bool("dev", false, "Allow the built-in development secret")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*subject) == "" {
		return errors.New("--sub is required")
	}

	key, source, err := auth.ResolveVerificationKey(auth.KeyOptions{
		Algorithm:       *algorithm,
		Secret:          *secret,
		SecretFile:      *secretFile,
		AllowDevDefault: *dev,
	})
	if err != nil {
		return err
	}
	issuer, err := auth.NewIssuer(key)
	if err != nil {
		return err
	}

	raw, claims, err := issuer.Issue(auth.IssueRequest{
		Subject: *subject,
		Scopes:  scopes,
		TTL:     *ttl,
		ID:      *tokenID,
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, raw)
	fmt.Fprintf(stderr, "subject:    %s\n", claims.Subject)
	fmt.Fprintf(stderr, "scopes:     %s\n", claims.Scopes.String())
	fmt.Fprintf(stderr, "token id:   %s\n", claims.ID)
	fmt.Fprintf(stderr, "expires at: %s\n", claims.ExpiresAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(stderr, "key source: %s\n", source)
	fmt.Fprintln(stderr, "\nuse it with:")
	fmt.Fprintln(stderr, "  curl -H \"Authorization: Bearer <token>\" http://localhost:8080/mcp/v1/tools")
	fmt.Fprintln(stderr, "  MCP_TRANSPORT=stdio MCP_STDIO_TOKEN=<token> docs-mcp")
	return nil
}

func runRevoke(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("revoke", flag.ContinueOnError)
	fs.SetOutput(stderr)

	defaultTTL, err := config.RevocationTTL()
	if err != nil {
		return err
	}

	tokenID := fs.String("jti", "", "Token id to revoke (required)")
	ttl := fs.Duration("ttl", defaultTTL, "How long the revocation is kept; at least the token's remaining lifetime")
	redisURL := fs.String("redis-url", envOrDefault("MCP_REDIS_URL", "redis://localhost:6379/0"), "Redis URL of the revocation list")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*tokenID) == "" {
		return errors.New("--jti is required")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := auth.OpenRedis(ctx, *redisURL)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := auth.NewRedisRevocationList(client).Revoke(ctx, *tokenID, *ttl); err != nil {
		return fmt.Errorf("revoking %s: %w", *tokenID, err)
	}
	fmt.Fprintf(stdout, "revoked %s for %s\n", *tokenID, *ttl)
	return nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
