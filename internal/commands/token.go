package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ozwald-dev/ozwald/internal/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token [operator]",
	Short: "Generate an API authentication token",
	Long: `Generate a JWT bearer token for API authentication.

The token is signed with security.jwt_secret from the configuration and
expires after security.jwt_expiration.

Examples:
  ozwald token alice
  ozwald token deploy-bot`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerateToken,
}

func runGenerateToken(cmd *cobra.Command, args []string) error {
	operator := args[0]

	if cfg.Security.JWTSecret == "" {
		return fmt.Errorf("security.jwt_secret is not configured")
	}

	token, err := auth.NewJWTService(cfg).GenerateToken(operator)
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}

	fmt.Printf("Token for %s (expires in %s):\n\n%s\n", operator, cfg.Security.JWTExpiration, token)
	return nil
}
