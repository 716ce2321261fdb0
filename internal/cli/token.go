package cli

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tulumbak/courierhook/internal/auth"
	"github.com/tulumbak/courierhook/internal/config"
)

var (
	tokenSubject string
	tokenName    string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an operator token for the admin endpoints",
	Long: `Mint a bearer token for the administrative configuration endpoints.

The token is signed with admin.jwt_secret from the loaded configuration and
printed to stdout.`,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "operator identity (required)")
	tokenCmd.Flags().StringVar(&tokenName, "name", "", "human-readable operator name")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("subject")

	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(config.LoadOptions{ConfigFile: cfgFile})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if cfg.Admin.JWTSecret == "" {
		log.Fatal().Msg("admin.jwt_secret is not configured")
	}

	token, err := auth.NewJWTService(cfg.Admin).GenerateToken(tokenSubject, tokenName, tokenTTL)
	if err != nil {
		return fmt.Errorf("minting token: %w", err)
	}

	fmt.Println(token)
	return nil
}
