package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tulumbak/courierhook/internal/vault"
)

var keygenLength int

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a random vault master key",
	Long: `Generate a random key suitable for COURIERHOOK_VAULT_MASTER_KEY.

The key is printed to stdout so it can be piped into secret tooling.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := vault.GenerateKey(keygenLength)
		if err != nil {
			return err
		}
		fmt.Println(key)
		return nil
	},
}

func init() {
	keygenCmd.Flags().IntVar(&keygenLength, "bytes", 32, "key length in random bytes before hex encoding")
	rootCmd.AddCommand(keygenCmd)
}
