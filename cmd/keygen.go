package cmd

import (
	"encoding/base64"
	"fmt"
	"log"

	"github.com/aikara/image-vault/internal/vault"
	"github.com/spf13/cobra"
)

// keygenCmd represents the keygen command
var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a new credential vault master key",
	Long: `Generates a 32-byte master key and prints it base64-encoded.
Set it as VAULT_MASTER_KEY before first start. Losing the key makes
all stored provider credentials unrecoverable.`,
	Run: func(cmd *cobra.Command, args []string) {
		key, err := vault.GenerateKey()
		if err != nil {
			log.Fatalf("Failed to generate key: %v", err)
		}
		fmt.Println(base64.StdEncoding.EncodeToString(key))
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
}
