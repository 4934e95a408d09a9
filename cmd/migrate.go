package cmd

import (
	"log"

	"github.com/aikara/image-vault/config"
	"github.com/aikara/image-vault/database"
	"github.com/spf13/cobra"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations and exit",
	Run: func(cmd *cobra.Command, args []string) {
		config.InitConfig()

		db, err := database.NewDB(config.Get())
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		if err := database.Migrate(db); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
		log.Println("Database migration completed")
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
