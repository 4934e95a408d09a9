package cmd

import (
	"context"
	"log"

	"github.com/aikara/image-vault/config"
	"github.com/aikara/image-vault/database"
	accountsrepo "github.com/aikara/image-vault/database/repo/accounts"
	authSvc "github.com/aikara/image-vault/internal/auth"
	"github.com/spf13/cobra"
)

var (
	createUserName     string
	createUserPassword string
)

// createUserCmd represents the create-user command
var createUserCmd = &cobra.Command{
	Use:   "create-user",
	Short: "Create a user account",
	Run: func(cmd *cobra.Command, args []string) {
		config.InitConfig()
		cfg := config.Get()

		db, err := database.NewDB(cfg)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		if err := database.Migrate(db); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}

		tokens, err := authSvc.NewTokenService(cfg.JWTSecret, cfg.JWTExpiry)
		if err != nil {
			log.Fatalf("Failed to initialize token service: %v", err)
		}

		svc := authSvc.NewService(accountsrepo.NewRepository(db), tokens)
		user, err := svc.Register(context.Background(), createUserName, createUserPassword)
		if err != nil {
			log.Fatalf("Failed to create user: %v", err)
		}
		log.Printf("Created user %s (id=%d)", user.Username, user.ID)
	},
}

func init() {
	createUserCmd.Flags().StringVar(&createUserName, "username", "", "username")
	createUserCmd.Flags().StringVar(&createUserPassword, "password", "", "password")
	createUserCmd.MarkFlagRequired("username")
	createUserCmd.MarkFlagRequired("password")
	rootCmd.AddCommand(createUserCmd)
}
