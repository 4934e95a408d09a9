package cmd

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aikara/image-vault/api/core"
	"github.com/aikara/image-vault/cache"
	"github.com/aikara/image-vault/config"
	"github.com/aikara/image-vault/database"
	accountsrepo "github.com/aikara/image-vault/database/repo/accounts"
	imagesrepo "github.com/aikara/image-vault/database/repo/images"
	providersrepo "github.com/aikara/image-vault/database/repo/providers"
	authSvc "github.com/aikara/image-vault/internal/auth"
	"github.com/aikara/image-vault/internal/optimize"
	imageSvc "github.com/aikara/image-vault/internal/services/image"
	"github.com/aikara/image-vault/internal/services/provider"
	"github.com/aikara/image-vault/internal/vault"
	"github.com/spf13/cobra"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start API server",
	Run: func(cmd *cobra.Command, args []string) {
		RunServer()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func RunServer() {
	config.InitConfig()
	cfg := config.Get()

	if err := os.MkdirAll(cfg.DataPath, os.ModePerm); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	db, err := database.NewDB(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	masterKey, err := vault.LoadMasterKey(cfg.DataPath)
	if err != nil {
		log.Fatalf("Failed to load master key: %v", err)
	}
	credentialVault, err := vault.New(masterKey)
	if err != nil {
		log.Fatalf("Failed to initialize credential vault: %v", err)
	}

	appCache, err := cache.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize cache: %v", err)
	}

	tokens, err := authSvc.NewTokenService(cfg.JWTSecret, cfg.JWTExpiry)
	if err != nil {
		log.Fatalf("Failed to initialize token service: %v", err)
	}

	providersRepo := providersrepo.NewRepository(db)
	imagesRepo := imagesrepo.NewRepository(db)
	accountsRepo := accountsrepo.NewRepository(db)

	registry := provider.NewRegistry(
		providersRepo, imagesRepo, credentialVault,
		cfg.StorageOpTimeout, cfg.DeletePolicyValue(),
	)
	pipeline := optimize.New(cfg.OptimizeMaxDimension, cfg.OptimizeJPEGQuality)
	images := imageSvc.NewService(
		imagesRepo, registry, pipeline, appCache,
		cfg.MaxUploadBytes(), cfg.UploadMaxBatchFiles,
		time.Duration(cfg.CacheTTL)*time.Second,
	)
	auth := authSvc.NewService(accountsRepo, tokens)

	deps := &core.ServerDependencies{
		DB:       db,
		Cache:    appCache,
		Registry: registry,
		Images:   images,
		Auth:     auth,
		Tokens:   tokens,
	}

	server, cleanup := core.StartServer(deps)
	go func() {
		log.Printf("Server started on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if cleanup != nil {
		cleanup()
	}
	if err := appCache.Close(); err != nil {
		log.Printf("Error closing cache: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited successfully")
}
