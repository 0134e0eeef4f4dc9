package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/ozwald-dev/ozwald/internal/api"
	"github.com/ozwald-dev/ozwald/internal/catalog"
	"github.com/ozwald-dev/ozwald/internal/footprint"
	"github.com/ozwald-dev/ozwald/internal/provisioner"
	"github.com/ozwald-dev/ozwald/internal/runtime"
	"github.com/ozwald-dev/ozwald/internal/statestore"
	"github.com/ozwald-dev/ozwald/internal/vault"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the API server and reconciliation controller",
	Long:  `Start the HTTP API server together with the provisioner for the configured host`,
	RunE:  runServer,
}

func runServer(cmd *cobra.Command, args []string) error {
	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(cmd.Context()).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
	}
	defer client.Close()

	shim, err := runtime.NewDockerShim(cfg.Provisioner.DockerSocket)
	if err != nil {
		return fmt.Errorf("failed to connect to docker: %w", err)
	}
	defer shim.Close()

	blobs := vault.NewRedisBlobStore(client)
	materializer, err := vault.NewMaterializer(blobs, cfg.Provisioner.ArtifactDir)
	if err != nil {
		return err
	}

	cache := footprint.NewCache(cfg.Provisioner.FootprintData)
	logs := footprint.NewRedisLogStore(client, cfg.Provisioner.FootprintLogTTL)
	estimator := footprint.NewEstimator(shim, footprint.NewProcSampler(), cache, logs, cfg.Provisioner.FootprintRunTime)
	queue := footprint.NewRedisQueue(client)
	store := statestore.NewRedisStore(client)

	prov, err := provisioner.New(provisioner.Options{
		Config:    cfg,
		Catalog:   cat,
		Store:     store,
		Shim:      shim,
		Vault:     materializer,
		Cache:     cache,
		Estimator: estimator,
		Queue:     queue,
	})
	if err != nil {
		return err
	}

	server := api.New(api.Options{
		Config:      cfg,
		Catalog:     cat,
		Store:       store,
		Provisioner: prov,
		Queue:       queue,
		Logs:        logs,
		Blobs:       blobs,
	})
	prov.SetNotifier(server)

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)
	defer stop()

	if err := prov.Start(ctx); err != nil {
		return fmt.Errorf("failed to start provisioner: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		fmt.Println("\nShutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			cfg.Server.ShutdownTimeout,
		)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		prov.Stop(shutdownCtx)

		return nil

	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}
