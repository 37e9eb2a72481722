// Package main provides the Katello lifecycle server entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/katello/lifecycle/pkg/authz"
	"github.com/katello/lifecycle/pkg/config"
	"github.com/katello/lifecycle/pkg/database"
	"github.com/katello/lifecycle/pkg/logging"
	"github.com/katello/lifecycle/pkg/server"
)

func main() {
	// Initialize glog for backwards compatibility
	_ = flag.Set("logtostderr", "true")

	cmd := &cobra.Command{
		Use:          "katello-lifecycle-server",
		Short:        "Serve content view environment bindings",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cmd)
		},
	}
	config.RegisterFlags(cmd.Flags())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		glog.Fatalf("lifecycle server failed: %v", err)
	}
}

func run(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}

	logs, err := logging.New(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer logs.Close()
	slog.SetDefault(logs.Root())
	logs.InstallKlog()
	logger := logs.Logger(logging.AppLogger)

	logger.Info("starting lifecycle server",
		"listen", cfg.Listen,
		"database", cfg.Database.Type,
		"tenancy", cfg.Tenancy.Mode,
		"authz", cfg.Authz.Mode,
		"candlepin", cfg.Candlepin.Enabled,
	)

	db, err := database.Open(&cfg.Database, logs.GormLogger())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	opts := []server.Option{server.WithLogger(logger)}
	if cfg.Authz.Mode == authz.AuthzModeSAR || cfg.HA.LeaderElectionEnabled {
		clientset, err := kubeClient()
		if err != nil {
			return err
		}
		opts = append(opts, server.WithKubernetesClient(clientset))
	}

	srv, err := server.New(ctx, cfg, db, opts...)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}
	return srv.Run(ctx)
}

// kubeClient builds an in-cluster clientset. The server must run in a pod
// whose ServiceAccount may create SubjectAccessReviews and manage Leases.
func kubeClient() (kubernetes.Interface, error) {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create in-cluster K8s config (is the server running in a pod?): %w", err)
	}
	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create K8s clientset: %w", err)
	}
	return clientset, nil
}
