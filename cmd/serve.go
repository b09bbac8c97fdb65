package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-sentry/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long: `Start the Photo Sentry API server.
The server exposes asset registration, scan runs, match records and owner
alerts over HTTP. Scans run in the background and are tracked as jobs.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
}

// resolveServeHostPort resolves host and port from flags and environment variables.
func resolveServeHostPort(cmd *cobra.Command) (string, int) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	if envPort := os.Getenv("WEB_PORT"); envPort != "" {
		fmt.Sscanf(envPort, "%d", &port)
	}
	if envHost := os.Getenv("WEB_HOST"); envHost != "" {
		host = envHost
	}
	return host, port
}

func runServe(cmd *cobra.Command, args []string) error {
	rt, err := initRuntime(false)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := context.Background()

	scan, err := rt.buildScanner(ctx)
	if err != nil {
		return err
	}
	intake, index, err := rt.buildIntake(ctx)
	if err != nil {
		return err
	}

	host, port := resolveServeHostPort(cmd)
	server := web.NewServer(rt.cfg, host, port, web.Deps{
		Assets:   intake,
		Runner:   scan,
		Store:    rt.assets,
		Matches:  rt.matches,
		Alerts:   rt.alerts,
		Embedder: rt.embedder,
		Log:      rt.log,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		saveAssetIndex(index, rt.cfg.Database.AssetIndexPath)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Photo Sentry API on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
