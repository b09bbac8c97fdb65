package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-sentry/internal/scanner"
	"github.com/kozaktomas/photo-sentry/internal/store"
)

var scanAllCmd = &cobra.Command{
	Use:   "scan-all",
	Short: "Scan every active protected asset",
	Long: `Scan every active protected asset for reuse.

Assets are scanned concurrently with a bounded worker count to stay inside
the discovery engines' rate limits. Paused assets are skipped.

Examples:
  photo-sentry scan-all
  photo-sentry scan-all --concurrency 4 --limit 10`,
	RunE: runScanAll,
}

func init() {
	rootCmd.AddCommand(scanAllCmd)

	scanAllCmd.Flags().Int("concurrency", 2, "Number of assets scanned in parallel")
	scanAllCmd.Flags().Int("limit", 0, "Limit number of assets to scan (0 = no limit)")
	scanAllCmd.Flags().Bool("skip-cache", false, "Bypass the discovery cache")
}

func runScanAll(cmd *cobra.Command, args []string) error {
	concurrency := mustGetInt(cmd, "concurrency")
	limit := mustGetInt(cmd, "limit")
	skipCache := mustGetBool(cmd, "skip-cache")

	if concurrency < 1 {
		concurrency = 1
	}

	rt, err := initRuntime(false)
	if err != nil {
		return err
	}
	defer rt.Close()

	// Set up context with signal handling for graceful cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal...")
		cancel()
	}()

	scan, err := rt.buildScanner(ctx)
	if err != nil {
		return err
	}

	assetList, err := rt.assets.ListAssets(ctx, store.AssetStatusActive)
	if err != nil {
		return fmt.Errorf("failed to list assets: %w", err)
	}
	if limit > 0 && len(assetList) > limit {
		assetList = assetList[:limit]
	}
	if len(assetList) == 0 {
		fmt.Println("No active assets to scan.")
		return nil
	}

	fmt.Printf("Scanning %d assets\n\n", len(assetList))

	bar := progressbar.NewOptions(len(assetList),
		progressbar.OptionSetDescription("Scanning assets"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("assets"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	var scanned, failed, recordsCreated, recordsUpdated, alertsSent int
	var failures []string
	var mu sync.Mutex

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for _, asset := range assetList {
		wg.Add(1)
		go func(a store.ProtectedAsset) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if ctx.Err() != nil {
				bar.Add(1)
				return
			}

			result, err := scan.Scan(ctx, &a, scanner.ScanOptions{SkipCache: skipCache})
			mu.Lock()
			if err != nil {
				failed++
				failures = append(failures, fmt.Sprintf("%s: %v", a.ID, err))
			} else {
				scanned++
				recordsCreated += result.RecordsCreated
				recordsUpdated += result.RecordsUpdated
				alertsSent += result.AlertsSent
			}
			mu.Unlock()
			bar.Add(1)
		}(asset)
	}

	wg.Wait()
	fmt.Println()

	fmt.Printf("\nScanned: %d assets\n", scanned)
	if failed > 0 {
		fmt.Printf("Failed: %d\n", failed)
	}
	fmt.Printf("Records: %d created, %d updated\n", recordsCreated, recordsUpdated)
	fmt.Printf("Alerts sent: %d\n", alertsSent)
	if total, err := rt.matches.CountMatches(context.Background()); err == nil {
		fmt.Printf("Match records total: %d\n", total)
	}

	if len(failures) > 0 {
		fmt.Printf("\nErrors:\n")
		for _, failure := range failures {
			fmt.Printf("  - %s\n", failure)
		}
	}

	if ctx.Err() != nil {
		fmt.Println("\nInterrupted before all assets were scanned.")
	}
	return nil
}
