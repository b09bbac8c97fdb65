package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "photo-sentry",
	Short: "Detect unauthorized reuse of your photos across the web",
	Long: `Photo Sentry registers photos for monitoring and scans the web for
unauthorized reuse. Scans combine person search, visual web detection and
exact-match image search, verify candidates against the protected photo
and alert the owner about confident findings.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
