package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-sentry/internal/assets"
)

var protectCmd = &cobra.Command{
	Use:   "protect <image-file>",
	Short: "Register a photo for reuse monitoring",
	Long: `Register a photo as a protected asset.
The photo is fingerprinted and embedded so scans can recognize both copies
of the image and new photos of the person. Near-duplicates of already
protected photos are reported but never rejected.

Examples:
  photo-sentry protect portrait.jpg --owner owner-1
  photo-sentry protect portrait.jpg --owner owner-1 --name "Press portrait"
  photo-sentry protect --owner owner-1 --name "Press portrait" --url https://example.com/portrait.jpg`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProtect,
}

func init() {
	rootCmd.AddCommand(protectCmd)

	protectCmd.Flags().String("owner", "", "Owner the asset belongs to (required)")
	protectCmd.Flags().String("name", "", "Asset name (defaults to the file name)")
	protectCmd.Flags().String("url", "", "Fetch the photo from a URL instead of a file")
}

func runProtect(cmd *cobra.Command, args []string) error {
	owner := mustGetString(cmd, "owner")
	name := mustGetString(cmd, "name")
	imageURL := mustGetString(cmd, "url")

	if owner == "" {
		return errors.New("--owner flag is required")
	}
	if len(args) == 0 && imageURL == "" {
		return errors.New("requires an image file argument or the --url flag")
	}

	var imageData []byte
	if len(args) == 1 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read image file: %w", err)
		}
		imageData = data
		if name == "" {
			base := filepath.Base(args[0])
			name = strings.TrimSuffix(base, filepath.Ext(base))
		}
	}
	if name == "" {
		return errors.New("--name flag is required with --url")
	}

	rt, err := initRuntime(false)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := context.Background()

	service, index, err := rt.buildIntake(ctx)
	if err != nil {
		return err
	}

	result, err := service.Protect(ctx, &assets.ProtectRequest{
		OwnerID:   owner,
		Name:      name,
		ImageURL:  imageURL,
		ImageData: imageData,
	})
	if err != nil {
		return fmt.Errorf("failed to protect photo: %w", err)
	}

	fmt.Printf("\nProtected asset: %s\n", result.Asset.Name)
	fmt.Printf("ID: %s\n", result.Asset.ID)
	if result.FaceFound {
		fmt.Println("Face found: yes (person discovery available)")
	} else {
		fmt.Println("Face found: no (scans rely on visual similarity only)")
	}

	for _, warning := range result.Warnings {
		fmt.Printf("Warning: %s\n", warning)
	}

	if len(result.NearDuplicates) > 0 {
		fmt.Printf("\nNear-duplicates of already protected photos:\n")
		for _, dup := range result.NearDuplicates {
			fmt.Printf("  %s (distance %.3f)\n", dup.AssetID, dup.Distance)
		}
	}

	saveAssetIndex(index, rt.cfg.Database.AssetIndexPath)
	return nil
}
