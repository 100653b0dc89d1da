package main

import (
	"fmt"
	"os"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/raster"
	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file.png|file.jpg>",
	Short: "Store an image as an upload and print its id",
	Long: `Decodes a PNG or JPEG into an array in the uploads directory, the way the
upload service would. With --session the upload also becomes that session's image.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, _ := cmd.Flags().GetString("session")

		a, err := appFor(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		arr, format, err := raster.DecodeImage(f)
		if err != nil {
			return fmt.Errorf("failed to decode %s: %w", args[0], err)
		}

		id := domain.NewVersionID()
		if err := a.engine.Uploads().Store(cmd.Context(), id, arr); err != nil {
			return fmt.Errorf("failed to store upload: %w", err)
		}
		a.logger.Info("upload stored", "version_id", id, "format", format)

		if sessionID != "" {
			vid, err := a.engine.Open(cmd.Context(), sessionID, id)
			if err != nil {
				return fmt.Errorf("failed to open upload in session %s: %w", sessionID, err)
			}
			a.logger.Info("image set", "session_id", sessionID, "version_id", vid)
		}

		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().String("uploads", "", "Directory to store the upload in")
	ingestCmd.Flags().String("session", "", "Also make the upload the image of this session")
}
