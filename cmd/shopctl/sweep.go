package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newSweepCmd(withBackend func(func(*cobra.Command, *backend) error) func(*cobra.Command, []string) error) *cobra.Command {
	var maxAge time.Duration
	cmd := &cobra.Command{
		Use:   "sweep-uploads",
		Short: "Delete temporary uploads never attached to an order",
		Args:  cobra.NoArgs,
		RunE: withBackend(func(cmd *cobra.Command, b *backend) error {
			age := maxAge
			if age <= 0 {
				age = b.Config.Uploads.TempMaxAge
			}
			removed, err := b.Attachments.SweepStaleUploads(cmd.Context(), age)
			if err != nil {
				return fmt.Errorf("sweep uploads: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d stale uploads older than %s\n", removed, age)
			return nil
		}),
	}
	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "minimum age of uploads to delete (defaults to API_UPLOADS_TEMP_MAX_AGE)")
	return cmd
}
