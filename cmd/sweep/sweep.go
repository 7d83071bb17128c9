// Package sweep implements the sweep command: out-of-band revalidation of
// records whose last origin check has aged out.
package sweep

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/sweepies/imgur-sans-bullshit/internal/app"
	"github.com/sweepies/imgur-sans-bullshit/internal/conf"
	"github.com/sweepies/imgur-sans-bullshit/internal/logging"
)

// Command creates the sweep command.
func Command(settings *conf.Settings) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Revalidate mirrored records against their origins",
		Long: "Walks every un-deleted record whose last origin check precedes the " +
			"cutoff and re-resolves it, tombstoning records the origin confirms gone.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, settings, olderThan)
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0,
		"revalidate records not checked within this duration (default: the staleness window)")
	return cmd
}

func run(cmd *cobra.Command, settings *conf.Settings, olderThan time.Duration) error {
	logger := logging.ForService("sweep")

	application, err := app.New(settings)
	if err != nil {
		return err
	}
	defer application.Close()

	cutoff := application.StaleCutoff(olderThan)
	logger.Info("starting revalidation sweep", "cutoff", cutoff)

	checked, err := application.Ingest.Sweep(cmd.Context(), cutoff)
	if err != nil {
		return err
	}

	logger.Info("sweep complete", "records_checked", checked)
	return nil
}
