// Package resolve implements the resolve command: one-shot ingestion of a
// URL or id from the command line.
package resolve

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/sweepies/imgur-sans-bullshit/internal/app"
	"github.com/sweepies/imgur-sans-bullshit/internal/conf"
	"github.com/sweepies/imgur-sans-bullshit/internal/errors"
)

// Command creates the resolve command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <url-or-id>",
		Short: "Resolve and mirror a single URL or id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, settings, args[0])
		},
	}
}

func run(cmd *cobra.Command, settings *conf.Settings, input string) error {
	application, err := app.New(settings)
	if err != nil {
		return err
	}
	defer application.Close()

	parsed := application.Registry.ResolveInput(input)
	if parsed == nil {
		return errors.Newf("unsupported URL or ID format: %q", input).
			Component("hosts").
			Category(errors.CategoryValidation).
			Build()
	}

	res, err := application.Ingest.Resolve(cmd.Context(), parsed)
	if err != nil {
		return err
	}

	out := map[string]any{
		"provider":    parsed.ProviderID,
		"resource_id": parsed.ResourceID,
		"public_id":   parsed.PublicID,
		"is_gallery":  res.IsGallery,
		"degraded":    res.Degraded,
	}
	if res.IsGallery {
		out["gallery_id"] = res.Gallery.ID
		memberIDs := make([]string, 0, len(res.Members))
		for _, m := range res.Members {
			memberIDs = append(memberIDs, m.ID)
		}
		out["image_ids"] = memberIDs
	} else {
		out["image_id"] = res.Image.ID
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
