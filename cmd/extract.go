package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/scrape-proxy/internal/api"
)

func newExtractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract <url>",
		Short: "Fetch and extract one URL, printing the JSON response",
		Long: `Runs a single URL through the same validation, fetch and extraction
pipeline as the server and prints the response envelope to stdout. The exit
code is non-zero when the request fails.`,
		Args: cobra.ExactArgs(1),
		RunE: runExtract,
	}
}

func runExtract(cmd *cobra.Command, args []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	svc := appInstance.Service()

	start := time.Now()
	out := svc.Handle(cmd.Context(), args[0])
	items, ttl := svc.CacheInfo()
	status, body := api.RenderOutcome(out, time.Since(start), items, ttl, svc.AllowedDomain())

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(body); err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	if !out.Success {
		return fmt.Errorf("extract %s: %s (status %d)", out.URL, out.Kind(), status)
	}
	return nil
}
