package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/attest/internal/ingest"
)

var ingestURL string

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Ingest local files as citation sources",
	Long: `Ingest reads local files into the content-addressed source store.

Plain text (including PDF extractions with "--- Page N ---" markers) is
stored verbatim; HTML files are reduced to their visible text first.
Ingestion is idempotent: re-ingesting identical content returns the
existing source instead of creating a duplicate.

Example:
  attest ingest GoBD_extracted.txt
  attest ingest saved_page.html --url https://example.org/article`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().StringVar(&ingestURL, "url", "", "origin URL (marks the source as a website)")
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if ingestURL != "" && len(args) > 1 {
		return fmt.Errorf("--url applies to a single file, got %d", len(args))
	}

	ing := ingest.New(st)
	ctx := context.Background()

	for _, path := range args {
		src, err := ing.IngestFile(ctx, path, ingestURL)
		if err != nil {
			return fmt.Errorf("ingest %s: %w", path, err)
		}
		fmt.Printf("source %d  %s  %s\n", src.ID, src.ContentHash[:12], src.Identifier)
	}
	return nil
}
