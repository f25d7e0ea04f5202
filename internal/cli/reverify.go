package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/attest/internal/pipeline"
)

// reverifyCmd represents the reverify command
var reverifyCmd = &cobra.Command{
	Use:   "reverify <citation-id>",
	Short: "Re-verify a citation that failed on an infrastructure error",
	Long: `Reverify resets a citation whose verification failed operationally
(backend unavailable, timeout) and runs it again. Citations that failed
on content or relevance grounds are final and cannot be re-verified.

Example:
  attest reverify 42`,
	Args: cobra.ExactArgs(1),
	RunE: runReverify,
}

func init() {
	rootCmd.AddCommand(reverifyCmd)
}

func runReverify(cmd *cobra.Command, args []string) error {
	citationID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid citation id %q", args[0])
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	p, err := pipeline.New(cfg, st)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	outcome, err := p.ReverifyCitation(ctx, citationID)
	if err != nil {
		return err
	}

	fmt.Printf("citation %d  %s  score=%.2f\n", citationID, outcome.Kind, outcome.Score)
	if outcome.Notes != "" {
		fmt.Printf("  %s\n", outcome.Notes)
	}
	return nil
}
