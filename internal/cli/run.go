package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/attest/internal/model"
	"github.com/ppiankov/attest/internal/pipeline"
)

var (
	runAll     bool
	runTimeout time.Duration
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [job-id]",
	Short: "Verify the citations of a pending job",
	Long: `Run validates one job: every pending citation is located in its
source, scored, and (when a judge model is configured) checked for
relevance to its claim. Requirement and job statuses advance
accordingly.

Example:
  attest run 4e9c1b2a-...
  attest run --all
  attest run 4e9c1b2a-... --timeout 10m`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runAll, "all", false, "run every pending job")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 30*time.Minute, "overall run timeout")
}

func runRun(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && !runAll {
		return fmt.Errorf("specify a job id or --all")
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

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	var jobIDs []string
	if runAll {
		jobs, err := st.ListJobs(ctx, model.JobPending)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			fmt.Println("No pending jobs.")
			return nil
		}
		for _, j := range jobs {
			jobIDs = append(jobIDs, j.ID)
		}
	} else {
		jobIDs = args
	}

	failures := 0
	for _, id := range jobIDs {
		if verbose {
			fmt.Fprintf(os.Stderr, "Running job %s\n", id)
		}
		stats, err := p.RunJob(ctx, id)
		if err != nil {
			failures++
			fmt.Fprintf(os.Stderr, "job %s failed: %v\n", id, err)
			continue
		}
		printStats(id, stats)
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d jobs failed", failures, len(jobIDs))
	}
	return nil
}

func printStats(jobID string, stats *model.JobStats) {
	fmt.Printf("job %s\n", jobID)
	fmt.Printf("  requirements: %d total, %d accepted, %d rejected\n",
		stats.RequirementsTotal, stats.RequirementsAccepted, stats.RequirementsRejected)
	fmt.Printf("  citations:    %d verified, %d failed\n",
		stats.CitationsVerified, stats.CitationsFailed)
	if stats.InfraErrors > 0 {
		fmt.Printf("  infra errors: %d (see requirement last_error fields)\n", stats.InfraErrors)
	}
}
