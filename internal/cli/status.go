package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/attest/internal/model"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Show job status",
	Long: `Without arguments, list all jobs with their lifecycle states.
With a job id, show the job's requirements and citation verdicts.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()

	if len(args) == 0 {
		jobs, err := st.ListJobs(ctx, "")
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			fmt.Println("No jobs.")
			return nil
		}
		for _, j := range jobs {
			line := fmt.Sprintf("%s  %-9s  creator=%-9s validator=%-9s  %s",
				j.ID, j.Status, j.CreatorStatus, j.ValidatorStatus, j.Prompt)
			if j.ErrorMessage != "" {
				line += fmt.Sprintf("  [%s]", j.ErrorMessage)
			}
			fmt.Println(line)
		}
		return nil
	}

	job, err := st.GetJob(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("job %s  %s\n", job.ID, job.Status)
	fmt.Printf("  prompt:    %s\n", job.Prompt)
	fmt.Printf("  creator:   %s\n", job.CreatorStatus)
	fmt.Printf("  validator: %s\n", job.ValidatorStatus)
	fmt.Printf("  usage:     %d tokens, %d requests\n", job.TotalTokensUsed, job.TotalRequests)
	if job.ErrorMessage != "" {
		fmt.Printf("  error:     %s\n", job.ErrorMessage)
	}
	if job.CompletedAt != nil {
		fmt.Printf("  completed: %s\n", job.CompletedAt.Format("2006-01-02 15:04:05"))
	}

	reqs, err := st.ListRequirements(ctx, job.ID)
	if err != nil {
		return err
	}

	for _, r := range reqs {
		fmt.Printf("\n  requirement %s  %-8s  %s\n", r.ID, r.Status, firstLine(r.Text, 80))
		if r.RetryCount > 0 {
			fmt.Printf("    retries: %d  last error: %s\n", r.RetryCount, r.LastError)
		}
		if r.RejectionReason != "" {
			fmt.Printf("    rejected: %s\n", r.RejectionReason)
		}

		cits, err := st.ListCitations(ctx, r.ID)
		if err != nil {
			return err
		}
		for _, c := range cits {
			fmt.Printf("    citation %-4d %-9s %s score=%.2f\n",
				c.ID, c.Status, padKind(c.FailureKind), c.SimilarityScore)
			if verbose && c.Notes != "" {
				fmt.Printf("      %s\n", c.Notes)
			}
		}
	}
	return nil
}

func padKind(k model.FailureKind) string {
	if k == model.FailureNone {
		return "                  "
	}
	return fmt.Sprintf("%-18s", k)
}

func firstLine(s string, max int) string {
	for i, r := range s {
		if r == '\n' {
			s = s[:i]
			break
		}
	}
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
