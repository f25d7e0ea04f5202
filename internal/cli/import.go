package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/attest/internal/model"
)

// importFile is the extractor handoff format: one job with its
// requirements and their citations, as produced by the upstream
// extraction run.
type importFile struct {
	Prompt       string              `json:"prompt"`
	DocumentPath string              `json:"document_path,omitempty"`
	Context      map[string]any      `json:"context,omitempty"`
	Requirements []importRequirement `json:"requirements"`
}

type importRequirement struct {
	RequirementID  string           `json:"requirement_id,omitempty"`
	Text           string           `json:"text"`
	Name           string           `json:"name,omitempty"`
	Type           string           `json:"type,omitempty"`
	Priority       string           `json:"priority,omitempty"`
	SourceDocument string           `json:"source_document,omitempty"`
	SourceLocation *model.Location  `json:"source_location,omitempty"`
	GoBDRelevant   bool             `json:"gobd_relevant"`
	GDPRRelevant   bool             `json:"gdpr_relevant"`
	Reasoning      string           `json:"reasoning,omitempty"`
	Confidence     float64          `json:"confidence"`
	Tags           []string         `json:"tags,omitempty"`
	Citations      []importCitation `json:"citations"`
}

type importCitation struct {
	Claim            string          `json:"claim"`
	VerbatimQuote    string          `json:"verbatim_quote"`
	QuoteContext     string          `json:"quote_context,omitempty"`
	QuoteLanguage    string          `json:"quote_language,omitempty"`
	SourceID         int64           `json:"source_id"`
	SourceHash       string          `json:"source_hash,omitempty"` // Alternative to source_id
	Locator          *model.Location `json:"locator,omitempty"`
	Confidence       float64         `json:"confidence"`
	ExtractionMethod string          `json:"extraction_method,omitempty"`
	CreatedBy        string          `json:"created_by,omitempty"`
}

// importCmd represents the import command
var importCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Import an extraction run as a new job",
	Long: `Import reads extractor output (a job with requirements and their
citations) and creates the corresponding pending records. Sources must
already be ingested; citations may reference them by id or by content
hash.

Example:
  attest import extraction.json`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}

	var in importFile
	if err := json.Unmarshal(raw, &in); err != nil {
		return fmt.Errorf("parse %s: %w", args[0], err)
	}
	if len(in.Requirements) == 0 {
		return fmt.Errorf("%s contains no requirements", args[0])
	}

	ctx := context.Background()
	job := &model.Job{
		Prompt:       in.Prompt,
		DocumentPath: in.DocumentPath,
		Context:      in.Context,
		// Extraction already happened upstream.
		CreatorStatus: model.SubCompleted,
	}
	if err := st.CreateJob(ctx, job); err != nil {
		return err
	}

	citations := 0
	for _, ir := range in.Requirements {
		req := &model.Requirement{
			JobID:          job.ID,
			RequirementID:  ir.RequirementID,
			Text:           ir.Text,
			Name:           ir.Name,
			Type:           ir.Type,
			Priority:       ir.Priority,
			SourceDocument: ir.SourceDocument,
			SourceLocation: ir.SourceLocation,
			GoBDRelevant:   ir.GoBDRelevant,
			GDPRRelevant:   ir.GDPRRelevant,
			Reasoning:      ir.Reasoning,
			Confidence:     ir.Confidence,
			Tags:           ir.Tags,
		}
		if err := st.CreateRequirement(ctx, req); err != nil {
			return err
		}

		for _, ic := range ir.Citations {
			sourceID := ic.SourceID
			if sourceID == 0 && ic.SourceHash != "" {
				src, err := st.GetSourceByHash(ctx, ic.SourceHash)
				if err != nil {
					return fmt.Errorf("citation references unknown source hash %s: %w", ic.SourceHash, err)
				}
				sourceID = src.ID
			}

			c := &model.Citation{
				RequirementID:    req.ID,
				Claim:            ic.Claim,
				VerbatimQuote:    ic.VerbatimQuote,
				QuoteContext:     ic.QuoteContext,
				QuoteLanguage:    ic.QuoteLanguage,
				SourceID:         sourceID,
				Locator:          ic.Locator,
				Confidence:       ic.Confidence,
				ExtractionMethod: ic.ExtractionMethod,
				CreatedBy:        ic.CreatedBy,
			}
			if _, err := st.CreateCitation(ctx, c); err != nil {
				return err
			}
			citations++
		}
	}

	fmt.Printf("job %s  %d requirements  %d citations\n", job.ID, len(in.Requirements), citations)
	fmt.Printf("\nTo validate:\n  attest run %s\n", job.ID)
	return nil
}
