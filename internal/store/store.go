package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ppiankov/attest/internal/model"
)

var (
	// ErrNotFound is returned when a requested row does not exist
	ErrNotFound = errors.New("not found")

	// ErrClaimConflict is returned when a citation CAS fails because
	// another worker holds it or it already reached a terminal state
	ErrClaimConflict = errors.New("citation claim conflict")
)

// Store wraps the SQLite database for all attest persistence.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database at the given path and
// initialises the schema.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000&_loc=UTC")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	// Connection pool settings for SQLite.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}

	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// HashContent returns the SHA-256 hex digest used as a source's
// content address.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// --- Source operations ---

// PutSource stores a source document, computing its content hash.
// Ingestion is idempotent: if content with the same hash already
// exists, the existing row is returned untouched regardless of the
// identifier or metadata supplied.
func (s *Store) PutSource(ctx context.Context, typ model.SourceType, identifier, name, content string, meta model.SourceMetadata) (*model.Source, error) {
	if content == "" {
		return nil, fmt.Errorf("put source %q: empty content", identifier)
	}

	hash := HashContent(content)

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshaling source metadata: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sources (type, identifier, name, content, content_hash, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(content_hash) DO NOTHING
	`, string(typ), identifier, name, content, hash, string(metaJSON))
	if err != nil {
		return nil, fmt.Errorf("inserting source: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		slog.Debug("source already ingested", "identifier", identifier, "hash", hash)
	}

	return s.GetSourceByHash(ctx, hash)
}

// GetSource retrieves a source by ID.
func (s *Store) GetSource(ctx context.Context, id int64) (*model.Source, error) {
	return s.getSource(ctx, "id = ?", id)
}

// GetSourceByHash retrieves a source by its content hash.
func (s *Store) GetSourceByHash(ctx context.Context, hash string) (*model.Source, error) {
	return s.getSource(ctx, "content_hash = ?", hash)
}

func (s *Store) getSource(ctx context.Context, where string, arg any) (*model.Source, error) {
	src := &model.Source{}
	var typ string
	var name, version, metaJSON sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, type, identifier, name, version, content, content_hash, metadata, created_at
		FROM sources WHERE `+where, arg,
	).Scan(&src.ID, &typ, &src.Identifier, &name, &version,
		&src.Content, &src.ContentHash, &metaJSON, &src.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("source %v: %w", arg, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	src.Type = model.SourceType(typ)
	src.Name = name.String
	src.Version = version.String
	if metaJSON.Valid && metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &src.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling source metadata: %w", err)
		}
	}
	return src, nil
}

// ListSources returns all sources ordered by creation time, newest first.
func (s *Store) ListSources(ctx context.Context) ([]model.Source, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, identifier, name, version, content, content_hash, metadata, created_at
		FROM sources ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Source
	for rows.Next() {
		var src model.Source
		var typ string
		var name, version, metaJSON sql.NullString
		if err := rows.Scan(&src.ID, &typ, &src.Identifier, &name, &version,
			&src.Content, &src.ContentHash, &metaJSON, &src.CreatedAt); err != nil {
			return nil, err
		}
		src.Type = model.SourceType(typ)
		src.Name = name.String
		src.Version = version.String
		if metaJSON.Valid && metaJSON.String != "" {
			if err := json.Unmarshal([]byte(metaJSON.String), &src.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshaling source metadata: %w", err)
			}
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// --- Job operations ---

// CreateJob inserts a new job. A UUID is assigned if the job has no ID.
func (s *Store) CreateJob(ctx context.Context, job *model.Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = model.JobPending
	}
	if job.CreatorStatus == "" {
		job.CreatorStatus = model.SubPending
	}
	if job.ValidatorStatus == "" {
		job.ValidatorStatus = model.SubPending
	}

	ctxJSON, err := marshalNullable(job.Context)
	if err != nil {
		return fmt.Errorf("marshaling job context: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, prompt, document_path, document_content, context, status, creator_status, validator_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, job.ID, job.Prompt, job.DocumentPath, job.DocumentContent, ctxJSON,
		string(job.Status), string(job.CreatorStatus), string(job.ValidatorStatus))
	if err != nil {
		return fmt.Errorf("inserting job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, id string) (*model.Job, error) {
	job := &model.Job{}
	var docPath, docContent, ctxJSON, errMsg, errDetails sql.NullString
	var status, creator, validator string
	var completedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, prompt, document_path, document_content, context,
		       status, creator_status, validator_status,
		       error_message, error_details, total_tokens_used, total_requests,
		       created_at, updated_at, completed_at
		FROM jobs WHERE id = ?
	`, id).Scan(&job.ID, &job.Prompt, &docPath, &docContent, &ctxJSON,
		&status, &creator, &validator,
		&errMsg, &errDetails, &job.TotalTokensUsed, &job.TotalRequests,
		&job.CreatedAt, &job.UpdatedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	job.DocumentPath = docPath.String
	job.DocumentContent = docContent.String
	job.Status = model.JobStatus(status)
	job.CreatorStatus = model.SubStatus(creator)
	job.ValidatorStatus = model.SubStatus(validator)
	job.ErrorMessage = errMsg.String
	if ctxJSON.Valid && ctxJSON.String != "" {
		if err := json.Unmarshal([]byte(ctxJSON.String), &job.Context); err != nil {
			return nil, fmt.Errorf("unmarshaling job context: %w", err)
		}
	}
	if errDetails.Valid && errDetails.String != "" {
		job.ErrorDetails = &model.JobStats{}
		if err := json.Unmarshal([]byte(errDetails.String), job.ErrorDetails); err != nil {
			return nil, fmt.Errorf("unmarshaling job error details: %w", err)
		}
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	return job, nil
}

// ListJobs returns jobs, optionally filtered by status. Newest first.
func (s *Store) ListJobs(ctx context.Context, status model.JobStatus) ([]model.Job, error) {
	query := "SELECT id FROM jobs"
	args := []any{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	jobs := make([]model.Job, 0, len(ids))
	for _, id := range ids {
		job, err := s.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, nil
}

// SetJobStatus updates the job's overall status. completed_at is set
// exactly when the status becomes terminal and cleared otherwise.
func (s *Store) SetJobStatus(ctx context.Context, id string, status model.JobStatus) error {
	var res sql.Result
	var err error
	if status == model.JobCompleted || status == model.JobFailed {
		res, err = s.db.ExecContext(ctx, `
			UPDATE jobs SET status = ?, completed_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?`, string(status), id)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE jobs SET status = ?, completed_at = NULL, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?`, string(status), id)
	}
	if err != nil {
		return err
	}
	return mustAffect(res, fmt.Sprintf("job %s", id))
}

// SetJobSubStatus updates the creator or validator sub-workflow status.
func (s *Store) SetJobSubStatus(ctx context.Context, id, column string, status model.SubStatus) error {
	if column != "creator_status" && column != "validator_status" {
		return fmt.Errorf("unknown sub-status column %q", column)
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE jobs SET "+column+" = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		string(status), id)
	if err != nil {
		return err
	}
	return mustAffect(res, fmt.Sprintf("job %s", id))
}

// SetJobError records the job-level error summary.
func (s *Store) SetJobError(ctx context.Context, id, message string, details *model.JobStats) error {
	detailsJSON, err := marshalNullable(details)
	if err != nil {
		return fmt.Errorf("marshaling job error details: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET error_message = ?, error_details = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, message, detailsJSON, id)
	if err != nil {
		return err
	}
	return mustAffect(res, fmt.Sprintf("job %s", id))
}

// AddJobUsage accumulates token and request counters from backend calls.
func (s *Store) AddJobUsage(ctx context.Context, id string, tokens, requests int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET total_tokens_used = total_tokens_used + ?,
		                total_requests = total_requests + ?,
		                updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, tokens, requests, id)
	if err != nil {
		return err
	}
	return mustAffect(res, fmt.Sprintf("job %s", id))
}

// --- Requirement operations ---

// CreateRequirement inserts a new requirement. A UUID is assigned if
// the requirement has no ID.
func (s *Store) CreateRequirement(ctx context.Context, r *model.Requirement) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = model.RequirementPending
	}

	locJSON, err := marshalNullable(r.SourceLocation)
	if err != nil {
		return fmt.Errorf("marshaling source location: %w", err)
	}
	tagsJSON, err := marshalNullable(r.Tags)
	if err != nil {
		return fmt.Errorf("marshaling tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO requirements (id, job_id, requirement_id, text, name, type, priority,
		                          source_document, source_location, gobd_relevant, gdpr_relevant,
		                          reasoning, research_notes, confidence, tags, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.JobID, r.RequirementID, r.Text, r.Name, r.Type, r.Priority,
		r.SourceDocument, locJSON, r.GoBDRelevant, r.GDPRRelevant,
		r.Reasoning, r.ResearchNotes, r.Confidence, tagsJSON, string(r.Status))
	if err != nil {
		return fmt.Errorf("inserting requirement: %w", err)
	}
	return nil
}

// GetRequirement retrieves a requirement by ID.
func (s *Store) GetRequirement(ctx context.Context, id string) (*model.Requirement, error) {
	r := &model.Requirement{}
	var reqID, name, typ, priority, srcDoc, locJSON, reasoning, notes, tagsJSON sql.NullString
	var valResult, rejReason, lastErr sql.NullString
	var status string
	var validatedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, job_id, requirement_id, text, name, type, priority,
		       source_document, source_location, gobd_relevant, gdpr_relevant,
		       reasoning, research_notes, confidence, tags,
		       status, validation_result, rejection_reason, retry_count, last_error,
		       created_at, updated_at, validated_at
		FROM requirements WHERE id = ?
	`, id).Scan(&r.ID, &r.JobID, &reqID, &r.Text, &name, &typ, &priority,
		&srcDoc, &locJSON, &r.GoBDRelevant, &r.GDPRRelevant,
		&reasoning, &notes, &r.Confidence, &tagsJSON,
		&status, &valResult, &rejReason, &r.RetryCount, &lastErr,
		&r.CreatedAt, &r.UpdatedAt, &validatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("requirement %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	r.RequirementID = reqID.String
	r.Name = name.String
	r.Type = typ.String
	r.Priority = priority.String
	r.SourceDocument = srcDoc.String
	r.Reasoning = reasoning.String
	r.ResearchNotes = notes.String
	r.Status = model.RequirementStatus(status)
	r.ValidationResult = valResult.String
	r.RejectionReason = rejReason.String
	r.LastError = lastErr.String
	if locJSON.Valid && locJSON.String != "" {
		r.SourceLocation = &model.Location{}
		if err := json.Unmarshal([]byte(locJSON.String), r.SourceLocation); err != nil {
			return nil, fmt.Errorf("unmarshaling source location: %w", err)
		}
	}
	if tagsJSON.Valid && tagsJSON.String != "" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &r.Tags); err != nil {
			return nil, fmt.Errorf("unmarshaling tags: %w", err)
		}
	}
	if validatedAt.Valid {
		r.ValidatedAt = &validatedAt.Time
	}
	return r, nil
}

// ListRequirements returns the requirements owned by a job, oldest first.
func (s *Store) ListRequirements(ctx context.Context, jobID string) ([]model.Requirement, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM requirements WHERE job_id = ? ORDER BY created_at, id", jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	reqs := make([]model.Requirement, 0, len(ids))
	for _, id := range ids {
		r, err := s.GetRequirement(ctx, id)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, *r)
	}
	return reqs, nil
}

// SetRequirementStatus records a requirement verdict. validated_at is
// set when the status becomes terminal.
func (s *Store) SetRequirementStatus(ctx context.Context, id string, status model.RequirementStatus, result, rejectionReason string) error {
	var res sql.Result
	var err error
	if status == model.RequirementAccepted || status == model.RequirementRejected {
		res, err = s.db.ExecContext(ctx, `
			UPDATE requirements SET status = ?, validation_result = ?, rejection_reason = ?,
			       validated_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?`, string(status), result, rejectionReason, id)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE requirements SET status = ?, validation_result = ?, rejection_reason = ?,
			       updated_at = CURRENT_TIMESTAMP
			WHERE id = ?`, string(status), result, rejectionReason, id)
	}
	if err != nil {
		return err
	}
	return mustAffect(res, fmt.Sprintf("requirement %s", id))
}

// RecordRequirementError increments the retry counter and stores the
// latest error. Returns the new retry count.
func (s *Store) RecordRequirementError(ctx context.Context, id, lastError string) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE requirements SET retry_count = retry_count + 1, last_error = ?,
		       updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, lastError, id)
	if err != nil {
		return 0, err
	}
	if err := mustAffect(res, fmt.Sprintf("requirement %s", id)); err != nil {
		return 0, err
	}

	var count int
	err = s.db.QueryRowContext(ctx,
		"SELECT retry_count FROM requirements WHERE id = ?", id).Scan(&count)
	return count, err
}

// --- Citation operations ---

// CreateCitation inserts a new citation in the pending state and
// returns its ID.
func (s *Store) CreateCitation(ctx context.Context, c *model.Citation) (int64, error) {
	locJSON, err := marshalNullable(c.Locator)
	if err != nil {
		return 0, fmt.Errorf("marshaling locator: %w", err)
	}
	if c.Status == "" {
		c.Status = model.CitationPending
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO citations (requirement_id, claim, verbatim_quote, quote_context, quote_language,
		                       confidence, extraction_method, source_id, locator,
		                       verification_status, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.RequirementID, c.Claim, c.VerbatimQuote, c.QuoteContext, c.QuoteLanguage,
		c.Confidence, c.ExtractionMethod, c.SourceID, locJSON,
		string(c.Status), c.CreatedBy)
	if err != nil {
		return 0, fmt.Errorf("inserting citation: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	c.ID = id
	return id, nil
}

// GetCitation retrieves a citation by ID.
func (s *Store) GetCitation(ctx context.Context, id int64) (*model.Citation, error) {
	c := &model.Citation{}
	var quoteCtx, quoteLang, relevance, extraction, createdBy sql.NullString
	var locJSON, matchedJSON, kind, notes sql.NullString
	var status string
	var claimedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, requirement_id, claim, verbatim_quote, quote_context, quote_language,
		       relevance_reasoning, confidence, extraction_method, source_id, locator,
		       verification_status, failure_kind, verification_notes, similarity_score,
		       matched_location, claimed_at, created_at, created_by
		FROM citations WHERE id = ?
	`, id).Scan(&c.ID, &c.RequirementID, &c.Claim, &c.VerbatimQuote, &quoteCtx, &quoteLang,
		&relevance, &c.Confidence, &extraction, &c.SourceID, &locJSON,
		&status, &kind, &notes, &c.SimilarityScore,
		&matchedJSON, &claimedAt, &c.CreatedAt, &createdBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("citation %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	c.QuoteContext = quoteCtx.String
	c.QuoteLanguage = quoteLang.String
	c.RelevanceReasoning = relevance.String
	c.ExtractionMethod = extraction.String
	c.CreatedBy = createdBy.String
	c.Status = model.VerificationStatus(status)
	c.FailureKind = model.FailureKind(kind.String)
	c.Notes = notes.String
	if locJSON.Valid && locJSON.String != "" {
		c.Locator = &model.Location{}
		if err := json.Unmarshal([]byte(locJSON.String), c.Locator); err != nil {
			return nil, fmt.Errorf("unmarshaling locator: %w", err)
		}
	}
	if matchedJSON.Valid && matchedJSON.String != "" {
		c.MatchedLocation = &model.Location{}
		if err := json.Unmarshal([]byte(matchedJSON.String), c.MatchedLocation); err != nil {
			return nil, fmt.Errorf("unmarshaling matched location: %w", err)
		}
	}
	if claimedAt.Valid {
		c.ClaimedAt = &claimedAt.Time
	}
	return c, nil
}

// ListCitations returns the citations attached to a requirement,
// oldest first.
func (s *Store) ListCitations(ctx context.Context, requirementID string) ([]model.Citation, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM citations WHERE requirement_id = ? ORDER BY id", requirementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	cits := make([]model.Citation, 0, len(ids))
	for _, id := range ids {
		c, err := s.GetCitation(ctx, id)
		if err != nil {
			return nil, err
		}
		cits = append(cits, *c)
	}
	return cits, nil
}

// ClaimCitation transitions a pending citation to claimed so exactly
// one worker owns it. Returns ErrClaimConflict if the citation is not
// pending.
func (s *Store) ClaimCitation(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE citations SET verification_status = ?, claimed_at = CURRENT_TIMESTAMP
		WHERE id = ? AND verification_status = ?
	`, string(model.CitationClaimed), id, string(model.CitationPending))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("citation %d: %w", id, ErrClaimConflict)
	}
	return nil
}

// ReleaseExpiredClaims re-enqueues citations whose lease expired,
// so a crashed worker cannot leave rows stuck in the claimed state.
// Returns the number of citations released.
func (s *Store) ReleaseExpiredClaims(ctx context.Context, lease time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-lease)
	res, err := s.db.ExecContext(ctx, `
		UPDATE citations SET verification_status = ?, claimed_at = NULL
		WHERE verification_status = ? AND claimed_at IS NOT NULL AND claimed_at < ?
	`, string(model.CitationPending), string(model.CitationClaimed), cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if n > 0 {
		slog.Warn("released expired citation claims", "count", n, "lease", lease)
	}
	return n, err
}

// RecordVerification moves a claimed citation to its terminal verdict.
// The CAS on the claimed state means a worker whose lease was revoked
// cannot overwrite a verdict written by the new owner.
func (s *Store) RecordVerification(ctx context.Context, id int64, status model.VerificationStatus, kind model.FailureKind, notes string, score float64, matched *model.Location, relevanceReasoning string) error {
	if status != model.CitationVerified && status != model.CitationFailed {
		return fmt.Errorf("citation %d: %q is not a terminal status", id, status)
	}

	matchedJSON, err := marshalNullable(matched)
	if err != nil {
		return fmt.Errorf("marshaling matched location: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE citations SET verification_status = ?, failure_kind = ?, verification_notes = ?,
		       similarity_score = ?, matched_location = ?, relevance_reasoning = ?, claimed_at = NULL
		WHERE id = ? AND verification_status = ?
	`, string(status), string(kind), notes, score, matchedJSON, relevanceReasoning,
		id, string(model.CitationClaimed))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("citation %d: %w", id, ErrClaimConflict)
	}
	return nil
}

// ResetCitation returns a citation to pending for an explicit
// re-verification request. Only infra-error failures qualify; content
// judgments stay terminal absent new evidence.
func (s *Store) ResetCitation(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE citations SET verification_status = ?, failure_kind = '',
		       verification_notes = '', similarity_score = 0, matched_location = NULL, claimed_at = NULL
		WHERE id = ? AND verification_status = ? AND failure_kind = ?
	`, string(model.CitationPending), id,
		string(model.CitationFailed), string(model.FailureInfraError))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("citation %d is not a retryable failure: %w", id, ErrClaimConflict)
	}
	return nil
}

// --- helpers ---

// marshalNullable marshals v to JSON, returning nil (SQL NULL) for
// nil pointers, nil maps and nil slices.
func marshalNullable(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case *model.Location:
		if x == nil {
			return nil, nil
		}
	case *model.JobStats:
		if x == nil {
			return nil, nil
		}
	case map[string]any:
		if x == nil {
			return nil, nil
		}
	case []string:
		if x == nil {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func mustAffect(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}
