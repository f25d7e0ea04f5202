package store

// schemaSQL is the DDL for all tables.
//
// Design notes relative to the legacy dump this schema replaces:
// sources carries a UNIQUE constraint on content_hash so re-ingestion
// is idempotent, citations are normalized under requirements (no
// embedded JSON array duplicate), and failed citations carry a
// failure_kind discriminator so operational errors are never conflated
// with content judgments.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS jobs (
    id TEXT PRIMARY KEY,
    prompt TEXT NOT NULL,
    document_path TEXT,
    document_content TEXT,
    context JSON,
    status TEXT NOT NULL DEFAULT 'pending',
    creator_status TEXT NOT NULL DEFAULT 'pending',
    validator_status TEXT NOT NULL DEFAULT 'pending',
    error_message TEXT,
    error_details JSON,
    total_tokens_used INTEGER NOT NULL DEFAULT 0,
    total_requests INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    completed_at DATETIME
);

CREATE TABLE IF NOT EXISTS requirements (
    id TEXT PRIMARY KEY,
    job_id TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
    requirement_id TEXT,
    text TEXT NOT NULL,
    name TEXT,
    type TEXT,
    priority TEXT,
    source_document TEXT,
    source_location JSON,
    gobd_relevant INTEGER NOT NULL DEFAULT 0,
    gdpr_relevant INTEGER NOT NULL DEFAULT 0,
    reasoning TEXT,
    research_notes TEXT,
    confidence REAL NOT NULL DEFAULT 0,
    tags JSON,
    status TEXT NOT NULL DEFAULT 'pending',
    validation_result TEXT,
    rejection_reason TEXT,
    retry_count INTEGER NOT NULL DEFAULT 0,
    last_error TEXT,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    validated_at DATETIME
);

CREATE TABLE IF NOT EXISTS sources (
    id INTEGER PRIMARY KEY,
    type TEXT NOT NULL,
    identifier TEXT NOT NULL,
    name TEXT,
    version TEXT,
    content TEXT NOT NULL,
    content_hash TEXT NOT NULL UNIQUE,
    metadata JSON,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS citations (
    id INTEGER PRIMARY KEY,
    requirement_id TEXT NOT NULL REFERENCES requirements(id) ON DELETE CASCADE,
    claim TEXT NOT NULL,
    verbatim_quote TEXT NOT NULL,
    quote_context TEXT,
    quote_language TEXT,
    relevance_reasoning TEXT,
    confidence REAL NOT NULL DEFAULT 0,
    extraction_method TEXT,
    source_id INTEGER NOT NULL REFERENCES sources(id),
    locator JSON,
    verification_status TEXT NOT NULL DEFAULT 'pending',
    failure_kind TEXT NOT NULL DEFAULT '',
    verification_notes TEXT,
    similarity_score REAL NOT NULL DEFAULT 0,
    matched_location JSON,
    claimed_at DATETIME,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    created_by TEXT
);

CREATE INDEX IF NOT EXISTS idx_requirements_job ON requirements(job_id);
CREATE INDEX IF NOT EXISTS idx_requirements_status ON requirements(status);
CREATE INDEX IF NOT EXISTS idx_citations_requirement ON citations(requirement_id);
CREATE INDEX IF NOT EXISTS idx_citations_status ON citations(verification_status);
CREATE INDEX IF NOT EXISTS idx_citations_source ON citations(source_id);
CREATE INDEX IF NOT EXISTS idx_sources_hash ON sources(content_hash);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
`
