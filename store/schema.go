package store

// schemaSQL is the DDL for all tables. Every statement is idempotent so it
// runs on each open.
const schemaSQL = `
-- One row per dish served on one day at one campus.
CREATE TABLE IF NOT EXISTS menu (
    date TEXT NOT NULL,
    campus TEXT NOT NULL,
    type TEXT NOT NULL,
    item TEXT NOT NULL,
    price_student REAL,
    price_staff REAL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (date, campus, type)
);

-- Document registry with hash-based change detection
CREATE TABLE IF NOT EXISTS documents (
    id INTEGER PRIMARY KEY,
    campus TEXT NOT NULL,
    url TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    week_end TEXT,
    fetched_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (campus, content_hash)
);

-- Parse audit log
CREATE TABLE IF NOT EXISTS parse_runs (
    id INTEGER PRIMARY KEY,
    run_id TEXT NOT NULL,
    campus TEXT NOT NULL,
    source TEXT,
    week_end TEXT,
    inserted INTEGER DEFAULT 0,
    warnings INTEGER DEFAULT 0,
    error TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_menu_campus_date ON menu(campus, date);
CREATE INDEX IF NOT EXISTS idx_parse_runs_created ON parse_runs(created_at);
`
