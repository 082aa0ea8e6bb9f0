package store

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
    session_id           TEXT PRIMARY KEY,
    agent                TEXT NOT NULL,
    project_id           TEXT NOT NULL,
    project_path         TEXT,
    title                TEXT,
    file_path            TEXT NOT NULL,
    is_subagent          INTEGER NOT NULL DEFAULT 0,
    parent_session       TEXT,
    start_time           TEXT,
    end_time             TEXT,
    message_count        INTEGER NOT NULL,
    ingested_at          TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
    id                   TEXT PRIMARY KEY,
    session_id           TEXT NOT NULL,
    source_id            TEXT,
    agent                TEXT,
    role                 TEXT NOT NULL,
    sequence             INTEGER NOT NULL,
    timestamp            TEXT,
    title                TEXT,
    plain_text           TEXT NOT NULL,
    metadata_json        TEXT NOT NULL,
    blocks_json          TEXT NOT NULL,
    created_at           TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tool_usage (
    message_id           TEXT NOT NULL,
    block_index          INTEGER NOT NULL,
    session_id           TEXT NOT NULL,
    tool_id              TEXT,
    tool_name            TEXT NOT NULL,
    input_summary        TEXT,
    success              INTEGER,
    result_preview       TEXT,
    timestamp            TEXT,
    PRIMARY KEY (message_id, block_index)
);

CREATE TABLE IF NOT EXISTS file_operations (
    message_id           TEXT NOT NULL,
    block_index          INTEGER NOT NULL,
    session_id           TEXT NOT NULL,
    operation            TEXT NOT NULL,
    path                 TEXT,
    project              TEXT,
    timestamp            TEXT,
    PRIMARY KEY (message_id, block_index)
);

CREATE TABLE IF NOT EXISTS commands (
    message_id           TEXT NOT NULL,
    block_index          INTEGER NOT NULL,
    session_id           TEXT NOT NULL,
    command              TEXT NOT NULL,
    description          TEXT,
    cwd                  TEXT,
    is_git               INTEGER NOT NULL DEFAULT 0,
    success              INTEGER,
    timestamp            TEXT,
    PRIMARY KEY (message_id, block_index)
);

CREATE TABLE IF NOT EXISTS git_operations (
    message_id           TEXT NOT NULL,
    block_index          INTEGER NOT NULL,
    session_id           TEXT NOT NULL,
    operation            TEXT NOT NULL,
    branch               TEXT,
    message              TEXT,
    pr_url               TEXT,
    pr_number            INTEGER,
    timestamp            TEXT,
    PRIMARY KEY (message_id, block_index)
);

CREATE TABLE IF NOT EXISTS errors (
    message_id           TEXT NOT NULL,
    block_index          INTEGER NOT NULL,
    session_id           TEXT NOT NULL,
    error_type           TEXT NOT NULL,
    message              TEXT,
    timestamp            TEXT,
    PRIMARY KEY (message_id, block_index)
);

CREATE TABLE IF NOT EXISTS session_costs (
    session_id           TEXT PRIMARY KEY,
    model                TEXT,
    input_tokens         INTEGER NOT NULL DEFAULT 0,
    output_tokens        INTEGER NOT NULL DEFAULT 0,
    cache_tokens         INTEGER NOT NULL DEFAULT 0,
    duration_ms          INTEGER NOT NULL DEFAULT 0,
    estimated_cost_usd   REAL NOT NULL DEFAULT 0,
    updated_at           TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_agent ON sessions(agent);
CREATE INDEX IF NOT EXISTS idx_sessions_start ON sessions(start_time);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, sequence);
CREATE INDEX IF NOT EXISTS idx_file_ops_path ON file_operations(path);
CREATE INDEX IF NOT EXISTS idx_file_ops_session ON file_operations(session_id);
CREATE INDEX IF NOT EXISTS idx_tool_usage_session ON tool_usage(session_id);
CREATE INDEX IF NOT EXISTS idx_commands_session ON commands(session_id);
CREATE INDEX IF NOT EXISTS idx_git_ops_session ON git_operations(session_id);
`
