package store

import "strings"

// Dialect selects the few spots where SQLite and Postgres DDL differ.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

func (d Dialect) timestampType() string {
	if d == DialectPostgres {
		return "TIMESTAMPTZ"
	}
	return "TIMESTAMP"
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		greeting TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL DEFAULT 'en',
		voice TEXT NOT NULL DEFAULT '',
		elevenlabs_voice TEXT NOT NULL DEFAULT '',
		personality TEXT NOT NULL DEFAULT '',
		system_prompt TEXT NOT NULL DEFAULT '',
		intents TEXT NOT NULL DEFAULT '[]',
		business_rules TEXT NOT NULL DEFAULT '',
		special_instructions TEXT NOT NULL DEFAULT '',
		remote_assistant_id TEXT UNIQUE,
		status TEXT NOT NULL DEFAULT 'active',
		updated_at {{TS}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_agents_tenant ON agents(tenant_id)`,
	`CREATE TABLE IF NOT EXISTS phone_numbers (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		number TEXT NOT NULL UNIQUE,
		country_code TEXT NOT NULL DEFAULT '',
		agent_id TEXT,
		remote_phone_id TEXT,
		remote_assistant_id TEXT,
		updated_at {{TS}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_phone_numbers_tenant ON phone_numbers(tenant_id)`,
	`CREATE TABLE IF NOT EXISTS call_sessions (
		call_id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL DEFAULT '',
		direction TEXT NOT NULL,
		customer_phone TEXT NOT NULL DEFAULT '',
		agent_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL DEFAULT '',
		conversation_state TEXT NOT NULL DEFAULT 'greeting',
		language TEXT NOT NULL DEFAULT '',
		context TEXT NOT NULL DEFAULT '{}',
		collected_info TEXT NOT NULL DEFAULT '{}',
		pending_actions TEXT NOT NULL DEFAULT '[]',
		started_at {{TS}} NOT NULL,
		ended_at {{TS}},
		duration INTEGER NOT NULL DEFAULT 0,
		recording_url TEXT NOT NULL DEFAULT '',
		ended_reason TEXT NOT NULL DEFAULT '',
		cost DOUBLE PRECISION NOT NULL DEFAULT 0,
		last_activity {{TS}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_call_sessions_phone ON call_sessions(customer_phone, started_at)`,
	`CREATE INDEX IF NOT EXISTS idx_call_sessions_activity ON call_sessions(state, last_activity)`,
	`CREATE TABLE IF NOT EXISTS conversation_turns (
		call_id TEXT NOT NULL,
		turn_number INTEGER NOT NULL,
		speaker TEXT NOT NULL,
		message TEXT NOT NULL,
		intent TEXT NOT NULL DEFAULT '',
		sentiment TEXT NOT NULL DEFAULT '',
		confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
		entities TEXT NOT NULL DEFAULT '{}',
		created_at {{TS}} NOT NULL,
		PRIMARY KEY (call_id, turn_number)
	)`,
	`CREATE TABLE IF NOT EXISTS customer_profiles (
		phone TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		language_preference TEXT NOT NULL DEFAULT 'en',
		total_calls INTEGER NOT NULL DEFAULT 0,
		last_call_date {{TS}},
		communication_style TEXT NOT NULL DEFAULT '',
		sentiment_trend TEXT NOT NULL DEFAULT '',
		created_at {{TS}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS knowledge_base (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		priority INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'active'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_knowledge_agent ON knowledge_base(agent_id, status)`,
}

func migrations(d Dialect) []string {
	out := make([]string, len(schema))
	for i, stmt := range schema {
		out[i] = strings.ReplaceAll(stmt, "{{TS}}", d.timestampType())
	}
	return out
}
