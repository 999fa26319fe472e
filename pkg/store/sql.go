package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harunnryd/voxa/pkg/domain"
	"github.com/harunnryd/voxa/pkg/errorsx"
)

// SQLStore implements Store on database/sql. Queries use $n placeholders in
// first-appearance order so the same text runs on lib/pq and go-sqlite3.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLStore wraps an open handle without running migrations.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// Migrate creates tables and indexes when missing.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range migrations(s.dialect) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, stmt)
		}
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// DB exposes the handle for health checks.
func (s *SQLStore) DB() *sql.DB { return s.db }

const agentColumns = `id, tenant_id, name, description, greeting, language, voice, elevenlabs_voice,
	personality, system_prompt, intents, business_rules, special_instructions,
	remote_assistant_id, status, updated_at`

func (s *SQLStore) GetAgent(ctx context.Context, id string) (*domain.AgentConfig, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = $1`, id)
	return scanAgent(row, id)
}

func (s *SQLStore) GetAgentByRemoteID(ctx context.Context, remoteID string) (*domain.AgentConfig, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE remote_assistant_id = $1`, remoteID)
	return scanAgent(row, remoteID)
}

func (s *SQLStore) ListAgents(ctx context.Context, tenantID string) ([]domain.AgentConfig, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE ($1 = '' OR tenant_id = $1) ORDER BY name`, tenantID)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonStoreRead)
	}
	defer rows.Close()
	out := make([]domain.AgentConfig, 0)
	for rows.Next() {
		a, err := scanAgent(rows, "")
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, errorsx.Wrap(rows.Err(), errorsx.ReasonStoreRead)
}

func (s *SQLStore) SaveAgent(ctx context.Context, a domain.AgentConfig) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if err := a.Validate(); err != nil {
		return err
	}
	intents, _ := json.Marshal(nonNilStrings(a.Intents))
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agents (`+agentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, description = excluded.description, greeting = excluded.greeting,
			language = excluded.language, voice = excluded.voice, elevenlabs_voice = excluded.elevenlabs_voice,
			personality = excluded.personality, system_prompt = excluded.system_prompt, intents = excluded.intents,
			business_rules = excluded.business_rules, special_instructions = excluded.special_instructions,
			remote_assistant_id = excluded.remote_assistant_id, status = excluded.status,
			updated_at = excluded.updated_at`,
		a.ID, a.TenantID, a.Name, a.Description, a.Greeting, defaultString(a.Language, "en"), a.Voice,
		a.ElevenLabsVoice, a.Personality, a.SystemPrompt, string(intents), a.BusinessRules,
		a.SpecialInstructions, nullString(a.RemoteAssistantID), defaultString(a.Status, "active"),
		time.Now().UTC())
	return errorsx.Wrap(err, errorsx.ReasonStoreWrite)
}

func (s *SQLStore) UpsertAgentByRemoteID(ctx context.Context, a domain.AgentConfig) (bool, error) {
	if a.RemoteAssistantID == "" {
		return false, errorsx.Invalid("remote_assistant_id", "required")
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if err := a.Validate(); err != nil {
		return false, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, errorsx.Wrap(err, errorsx.ReasonStoreWrite)
	}
	defer tx.Rollback()

	var existingID string
	err = tx.QueryRowContext(ctx, `SELECT id FROM agents WHERE remote_assistant_id = $1`, a.RemoteAssistantID).Scan(&existingID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return false, errorsx.Wrap(err, errorsx.ReasonStoreRead)
	}
	intents, _ := json.Marshal(nonNilStrings(a.Intents))
	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO agents (id, tenant_id, name, description, greeting, language, voice, elevenlabs_voice,
			personality, system_prompt, intents, remote_assistant_id, status, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (remote_assistant_id) DO UPDATE SET
			name = excluded.name, greeting = excluded.greeting, language = excluded.language,
			elevenlabs_voice = excluded.elevenlabs_voice, updated_at = excluded.updated_at`,
		a.ID, a.TenantID, a.Name, a.Description, a.Greeting, defaultString(a.Language, "en"), a.Voice,
		a.ElevenLabsVoice, a.Personality, a.SystemPrompt, string(intents), a.RemoteAssistantID,
		defaultString(a.Status, "active"), now)
	if err != nil {
		return false, errorsx.Wrap(err, errorsx.ReasonStoreWrite)
	}
	if err := tx.Commit(); err != nil {
		return false, errorsx.Wrap(err, errorsx.ReasonStoreWrite)
	}
	return existingID == "", nil
}

func (s *SQLStore) SetAgentRemoteID(ctx context.Context, id, remoteID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agents SET remote_assistant_id = $1, updated_at = $2 WHERE id = $3`,
		nullString(remoteID), time.Now().UTC(), id)
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonStoreWrite)
	}
	return requireAffected(res, "agent", id)
}

const phoneColumns = `id, tenant_id, number, country_code, agent_id, remote_phone_id, remote_assistant_id, updated_at`

func (s *SQLStore) GetPhoneNumber(ctx context.Context, number string) (*domain.PhoneNumberRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+phoneColumns+` FROM phone_numbers WHERE number = $1`, number)
	return scanPhone(row, number)
}

func (s *SQLStore) GetPhoneNumberByRemoteID(ctx context.Context, remoteID string) (*domain.PhoneNumberRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+phoneColumns+` FROM phone_numbers WHERE remote_phone_id = $1`, remoteID)
	return scanPhone(row, remoteID)
}

func (s *SQLStore) ListPhoneNumbers(ctx context.Context, tenantID string) ([]domain.PhoneNumberRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+phoneColumns+` FROM phone_numbers WHERE ($1 = '' OR tenant_id = $1) ORDER BY number`, tenantID)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonStoreRead)
	}
	defer rows.Close()
	out := make([]domain.PhoneNumberRecord, 0)
	for rows.Next() {
		rec, err := scanPhone(rows, "")
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, errorsx.Wrap(rows.Err(), errorsx.ReasonStoreRead)
}

func (s *SQLStore) SavePhoneNumber(ctx context.Context, rec domain.PhoneNumberRecord) error {
	if rec.Number == "" {
		return errorsx.Invalid("number", "required")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO phone_numbers (`+phoneColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (number) DO UPDATE SET
			tenant_id = excluded.tenant_id, country_code = excluded.country_code, agent_id = excluded.agent_id,
			remote_phone_id = excluded.remote_phone_id, remote_assistant_id = excluded.remote_assistant_id,
			updated_at = excluded.updated_at`,
		rec.ID, rec.TenantID, rec.Number, rec.CountryCode, nullString(rec.AgentID),
		nullString(rec.RemotePhoneID), nullString(rec.RemoteAssistantID), time.Now().UTC())
	return errorsx.Wrap(err, errorsx.ReasonStoreWrite)
}

func (s *SQLStore) UpsertPhoneNumber(ctx context.Context, rec domain.PhoneNumberRecord) (bool, error) {
	if rec.Number == "" {
		return false, errorsx.Invalid("number", "required")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, errorsx.Wrap(err, errorsx.ReasonStoreWrite)
	}
	defer tx.Rollback()

	var existingID string
	err = tx.QueryRowContext(ctx, `SELECT id FROM phone_numbers WHERE number = $1`, rec.Number).Scan(&existingID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return false, errorsx.Wrap(err, errorsx.ReasonStoreRead)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO phone_numbers (`+phoneColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (number) DO UPDATE SET
			remote_phone_id = COALESCE(NULLIF(excluded.remote_phone_id, ''), phone_numbers.remote_phone_id),
			remote_assistant_id = COALESCE(NULLIF(excluded.remote_assistant_id, ''), phone_numbers.remote_assistant_id),
			updated_at = excluded.updated_at`,
		rec.ID, rec.TenantID, rec.Number, rec.CountryCode, nullString(rec.AgentID),
		nullString(rec.RemotePhoneID), nullString(rec.RemoteAssistantID), time.Now().UTC())
	if err != nil {
		return false, errorsx.Wrap(err, errorsx.ReasonStoreWrite)
	}
	if err := tx.Commit(); err != nil {
		return false, errorsx.Wrap(err, errorsx.ReasonStoreWrite)
	}
	return existingID == "", nil
}

const sessionColumns = `call_id, tenant_id, direction, customer_phone, agent_id, status, state, conversation_state,
	language, context, collected_info, pending_actions, started_at, ended_at, duration, recording_url,
	ended_reason, cost, last_activity`

func (s *SQLStore) CreateSession(ctx context.Context, cs *domain.CallSession) (bool, error) {
	ctxJSON, info, pending := encodeSessionBlobs(cs)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO call_sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (call_id) DO NOTHING`,
		cs.CallID, cs.TenantID, string(cs.Direction), cs.CustomerPhone, cs.AgentID, cs.Status, cs.State,
		defaultString(cs.ConversationState, domain.DefaultConversationState), cs.Language, ctxJSON, info, pending,
		cs.StartedAt.UTC(), nullTime(cs.EndedAt), cs.Duration, cs.RecordingURL, cs.EndedReason, cs.Cost,
		cs.LastActivity.UTC())
	if err != nil {
		return false, errorsx.Wrap(err, errorsx.ReasonStoreWrite)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errorsx.Wrap(err, errorsx.ReasonStoreWrite)
	}
	return n == 1, nil
}

func (s *SQLStore) GetSession(ctx context.Context, callID string) (*domain.CallSession, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM call_sessions WHERE call_id = $1`, callID)
	return scanSession(row, callID)
}

func (s *SQLStore) UpdateSession(ctx context.Context, cs *domain.CallSession) error {
	ctxJSON, info, pending := encodeSessionBlobs(cs)
	res, err := s.db.ExecContext(ctx, `
		UPDATE call_sessions SET
			customer_phone = $1, status = $2, state = $3, conversation_state = $4, language = $5,
			context = $6, collected_info = $7, pending_actions = $8, ended_at = $9, duration = $10,
			recording_url = $11, ended_reason = $12, cost = $13, last_activity = $14
		WHERE call_id = $15`,
		cs.CustomerPhone, cs.Status, cs.State, cs.ConversationState, cs.Language, ctxJSON, info, pending,
		nullTime(cs.EndedAt), cs.Duration, cs.RecordingURL, cs.EndedReason, cs.Cost, cs.LastActivity.UTC(),
		cs.CallID)
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonStoreWrite)
	}
	return requireAffected(res, "session", cs.CallID)
}

func (s *SQLStore) ListIdleSessions(ctx context.Context, before time.Time) ([]domain.CallSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM call_sessions
		WHERE state NOT IN ($1, $2) AND last_activity < $3
		ORDER BY last_activity`,
		domain.SessionStateEnded, domain.SessionStateError, before.UTC())
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonStoreRead)
	}
	defer rows.Close()
	out := make([]domain.CallSession, 0)
	for rows.Next() {
		cs, err := scanSession(rows, "")
		if err != nil {
			return nil, err
		}
		out = append(out, *cs)
	}
	return out, errorsx.Wrap(rows.Err(), errorsx.ReasonStoreRead)
}

func (s *SQLStore) RecentCalls(ctx context.Context, phone, excludeCallID string, limit int) ([]domain.CallSummary, error) {
	if limit <= 0 {
		limit = 3
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT cs.call_id, COALESCE(a.name, ''), cs.started_at, cs.duration, cs.ended_reason, cs.status
		FROM call_sessions cs LEFT JOIN agents a ON a.id = cs.agent_id
		WHERE cs.customer_phone = $1 AND cs.call_id <> $2
		ORDER BY cs.started_at DESC
		LIMIT $3`, phone, excludeCallID, limit)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonStoreRead)
	}
	defer rows.Close()
	out := make([]domain.CallSummary, 0)
	for rows.Next() {
		var c domain.CallSummary
		if err := rows.Scan(&c.CallID, &c.AgentName, &c.StartedAt, &c.Duration, &c.EndedReason, &c.Status); err != nil {
			return nil, errorsx.Wrap(err, errorsx.ReasonStoreRead)
		}
		out = append(out, c)
	}
	return out, errorsx.Wrap(rows.Err(), errorsx.ReasonStoreRead)
}

func (s *SQLStore) AppendTurn(ctx context.Context, t *domain.ConversationTurn) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now().UTC()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonStoreWrite)
	}
	defer tx.Rollback()

	var last int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(turn_number), 0) FROM conversation_turns WHERE call_id = $1`, t.CallID).Scan(&last); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonStoreRead)
	}
	entities, _ := json.Marshal(nonNilMap(t.Entities))
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversation_turns (call_id, turn_number, speaker, message, intent, sentiment, confidence, entities, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.CallID, last+1, string(t.Speaker), t.Message, t.Intent, t.Sentiment, t.Confidence,
		string(entities), t.Timestamp.UTC()); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonStoreWrite)
	}
	if err := tx.Commit(); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonStoreWrite)
	}
	t.TurnNumber = last + 1
	return nil
}

func (s *SQLStore) ListTurns(ctx context.Context, callID string, limit int) ([]domain.ConversationTurn, error) {
	if limit <= 0 {
		limit = 1 << 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT call_id, turn_number, speaker, message, intent, sentiment, confidence, entities, created_at
		FROM conversation_turns WHERE call_id = $1
		ORDER BY turn_number DESC LIMIT $2`, callID, limit)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonStoreRead)
	}
	defer rows.Close()
	out := make([]domain.ConversationTurn, 0)
	for rows.Next() {
		var t domain.ConversationTurn
		var speaker, entities string
		if err := rows.Scan(&t.CallID, &t.TurnNumber, &speaker, &t.Message, &t.Intent, &t.Sentiment,
			&t.Confidence, &entities, &t.Timestamp); err != nil {
			return nil, errorsx.Wrap(err, errorsx.ReasonStoreRead)
		}
		t.Speaker = domain.Speaker(speaker)
		_ = json.Unmarshal([]byte(entities), &t.Entities)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonStoreRead)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *SQLStore) GetOrCreateCustomer(ctx context.Context, phone, language string) (*domain.CustomerProfile, error) {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO customer_profiles (phone, language_preference, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (phone) DO NOTHING`, phone, defaultString(language, "en"), time.Now().UTC()); err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonStoreWrite)
	}
	var c domain.CustomerProfile
	var last sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT phone, name, language_preference, total_calls, last_call_date, communication_style,
			sentiment_trend, created_at
		FROM customer_profiles WHERE phone = $1`, phone).Scan(&c.Phone, &c.Name, &c.LanguagePreference,
		&c.TotalCalls, &last, &c.CommunicationStyle, &c.SentimentTrend, &c.CreatedAt)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonStoreRead)
	}
	if last.Valid {
		c.LastCallDate = &last.Time
	}
	return &c, nil
}

func (s *SQLStore) RecordCustomerCall(ctx context.Context, phone string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE customer_profiles SET total_calls = total_calls + 1, last_call_date = $1 WHERE phone = $2`,
		at.UTC(), phone)
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonStoreWrite)
	}
	return requireAffected(res, "customer", phone)
}

func (s *SQLStore) SaveKnowledge(ctx context.Context, e domain.KnowledgeEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO knowledge_base (id, agent_id, title, content, category, priority, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET title = excluded.title, content = excluded.content,
			category = excluded.category, priority = excluded.priority, status = excluded.status`,
		e.ID, e.AgentID, e.Title, e.Content, e.Category, e.Priority, defaultString(e.Status, "active"))
	return errorsx.Wrap(err, errorsx.ReasonStoreWrite)
}

func (s *SQLStore) SearchKnowledge(ctx context.Context, agentID, query string, limit int) ([]domain.KnowledgeEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, title, content, category, priority, status
		FROM knowledge_base WHERE agent_id = $1 AND status = $2
		ORDER BY priority DESC`, agentID, "active")
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonStoreRead)
	}
	defer rows.Close()
	entries := make([]domain.KnowledgeEntry, 0)
	for rows.Next() {
		var e domain.KnowledgeEntry
		if err := rows.Scan(&e.ID, &e.AgentID, &e.Title, &e.Content, &e.Category, &e.Priority, &e.Status); err != nil {
			return nil, errorsx.Wrap(err, errorsx.ReasonStoreRead)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonStoreRead)
	}
	return matchKnowledge(entries, query, limit), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner, key string) (*domain.AgentConfig, error) {
	var a domain.AgentConfig
	var intents string
	var remote sql.NullString
	err := row.Scan(&a.ID, &a.TenantID, &a.Name, &a.Description, &a.Greeting, &a.Language, &a.Voice,
		&a.ElevenLabsVoice, &a.Personality, &a.SystemPrompt, &intents, &a.BusinessRules,
		&a.SpecialInstructions, &remote, &a.Status, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errorsx.NotFound("agent", key)
	}
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonStoreRead)
	}
	a.RemoteAssistantID = remote.String
	_ = json.Unmarshal([]byte(intents), &a.Intents)
	return &a, nil
}

func scanPhone(row rowScanner, key string) (*domain.PhoneNumberRecord, error) {
	var r domain.PhoneNumberRecord
	var agentID, remotePhone, remoteAssistant sql.NullString
	err := row.Scan(&r.ID, &r.TenantID, &r.Number, &r.CountryCode, &agentID, &remotePhone, &remoteAssistant, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errorsx.NotFound("phone_number", key)
	}
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonStoreRead)
	}
	r.AgentID = agentID.String
	r.RemotePhoneID = remotePhone.String
	r.RemoteAssistantID = remoteAssistant.String
	return &r, nil
}

func scanSession(row rowScanner, key string) (*domain.CallSession, error) {
	var cs domain.CallSession
	var direction, ctxJSON, info, pending string
	var ended sql.NullTime
	err := row.Scan(&cs.CallID, &cs.TenantID, &direction, &cs.CustomerPhone, &cs.AgentID, &cs.Status, &cs.State,
		&cs.ConversationState, &cs.Language, &ctxJSON, &info, &pending, &cs.StartedAt, &ended, &cs.Duration,
		&cs.RecordingURL, &cs.EndedReason, &cs.Cost, &cs.LastActivity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errorsx.NotFound("session", key)
	}
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonStoreRead)
	}
	cs.Direction = domain.Direction(direction)
	if ended.Valid {
		cs.EndedAt = &ended.Time
	}
	cs.Context = map[string]any{}
	cs.CollectedInfo = map[string]any{}
	_ = json.Unmarshal([]byte(ctxJSON), &cs.Context)
	_ = json.Unmarshal([]byte(info), &cs.CollectedInfo)
	_ = json.Unmarshal([]byte(pending), &cs.PendingActions)
	return &cs, nil
}

func encodeSessionBlobs(cs *domain.CallSession) (string, string, string) {
	ctxJSON, _ := json.Marshal(nonNilMap(cs.Context))
	info, _ := json.Marshal(nonNilMap(cs.CollectedInfo))
	pending, _ := json.Marshal(nonNilStrings(cs.PendingActions))
	return string(ctxJSON), string(info), string(pending)
}

func requireAffected(res sql.Result, kind, key string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonStoreWrite)
	}
	if n == 0 {
		return errorsx.NotFound(kind, key)
	}
	return nil
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func nonNilMap(in map[string]any) map[string]any {
	if in == nil {
		return map[string]any{}
	}
	return in
}

var _ Store = (*SQLStore)(nil)
