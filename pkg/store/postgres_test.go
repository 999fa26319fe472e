package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/harunnryd/voxa/pkg/domain"
	"github.com/harunnryd/voxa/pkg/errorsx"
)

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQLStore(db, DialectPostgres), mock
}

func TestPostgresAppendTurnNumbersInsideTx(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(turn_number\), 0\) FROM conversation_turns`).
		WithArgs("call-1").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(4))
	mock.ExpectExec(`INSERT INTO conversation_turns`).
		WithArgs("call-1", 5, "caller", "hello", "", "", 0.0, "{}", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	turn := &domain.ConversationTurn{CallID: "call-1", Speaker: domain.SpeakerCaller, Message: "hello"}
	if err := s.AppendTurn(context.Background(), turn); err != nil {
		t.Fatalf("append: %v", err)
	}
	if turn.TurnNumber != 5 {
		t.Fatalf("expected turn 5, got %d", turn.TurnNumber)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresCreateSessionDuplicate(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO call_sessions .* ON CONFLICT \(call_id\) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	cs, _ := domain.NewCallSession("call-1", "a1", "+15550001111", domain.DirectionInbound, time.Now())
	created, err := s.CreateSession(context.Background(), cs)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created {
		t.Fatalf("expected duplicate create to report false")
	}
}

func TestPostgresUpdateMissingSessionIsNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE call_sessions SET`).WillReturnResult(sqlmock.NewResult(0, 0))

	cs, _ := domain.NewCallSession("ghost", "a1", "", domain.DirectionOutbound, time.Now())
	err := s.UpdateSession(context.Background(), cs)
	if !errorsx.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPostgresWriteFailureCarriesReason(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO knowledge_base`).WillReturnError(errors.New("connection reset"))

	err := s.SaveKnowledge(context.Background(), domain.KnowledgeEntry{AgentID: "a1", Title: "x", Content: "y"})
	if !errorsx.HasReason(err, errorsx.ReasonStoreWrite) {
		t.Fatalf("expected store write reason, got %v", err)
	}
}

func TestMigrationsUseDialectTimestamp(t *testing.T) {
	for _, stmt := range migrations(DialectPostgres) {
		if strings.Contains(stmt, "{{TS}}") {
			t.Fatalf("placeholder left in %q", stmt)
		}
	}
	pg := migrations(DialectPostgres)[0]
	if !strings.Contains(pg, "TIMESTAMPTZ") {
		t.Fatalf("expected TIMESTAMPTZ in postgres DDL")
	}
}
