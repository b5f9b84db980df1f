package history

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renegade-studio/matrix/internal/protocol"
)

func setupMockSQLProvider(t *testing.T, dialect string) (*SQLProvider, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &SQLProvider{db: db, dialect: dialect}, mock
}

func TestSQLProvider_AppendMessage_SQLite(t *testing.T) {
	p, mock := setupMockSQLProvider(t, "sqlite")

	mock.ExpectExec("INSERT INTO matrix_sessions").
		WithArgs("sess-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT COALESCE\\(MAX\\(sequence_num\\), 0\\)").
		WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(0))
	mock.ExpectExec("INSERT INTO matrix_messages").
		WithArgs("sess-1", sqlmock.AnyArg(), int64(1), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := p.AppendMessage(context.Background(), "sess-1", protocol.NewTextMessage(protocol.RoleUser, "hi"))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLProvider_AppendMessage_Postgres_UsesOnConflict(t *testing.T) {
	p, mock := setupMockSQLProvider(t, "postgres")

	mock.ExpectExec("INSERT INTO matrix_sessions .* ON CONFLICT").
		WithArgs("sess-2", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT COALESCE\\(MAX\\(sequence_num\\), 0\\)").
		WithArgs("sess-2").
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(2))
	mock.ExpectExec("INSERT INTO matrix_messages").
		WithArgs("sess-2", sqlmock.AnyArg(), int64(3), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := p.AppendMessage(context.Background(), "sess-2", protocol.NewTextMessage(protocol.RoleAssistant, "hello"))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLProvider_GetMessages_DecodesStoredJSON(t *testing.T) {
	p, mock := setupMockSQLProvider(t, "sqlite")

	msg := protocol.NewTextMessage(protocol.RoleUser, "hello world")
	payload, err := msg.MarshalJSON()
	require.NoError(t, err)

	mock.ExpectQuery("SELECT message_json FROM matrix_messages").
		WithArgs("sess-3").
		WillReturnRows(sqlmock.NewRows([]string{"message_json"}).AddRow(string(payload)))

	got, err := p.GetMessages(context.Background(), "sess-3", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "hello world", got[0].Text())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLProvider_GetMessages_AppliesLimit(t *testing.T) {
	p, mock := setupMockSQLProvider(t, "sqlite")

	mock.ExpectQuery("SELECT message_json FROM matrix_messages.*LIMIT 5").
		WithArgs("sess-4").
		WillReturnRows(sqlmock.NewRows([]string{"message_json"}))

	_, err := p.GetMessages(context.Background(), "sess-4", 5)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLProvider_GetMessageCount(t *testing.T) {
	p, mock := setupMockSQLProvider(t, "sqlite")

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM matrix_messages").
		WithArgs("sess-5").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	count, err := p.GetMessageCount(context.Background(), "sess-5")
	require.NoError(t, err)
	assert.Equal(t, 7, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLProvider_DeleteSession(t *testing.T) {
	p, mock := setupMockSQLProvider(t, "sqlite")

	mock.ExpectExec("DELETE FROM matrix_messages WHERE session_id").
		WithArgs("sess-6").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("DELETE FROM matrix_sessions WHERE id").
		WithArgs("sess-6").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := p.DeleteSession(context.Background(), "sess-6")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLProvider_GetMessages_PropagatesQueryError(t *testing.T) {
	p, mock := setupMockSQLProvider(t, "sqlite")

	mock.ExpectQuery("SELECT message_json FROM matrix_messages").
		WithArgs("sess-7").
		WillReturnError(sql.ErrConnDone)

	_, err := p.GetMessages(context.Background(), "sess-7", 0)
	assert.Error(t, err)
}
