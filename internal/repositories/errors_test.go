package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestInsertChatErrorMapsUniqueViolation(t *testing.T) {
	dup := &pq.Error{Code: "23505", Constraint: "chats_connection_id_key"}
	assert.ErrorIs(t, insertChatError(dup), ErrDuplicateChat)
	assert.ErrorIs(t, insertChatError(fmt.Errorf("insert chat: %w", dup)), ErrDuplicateChat)

	fk := &pq.Error{Code: "23503"}
	assert.Same(t, fk, insertChatError(fk))

	other := errors.New("connection reset")
	assert.Equal(t, other, insertChatError(other))
}

func TestCreateMessageErrorMapsEmptyInsert(t *testing.T) {
	assert.ErrorIs(t, createMessageError(sql.ErrNoRows), ErrConnectionNotActive)

	other := errors.New("connection reset")
	assert.Equal(t, other, createMessageError(other))
}

type fakeResult struct {
	rows int64
	err  error
}

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.rows, r.err }

func TestExpectRow(t *testing.T) {
	assert.NoError(t, expectRow(fakeResult{rows: 1}, nil, ErrConnectionNotFound))
	assert.ErrorIs(t, expectRow(fakeResult{rows: 0}, nil, ErrConnectionNotFound), ErrConnectionNotFound)

	boom := errors.New("boom")
	assert.Equal(t, boom, expectRow(nil, boom, ErrConnectionNotFound))
	assert.Equal(t, boom, expectRow(fakeResult{err: boom}, nil, ErrConnectionNotFound))
}
