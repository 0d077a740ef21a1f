package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"connection-chat/internal/models"
)

var ErrConnectionNotFound = errors.New("connection not found")

// ConnectionRepository reads connections and maintains their counters and timestamps.
type ConnectionRepository interface {
	GetConnection(ctx context.Context, connectionID string) (models.ConnectionHeader, error)
	ListInbox(ctx context.Context, role models.Role, profileID string) ([]models.InboxEntry, error)
	SumUnread(ctx context.Context, role models.Role, profileID string) (int, error)
	IncrementUnread(ctx context.Context, connectionID string, recipient models.Role) error
	ResetUnread(ctx context.Context, connectionID string, reader models.Role) error
	RecomputeUnread(ctx context.Context, connectionID string) (doctorUnread, patientUnread int, err error)
	CounterpartUserIDs(ctx context.Context, userID string) ([]string, error)
	ListActiveConnectionIDs(ctx context.Context) ([]string, error)
}

// ConnectionRepo is a sqlx implementation of ConnectionRepository.
type ConnectionRepo struct {
	db *sqlx.DB
}

// NewConnectionRepo constructs a ConnectionRepo.
func NewConnectionRepo(db *sqlx.DB) *ConnectionRepo {
	return &ConnectionRepo{db: db}
}

const connectionHeaderQuery = `SELECT c.id, c.doctor_id, c.patient_id, c.status,
        c.doctor_unread_count, c.patient_unread_count, c.last_message_at, c.last_activity_at, c.created_at,
        du.id AS doctor_user_id, du.first_name AS doctor_first_name, du.last_name AS doctor_last_name,
        pu.id AS patient_user_id, pu.first_name AS patient_first_name, pu.last_name AS patient_last_name
    FROM connections c
    JOIN doctor_profiles dp ON dp.id = c.doctor_id
    JOIN users du ON du.id = dp.user_id
    JOIN patient_profiles pp ON pp.id = c.patient_id
    JOIN users pu ON pu.id = pp.user_id`

// GetConnection loads a connection with both participants.
func (r *ConnectionRepo) GetConnection(ctx context.Context, connectionID string) (models.ConnectionHeader, error) {
	var header models.ConnectionHeader
	err := r.db.GetContext(ctx, &header, connectionHeaderQuery+` WHERE c.id=$1`, connectionID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ConnectionHeader{}, ErrConnectionNotFound
	}
	return header, err
}

// ListInbox returns the connections of a profile, most recent conversation first.
func (r *ConnectionRepo) ListInbox(ctx context.Context, role models.Role, profileID string) ([]models.InboxEntry, error) {
	var query string
	switch role {
	case models.RoleDoctor:
		query = `SELECT c.id AS connection_id, ch.id AS chat_id, c.status,
                u.id AS counterpart_user_id, u.first_name AS counterpart_first_name, u.last_name AS counterpart_last_name,
                ch.last_message_preview, c.last_message_at, c.doctor_unread_count AS unread_count
            FROM connections c
            JOIN patient_profiles p ON p.id = c.patient_id
            JOIN users u ON u.id = p.user_id
            LEFT JOIN chats ch ON ch.connection_id = c.id
            WHERE c.doctor_id=$1
            ORDER BY c.last_message_at DESC NULLS LAST, c.created_at DESC`
	case models.RolePatient:
		query = `SELECT c.id AS connection_id, ch.id AS chat_id, c.status,
                u.id AS counterpart_user_id, u.first_name AS counterpart_first_name, u.last_name AS counterpart_last_name,
                ch.last_message_preview, c.last_message_at, c.patient_unread_count AS unread_count
            FROM connections c
            JOIN doctor_profiles d ON d.id = c.doctor_id
            JOIN users u ON u.id = d.user_id
            LEFT JOIN chats ch ON ch.connection_id = c.id
            WHERE c.patient_id=$1
            ORDER BY c.last_message_at DESC NULLS LAST, c.created_at DESC`
	case models.RoleAdmin:
		return nil, fmt.Errorf("list inbox: role %s has no inbox", role)
	default:
		return nil, fmt.Errorf("list inbox: unknown role %q", role)
	}

	entries := []models.InboxEntry{}
	if err := r.db.SelectContext(ctx, &entries, query, profileID); err != nil {
		return nil, err
	}
	return entries, nil
}

// SumUnread adds up the unread counters of one side across all connections of a profile.
func (r *ConnectionRepo) SumUnread(ctx context.Context, role models.Role, profileID string) (int, error) {
	var query string
	switch role {
	case models.RoleDoctor:
		query = `SELECT COALESCE(SUM(doctor_unread_count), 0) FROM connections WHERE doctor_id=$1`
	case models.RolePatient:
		query = `SELECT COALESCE(SUM(patient_unread_count), 0) FROM connections WHERE patient_id=$1`
	case models.RoleAdmin:
		return 0, fmt.Errorf("sum unread: role %s has no inbox", role)
	default:
		return 0, fmt.Errorf("sum unread: unknown role %q", role)
	}
	var total int
	err := r.db.GetContext(ctx, &total, query, profileID)
	return total, err
}

func unreadColumn(role models.Role) (string, error) {
	switch role {
	case models.RoleDoctor:
		return "doctor_unread_count", nil
	case models.RolePatient:
		return "patient_unread_count", nil
	case models.RoleAdmin:
		return "", fmt.Errorf("role %s has no unread counter", role)
	default:
		return "", fmt.Errorf("unknown role %q", role)
	}
}

// IncrementUnread atomically adds one to the recipient side's counter.
func (r *ConnectionRepo) IncrementUnread(ctx context.Context, connectionID string, recipient models.Role) error {
	column, err := unreadColumn(recipient)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `UPDATE connections SET `+column+` = `+column+` + 1 WHERE id=$1`, connectionID)
	return expectRow(res, err, ErrConnectionNotFound)
}

// ResetUnread zeroes the reader side's counter.
func (r *ConnectionRepo) ResetUnread(ctx context.Context, connectionID string, reader models.Role) error {
	column, err := unreadColumn(reader)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `UPDATE connections SET `+column+` = 0 WHERE id=$1`, connectionID)
	return expectRow(res, err, ErrConnectionNotFound)
}

const recomputeUnreadQuery = `UPDATE connections c SET
        doctor_unread_count = (SELECT COUNT(*) FROM messages m JOIN chats ch ON ch.id = m.chat_id
            WHERE ch.connection_id = c.id AND m.sender_id <> dp.user_id AND NOT m.is_read AND NOT m.is_deleted),
        patient_unread_count = (SELECT COUNT(*) FROM messages m JOIN chats ch ON ch.id = m.chat_id
            WHERE ch.connection_id = c.id AND m.sender_id <> pp.user_id AND NOT m.is_read AND NOT m.is_deleted)
    FROM doctor_profiles dp, patient_profiles pp
    WHERE c.id = $1 AND dp.id = c.doctor_id AND pp.id = c.patient_id
    RETURNING c.doctor_unread_count, c.patient_unread_count`

// RecomputeUnread rewrites both counters from the messages table in one
// statement, so increments committed meanwhile are not overwritten.
func (r *ConnectionRepo) RecomputeUnread(ctx context.Context, connectionID string) (int, int, error) {
	var counts struct {
		Doctor  int `db:"doctor_unread_count"`
		Patient int `db:"patient_unread_count"`
	}
	err := r.db.GetContext(ctx, &counts, recomputeUnreadQuery, connectionID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, ErrConnectionNotFound
	}
	if err != nil {
		return 0, 0, err
	}
	return counts.Doctor, counts.Patient, nil
}

// CounterpartUserIDs returns the users sharing an active connection with userID.
func (r *ConnectionRepo) CounterpartUserIDs(ctx context.Context, userID string) ([]string, error) {
	query := `SELECT DISTINCT CASE WHEN dp.user_id=$1 THEN pp.user_id ELSE dp.user_id END
        FROM connections c
        JOIN doctor_profiles dp ON dp.id = c.doctor_id
        JOIN patient_profiles pp ON pp.id = c.patient_id
        WHERE (dp.user_id=$1 OR pp.user_id=$1) AND c.status=$2`
	var ids []string
	err := r.db.SelectContext(ctx, &ids, query, userID, models.ConnectionActive)
	return ids, err
}

// ListActiveConnectionIDs returns ids of connections that may carry messages.
func (r *ConnectionRepo) ListActiveConnectionIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids, `SELECT id FROM connections WHERE status=$1 ORDER BY id`, models.ConnectionActive)
	return ids, err
}

func expectRow(res sql.Result, err error, notFound error) error {
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return notFound
	}
	return nil
}
