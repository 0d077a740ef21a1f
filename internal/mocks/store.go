package mocks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"connection-chat/internal/models"
	"connection-chat/internal/repositories"
)

// Store is an in-memory implementation of every repository interface with the
// same semantics as the SQL repositories.
type Store struct {
	mu sync.Mutex

	users       map[string]models.IdentitySnapshot
	doctors     map[string]string // user id -> profile id
	patients    map[string]string
	connections map[string]*models.Connection
	chats       map[string]models.Chat
	chatByConn  map[string]string
	messages    map[string]models.Message

	failures map[string]error
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		users:       map[string]models.IdentitySnapshot{},
		doctors:     map[string]string{},
		patients:    map[string]string{},
		connections: map[string]*models.Connection{},
		chats:       map[string]models.Chat{},
		chatByConn:  map[string]string{},
		messages:    map[string]models.Message{},
		failures:    map[string]error{},
	}
}

// AddDoctor seeds a doctor user with a profile.
func (s *Store) AddDoctor(userID, profileID, first, last string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = models.IdentitySnapshot{UserID: userID, FirstName: first, LastName: last, Role: models.RoleDoctor}
	s.doctors[userID] = profileID
}

// AddPatient seeds a patient user with a profile.
func (s *Store) AddPatient(userID, profileID, first, last string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = models.IdentitySnapshot{UserID: userID, FirstName: first, LastName: last, Role: models.RolePatient}
	s.patients[userID] = profileID
}

// AddUser seeds a user without a profile.
func (s *Store) AddUser(userID, first, last string, role models.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = models.IdentitySnapshot{UserID: userID, FirstName: first, LastName: last, Role: role}
}

// AddConnection seeds a connection between two profiles.
func (s *Store) AddConnection(id, doctorProfileID, patientProfileID string, status models.ConnectionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connections[id] = &models.Connection{
		ID:        id,
		DoctorID:  doctorProfileID,
		PatientID: patientProfileID,
		Status:    status,
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// SetStatus changes a connection's status.
func (s *Store) SetStatus(connectionID string, status models.ConnectionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.connections[connectionID]; ok {
		c.Status = status
	}
}

// InsertMessage stores a message directly, bypassing the active check.
func (s *Store) InsertMessage(msg models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.ID] = msg
}

// FailOn makes the named repository method return err until cleared with nil.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, method)
		return
	}
	s.failures[method] = err
}

// Connection returns a copy of a stored connection.
func (s *Store) Connection(id string) (models.Connection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.connections[id]
	if !ok {
		return models.Connection{}, false
	}
	return *c, true
}

// Chats returns every stored chat.
func (s *Store) Chats() []models.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Chat, 0, len(s.chats))
	for _, c := range s.chats {
		out = append(out, c)
	}
	return out
}

// MessagesIn returns the messages of a chat, newest first.
func (s *Store) MessagesIn(chatID string) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedMessages(chatID)
}

func (s *Store) fault(method string) error {
	return s.failures[method]
}

func (s *Store) sortedMessages(chatID string) []models.Message {
	out := []models.Message{}
	for _, m := range s.messages {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (s *Store) header(c *models.Connection) (models.ConnectionHeader, bool) {
	var doctor, patient models.IdentitySnapshot
	found := 0
	for userID, profileID := range s.doctors {
		if profileID == c.DoctorID {
			doctor = s.users[userID]
			found++
			break
		}
	}
	for userID, profileID := range s.patients {
		if profileID == c.PatientID {
			patient = s.users[userID]
			found++
			break
		}
	}
	if found != 2 {
		return models.ConnectionHeader{}, false
	}
	return models.ConnectionHeader{
		Connection:       *c,
		DoctorUserID:     doctor.UserID,
		DoctorFirstName:  doctor.FirstName,
		DoctorLastName:   doctor.LastName,
		PatientUserID:    patient.UserID,
		PatientFirstName: patient.FirstName,
		PatientLastName:  patient.LastName,
	}, true
}

// ConnectionRepository

func (s *Store) GetConnection(ctx context.Context, connectionID string) (models.ConnectionHeader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("GetConnection"); err != nil {
		return models.ConnectionHeader{}, err
	}
	c, ok := s.connections[connectionID]
	if !ok {
		return models.ConnectionHeader{}, repositories.ErrConnectionNotFound
	}
	h, ok := s.header(c)
	if !ok {
		return models.ConnectionHeader{}, repositories.ErrConnectionNotFound
	}
	return h, nil
}

func (s *Store) ListInbox(ctx context.Context, role models.Role, profileID string) ([]models.InboxEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("ListInbox"); err != nil {
		return nil, err
	}
	if role != models.RoleDoctor && role != models.RolePatient {
		return nil, fmt.Errorf("list inbox: role %s has no inbox", role)
	}

	entries := []models.InboxEntry{}
	conns := []*models.Connection{}
	for _, c := range s.connections {
		if (role == models.RoleDoctor && c.DoctorID == profileID) || (role == models.RolePatient && c.PatientID == profileID) {
			conns = append(conns, c)
		}
	}
	sort.Slice(conns, func(i, j int) bool {
		a, b := conns[i].LastMessageAt, conns[j].LastMessageAt
		switch {
		case a != nil && b != nil && !a.Equal(*b):
			return a.After(*b)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return conns[i].CreatedAt.After(conns[j].CreatedAt)
	})

	for _, c := range conns {
		h, ok := s.header(c)
		if !ok {
			continue
		}
		counterpart := h.PatientUserID
		first, last := h.PatientFirstName, h.PatientLastName
		if role == models.RolePatient {
			counterpart = h.DoctorUserID
			first, last = h.DoctorFirstName, h.DoctorLastName
		}
		entry := models.InboxEntry{
			ConnectionID:      c.ID,
			Status:            c.Status,
			CounterpartUserID: counterpart,
			CounterpartFirst:  first,
			CounterpartLast:   last,
			LastMessageAt:     c.LastMessageAt,
			UnreadCount:       h.UnreadFor(role),
		}
		if chatID, ok := s.chatByConn[c.ID]; ok {
			id := chatID
			entry.ChatID = &id
			entry.LastMessagePreview = s.chats[chatID].LastMessagePreview
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *Store) SumUnread(ctx context.Context, role models.Role, profileID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("SumUnread"); err != nil {
		return 0, err
	}
	total := 0
	for _, c := range s.connections {
		switch {
		case role == models.RoleDoctor && c.DoctorID == profileID:
			total += c.DoctorUnreadCount
		case role == models.RolePatient && c.PatientID == profileID:
			total += c.PatientUnreadCount
		}
	}
	return total, nil
}

func (s *Store) IncrementUnread(ctx context.Context, connectionID string, recipient models.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("IncrementUnread"); err != nil {
		return err
	}
	c, ok := s.connections[connectionID]
	if !ok {
		return repositories.ErrConnectionNotFound
	}
	switch recipient {
	case models.RoleDoctor:
		c.DoctorUnreadCount++
	case models.RolePatient:
		c.PatientUnreadCount++
	default:
		return fmt.Errorf("role %s has no unread counter", recipient)
	}
	return nil
}

func (s *Store) ResetUnread(ctx context.Context, connectionID string, reader models.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("ResetUnread"); err != nil {
		return err
	}
	c, ok := s.connections[connectionID]
	if !ok {
		return repositories.ErrConnectionNotFound
	}
	switch reader {
	case models.RoleDoctor:
		c.DoctorUnreadCount = 0
	case models.RolePatient:
		c.PatientUnreadCount = 0
	default:
		return fmt.Errorf("role %s has no unread counter", reader)
	}
	return nil
}

func (s *Store) RecomputeUnread(ctx context.Context, connectionID string) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("RecomputeUnread"); err != nil {
		return 0, 0, err
	}
	c, ok := s.connections[connectionID]
	if !ok {
		return 0, 0, repositories.ErrConnectionNotFound
	}
	h, ok := s.header(c)
	if !ok {
		return 0, 0, repositories.ErrConnectionNotFound
	}
	chatID := s.chatByConn[connectionID]
	c.DoctorUnreadCount = s.countUnread(chatID, h.DoctorUserID)
	c.PatientUnreadCount = s.countUnread(chatID, h.PatientUserID)
	return c.DoctorUnreadCount, c.PatientUnreadCount, nil
}

// ForceUnread overwrites counters directly, bypassing fault hooks.
func (s *Store) ForceUnread(connectionID string, doctorCount, patientCount int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.connections[connectionID]; ok {
		c.DoctorUnreadCount = doctorCount
		c.PatientUnreadCount = patientCount
	}
}

func (s *Store) CounterpartUserIDs(ctx context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("CounterpartUserIDs"); err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	ids := []string{}
	for _, c := range s.connections {
		if c.Status != models.ConnectionActive {
			continue
		}
		h, ok := s.header(c)
		if !ok {
			continue
		}
		var other string
		switch userID {
		case h.DoctorUserID:
			other = h.PatientUserID
		case h.PatientUserID:
			other = h.DoctorUserID
		default:
			continue
		}
		if !seen[other] {
			seen[other] = true
			ids = append(ids, other)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) ListActiveConnectionIDs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("ListActiveConnectionIDs"); err != nil {
		return nil, err
	}
	ids := []string{}
	for id, c := range s.connections {
		if c.Status == models.ConnectionActive {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ChatRepository

func (s *Store) GetChat(ctx context.Context, chatID string) (models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("GetChat"); err != nil {
		return models.Chat{}, err
	}
	chat, ok := s.chats[chatID]
	if !ok {
		return models.Chat{}, repositories.ErrChatNotFound
	}
	return chat, nil
}

func (s *Store) GetChatByConnection(ctx context.Context, connectionID string) (models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("GetChatByConnection"); err != nil {
		return models.Chat{}, err
	}
	chatID, ok := s.chatByConn[connectionID]
	if !ok {
		return models.Chat{}, repositories.ErrChatNotFound
	}
	return s.chats[chatID], nil
}

func (s *Store) CreateChatWithMessage(ctx context.Context, chat models.Chat, first models.Message) (models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("CreateChatWithMessage"); err != nil {
		return models.Chat{}, err
	}
	if _, exists := s.chatByConn[chat.ConnectionID]; exists {
		return models.Chat{}, repositories.ErrDuplicateChat
	}
	s.chats[chat.ID] = chat
	s.chatByConn[chat.ConnectionID] = chat.ID
	first.ChatID = chat.ID
	s.messages[first.ID] = first
	return chat, nil
}

func (s *Store) UpdateLastMessage(ctx context.Context, connectionID string, at time.Time, preview string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("UpdateLastMessage"); err != nil {
		return err
	}
	c, ok := s.connections[connectionID]
	if !ok {
		return repositories.ErrConnectionNotFound
	}
	if c.LastMessageAt != nil && c.LastMessageAt.After(at) {
		return nil
	}
	stamp := at
	c.LastMessageAt = &stamp
	c.LastActivityAt = &stamp
	if chatID, ok := s.chatByConn[connectionID]; ok {
		chat := s.chats[chatID]
		p := preview
		chat.LastMessageAt = &stamp
		chat.LastMessagePreview = &p
		s.chats[chatID] = chat
	}
	return nil
}

// MessageRepository

func (s *Store) CreateMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("CreateMessage"); err != nil {
		return models.Message{}, err
	}
	chat, ok := s.chats[msg.ChatID]
	if !ok {
		return models.Message{}, repositories.ErrConnectionNotActive
	}
	c, ok := s.connections[chat.ConnectionID]
	if !ok || c.Status != models.ConnectionActive {
		return models.Message{}, repositories.ErrConnectionNotActive
	}
	msg.IsDeleted = false
	s.messages[msg.ID] = msg
	return msg, nil
}

func (s *Store) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("GetMessage"); err != nil {
		return models.Message{}, err
	}
	msg, ok := s.messages[messageID]
	if !ok {
		return models.Message{}, repositories.ErrMessageNotFound
	}
	return msg, nil
}

func (s *Store) ListMessages(ctx context.Context, chatID string, before *models.Cursor, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("ListMessages"); err != nil {
		return nil, err
	}
	out := []models.Message{}
	for _, m := range s.sortedMessages(chatID) {
		if before != nil && !before.Before(m) {
			continue
		}
		out = append(out, m)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) MarkRead(ctx context.Context, messageID string) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("MarkRead"); err != nil {
		return models.Message{}, err
	}
	msg, ok := s.messages[messageID]
	if !ok {
		return models.Message{}, repositories.ErrMessageNotFound
	}
	msg.IsRead = true
	s.messages[messageID] = msg
	return msg, nil
}

func (s *Store) MarkAllRead(ctx context.Context, chatID string, readerID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("MarkAllRead"); err != nil {
		return 0, err
	}
	var n int64
	for id, m := range s.messages {
		if m.ChatID == chatID && m.SenderID != readerID && !m.IsRead {
			m.IsRead = true
			s.messages[id] = m
			n++
		}
	}
	return n, nil
}

func (s *Store) SoftDelete(ctx context.Context, messageID string, senderID string) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("SoftDelete"); err != nil {
		return models.Message{}, err
	}
	msg, ok := s.messages[messageID]
	if !ok || msg.SenderID != senderID || msg.IsDeleted {
		return models.Message{}, repositories.ErrAlreadyDeleted
	}
	msg.IsDeleted = true
	msg.Content = models.DeletedPlaceholder
	msg.MessageType = models.MessageDeleted
	s.messages[messageID] = msg
	return msg, nil
}

func (s *Store) CountUnread(ctx context.Context, chatID string, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("CountUnread"); err != nil {
		return 0, err
	}
	return s.countUnread(chatID, userID), nil
}

func (s *Store) countUnread(chatID, userID string) int {
	if chatID == "" {
		return 0
	}
	n := 0
	for _, m := range s.messages {
		if m.ChatID == chatID && m.SenderID != userID && !m.IsRead && !m.IsDeleted {
			n++
		}
	}
	return n
}

// ProfileRepository

func (s *Store) DoctorProfileID(ctx context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("DoctorProfileID"); err != nil {
		return "", err
	}
	id, ok := s.doctors[userID]
	if !ok {
		return "", repositories.ErrProfileNotFound
	}
	return id, nil
}

func (s *Store) PatientProfileID(ctx context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("PatientProfileID"); err != nil {
		return "", err
	}
	id, ok := s.patients[userID]
	if !ok {
		return "", repositories.ErrProfileNotFound
	}
	return id, nil
}

func (s *Store) GetIdentity(ctx context.Context, userID string) (models.IdentitySnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("GetIdentity"); err != nil {
		return models.IdentitySnapshot{}, err
	}
	snap, ok := s.users[userID]
	if !ok {
		return models.IdentitySnapshot{}, repositories.ErrUserNotFound
	}
	return snap, nil
}

var (
	_ repositories.ConnectionRepository = (*Store)(nil)
	_ repositories.ChatRepository       = (*Store)(nil)
	_ repositories.MessageRepository    = (*Store)(nil)
	_ repositories.ProfileRepository    = (*Store)(nil)
)
