package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Gitisfun/chat-api/internal/models"
)

// Memory 是 Store 的内存实现，语义与 Gorm 完全一致。
// 核心的测试跑在它上面，也可用作无数据库的开发模式。
type Memory struct {
	mu           sync.RWMutex
	rooms        map[string]*models.Room
	roomsByName  map[string]string // tenant + "\x00" + name -> room id
	participants map[string][]string
	messages     map[string]*models.Message
	byRoom       map[string][]string // room id -> message ids, 追加序
	receipts     map[string][]models.ReadReceipt

	// FailCreates 模拟持久化故障，仅测试使用。
	FailCreates bool
	failErr     error
}

func NewMemory() *Memory {
	return &Memory{
		rooms:        make(map[string]*models.Room),
		roomsByName:  make(map[string]string),
		participants: make(map[string][]string),
		messages:     make(map[string]*models.Message),
		byRoom:       make(map[string][]string),
		receipts:     make(map[string][]models.ReadReceipt),
	}
}

// FailWith 让后续所有写入返回 err，模拟持久层故障。
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailCreates = err != nil
	m.failErr = err
}

func nameKey(tenantID, name string) string { return tenantID + "\x00" + name }

func (m *Memory) CreateRoom(_ context.Context, room *models.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCreates {
		return m.failErr
	}
	key := nameKey(room.TenantID, room.Name)
	if _, ok := m.roomsByName[key]; ok {
		return ErrRoomNameConflict
	}
	cp := *room
	m.rooms[cp.ID] = &cp
	m.roomsByName[key] = cp.ID
	m.participants[cp.ID] = []string{cp.CreatorID}
	return nil
}

func (m *Memory) RoomByID(_ context.Context, id string) (*models.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	cp := *room
	return &cp, nil
}

func (m *Memory) RoomByName(_ context.Context, tenantID, name string) (*models.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.roomsByName[nameKey(tenantID, name)]
	if !ok {
		return nil, ErrRoomNotFound
	}
	cp := *m.rooms[id]
	return &cp, nil
}

func (m *Memory) PublicRooms(_ context.Context, tenantID string) ([]models.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Room
	for _, room := range m.rooms {
		if room.TenantID == tenantID && room.Visibility != models.VisibilityPrivate {
			out = append(out, *room)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) AddParticipant(_ context.Context, roomID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCreates {
		return m.failErr
	}
	if _, ok := m.rooms[roomID]; !ok {
		return ErrRoomNotFound
	}
	for _, id := range m.participants[roomID] {
		if id == userID {
			return nil
		}
	}
	m.participants[roomID] = append(m.participants[roomID], userID)
	return nil
}

func (m *Memory) Participants(_ context.Context, roomID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.participants[roomID]
	out := make([]string, len(ids))
	copy(out, ids)
	return out, nil
}

func (m *Memory) DeleteRoom(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[id]
	if !ok {
		return ErrRoomNotFound
	}
	delete(m.roomsByName, nameKey(room.TenantID, room.Name))
	delete(m.rooms, id)
	delete(m.participants, id)
	for _, mid := range m.byRoom[id] {
		delete(m.messages, mid)
		delete(m.receipts, mid)
	}
	delete(m.byRoom, id)
	return nil
}

func (m *Memory) CreateMessage(_ context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCreates {
		return m.failErr
	}
	cp := *msg
	m.messages[cp.ID] = &cp
	m.byRoom[cp.RoomID] = append(m.byRoom[cp.RoomID], cp.ID)
	return nil
}

func (m *Memory) MessageByID(_ context.Context, id string) (*models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msg, ok := m.messages[id]
	if !ok {
		return nil, ErrMessageNotFound
	}
	cp := *msg
	return &cp, nil
}

func (m *Memory) RecentMessages(_ context.Context, roomID string, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.byRoom[roomID]
	if len(ids) > limit {
		ids = ids[len(ids)-limit:]
	}
	out := make([]models.Message, 0, len(ids))
	for _, id := range ids {
		out = append(out, *m.messages[id])
	}
	return out, nil
}

func (m *Memory) DeleteMessage(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return ErrMessageNotFound
	}
	ids := m.byRoom[msg.RoomID]
	for i, mid := range ids {
		if mid == id {
			m.byRoom[msg.RoomID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	delete(m.messages, id)
	delete(m.receipts, id)
	return nil
}

func (m *Memory) ReceiptsFor(_ context.Context, messageIDs []string) (map[string][]models.ReadReceipt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]models.ReadReceipt, len(messageIDs))
	for _, id := range messageIDs {
		if rs := m.receipts[id]; len(rs) > 0 {
			cp := make([]models.ReadReceipt, len(rs))
			copy(cp, rs)
			out[id] = cp
		}
	}
	return out, nil
}

func (m *Memory) AppendReadReceipts(_ context.Context, messageIDs []string, readerID string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCreates {
		return 0, m.failErr
	}
	var modified int64
	for _, id := range messageIDs {
		if _, ok := m.messages[id]; !ok {
			continue
		}
		already := false
		for _, r := range m.receipts[id] {
			if r.ReaderID == readerID {
				already = true
				break
			}
		}
		if already {
			continue
		}
		m.receipts[id] = append(m.receipts[id], models.ReadReceipt{MessageID: id, ReaderID: readerID, ReadAt: at})
		modified++
	}
	return modified, nil
}

func (m *Memory) UnreadSummary(_ context.Context, tenantID, userID string) ([]RoomUnread, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []RoomUnread
	for _, room := range m.rooms {
		if room.TenantID != tenantID {
			continue
		}
		var unread int64
		for _, mid := range m.byRoom[room.ID] {
			msg := m.messages[mid]
			if msg.SenderID == userID {
				continue
			}
			read := false
			for _, r := range m.receipts[mid] {
				if r.ReaderID == userID {
					read = true
					break
				}
			}
			if !read {
				unread++
			}
		}
		if unread > 0 {
			out = append(out, RoomUnread{RoomID: room.ID, Name: room.Name, Description: room.Description, Unread: unread})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
