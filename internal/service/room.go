package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Gitisfun/chat-api/internal/models"
	"github.com/Gitisfun/chat-api/internal/store"
	"github.com/Gitisfun/chat-api/internal/ws"
)

// RoomService 封装房间相关的业务逻辑，REST 和 WebSocket 共用同一个 store。
type RoomService struct {
	store store.Store
	hub   *ws.Hub
}

func NewRoomService(st store.Store, hub *ws.Hub) *RoomService {
	return &RoomService{store: st, hub: hub}
}

// RoomDTO 是对外输出的房间数据。
type RoomDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Visibility  string `json:"visibility"`
	Online      int    `json:"online"`
}

// Create 创建新房间，租户内重名返回 store.ErrRoomNameConflict。
func (s *RoomService) Create(ctx context.Context, tenantID, name, description, visibility, creatorID string) (*RoomDTO, error) {
	if visibility != models.VisibilityPrivate {
		visibility = models.VisibilityPublic
	}
	now := time.Now().UTC()
	room := models.Room{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		Name:        name,
		Description: description,
		Visibility:  visibility,
		CreatorID:   creatorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateRoom(ctx, &room); err != nil {
		return nil, err
	}
	return &RoomDTO{ID: room.ID, Name: room.Name, Description: room.Description, Visibility: room.Visibility, Online: 0}, nil
}

// ListPublic 返回租户的公开房间，附带各房间的实时在线人数。
func (s *RoomService) ListPublic(ctx context.Context, tenantID string) ([]RoomDTO, error) {
	rooms, err := s.store.PublicRooms(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]RoomDTO, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, RoomDTO{
			ID:          r.ID,
			Name:        r.Name,
			Description: r.Description,
			Visibility:  r.Visibility,
			Online:      s.hub.Online(r.ID),
		})
	}
	return out, nil
}

// UnreadSummary 返回该用户在租户各房间的未读汇总。
func (s *RoomService) UnreadSummary(ctx context.Context, tenantID, userID string) ([]store.RoomUnread, error) {
	return s.store.UnreadSummary(ctx, tenantID, userID)
}

// Delete 删除房间及其消息、回执和成员名单。
func (s *RoomService) Delete(ctx context.Context, roomID string) error {
	return s.store.DeleteRoom(ctx, roomID)
}
