package service

import (
	"context"
	"time"

	"github.com/Gitisfun/chat-api/internal/store"
)

// MessageService 封装消息查询的业务逻辑。
type MessageService struct {
	store store.Store
}

func NewMessageService(st store.Store) *MessageService {
	return &MessageService{store: st}
}

// MessageDTO 是对外输出的消息数据，回执按追加顺序排列。
type MessageDTO struct {
	ID        string       `json:"id"`
	RoomID    string       `json:"roomId"`
	SenderID  string       `json:"senderId"`
	Sender    string       `json:"sender"`
	Content   string       `json:"content"`
	Kind      string       `json:"kind"`
	Receipts  []ReceiptDTO `json:"receipts"`
	CreatedAt time.Time    `json:"createdAt"`
}

type ReceiptDTO struct {
	ReaderID string    `json:"readerId"`
	ReadAt   time.Time `json:"readAt"`
}

// ListByRoom 查询指定房间最近的消息，按创建时间升序返回。
func (s *MessageService) ListByRoom(ctx context.Context, roomID string, limit int) ([]MessageDTO, error) {
	if _, err := s.store.RoomByID(ctx, roomID); err != nil {
		return nil, err
	}
	msgs, err := s.store.RecentMessages(ctx, roomID, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	receipts, err := s.store.ReceiptsFor(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]MessageDTO, 0, len(msgs))
	for _, m := range msgs {
		dto := MessageDTO{
			ID:        m.ID,
			RoomID:    m.RoomID,
			SenderID:  m.SenderID,
			Sender:    m.SenderName,
			Content:   m.Content,
			Kind:      m.Kind,
			Receipts:  make([]ReceiptDTO, 0),
			CreatedAt: m.CreatedAt,
		}
		for _, r := range receipts[m.ID] {
			dto.Receipts = append(dto.Receipts, ReceiptDTO{ReaderID: r.ReaderID, ReadAt: r.ReadAt})
		}
		out = append(out, dto)
	}
	return out, nil
}

// Delete 删除单条消息及其回执。
func (s *MessageService) Delete(ctx context.Context, messageID string) error {
	return s.store.DeleteMessage(ctx, messageID)
}
