package store

import (
	"context"
	"errors"
	"time"

	"github.com/Gitisfun/chat-api/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Gorm 是 Store 的 Postgres 实现。条件追加一律落在数据库的
// ON CONFLICT DO NOTHING 上，并发写不会互相覆盖。
type Gorm struct {
	db *gorm.DB
}

func NewGorm(db *gorm.DB) *Gorm { return &Gorm{db: db} }

func (g *Gorm) CreateRoom(ctx context.Context, room *models.Room) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(room).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrRoomNameConflict
			}
			return err
		}
		p := models.RoomParticipant{RoomID: room.ID, UserID: room.CreatorID}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&p).Error
	})
}

func (g *Gorm) RoomByID(ctx context.Context, id string) (*models.Room, error) {
	var room models.Room
	if err := g.db.WithContext(ctx).First(&room, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return &room, nil
}

func (g *Gorm) RoomByName(ctx context.Context, tenantID, name string) (*models.Room, error) {
	var room models.Room
	err := g.db.WithContext(ctx).Where("tenant_id = ? AND name = ?", tenantID, name).First(&room).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return &room, nil
}

func (g *Gorm) PublicRooms(ctx context.Context, tenantID string) ([]models.Room, error) {
	var rooms []models.Room
	err := g.db.WithContext(ctx).
		Where("tenant_id = ? AND visibility <> ?", tenantID, models.VisibilityPrivate).
		Order("created_at desc").
		Find(&rooms).Error
	return rooms, err
}

func (g *Gorm) AddParticipant(ctx context.Context, roomID, userID string) error {
	p := models.RoomParticipant{RoomID: roomID, UserID: userID}
	return g.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&p).Error
}

func (g *Gorm) Participants(ctx context.Context, roomID string) ([]string, error) {
	var ids []string
	err := g.db.WithContext(ctx).
		Model(&models.RoomParticipant{}).
		Where("room_id = ?", roomID).
		Order("created_at asc").
		Pluck("user_id", &ids).Error
	return ids, err
}

func (g *Gorm) DeleteRoom(ctx context.Context, id string) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_id = ?", id).Delete(&models.RoomParticipant{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Room{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrRoomNotFound
		}
		return nil
	})
}

func (g *Gorm) CreateMessage(ctx context.Context, msg *models.Message) error {
	return g.db.WithContext(ctx).Create(msg).Error
}

func (g *Gorm) MessageByID(ctx context.Context, id string) (*models.Message, error) {
	var msg models.Message
	if err := g.db.WithContext(ctx).First(&msg, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return &msg, nil
}

func (g *Gorm) RecentMessages(ctx context.Context, roomID string, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var msgs []models.Message
	err := g.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at desc").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	// 取最近 N 条后反转为升序展示
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (g *Gorm) DeleteMessage(ctx context.Context, id string) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("message_id = ?", id).Delete(&models.ReadReceipt{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Message{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrMessageNotFound
		}
		return nil
	})
}

func (g *Gorm) ReceiptsFor(ctx context.Context, messageIDs []string) (map[string][]models.ReadReceipt, error) {
	out := make(map[string][]models.ReadReceipt, len(messageIDs))
	if len(messageIDs) == 0 {
		return out, nil
	}
	var rows []models.ReadReceipt
	err := g.db.WithContext(ctx).
		Where("message_id IN ?", messageIDs).
		Order("read_at asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.MessageID] = append(out[r.MessageID], r)
	}
	return out, nil
}

func (g *Gorm) AppendReadReceipts(ctx context.Context, messageIDs []string, readerID string, at time.Time) (int64, error) {
	if len(messageIDs) == 0 {
		return 0, nil
	}
	// 只给真实存在的消息写回执，未知 id 静默跳过
	var known []string
	err := g.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id IN ?", messageIDs).
		Pluck("id", &known).Error
	if err != nil {
		return 0, err
	}
	if len(known) == 0 {
		return 0, nil
	}
	rows := make([]models.ReadReceipt, 0, len(known))
	for _, id := range known {
		rows = append(rows, models.ReadReceipt{MessageID: id, ReaderID: readerID, ReadAt: at})
	}
	res := g.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (g *Gorm) UnreadSummary(ctx context.Context, tenantID, userID string) ([]RoomUnread, error) {
	var out []RoomUnread
	err := g.db.WithContext(ctx).Raw(`
		SELECT r.id AS room_id, r.name, r.description, COUNT(m.id) AS unread
		FROM rooms r
		JOIN messages m ON m.room_id = r.id AND m.sender_id <> ?
		LEFT JOIN read_receipts rr ON rr.message_id = m.id AND rr.reader_id = ?
		WHERE r.tenant_id = ? AND rr.message_id IS NULL
		GROUP BY r.id, r.name, r.description
		ORDER BY r.name`, userID, userID, tenantID).Scan(&out).Error
	return out, err
}
