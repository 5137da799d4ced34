package ws

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gitisfun/chat-api/internal/config"
	"github.com/Gitisfun/chat-api/internal/store"
)

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func recvFrame(t *testing.T, c *Client) frame {
	t.Helper()
	select {
	case raw := <-c.send:
		var f frame
		require.NoError(t, json.Unmarshal(raw, &f))
		return f
	default:
		t.Fatalf("client %s: expected a frame, got none", c.id)
		return frame{}
	}
}

func requireFrame(t *testing.T, c *Client, wantType string) frame {
	t.Helper()
	f := recvFrame(t, c)
	require.Equal(t, wantType, f.Type)
	return f
}

func noFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw := <-c.send:
		t.Fatalf("client %s: unexpected frame %s", c.id, raw)
	default:
	}
}

func decodeData(t *testing.T, f frame, into any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(f.Data, into))
}

func testConfig() config.Config {
	return config.Config{
		DefaultTenant:    "default",
		HistoryLimit:     50,
		MaxMessageLength: 2000,
		RoomsNewGlobal:   true,
	}
}

func newGatewayEnv(cfg config.Config) (*Gateway, *store.Memory, *Registry, *Hub) {
	mem := store.NewMemory()
	reg := NewRegistry()
	hub := NewHub()
	return NewGateway(mem, reg, hub, cfg), mem, reg, hub
}

// identify 并吃掉回发的 rooms:list。
func identify(t *testing.T, g *Gateway, c *Client, userID, name, tenant string) {
	t.Helper()
	g.Dispatch(context.Background(), c, &ConnectIdentity{Username: name, UserID: userID, TenantID: tenant})
	requireFrame(t, c, "rooms:list")
}

// createRoom 建房并返回房间 id，吃掉 room:created 和创建者收到的 rooms:new。
func createRoom(t *testing.T, g *Gateway, c *Client, name string) string {
	t.Helper()
	g.Dispatch(context.Background(), c, &CreateRoom{Name: name})
	f := requireFrame(t, c, "room:created")
	var room RoomSummary
	decodeData(t, f, &room)
	requireFrame(t, c, "rooms:new")
	return room.ID
}

// joinRoom 入房并吃掉 room:joined。
func joinRoom(t *testing.T, g *Gateway, c *Client, roomID string) RoomJoined {
	t.Helper()
	g.Dispatch(context.Background(), c, &JoinRoom{RoomID: roomID})
	f := requireFrame(t, c, "room:joined")
	var joined RoomJoined
	decodeData(t, f, &joined)
	return joined
}

func TestIdentify_ReturnsPublicRooms(t *testing.T) {
	g, _, reg, _ := newGatewayEnv(testConfig())
	a := testClient("ca", "")
	identify(t, g, a, "u-a", "alice", "t1")

	roomID := createRoom(t, g, a, "general")
	require.NotEmpty(t, roomID)

	b := testClient("cb", "")
	g.Dispatch(context.Background(), b, &ConnectIdentity{Username: "bob", UserID: "u-b", TenantID: "t1"})
	f := requireFrame(t, b, "rooms:list")
	var rooms []RoomSummary
	decodeData(t, f, &rooms)
	require.Len(t, rooms, 1)
	assert.Equal(t, "general", rooms[0].Name)

	sess, ok := reg.Get("cb")
	require.True(t, ok)
	assert.Equal(t, "u-b", sess.UserID)
	assert.Equal(t, "", sess.RoomID)
}

func TestIdentify_MissingUserID(t *testing.T) {
	g, _, reg, _ := newGatewayEnv(testConfig())
	c := testClient("c1", "")
	g.Dispatch(context.Background(), c, &ConnectIdentity{Username: "ghost"})
	requireFrame(t, c, "error")
	_, ok := reg.Get("c1")
	assert.False(t, ok)
}

func TestIdentify_DefaultTenant(t *testing.T) {
	g, _, reg, _ := newGatewayEnv(testConfig())
	c := testClient("c1", "")
	identify(t, g, c, "u1", "alice", "")
	sess, _ := reg.Get("c1")
	assert.Equal(t, "default", sess.TenantID)
}

func TestIdentify_AgainWhileJoined(t *testing.T) {
	g, _, reg, hub := newGatewayEnv(testConfig())
	a := testClient("ca", "")
	b := testClient("cb", "")
	identify(t, g, a, "u-a", "alice", "t1")
	identify(t, g, b, "u-b", "bob", "t1")
	roomID := createRoom(t, g, a, "general")
	requireFrame(t, b, "rooms:new")
	joinRoom(t, g, a, roomID)
	joinRoom(t, g, b, roomID)
	requireFrame(t, a, "user:joined")

	// b 带着新身份重新 identify：旧房间先收到离开通知，
	// 广播组和注册表一起清掉旧房间
	g.Dispatch(context.Background(), b, &ConnectIdentity{Username: "robert", UserID: "u-b2", TenantID: "t2"})
	var notice UserNotice
	decodeData(t, requireFrame(t, a, "user:left"), &notice)
	assert.Equal(t, "bob", notice.Username)
	requireFrame(t, b, "rooms:list")

	sess, ok := reg.Get("cb")
	require.True(t, ok)
	assert.Equal(t, "u-b2", sess.UserID)
	assert.Equal(t, "t2", sess.TenantID)
	assert.Equal(t, "", sess.RoomID)
	assert.Equal(t, 1, hub.Online(roomID))

	// 旧房间的广播不再命中 b
	g.Dispatch(context.Background(), a, &SendMessage{Content: "after"})
	requireFrame(t, a, "message:new")
	noFrame(t, b)

	// 新租户的定向通告按改写后的租户过滤
	hub.Announce(encode("rooms:new", RoomSummary{Name: "x"}), "t2")
	requireFrame(t, b, "rooms:new")
	noFrame(t, a)
}

func TestCreateRoom_Scenario(t *testing.T) {
	g, mem, _, _ := newGatewayEnv(testConfig())
	a := testClient("ca", "")
	identify(t, g, a, "u-a", "alice", "t1")

	g.Dispatch(context.Background(), a, &CreateRoom{Name: "general", Description: "the lobby"})
	f := requireFrame(t, a, "room:created")
	var room RoomSummary
	decodeData(t, f, &room)
	require.NotEmpty(t, room.ID)
	assert.Equal(t, "general", room.Name)
	requireFrame(t, a, "rooms:new")

	// 创建者自动进入成员名单
	participants, err := mem.Participants(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"u-a"}, participants)
}

func TestCreateRoom_NameConflictInTenant(t *testing.T) {
	g, _, _, _ := newGatewayEnv(testConfig())
	a := testClient("ca", "")
	b := testClient("cb", "")
	identify(t, g, a, "u-a", "alice", "t1")
	identify(t, g, b, "u-b", "bob", "t1")

	createRoom(t, g, a, "general")
	requireFrame(t, b, "rooms:new") // b 也收到通告

	g.Dispatch(context.Background(), b, &CreateRoom{Name: "general"})
	f := requireFrame(t, b, "error")
	var e ErrorNotice
	decodeData(t, f, &e)
	assert.Equal(t, errNameConflict, e.Message)
	noFrame(t, a)
}

func TestCreateRoom_SameNameDifferentTenants(t *testing.T) {
	g, _, _, _ := newGatewayEnv(testConfig())
	a := testClient("ca", "")
	b := testClient("cb", "")
	identify(t, g, a, "u-a", "alice", "t1")
	identify(t, g, b, "u-b", "bob", "t2")

	createRoom(t, g, a, "general")
	requireFrame(t, b, "rooms:new") // 全局通告跨租户可见

	g.Dispatch(context.Background(), b, &CreateRoom{Name: "general"})
	requireFrame(t, b, "room:created")
}

func TestCreateRoom_PrivateNotAnnounced(t *testing.T) {
	g, _, _, _ := newGatewayEnv(testConfig())
	a := testClient("ca", "")
	b := testClient("cb", "")
	identify(t, g, a, "u-a", "alice", "t1")
	identify(t, g, b, "u-b", "bob", "t1")

	g.Dispatch(context.Background(), a, &CreateRoom{Name: "secret", IsPrivate: true})
	requireFrame(t, a, "room:created")
	noFrame(t, a)
	noFrame(t, b)
}

func TestRoomsNew_TenantScopedWhenConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.RoomsNewGlobal = false
	g, _, _, _ := newGatewayEnv(cfg)
	a := testClient("ca", "")
	other := testClient("co", "")
	identify(t, g, a, "u-a", "alice", "t1")
	identify(t, g, other, "u-o", "oscar", "t2")

	createRoom(t, g, a, "general")
	noFrame(t, other)
}

func TestJoin_Scenario(t *testing.T) {
	g, mem, reg, _ := newGatewayEnv(testConfig())
	a := testClient("ca", "")
	b := testClient("cb", "")
	identify(t, g, a, "u-a", "alice", "t1")
	identify(t, g, b, "u-b", "bob", "t1")

	roomID := createRoom(t, g, a, "general")
	requireFrame(t, b, "rooms:new")

	joined := joinRoom(t, g, a, roomID)
	assert.Equal(t, "general", joined.Room.Name)
	assert.Empty(t, joined.Messages)

	// b 入房：b 收到摘要+历史，a 收到 user:joined，b 不收自己的
	joined = joinRoom(t, g, b, roomID)
	assert.Empty(t, joined.Messages)
	f := requireFrame(t, a, "user:joined")
	var notice UserNotice
	decodeData(t, f, &notice)
	assert.Equal(t, "bob", notice.Username)
	noFrame(t, b)

	sess, _ := reg.Get("cb")
	assert.Equal(t, roomID, sess.RoomID)
	participants, err := mem.Participants(context.Background(), roomID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u-a", "u-b"}, participants)
}

func TestJoin_RoomNotFound(t *testing.T) {
	g, _, reg, _ := newGatewayEnv(testConfig())
	a := testClient("ca", "")
	c := testClient("cc", "")
	identify(t, g, a, "u-a", "alice", "t1")
	identify(t, g, c, "u-c", "carol", "t1")

	roomID := createRoom(t, g, a, "general")
	requireFrame(t, c, "rooms:new")
	joinRoom(t, g, c, roomID)
	requireFrame(t, a, "user:joined")

	// 加入不存在的房间：只有 c 收到 error，registry 不变
	g.Dispatch(context.Background(), c, &JoinRoom{RoomID: "no-such-room"})
	f := requireFrame(t, c, "error")
	var e ErrorNotice
	decodeData(t, f, &e)
	assert.Equal(t, errRoomNotFound, e.Message)
	noFrame(t, a)

	sess, _ := reg.Get("cc")
	assert.Equal(t, roomID, sess.RoomID)
}

func TestJoin_SwitchesRoom(t *testing.T) {
	g, _, reg, _ := newGatewayEnv(testConfig())
	a := testClient("ca", "")
	b := testClient("cb", "")
	identify(t, g, a, "u-a", "alice", "t1")
	identify(t, g, b, "u-b", "bob", "t1")

	r1 := createRoom(t, g, a, "one")
	requireFrame(t, b, "rooms:new")
	r2 := createRoom(t, g, a, "two")
	requireFrame(t, b, "rooms:new")

	joinRoom(t, g, a, r1)
	joinRoom(t, g, b, r1)
	requireFrame(t, a, "user:joined")

	// b 换房：r1 里的 a 收到 user:left，b 进入 r2
	joined := joinRoom(t, g, b, r2)
	assert.Equal(t, "two", joined.Room.Name)
	f := requireFrame(t, a, "user:left")
	var notice UserNotice
	decodeData(t, f, &notice)
	assert.Equal(t, "bob", notice.Username)

	sess, _ := reg.Get("cb")
	assert.Equal(t, r2, sess.RoomID)
}

func TestJoin_ParticipantAppendFailureStillJoins(t *testing.T) {
	g, mem, reg, _ := newGatewayEnv(testConfig())
	a := testClient("ca", "")
	b := testClient("cb", "")
	identify(t, g, a, "u-a", "alice", "t1")
	identify(t, g, b, "u-b", "bob", "t1")
	roomID := createRoom(t, g, a, "general")
	requireFrame(t, b, "rooms:new")
	joinRoom(t, g, a, roomID)

	mem.FailWith(errors.New("db down"))
	joined := joinRoom(t, g, b, roomID)
	assert.Equal(t, "general", joined.Room.Name)
	requireFrame(t, a, "user:joined")
	sess, _ := reg.Get("cb")
	assert.Equal(t, roomID, sess.RoomID)

	// 名单追加失败被吞掉，名单里只有创建者
	mem.FailWith(nil)
	participants, err := mem.Participants(context.Background(), roomID)
	require.NoError(t, err)
	assert.Equal(t, []string{"u-a"}, participants)
}

func TestLeave_Scenario(t *testing.T) {
	g, mem, reg, hub := newGatewayEnv(testConfig())
	a := testClient("ca", "")
	b := testClient("cb", "")
	identify(t, g, a, "u-a", "alice", "t1")
	identify(t, g, b, "u-b", "bob", "t1")
	roomID := createRoom(t, g, a, "general")
	requireFrame(t, b, "rooms:new")
	joinRoom(t, g, a, roomID)
	joinRoom(t, g, b, roomID)
	requireFrame(t, a, "user:joined")

	g.Dispatch(context.Background(), b, &LeaveRoom{})

	f := requireFrame(t, a, "user:left")
	var notice UserNotice
	decodeData(t, f, &notice)
	assert.Equal(t, "bob", notice.Username)

	sess, _ := reg.Get("cb")
	assert.Equal(t, "", sess.RoomID)
	assert.Equal(t, 1, hub.Online(roomID))

	// 离开不收缩持久化名单
	participants, err := mem.Participants(context.Background(), roomID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u-a", "u-b"}, participants)

	// 未入房时 leave 是静默 no-op
	g.Dispatch(context.Background(), b, &LeaveRoom{})
	noFrame(t, b)
	noFrame(t, a)
}

func TestSendMessage_Scenario(t *testing.T) {
	g, _, _, _ := newGatewayEnv(testConfig())
	a := testClient("ca", "")
	b := testClient("cb", "")
	identify(t, g, a, "u-a", "alice", "t1")
	identify(t, g, b, "u-b", "bob", "t1")
	roomID := createRoom(t, g, a, "general")
	requireFrame(t, b, "rooms:new")
	joinRoom(t, g, a, roomID)
	joinRoom(t, g, b, roomID)
	requireFrame(t, a, "user:joined")

	g.Dispatch(context.Background(), b, &SendMessage{Content: "hi"})

	// 双方都收到 message:new，发送者也以存储副本对齐
	for _, c := range []*Client{a, b} {
		f := requireFrame(t, c, "message:new")
		var msg MessageDTO
		decodeData(t, f, &msg)
		assert.Equal(t, "hi", msg.Content)
		assert.Equal(t, "u-b", msg.SenderID)
		assert.Equal(t, "bob", msg.Sender)
		assert.Equal(t, "text", msg.Kind)
		assert.NotEmpty(t, msg.ID)
		assert.False(t, msg.CreatedAt.IsZero())
	}
}

func TestSendMessage_NotInRoom(t *testing.T) {
	g, _, _, _ := newGatewayEnv(testConfig())
	c := testClient("c1", "")
	identify(t, g, c, "u1", "alice", "t1")

	g.Dispatch(context.Background(), c, &SendMessage{Content: "hi"})
	f := requireFrame(t, c, "error")
	var e ErrorNotice
	decodeData(t, f, &e)
	assert.Equal(t, errNotInRoom, e.Message)
}

func TestSendMessage_PersistFailureReportedToSenderOnly(t *testing.T) {
	g, mem, _, _ := newGatewayEnv(testConfig())
	a := testClient("ca", "")
	b := testClient("cb", "")
	identify(t, g, a, "u-a", "alice", "t1")
	identify(t, g, b, "u-b", "bob", "t1")
	roomID := createRoom(t, g, a, "general")
	requireFrame(t, b, "rooms:new")
	joinRoom(t, g, a, roomID)
	joinRoom(t, g, b, roomID)
	requireFrame(t, a, "user:joined")

	mem.FailWith(errors.New("db down"))
	g.Dispatch(context.Background(), b, &SendMessage{Content: "hi"})

	requireFrame(t, b, "error")
	noFrame(t, a)
}

func TestSendMessage_ContentBounds(t *testing.T) {
	cfg := testConfig()
	cfg.MaxMessageLength = 5
	g, _, _, _ := newGatewayEnv(cfg)
	a := testClient("ca", "")
	identify(t, g, a, "u-a", "alice", "t1")
	roomID := createRoom(t, g, a, "general")
	joinRoom(t, g, a, roomID)

	g.Dispatch(context.Background(), a, &SendMessage{Content: "   "})
	requireFrame(t, a, "error")

	g.Dispatch(context.Background(), a, &SendMessage{Content: "toolongmessage"})
	requireFrame(t, a, "error")
}

// 最新 N 条历史按升序回给新加入者
func TestJoin_HistoryAscending(t *testing.T) {
	g, _, _, _ := newGatewayEnv(testConfig())
	a := testClient("ca", "")
	b := testClient("cb", "")
	identify(t, g, a, "u-a", "alice", "t1")
	identify(t, g, b, "u-b", "bob", "t1")
	roomID := createRoom(t, g, a, "general")
	requireFrame(t, b, "rooms:new")
	joinRoom(t, g, a, roomID)

	for _, text := range []string{"one", "two", "three"} {
		g.Dispatch(context.Background(), a, &SendMessage{Content: text})
		requireFrame(t, a, "message:new")
	}

	joined := joinRoom(t, g, b, roomID)
	requireFrame(t, a, "user:joined")
	require.Len(t, joined.Messages, 3)
	assert.Equal(t, "one", joined.Messages[0].Content)
	assert.Equal(t, "three", joined.Messages[2].Content)
}

func TestMarkRead_Scenario(t *testing.T) {
	g, _, _, _ := newGatewayEnv(testConfig())
	a := testClient("ca", "")
	b := testClient("cb", "")
	identify(t, g, a, "u-a", "alice", "t1")
	identify(t, g, b, "u-b", "bob", "t1")
	roomID := createRoom(t, g, a, "general")
	requireFrame(t, b, "rooms:new")
	joinRoom(t, g, a, roomID)
	joinRoom(t, g, b, roomID)
	requireFrame(t, a, "user:joined")

	g.Dispatch(context.Background(), b, &SendMessage{Content: "hi"})
	var msg MessageDTO
	decodeData(t, requireFrame(t, a, "message:new"), &msg)
	requireFrame(t, b, "message:new")

	// a 标记已读：全房间收到 message:read，a 再收到 success
	g.Dispatch(context.Background(), a, &MarkRead{MessageID: msg.ID})
	var read ReadNotice
	decodeData(t, requireFrame(t, a, "message:read"), &read)
	assert.Equal(t, msg.ID, read.MessageID)
	assert.Equal(t, "u-a", read.Receipt.ReaderID)
	decodeData(t, requireFrame(t, b, "message:read"), &read)
	assert.Equal(t, "u-a", read.Receipt.ReaderID)
	var success ReadSuccess
	decodeData(t, requireFrame(t, a, "message:read:success"), &success)
	assert.EqualValues(t, 1, success.Modified)

	// 重复标记：无第二次广播，success 仍然返回
	g.Dispatch(context.Background(), a, &MarkRead{MessageID: msg.ID})
	decodeData(t, requireFrame(t, a, "message:read:success"), &success)
	assert.EqualValues(t, 0, success.Modified)
	noFrame(t, b)
}

func TestMarkRead_MessageNotFound(t *testing.T) {
	g, _, _, _ := newGatewayEnv(testConfig())
	c := testClient("c1", "")
	identify(t, g, c, "u1", "alice", "t1")

	g.Dispatch(context.Background(), c, &MarkRead{MessageID: "nope"})
	f := requireFrame(t, c, "error")
	var e ErrorNotice
	decodeData(t, f, &e)
	assert.Equal(t, errMessageNotFound, e.Message)
}

func TestMarkReadMany_PartialModified(t *testing.T) {
	g, mem, _, _ := newGatewayEnv(testConfig())
	a := testClient("ca", "")
	b := testClient("cb", "")
	identify(t, g, a, "u-a", "alice", "t1")
	identify(t, g, b, "u-b", "bob", "t1")
	roomID := createRoom(t, g, a, "general")
	requireFrame(t, b, "rooms:new")
	joinRoom(t, g, a, roomID)
	joinRoom(t, g, b, roomID)
	requireFrame(t, a, "user:joined")

	var ids []string
	for _, text := range []string{"one", "two", "three"} {
		g.Dispatch(context.Background(), b, &SendMessage{Content: text})
		var msg MessageDTO
		decodeData(t, requireFrame(t, a, "message:new"), &msg)
		requireFrame(t, b, "message:new")
		ids = append(ids, msg.ID)
	}

	// 先单独读掉第一条
	g.Dispatch(context.Background(), a, &MarkRead{MessageID: ids[0]})
	requireFrame(t, a, "message:read")
	requireFrame(t, b, "message:read")
	requireFrame(t, a, "message:read:success")

	// 批量标记 3 条，其中 1 条已读：modified=2，广播带全部 id
	g.Dispatch(context.Background(), a, &MarkReadMany{MessageIDs: ids})
	var many ReadManyNotice
	decodeData(t, requireFrame(t, a, "messages:read"), &many)
	assert.Equal(t, ids, many.MessageIDs)
	assert.Equal(t, "u-a", many.Receipt.ReaderID)
	requireFrame(t, b, "messages:read")
	var success ReadManySuccess
	decodeData(t, requireFrame(t, a, "messages:read:success"), &success)
	assert.EqualValues(t, 2, success.Modified)

	// 3 条消息上都有 a 的回执
	receipts, err := mem.ReceiptsFor(context.Background(), ids)
	require.NoError(t, err)
	for _, id := range ids {
		found := false
		for _, r := range receipts[id] {
			if r.ReaderID == "u-a" {
				found = true
			}
		}
		assert.True(t, found, "receipt missing on %s", id)
	}

	// 再来一遍：没有新增，不打扰房间
	g.Dispatch(context.Background(), a, &MarkReadMany{MessageIDs: ids})
	decodeData(t, requireFrame(t, a, "messages:read:success"), &success)
	assert.EqualValues(t, 0, success.Modified)
	noFrame(t, b)
}

func TestTyping_ExcludesActor(t *testing.T) {
	g, _, _, _ := newGatewayEnv(testConfig())
	a := testClient("ca", "")
	b := testClient("cb", "")
	identify(t, g, a, "u-a", "alice", "t1")
	identify(t, g, b, "u-b", "bob", "t1")
	roomID := createRoom(t, g, a, "general")
	requireFrame(t, b, "rooms:new")
	joinRoom(t, g, a, roomID)
	joinRoom(t, g, b, roomID)
	requireFrame(t, a, "user:joined")

	g.Dispatch(context.Background(), b, &TypingStart{})
	var notice TypingNotice
	decodeData(t, requireFrame(t, a, "typing:start"), &notice)
	assert.Equal(t, "bob", notice.Username)
	noFrame(t, b)

	g.Dispatch(context.Background(), b, &TypingStop{})
	requireFrame(t, a, "typing:stop")
	noFrame(t, b)

	// 不入房的 typing 静默丢弃
	g.Dispatch(context.Background(), b, &LeaveRoom{})
	requireFrame(t, a, "user:left")
	g.Dispatch(context.Background(), b, &TypingStart{})
	noFrame(t, a)
	noFrame(t, b)
}

func TestListRoomUsers(t *testing.T) {
	g, _, _, _ := newGatewayEnv(testConfig())
	a := testClient("ca", "")
	b := testClient("cb", "")
	identify(t, g, a, "u-a", "alice", "t1")
	identify(t, g, b, "u-b", "bob", "t1")
	roomID := createRoom(t, g, a, "general")
	requireFrame(t, b, "rooms:new")
	joinRoom(t, g, a, roomID)
	joinRoom(t, g, b, roomID)
	requireFrame(t, a, "user:joined")

	g.Dispatch(context.Background(), a, &ListRoomUsers{})
	var users []RoomUserDTO
	decodeData(t, requireFrame(t, a, "room:users"), &users)
	require.Len(t, users, 1)
	assert.Equal(t, "u-b", users[0].UserID)

	// 未入房时报 NotInRoom
	g.Dispatch(context.Background(), a, &LeaveRoom{})
	requireFrame(t, b, "user:left")
	g.Dispatch(context.Background(), a, &ListRoomUsers{})
	var e ErrorNotice
	decodeData(t, requireFrame(t, a, "error"), &e)
	assert.Equal(t, errNotInRoom, e.Message)
}

func TestDisconnect_Teardown(t *testing.T) {
	g, _, reg, hub := newGatewayEnv(testConfig())
	a := testClient("ca", "")
	b := testClient("cb", "")
	identify(t, g, a, "u-a", "alice", "t1")
	identify(t, g, b, "u-b", "bob", "t1")
	roomID := createRoom(t, g, a, "general")
	requireFrame(t, b, "rooms:new")
	joinRoom(t, g, a, roomID)
	joinRoom(t, g, b, roomID)
	requireFrame(t, a, "user:joined")

	g.Disconnect(b)

	// registry 清空，房间收到 user:left
	_, ok := reg.Get("cb")
	assert.False(t, ok)
	var notice UserNotice
	decodeData(t, requireFrame(t, a, "user:left"), &notice)
	assert.Equal(t, "bob", notice.Username)
	assert.Equal(t, 1, hub.Online(roomID))

	// 断开后的广播不再命中 b
	g.Dispatch(context.Background(), a, &SendMessage{Content: "after"})
	requireFrame(t, a, "message:new")
	noFrame(t, b)

	// 重复断开无害
	g.Disconnect(b)
}

func TestUnauthenticated_BeforeIdentify(t *testing.T) {
	g, _, _, _ := newGatewayEnv(testConfig())
	c := testClient("c1", "")

	for _, ev := range []Inbound{
		&JoinRoom{RoomID: "r1"},
		&SendMessage{Content: "hi"},
		&MarkRead{MessageID: "m1"},
		&MarkReadMany{MessageIDs: []string{"m1"}},
		&CreateRoom{Name: "general"},
		&ListRoomUsers{},
	} {
		g.Dispatch(context.Background(), c, ev)
		var e ErrorNotice
		decodeData(t, requireFrame(t, c, "error"), &e)
		assert.Equal(t, errUnauthenticated, e.Message, "event %T", ev)
	}
}
