package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/remedygo/remedyd/internal/backend"
	"github.com/remedygo/remedyd/internal/bus"
	"github.com/remedygo/remedyd/internal/store"
)

// mockBackend records writes and fails selected operations.
type mockBackend struct {
	mu        sync.Mutex
	sent      []backend.OutMessage
	reactions []string // "+msgID:userID:emoji" / "-msgID:userID:emoji"
	typing    []backend.TypingRow
	reports   []backend.Report
	flags     []string
	fail      map[string]error // op name -> error
}

func (m *mockBackend) failOp(op string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fail[op]
}

func (m *mockBackend) SendMessage(_ context.Context, out backend.OutMessage) error {
	if err := m.failOp("send"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, out)
	return nil
}

func (m *mockBackend) UpdateMessageBody(_ context.Context, _, _ string) error {
	return m.failOp("edit")
}

func (m *mockBackend) DeleteMessage(_ context.Context, _ string) error {
	return m.failOp("delete")
}

func (m *mockBackend) InsertReaction(_ context.Context, _, msgID, userID, emoji string) error {
	if err := m.failOp("react"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reactions = append(m.reactions, "+"+msgID+":"+userID+":"+emoji)
	return nil
}

func (m *mockBackend) DeleteReaction(_ context.Context, msgID, userID, emoji string) error {
	if err := m.failOp("react"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reactions = append(m.reactions, "-"+msgID+":"+userID+":"+emoji)
	return nil
}

func (m *mockBackend) SetLastRead(_ context.Context, _, _ string, _ time.Time) error {
	return m.failOp("read")
}

func (m *mockBackend) BroadcastTyping(_ context.Context, t backend.TypingRow) error {
	if err := m.failOp("typing"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.typing = append(m.typing, t)
	return nil
}

func (m *mockBackend) InsertReport(_ context.Context, r backend.Report) error {
	if err := m.failOp("report"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, r)
	return nil
}

func (m *mockBackend) SetMemberFlag(_ context.Context, chatID, userID, flag string, value bool) error {
	if err := m.failOp("flag"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flags = append(m.flags, fmt.Sprintf("%s:%s:%s=%v", chatID, userID, flag, value))
	return nil
}

func (m *mockBackend) LeaveChat(_ context.Context, _, _ string) error {
	return m.failOp("leave")
}

func (m *mockBackend) UpdateGroupName(_ context.Context, _, _ string) error {
	return m.failOp("rename")
}

func (m *mockBackend) AddMembers(_ context.Context, _ string, _ []string) error {
	return m.failOp("add")
}

func (m *mockBackend) RemoveMember(_ context.Context, _, _ string) error {
	return m.failOp("remove")
}

func (m *mockBackend) UploadAttachment(_ context.Context, name string, _ []byte, _ string) (string, error) {
	if err := m.failOp("upload"); err != nil {
		return "", err
	}
	return "https://cdn.example/chat-attachments/" + name, nil
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestEngine(t *testing.T) (*Engine, *mockBackend, *store.DB) {
	t.Helper()
	db := testDB(t)
	be := &mockBackend{fail: map[string]error{}}
	logger, _ := zap.NewDevelopment()
	e := NewEngine(db, be, bus.New(), 0, logger)
	e.SetSelf("me")
	return e, be, db
}

func me() *backend.Identity {
	return &backend.Identity{UserID: "me", DisplayName: "Mia", Role: "member", ProfileComplete: true}
}

func moderator() *backend.Identity {
	return &backend.Identity{UserID: "mod", DisplayName: "Mod", Role: "moderator", ProfileComplete: true}
}

func seedChat(t *testing.T, db *store.DB, chatID string) {
	t.Helper()
	if err := db.UpsertChat(&store.Chat{ChatID: chatID, Name: "Sales Floor", IsGroup: true}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertMember(&store.Member{ChatID: chatID, UserID: "me", DisplayName: "Mia", Role: store.RoleMember}); err != nil {
		t.Fatal(err)
	}
}

func TestSendMessageHappyPath(t *testing.T) {
	e, be, db := newTestEngine(t)
	seedChat(t, db, "c1")

	msg, err := e.SendMessage(context.Background(), me(), SendInput{ChatID: "c1", Body: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if msg.Status != store.StatusSent {
		t.Errorf("status = %q, want sent", msg.Status)
	}
	if msg.MsgID == "" {
		t.Error("no client-generated message id")
	}
	if len(be.sent) != 1 || be.sent[0].MsgID != msg.MsgID {
		t.Errorf("backend sent = %+v", be.sent)
	}

	stored, err := db.GetMessage("c1", msg.MsgID)
	if err != nil {
		t.Fatal(err)
	}
	if stored == nil || stored.Status != store.StatusSent || !stored.FromMe {
		t.Errorf("stored = %+v", stored)
	}
}

func TestSendMessageFailureKeepsRow(t *testing.T) {
	e, be, db := newTestEngine(t)
	seedChat(t, db, "c1")
	be.fail["send"] = fmt.Errorf("backend down")

	msg, err := e.SendMessage(context.Background(), me(), SendInput{ChatID: "c1", Body: "hello"})
	if err == nil {
		t.Fatal("expected delivery error")
	}
	if msg == nil || msg.Status != store.StatusFailed {
		t.Fatalf("msg = %+v, want failed", msg)
	}

	stored, _ := db.GetMessage("c1", msg.MsgID)
	if stored == nil || stored.Status != store.StatusFailed || stored.ErrorMessage == "" {
		t.Errorf("stored = %+v, want failed row with error", stored)
	}
}

func TestRetrySendReusesMessageID(t *testing.T) {
	e, be, db := newTestEngine(t)
	seedChat(t, db, "c1")
	be.fail["send"] = fmt.Errorf("backend down")

	failed, _ := e.SendMessage(context.Background(), me(), SendInput{ChatID: "c1", Body: "hello"})

	delete(be.fail, "send")
	retried, err := e.RetrySend(context.Background(), me(), "c1", failed.MsgID)
	if err != nil {
		t.Fatal(err)
	}
	if retried.MsgID != failed.MsgID {
		t.Errorf("retry changed id: %s -> %s", failed.MsgID, retried.MsgID)
	}
	if retried.Status != store.StatusSent {
		t.Errorf("status = %q, want sent", retried.Status)
	}

	count, _ := db.MessageCount()
	if count != 1 {
		t.Errorf("message rows = %d, want 1", count)
	}
}

func TestRetrySendRejectsNonFailed(t *testing.T) {
	e, _, db := newTestEngine(t)
	seedChat(t, db, "c1")

	msg, err := e.SendMessage(context.Background(), me(), SendInput{ChatID: "c1", Body: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.RetrySend(context.Background(), me(), "c1", msg.MsgID); err != ErrNotRetryable {
		t.Errorf("err = %v, want ErrNotRetryable", err)
	}
}

func TestSendEmptyBodyRejected(t *testing.T) {
	e, _, _ := newTestEngine(t)
	if _, err := e.SendMessage(context.Background(), me(), SendInput{ChatID: "c1", Body: "   "}); err != ErrEmptyBody {
		t.Errorf("err = %v, want ErrEmptyBody", err)
	}
}

func TestFeedEchoReconcilesOntoOptimisticRow(t *testing.T) {
	e, _, db := newTestEngine(t)
	seedChat(t, db, "c1")

	msg, err := e.SendMessage(context.Background(), me(), SendInput{ChatID: "c1", Body: "hello"})
	if err != nil {
		t.Fatal(err)
	}

	// The backend echoes our own insert back through the feed.
	row, _ := json.Marshal(backend.MessageRow{
		MsgID: msg.MsgID, ChatID: "c1", SenderID: "me", SenderName: "Mia",
		Body: "hello", MessageType: "text", CreatedAt: msg.CreatedAt,
	})
	if err := e.applyDelta(backend.Delta{Table: "messages", Op: "insert", Row: row}); err != nil {
		t.Fatal(err)
	}

	count, _ := db.MessageCount()
	if count != 1 {
		t.Errorf("message rows = %d, want 1 (echo must not duplicate)", count)
	}
	stored, _ := db.GetMessage("c1", msg.MsgID)
	if stored.Status != store.StatusSent || !stored.FromMe {
		t.Errorf("stored = %+v", stored)
	}
}

func TestPeerMessageArrivesAsReceived(t *testing.T) {
	e, _, db := newTestEngine(t)
	seedChat(t, db, "c1")

	row, _ := json.Marshal(backend.MessageRow{
		MsgID: "m-peer", ChatID: "c1", SenderID: "peer", SenderName: "Pat",
		Body: "hi", MessageType: "text", CreatedAt: time.Now().UnixMilli(),
	})
	if err := e.applyDelta(backend.Delta{Table: "messages", Op: "insert", Row: row}); err != nil {
		t.Fatal(err)
	}

	stored, _ := db.GetMessage("c1", "m-peer")
	if stored == nil || stored.Status != store.StatusReceived || stored.FromMe {
		t.Errorf("stored = %+v, want received peer message", stored)
	}

	c, _ := db.GetChat("c1")
	if c.LastMessagePreview != "hi" {
		t.Errorf("preview = %q, want %q", c.LastMessagePreview, "hi")
	}
}

func TestEditMessageOwnerOnly(t *testing.T) {
	e, _, db := newTestEngine(t)
	seedChat(t, db, "c1")

	msg, _ := e.SendMessage(context.Background(), me(), SendInput{ChatID: "c1", Body: "tpyo"})

	other := &backend.Identity{UserID: "peer", Role: "member"}
	if err := e.EditMessage(context.Background(), other, "c1", msg.MsgID, "typo"); err != ErrNotOwner {
		t.Errorf("err = %v, want ErrNotOwner", err)
	}

	if err := e.EditMessage(context.Background(), me(), "c1", msg.MsgID, "typo"); err != nil {
		t.Fatal(err)
	}
	stored, _ := db.GetMessage("c1", msg.MsgID)
	if stored.Body != "typo" || !stored.Edited {
		t.Errorf("stored = %+v", stored)
	}
}

func TestDeleteMessageModeratorOverride(t *testing.T) {
	e, _, db := newTestEngine(t)
	seedChat(t, db, "c1")

	msg, _ := e.SendMessage(context.Background(), me(), SendInput{ChatID: "c1", Body: "spam"})

	other := &backend.Identity{UserID: "peer", Role: "member"}
	if err := e.DeleteMessage(context.Background(), other, "c1", msg.MsgID); err != ErrNotOwner {
		t.Errorf("peer delete err = %v, want ErrNotOwner", err)
	}

	if err := e.DeleteMessage(context.Background(), moderator(), "c1", msg.MsgID); err != nil {
		t.Fatal(err)
	}
	stored, _ := db.GetMessage("c1", msg.MsgID)
	if stored != nil {
		t.Error("message still present after moderator delete")
	}
}

// TestReactionAggregation walks the reaction scenario end to end: two users
// heart a message, the count reads 2 with the viewer flagged, then one
// removes the heart and the count drops to 1.
func TestReactionAggregation(t *testing.T) {
	e, _, db := newTestEngine(t)
	seedChat(t, db, "c1")
	msg, _ := e.SendMessage(context.Background(), me(), SendInput{ChatID: "c1", Body: "launch!"})

	reacted, err := e.ToggleReaction(context.Background(), "me", "c1", msg.MsgID, "❤️")
	if err != nil || !reacted {
		t.Fatalf("first toggle = (%v, %v), want (true, nil)", reacted, err)
	}
	// The peer's reaction arrives through the feed.
	row, _ := json.Marshal(backend.ReactionRow{MsgID: msg.MsgID, ChatID: "c1", UserID: "peer", Emoji: "❤️"})
	if err := e.applyDelta(backend.Delta{Table: "message_reactions", Op: "insert", Row: row}); err != nil {
		t.Fatal(err)
	}

	summaries, err := e.ReactionsFor(msg.MsgID, "me")
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 1 || summaries[0].Count != 2 || !summaries[0].Reacted {
		t.Fatalf("summaries = %+v, want one ❤️ entry with count 2, reacted", summaries)
	}

	reacted, err = e.ToggleReaction(context.Background(), "me", "c1", msg.MsgID, "❤️")
	if err != nil || reacted {
		t.Fatalf("second toggle = (%v, %v), want (false, nil)", reacted, err)
	}
	summaries, _ = e.ReactionsFor(msg.MsgID, "me")
	if len(summaries) != 1 || summaries[0].Count != 1 || summaries[0].Reacted {
		t.Errorf("summaries = %+v, want count 1 without viewer", summaries)
	}

	has, _ := db.HasReaction(msg.MsgID, "me", "❤️")
	if has {
		t.Error("reaction row still present after toggle off")
	}
}

func TestToggleReactionRollsBackOnBackendError(t *testing.T) {
	e, be, db := newTestEngine(t)
	seedChat(t, db, "c1")
	msg, _ := e.SendMessage(context.Background(), me(), SendInput{ChatID: "c1", Body: "hi"})
	be.fail["react"] = fmt.Errorf("backend down")

	if _, err := e.ToggleReaction(context.Background(), "me", "c1", msg.MsgID, "👍"); err == nil {
		t.Fatal("expected backend error")
	}
	has, _ := db.HasReaction(msg.MsgID, "me", "👍")
	if has {
		t.Error("optimistic reaction not rolled back")
	}
}

func TestTypingLeaseExpires(t *testing.T) {
	e, _, _ := newTestEngine(t)
	now := time.Unix(1_700_000_000, 0)
	e.typing.now = func() time.Time { return now }

	row, _ := json.Marshal(backend.TypingRow{ChatID: "c1", UserID: "peer", DisplayName: "Pat", Typing: true})
	if err := e.applyDelta(backend.Delta{Table: "typing", Op: "insert", Row: row}); err != nil {
		t.Fatal(err)
	}

	if got := e.TypingIn("c1"); len(got) != 1 || got[0].UserID != "peer" {
		t.Fatalf("typing = %+v, want [peer]", got)
	}

	now = now.Add(DefaultTypingLease + time.Second)
	if got := e.TypingIn("c1"); len(got) != 0 {
		t.Errorf("typing = %+v after lease expiry, want empty", got)
	}
}

func TestOwnTypingEchoIgnored(t *testing.T) {
	e, _, _ := newTestEngine(t)

	row, _ := json.Marshal(backend.TypingRow{ChatID: "c1", UserID: "me", Typing: true})
	if err := e.applyDelta(backend.Delta{Table: "typing", Op: "insert", Row: row}); err != nil {
		t.Fatal(err)
	}
	if got := e.TypingIn("c1"); len(got) != 0 {
		t.Errorf("typing = %+v, own echo must not register", got)
	}
}

func TestMarkReadMonotonicAndIsReadBy(t *testing.T) {
	e, _, db := newTestEngine(t)
	seedChat(t, db, "c1")

	old := time.Now().Add(-time.Hour).UnixMilli()
	if err := db.UpsertMessage(&store.Message{ChatID: "c1", MsgID: "m1", SenderID: "peer", Body: "hi", Status: store.StatusReceived, CreatedAt: old}); err != nil {
		t.Fatal(err)
	}

	read, err := e.IsReadBy("c1", "me", "m1")
	if err != nil {
		t.Fatal(err)
	}
	if read {
		t.Error("read before MarkRead")
	}

	if err := e.MarkRead(context.Background(), me(), "c1"); err != nil {
		t.Fatal(err)
	}
	read, _ = e.IsReadBy("c1", "me", "m1")
	if !read {
		t.Error("unread after MarkRead")
	}

	// A stale watermark from the feed must not regress the local one.
	member, _ := db.GetMember("c1", "me")
	staleRow, _ := json.Marshal(backend.MemberRow{ChatID: "c1", UserID: "me", DisplayName: "Mia", Role: store.RoleMember, LastReadAt: old - 1000})
	if err := e.applyDelta(backend.Delta{Table: "chat_members", Op: "update", Row: staleRow}); err != nil {
		t.Fatal(err)
	}
	after, _ := db.GetMember("c1", "me")
	if after.LastReadAt != member.LastReadAt {
		t.Errorf("watermark moved %d -> %d on stale echo", member.LastReadAt, after.LastReadAt)
	}
}

func TestMarkReadRequiresMembership(t *testing.T) {
	e, _, db := newTestEngine(t)
	if err := db.UpsertChat(&store.Chat{ChatID: "c1"}); err != nil {
		t.Fatal(err)
	}
	if err := e.MarkRead(context.Background(), me(), "c1"); err != ErrNotMember {
		t.Errorf("err = %v, want ErrNotMember", err)
	}
}

func TestGroupRenameAdminGate(t *testing.T) {
	e, _, db := newTestEngine(t)
	seedChat(t, db, "c1")

	if err := e.UpdateGroupName(context.Background(), me(), "c1", "New Name"); err != ErrNotAdmin {
		t.Errorf("member rename err = %v, want ErrNotAdmin", err)
	}

	if err := db.UpsertMember(&store.Member{ChatID: "c1", UserID: "me", Role: store.RoleAdmin}); err != nil {
		t.Fatal(err)
	}
	if err := e.UpdateGroupName(context.Background(), me(), "c1", "New Name"); err != nil {
		t.Fatal(err)
	}
	c, _ := db.GetChat("c1")
	if c.Name != "New Name" {
		t.Errorf("name = %q", c.Name)
	}
}

func TestModeratorBypassesAdminGate(t *testing.T) {
	e, _, db := newTestEngine(t)
	seedChat(t, db, "c1")

	if err := e.UpdateGroupName(context.Background(), moderator(), "c1", "Cleaned Up"); err != nil {
		t.Errorf("moderator rename err = %v", err)
	}
}

func TestLeaveChatDropsLocalState(t *testing.T) {
	e, _, db := newTestEngine(t)
	seedChat(t, db, "c1")
	if _, err := e.SendMessage(context.Background(), me(), SendInput{ChatID: "c1", Body: "bye"}); err != nil {
		t.Fatal(err)
	}

	if err := e.LeaveChat(context.Background(), me(), "c1"); err != nil {
		t.Fatal(err)
	}
	c, _ := db.GetChat("c1")
	if c != nil {
		t.Error("chat still present after leave")
	}
	count, _ := db.MessageCount()
	if count != 0 {
		t.Errorf("messages = %d after leave, want 0", count)
	}
}

func TestSelfRemovalDeltaDropsChat(t *testing.T) {
	e, _, db := newTestEngine(t)
	seedChat(t, db, "c1")

	row, _ := json.Marshal(backend.MemberRow{ChatID: "c1", UserID: "me"})
	if err := e.applyDelta(backend.Delta{Table: "chat_members", Op: "delete", Row: row}); err != nil {
		t.Fatal(err)
	}
	c, _ := db.GetChat("c1")
	if c != nil {
		t.Error("chat still present after being removed by a peer admin")
	}
}

// TestRemoteMutePinDeltaSyncsChatFlags covers a preference changed on
// another device: the self member's feed row carries muted/pinned and must
// land on the local chat row. Another member's row must not.
func TestRemoteMutePinDeltaSyncsChatFlags(t *testing.T) {
	e, _, db := newTestEngine(t)
	seedChat(t, db, "c1")

	row, _ := json.Marshal(backend.MemberRow{ChatID: "c1", UserID: "me", DisplayName: "Mia", Role: store.RoleMember, Muted: true, Pinned: true})
	if err := e.applyDelta(backend.Delta{Table: "chat_members", Op: "update", Row: row}); err != nil {
		t.Fatal(err)
	}
	c, _ := db.GetChat("c1")
	if !c.Muted || !c.Pinned {
		t.Errorf("chat flags = muted %v, pinned %v, want both true after self delta", c.Muted, c.Pinned)
	}

	// A peer toggling their own preferences says nothing about ours.
	row, _ = json.Marshal(backend.MemberRow{ChatID: "c1", UserID: "peer", Role: store.RoleMember, Muted: false, Pinned: false})
	if err := e.applyDelta(backend.Delta{Table: "chat_members", Op: "update", Row: row}); err != nil {
		t.Fatal(err)
	}
	c, _ = db.GetChat("c1")
	if !c.Muted || !c.Pinned {
		t.Errorf("chat flags = muted %v, pinned %v, peer delta must not touch them", c.Muted, c.Pinned)
	}
}

func TestReportChatRequiresReason(t *testing.T) {
	e, be, db := newTestEngine(t)
	seedChat(t, db, "c1")

	if err := e.ReportChat(context.Background(), me(), "c1", "", "  ", "details"); err != ErrEmptyBody {
		t.Errorf("err = %v, want ErrEmptyBody", err)
	}
	if err := e.ReportChat(context.Background(), me(), "c1", "", "spam", "link flooding"); err != nil {
		t.Fatal(err)
	}
	if len(be.reports) != 1 || be.reports[0].Reason != "spam" {
		t.Errorf("reports = %+v", be.reports)
	}
}

func TestToggleMuteRoundTrip(t *testing.T) {
	e, be, db := newTestEngine(t)
	seedChat(t, db, "c1")

	muted, err := e.ToggleMute(context.Background(), me(), "c1")
	if err != nil || !muted {
		t.Fatalf("first toggle = (%v, %v)", muted, err)
	}
	muted, err = e.ToggleMute(context.Background(), me(), "c1")
	if err != nil || muted {
		t.Fatalf("second toggle = (%v, %v)", muted, err)
	}
	if len(be.flags) != 2 {
		t.Errorf("backend flags = %v", be.flags)
	}
}
