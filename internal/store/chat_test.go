package store

import (
	"testing"
	"time"
)

func TestChatCreateStartsPending(t *testing.T) {
	_, chats, _, _ := testRepos(t)

	chat, err := chats.Create("Groceries", strp("cart"))
	if err != nil {
		t.Fatal(err)
	}
	if chat.SyncStatus != SyncPending {
		t.Errorf("sync status = %q, want pending", chat.SyncStatus)
	}
	if chat.ServerID != nil {
		t.Errorf("server id = %v, want nil", *chat.ServerID)
	}
	if chat.Icon == nil || *chat.Icon != "cart" {
		t.Errorf("icon = %v, want cart", chat.Icon)
	}
	if chat.CreatedAt == 0 || chat.UpdatedAt == 0 {
		t.Error("timestamps not set")
	}
}

func TestChatListOrderingPinnedFirst(t *testing.T) {
	_, chats, messages, _ := testRepos(t)

	a, _ := chats.Create("Alpha", nil)
	b, _ := chats.Create("Beta", nil)
	c, _ := chats.Create("Gamma", nil)

	// Newest activity in Alpha, but Gamma is pinned.
	if _, err := messages.Create(CreateMessage{ChatID: a.ID, Content: strp("hi")}); err != nil {
		t.Fatal(err)
	}
	pinned := true
	if _, err := chats.Update(c.ID, UpdateChat{IsPinned: &pinned}); err != nil {
		t.Fatal(err)
	}

	list, total, err := chats.List("", 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 {
		t.Fatalf("total = %d, want 3", total)
	}
	if list[0].ID != c.ID {
		t.Errorf("first chat = %s, want pinned %s", list[0].Name, c.Name)
	}
	if list[1].ID != a.ID {
		t.Errorf("second chat = %s, want most recent %s", list[1].Name, a.Name)
	}
	_ = b
}

func TestChatListSearchFilter(t *testing.T) {
	_, chats, _, _ := testRepos(t)

	chats.Create("Work notes", nil)
	chats.Create("Personal", nil)

	list, total, err := chats.List("work", 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || len(list) != 1 {
		t.Fatalf("total = %d, len = %d, want 1", total, len(list))
	}
	if list[0].Name != "Work notes" {
		t.Errorf("matched %q", list[0].Name)
	}
}

func TestChatUpdateFlipsPending(t *testing.T) {
	_, chats, _, _ := testRepos(t)

	chat, _ := chats.Create("Old", nil)
	if err := chats.MarkSynced(chat.ID, "srv-1"); err != nil {
		t.Fatal(err)
	}

	synced, _ := chats.GetByID(chat.ID)
	if synced.SyncStatus != SyncSynced {
		t.Fatalf("precondition: status = %q", synced.SyncStatus)
	}

	updated, err := chats.Update(chat.ID, UpdateChat{Name: strp("New")})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Name != "New" {
		t.Errorf("name = %q", updated.Name)
	}
	if updated.SyncStatus != SyncPending {
		t.Errorf("status after edit = %q, want pending", updated.SyncStatus)
	}
	if updated.UpdatedAt < synced.UpdatedAt {
		t.Error("updated_at did not advance")
	}
}

func TestChatDeleteCascadesExceptLocked(t *testing.T) {
	_, chats, messages, _ := testRepos(t)

	chat, _ := chats.Create("Secrets", nil)
	plain, _ := messages.Create(CreateMessage{ChatID: chat.ID, Content: strp("plain")})
	locked, _ := messages.Create(CreateMessage{ChatID: chat.ID, Content: strp("keep")})
	if _, err := messages.SetLocked(locked.ID, true); err != nil {
		t.Fatal(err)
	}

	survivors, err := chats.Delete(chat.ID)
	if err != nil {
		t.Fatal(err)
	}
	if survivors != 1 {
		t.Errorf("locked survivors = %d, want 1", survivors)
	}

	if got, _ := chats.GetByID(chat.ID); got != nil {
		t.Error("deleted chat still visible")
	}
	if got, _ := messages.GetByID(plain.ID); got != nil {
		t.Error("cascaded message still visible")
	}
	got, err := messages.GetByID(locked.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("locked message did not survive chat deletion")
	}
	if got.DeletedAt != nil {
		t.Error("locked message was soft-deleted")
	}
}

func TestChatLastMessageCache(t *testing.T) {
	_, chats, messages, _ := testRepos(t)

	chat, _ := chats.Create("Cache", nil)
	first, _ := messages.Create(CreateMessage{ChatID: chat.ID, Content: strp("first")})
	time.Sleep(2 * time.Millisecond)
	second, _ := messages.Create(CreateMessage{ChatID: chat.ID, Content: strp("second")})

	got, _ := chats.GetByID(chat.ID)
	if got.LastMessageContent == nil || *got.LastMessageContent != "second" {
		t.Fatalf("last message = %v, want second", got.LastMessageContent)
	}

	// Deleting the newest message must fall back to the previous one.
	if err := messages.Delete(second.ID); err != nil {
		t.Fatal(err)
	}
	got, _ = chats.GetByID(chat.ID)
	if got.LastMessageContent == nil || *got.LastMessageContent != "first" {
		t.Errorf("last message after delete = %v, want first", got.LastMessageContent)
	}

	if err := messages.Delete(first.ID); err != nil {
		t.Fatal(err)
	}
	got, _ = chats.GetByID(chat.ID)
	if got.LastMessageContent != nil {
		t.Errorf("last message after deleting all = %v, want nil", *got.LastMessageContent)
	}
}

func TestChatMarkSyncedMergesDuplicateIdentity(t *testing.T) {
	_, chats, messages, _ := testRepos(t)

	original, _ := chats.Create("Ideas", nil)
	if err := chats.MarkSynced(original.ID, "srv-1"); err != nil {
		t.Fatal(err)
	}
	keepMsg, _ := messages.Create(CreateMessage{ChatID: original.ID, Content: strp("kept")})

	// A second local chat pushed and got assigned the same server identity.
	dup, _ := chats.Create("Ideas", nil)
	dupMsg, _ := messages.Create(CreateMessage{ChatID: dup.ID, Content: strp("from duplicate")})

	if err := chats.MarkSynced(dup.ID, "srv-1"); err != nil {
		t.Fatal(err)
	}

	if got, _ := chats.GetByID(dup.ID); got != nil {
		t.Error("duplicate chat row survived merge")
	}
	kept, _ := chats.GetByID(original.ID)
	if kept == nil {
		t.Fatal("original chat lost in merge")
	}

	for _, id := range []string{keepMsg.ID, dupMsg.ID} {
		m, err := messages.GetByID(id)
		if err != nil {
			t.Fatal(err)
		}
		if m == nil {
			t.Fatalf("message %s lost in merge", id)
		}
		if m.ChatID != original.ID {
			t.Errorf("message %s parent = %s, want %s", id, m.ChatID, original.ID)
		}
	}

	if kept.LastMessageContent == nil || *kept.LastMessageContent != "from duplicate" {
		t.Errorf("merged cache = %v, want newest of union", kept.LastMessageContent)
	}
}

func TestChatUpsertFromServer(t *testing.T) {
	_, chats, _, _ := testRepos(t)

	serverID := "srv-9"
	if err := chats.UpsertFromServer(&Chat{
		ServerID:  &serverID,
		Name:      "From server",
		CreatedAt: 100,
		UpdatedAt: 200,
	}); err != nil {
		t.Fatal(err)
	}

	got, err := chats.GetByServerID(serverID)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("server chat not materialized")
	}
	if got.SyncStatus != SyncSynced {
		t.Errorf("status = %q, want synced", got.SyncStatus)
	}

	// Second pull overwrites whole record.
	if err := chats.UpsertFromServer(&Chat{
		ServerID:  &serverID,
		Name:      "Renamed on server",
		IsPinned:  true,
		UpdatedAt: 300,
	}); err != nil {
		t.Fatal(err)
	}
	got, _ = chats.GetByServerID(serverID)
	if got.Name != "Renamed on server" || !got.IsPinned {
		t.Errorf("server state not authoritative: %+v", got)
	}
	if got.UpdatedAt != 300 {
		t.Errorf("updated_at = %d, want server value 300", got.UpdatedAt)
	}
}

func TestChatServerTombstoneNotPushedBack(t *testing.T) {
	_, chats, messages, _ := testRepos(t)

	chat, _ := chats.Create("Doomed", nil)
	chats.MarkSynced(chat.ID, "srv-2")
	msg, _ := messages.Create(CreateMessage{ChatID: chat.ID, Content: strp("x")})
	messages.MarkSynced(msg.ID, "msg-srv-2")

	if err := chats.MarkDeletedFromServer("srv-2", 5000); err != nil {
		t.Fatal(err)
	}

	if got, _ := chats.GetByID(chat.ID); got != nil {
		t.Error("server-deleted chat still visible")
	}
	pending, err := chats.GetPendingSync()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("server-applied deletion queued for push: %d pending", len(pending))
	}
	pendingMsgs, _ := messages.GetPendingSync()
	if len(pendingMsgs) != 0 {
		t.Errorf("cascaded deletion queued for push: %d pending", len(pendingMsgs))
	}
}

func TestChatTombstonePurge(t *testing.T) {
	_, chats, messages, _ := testRepos(t)

	chat, _ := chats.Create("Stale", nil)
	chats.MarkSynced(chat.ID, "srv-3")
	messages.Create(CreateMessage{ChatID: chat.ID, Content: strp("gone")})

	if _, err := chats.Delete(chat.ID); err != nil {
		t.Fatal(err)
	}
	if err := chats.MarkDeletionSynced(chat.ID); err != nil {
		t.Fatal(err)
	}
	// Cascaded messages were marked pending by the local delete; confirm
	// them synced so the purge can claim them.
	pendingMsgs, _ := messages.GetPendingSync()
	for _, m := range pendingMsgs {
		if err := messages.MarkDeletionSynced(m.ID); err != nil {
			t.Fatal(err)
		}
	}

	// Cutoff before the deletion keeps the tombstone.
	n, err := chats.PurgeTombstones(1)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("purged %d rows with cutoff in the past", n)
	}

	n, err = chats.PurgeTombstones(nowMillis() + 1)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("purged %d chats, want 1", n)
	}
}
