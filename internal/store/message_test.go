package store

import (
	"testing"
	"time"
)

func TestMessageCreateDefaultsToText(t *testing.T) {
	_, chats, messages, _ := testRepos(t)

	chat, _ := chats.Create("Inbox", nil)
	msg, err := messages.Create(CreateMessage{ChatID: chat.ID, Content: strp("hello")})
	if err != nil {
		t.Fatal(err)
	}
	if msg.Type != TypeText {
		t.Errorf("type = %q, want text", msg.Type)
	}
	if msg.SyncStatus != SyncPending {
		t.Errorf("status = %q, want pending", msg.SyncStatus)
	}
}

func TestMessageCreateWithAttachmentAndLocation(t *testing.T) {
	_, chats, messages, _ := testRepos(t)

	chat, _ := chats.Create("Media", nil)
	msg, err := messages.Create(CreateMessage{
		ChatID: chat.ID,
		Type:   TypeImage,
		Attachment: &Attachment{
			URL:      "file:///photo.jpg",
			MimeType: strp("image/jpeg"),
			Size:     i64p(2048),
			Width:    i64p(640),
			Height:   i64p(480),
		},
		Location: &Location{Latitude: -23.55, Longitude: -46.63, Address: strp("SP")},
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := messages.GetByID(msg.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Attachment == nil || got.Attachment.URL != "file:///photo.jpg" {
		t.Fatalf("attachment = %+v", got.Attachment)
	}
	if got.Attachment.Size == nil || *got.Attachment.Size != 2048 {
		t.Errorf("size = %v", got.Attachment.Size)
	}
	if got.Location == nil || got.Location.Latitude != -23.55 {
		t.Fatalf("location = %+v", got.Location)
	}
	if got.Location.Address == nil || *got.Location.Address != "SP" {
		t.Errorf("address = %v", got.Location.Address)
	}
}

func TestMessageListByChatKeyset(t *testing.T) {
	_, chats, messages, _ := testRepos(t)

	chat, _ := chats.Create("Paged", nil)
	var created []*Message
	for _, content := range []string{"one", "two", "three"} {
		m, err := messages.Create(CreateMessage{ChatID: chat.ID, Content: strp(content)})
		if err != nil {
			t.Fatal(err)
		}
		created = append(created, m)
		time.Sleep(2 * time.Millisecond)
	}

	page, err := messages.ListByChat(chat.ID, 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 {
		t.Fatalf("page size = %d, want 2", len(page))
	}
	if *page[0].Content != "three" {
		t.Errorf("newest first, got %q", *page[0].Content)
	}

	older, err := messages.ListByChat(chat.ID, page[len(page)-1].CreatedAt, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(older) != 1 || *older[0].Content != "one" {
		t.Errorf("keyset page = %v", older)
	}
	_ = created
}

func TestMessageEditMarksEdited(t *testing.T) {
	_, chats, messages, _ := testRepos(t)

	chat, _ := chats.Create("Edits", nil)
	msg, _ := messages.Create(CreateMessage{ChatID: chat.ID, Content: strp("tpyo")})
	messages.MarkSynced(msg.ID, "srv-m1")

	got, err := messages.Update(msg.ID, "typo")
	if err != nil {
		t.Fatal(err)
	}
	if *got.Content != "typo" {
		t.Errorf("content = %q", *got.Content)
	}
	if !got.IsEdited {
		t.Error("IsEdited not set")
	}
	if got.SyncStatus != SyncPending {
		t.Errorf("status = %q, want pending after edit", got.SyncStatus)
	}
}

func TestMessageFlags(t *testing.T) {
	_, chats, messages, _ := testRepos(t)

	chat, _ := chats.Create("Flags", nil)
	msg, _ := messages.Create(CreateMessage{ChatID: chat.ID, Content: strp("x")})

	got, err := messages.SetStarred(msg.ID, true)
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsStarred {
		t.Error("IsStarred not set")
	}
	got, err = messages.SetLocked(msg.ID, true)
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsLocked {
		t.Error("IsLocked not set")
	}
	got, err = messages.SetLocked(msg.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if got.IsLocked {
		t.Error("IsLocked not cleared")
	}
}

func TestFlagListingsSurviveChatDeletion(t *testing.T) {
	_, chats, messages, _ := testRepos(t)

	chat, _ := chats.Create("Vault", nil)
	locked, _ := messages.Create(CreateMessage{ChatID: chat.ID, Content: strp("keep forever")})
	messages.SetLocked(locked.ID, true)
	starred, _ := messages.Create(CreateMessage{ChatID: chat.ID, Content: strp("important")})
	messages.SetStarred(starred.ID, true)

	if _, err := chats.Delete(chat.ID); err != nil {
		t.Fatal(err)
	}

	lockedList, err := messages.ListLocked(10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(lockedList) != 1 || lockedList[0].ID != locked.ID {
		t.Errorf("locked listing after chat delete = %v", lockedList)
	}

	// The starred message was not locked, so the cascade took it.
	starredList, err := messages.ListStarred(10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(starredList) != 0 {
		t.Errorf("cascaded message still in starred listing")
	}
}

func TestMessageMarkSyncedDropsDuplicateIdentity(t *testing.T) {
	_, chats, messages, _ := testRepos(t)

	chat, _ := chats.Create("Dups", nil)
	first, _ := messages.Create(CreateMessage{ChatID: chat.ID, Content: strp("original")})
	messages.MarkSynced(first.ID, "srv-m9")

	// A retried push created a second local row for the same server record.
	dup, _ := messages.Create(CreateMessage{ChatID: chat.ID, Content: strp("duplicate")})
	if err := messages.MarkSynced(dup.ID, "srv-m9"); err != nil {
		t.Fatal(err)
	}

	if got, _ := messages.GetByID(dup.ID); got != nil {
		t.Error("duplicate message row survived")
	}
	kept, _ := messages.GetByServerID("srv-m9")
	if kept == nil || kept.ID != first.ID {
		t.Errorf("kept = %+v, want original row", kept)
	}
}

func TestMessageUpsertFromServer(t *testing.T) {
	_, chats, messages, _ := testRepos(t)

	chat, _ := chats.Create("Pulls", nil)

	serverID := "srv-m5"
	if err := messages.UpsertFromServer(chat.ID, &Message{
		ServerID:  &serverID,
		Content:   strp("from server"),
		Type:      TypeText,
		CreatedAt: 100,
		UpdatedAt: 100,
	}); err != nil {
		t.Fatal(err)
	}

	got, _ := messages.GetByServerID(serverID)
	if got == nil {
		t.Fatal("pulled message not materialized")
	}
	if got.SyncStatus != SyncSynced {
		t.Errorf("status = %q, want synced", got.SyncStatus)
	}
	if got.ChatID != chat.ID {
		t.Errorf("parent = %s, want %s", got.ChatID, chat.ID)
	}

	if err := messages.UpsertFromServer(chat.ID, &Message{
		ServerID:  &serverID,
		Content:   strp("rewritten"),
		Type:      TypeText,
		IsStarred: true,
		UpdatedAt: 200,
	}); err != nil {
		t.Fatal(err)
	}
	got, _ = messages.GetByServerID(serverID)
	if *got.Content != "rewritten" || !got.IsStarred {
		t.Errorf("server state not authoritative: %+v", got)
	}
}

func TestMessageServerTombstoneNeverResurrects(t *testing.T) {
	_, chats, messages, _ := testRepos(t)

	chat, _ := chats.Create("Ghosts", nil)
	msg, _ := messages.Create(CreateMessage{ChatID: chat.ID, Content: strp("x")})
	messages.MarkSynced(msg.ID, "srv-m7")

	if err := messages.MarkDeletedFromServer("srv-m7", 9000); err != nil {
		t.Fatal(err)
	}
	if got, _ := messages.GetByID(msg.ID); got != nil {
		t.Error("server-deleted message still visible")
	}

	// A tombstone for an id we never had must not create a row.
	if err := messages.MarkDeletedFromServer("srv-unknown", 9000); err != nil {
		t.Fatal(err)
	}
	if got, _ := messages.GetByServerID("srv-unknown"); got != nil {
		t.Error("tombstone resurrected an unknown record")
	}
}
