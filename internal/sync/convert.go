package sync

import (
	"github.com/mneme-app/mneme/internal/remote"
	"github.com/mneme-app/mneme/internal/store"
)

// Conversions between local rows and wire records. Local ids never cross
// the wire; server ids never become local primary keys.

func chatToWire(c *store.Chat) *remote.Chat {
	w := &remote.Chat{
		Name:      c.Name,
		Icon:      c.Icon,
		IsPinned:  c.IsPinned,
		Wallpaper: c.Wallpaper,
		IsDeleted: c.DeletedAt != nil,
		DeletedAt: c.DeletedAt,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	if c.LastMessageAt != nil {
		typ := store.TypeText
		if c.LastMessageType != nil {
			typ = *c.LastMessageType
		}
		w.LastMessage = &remote.LastMessage{
			Content:   c.LastMessageContent,
			Type:      typ,
			Timestamp: *c.LastMessageAt,
		}
	}
	return w
}

func chatFromWire(w *remote.Chat) *store.Chat {
	id := w.ID
	c := &store.Chat{
		ServerID:  &id,
		Name:      w.Name,
		Icon:      w.Icon,
		IsPinned:  w.IsPinned,
		Wallpaper: w.Wallpaper,
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
	if w.LastMessage != nil {
		typ := w.LastMessage.Type
		ts := w.LastMessage.Timestamp
		c.LastMessageContent = w.LastMessage.Content
		c.LastMessageType = &typ
		c.LastMessageAt = &ts
	}
	return c
}

func messageToWire(m *store.Message) *remote.Message {
	w := &remote.Message{
		Content:   m.Content,
		Type:      m.Type,
		IsLocked:  m.IsLocked,
		IsStarred: m.IsStarred,
		IsEdited:  m.IsEdited,
		Task: remote.Task{
			IsTask:      m.Task.IsTask,
			ReminderAt:  m.Task.ReminderAt,
			IsCompleted: m.Task.IsCompleted,
			CompletedAt: m.Task.CompletedAt,
		},
		IsDeleted: m.DeletedAt != nil,
		DeletedAt: m.DeletedAt,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if m.Attachment != nil {
		w.Attachment = &remote.Attachment{
			URL:       m.Attachment.URL,
			Filename:  m.Attachment.Filename,
			MimeType:  m.Attachment.MimeType,
			Size:      m.Attachment.Size,
			Duration:  m.Attachment.Duration,
			Thumbnail: m.Attachment.Thumbnail,
			Width:     m.Attachment.Width,
			Height:    m.Attachment.Height,
		}
	}
	if m.Location != nil {
		w.Location = &remote.Location{
			Latitude:  m.Location.Latitude,
			Longitude: m.Location.Longitude,
			Address:   m.Location.Address,
		}
	}
	return w
}

func messageFromWire(w *remote.Message) *store.Message {
	id := w.ID
	m := &store.Message{
		ServerID:  &id,
		Content:   w.Content,
		Type:      w.Type,
		IsLocked:  w.IsLocked,
		IsStarred: w.IsStarred,
		IsEdited:  w.IsEdited,
		Task: store.Task{
			IsTask:      w.Task.IsTask,
			ReminderAt:  w.Task.ReminderAt,
			IsCompleted: w.Task.IsCompleted,
			CompletedAt: w.Task.CompletedAt,
		},
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
	if w.Attachment != nil {
		m.Attachment = &store.Attachment{
			URL:       w.Attachment.URL,
			Filename:  w.Attachment.Filename,
			MimeType:  w.Attachment.MimeType,
			Size:      w.Attachment.Size,
			Duration:  w.Attachment.Duration,
			Thumbnail: w.Attachment.Thumbnail,
			Width:     w.Attachment.Width,
			Height:    w.Attachment.Height,
		}
	}
	if w.Location != nil {
		m.Location = &store.Location{
			Latitude:  w.Location.Latitude,
			Longitude: w.Location.Longitude,
			Address:   w.Location.Address,
		}
	}
	return m
}

func userToWire(u *store.User) *remote.User {
	return &remote.User{
		DeviceID: u.DeviceID,
		Name:     u.Name,
		Username: u.Username,
		Email:    u.Email,
		Phone:    u.Phone,
		Avatar:   u.Avatar,
		Settings: remote.Settings{
			Theme:                u.Settings.Theme,
			NotifyTaskReminders:  u.Settings.NotifyTaskReminders,
			NotifySharedMessages: u.Settings.NotifySharedMessages,
			PrivacyVisibility:    u.Settings.PrivacyVisibility,
		},
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func userFromWire(w *remote.User) *store.User {
	id := w.ID
	return &store.User{
		ServerID: &id,
		DeviceID: w.DeviceID,
		Name:     w.Name,
		Username: w.Username,
		Email:    w.Email,
		Phone:    w.Phone,
		Avatar:   w.Avatar,
		Settings: store.Settings{
			Theme:                w.Settings.Theme,
			NotifyTaskReminders:  w.Settings.NotifyTaskReminders,
			NotifySharedMessages: w.Settings.NotifySharedMessages,
			PrivacyVisibility:    w.Settings.PrivacyVisibility,
		},
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
}
