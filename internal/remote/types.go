// Package remote defines the wire contract with the remote store and the
// HTTP client speaking it. All timestamps on the wire are unix milliseconds;
// the server is the source of truth for record identity (_id).
package remote

// LastMessage is the denormalized last-message summary carried on a chat.
type LastMessage struct {
	Content   *string `json:"content"`
	Type      string  `json:"type"`
	Timestamp int64   `json:"timestamp"`
}

// Chat is a chat record on the wire, in both push and pull directions.
type Chat struct {
	ID          string       `json:"_id,omitempty"`
	Name        string       `json:"name" validate:"required,max=100"`
	Icon        *string      `json:"icon,omitempty"`
	IsPinned    bool         `json:"isPinned"`
	Wallpaper   *string      `json:"wallpaper,omitempty"`
	LastMessage *LastMessage `json:"lastMessage,omitempty"`
	IsDeleted   bool         `json:"isDeleted"`
	DeletedAt   *int64       `json:"deletedAt,omitempty"`
	CreatedAt   int64        `json:"createdAt"`
	UpdatedAt   int64        `json:"updatedAt"`
}

// Attachment is opaque file metadata carried by a message.
type Attachment struct {
	URL       string  `json:"url" validate:"required"`
	Filename  *string `json:"filename,omitempty"`
	MimeType  *string `json:"mimeType,omitempty"`
	Size      *int64  `json:"size,omitempty"`
	Duration  *int64  `json:"duration,omitempty"`
	Thumbnail *string `json:"thumbnail,omitempty"`
	Width     *int64  `json:"width,omitempty"`
	Height    *int64  `json:"height,omitempty"`
}

// Location is optional geo metadata carried by a message.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   *string `json:"address,omitempty"`
}

// Task is the task sub-record of a message.
type Task struct {
	IsTask      bool   `json:"isTask"`
	ReminderAt  *int64 `json:"reminderAt,omitempty"`
	IsCompleted bool   `json:"isCompleted"`
	CompletedAt *int64 `json:"completedAt,omitempty"`
}

// Message is a message record on the wire.
type Message struct {
	ID         string      `json:"_id,omitempty"`
	ChatID     string      `json:"chatId,omitempty"`
	Content    *string     `json:"content,omitempty"`
	Type       string      `json:"type" validate:"required,oneof=text image voice file location contact"`
	Attachment *Attachment `json:"attachment,omitempty"`
	Location   *Location   `json:"location,omitempty"`
	IsLocked   bool        `json:"isLocked"`
	IsStarred  bool        `json:"isStarred"`
	IsEdited   bool        `json:"isEdited"`
	Task       Task        `json:"task"`
	IsDeleted  bool        `json:"isDeleted"`
	DeletedAt  *int64      `json:"deletedAt,omitempty"`
	CreatedAt  int64       `json:"createdAt"`
	UpdatedAt  int64       `json:"updatedAt"`
}

// Settings is the user settings block on the wire.
type Settings struct {
	Theme                string `json:"theme"`
	NotifyTaskReminders  bool   `json:"notifyTaskReminders"`
	NotifySharedMessages bool   `json:"notifySharedMessages"`
	PrivacyVisibility    string `json:"privacyVisibility"`
}

// User is the per-device profile record on the wire.
type User struct {
	ID        string   `json:"_id,omitempty"`
	DeviceID  string   `json:"deviceId" validate:"required"`
	Name      string   `json:"name" validate:"required,max=100"`
	Username  *string  `json:"username,omitempty"`
	Email     *string  `json:"email,omitempty" validate:"omitempty,email"`
	Phone     *string  `json:"phone,omitempty"`
	Avatar    *string  `json:"avatar,omitempty"`
	Settings  Settings `json:"settings"`
	CreatedAt int64    `json:"createdAt"`
	UpdatedAt int64    `json:"updatedAt"`
}
