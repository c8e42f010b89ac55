package transport

import (
	"context"
	"time"
)

type Kind string

const (
	KindOverdue       Kind = "overdue"
	KindOverdueSevere Kind = "overdue-severe"
	KindDueToday      Kind = "due-today"
	KindDueTomorrow   Kind = "due-tomorrow"
	KindDueIn3Days    Kind = "due-in-3-days"
	KindBreak         Kind = "break"
	KindDigest        Kind = "digest"
)

// Notification is a user-facing message produced by the engine.
type Notification struct {
	ID       string    `json:"id"`
	Kind     Kind      `json:"kind"`
	Priority int       `json:"priority"` // 0 low .. 10 high
	UserID   int64     `json:"user_id"`
	TaskID   int64     `json:"task_id,omitempty"`
	Title    string    `json:"title"`
	Text     string    `json:"text"`
	At       time.Time `json:"at"`

	// DedupKey identifies repeats; empty means a hash of kind, user and text.
	DedupKey string `json:"-"`
	// DedupFor overrides the notifier's suppression window when > 0.
	DedupFor time.Duration `json:"-"`
}

// Message renders title and text as one block of plain text.
func (n Notification) Message() string {
	switch {
	case n.Title == "":
		return n.Text
	case n.Text == "":
		return n.Title
	default:
		return n.Title + "\n" + n.Text
	}
}

// Adapter delivers notifications over one channel.
type Adapter interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

// Lifecycle is implemented by adapters that own connections or goroutines.
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
