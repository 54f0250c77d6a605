package service

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
)

// Sender delivers one rendered message to the supervisor channel.
type Sender interface {
	SendToAdmin(text string) error
}

// Notification is one outbound event on its way to the supervisor.
type Notification struct {
	ID        string
	Text      string
	CreatedAt time.Time
}

// Notifier pushes notifications to the supervisor channel off the
// commit path. Dispatch never blocks and its failures never reach the
// originating operation; they are logged only.
type Notifier struct {
	sender Sender
	queue  chan Notification
}

func NewNotifier(sender Sender, buffer int) *Notifier {
	if buffer <= 0 {
		buffer = 64
	}
	return &Notifier{
		sender: sender,
		queue:  make(chan Notification, buffer),
	}
}

// Notify enqueues a notification. When the queue is full the event is
// dropped with a log line rather than delaying the caller.
func (n *Notifier) Notify(text string) {
	event := Notification{
		ID:        uuid.NewString(),
		Text:      text,
		CreatedAt: time.Now(),
	}
	select {
	case n.queue <- event:
	default:
		log.Printf("[warn] notification queue full, dropped event id=%s", event.ID)
	}
}

// Run drains the queue until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-n.queue:
			if err := n.sender.SendToAdmin(event.Text); err != nil {
				log.Printf("[warn] notification delivery failed id=%s: %v", event.ID, err)
			}
		}
	}
}
