package services

import "github.com/techagentng/citizenchat/models"

// Notifier receives state changes after they commit. Publish must not block
// the caller; delivery is best effort.
type Notifier interface {
	Publish(event models.Event)
}

type nopNotifier struct{}

func (nopNotifier) Publish(models.Event) {}

// NopNotifier discards every event.
var NopNotifier Notifier = nopNotifier{}

func notifierOrNop(n Notifier) Notifier {
	if n == nil {
		return NopNotifier
	}
	return n
}
