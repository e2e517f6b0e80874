package store

import (
	"context"

	"meerchat/pkg/models"
)

// Publisher receives every inserted message.
type Publisher interface {
	Publish(m models.Message)
}

// Notifying wraps a Store and publishes each successful insert.
type Notifying struct {
	Store
	pub Publisher
}

func NewNotifying(s Store, pub Publisher) *Notifying {
	return &Notifying{Store: s, pub: pub}
}

func (n *Notifying) InsertMessage(ctx context.Context, m models.NewMessage) (models.Message, error) {
	msg, err := n.Store.InsertMessage(ctx, m)
	if err != nil {
		return msg, err
	}
	if n.pub != nil {
		n.pub.Publish(msg)
	}
	return msg, nil
}
