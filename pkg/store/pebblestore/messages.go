package pebblestore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	"meerchat/pkg/models"
	"meerchat/pkg/store"
	"meerchat/pkg/store/keys"
)

// InsertMessage stores the row, its id index and, for assistant replies,
// the parent reply index in one batch.
func (d *DB) InsertMessage(ctx context.Context, in models.NewMessage) (models.Message, error) {
	if err := ctx.Err(); err != nil {
		return models.Message{}, err
	}
	if err := keys.ValidateChannel(in.Channel); err != nil {
		return models.Message{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.client == nil {
		return models.Message{}, store.ErrClosed
	}

	msg := models.Message{
		ID:              uuid.NewString(),
		Channel:         in.Channel,
		UID:             in.UID,
		Body:            in.Body,
		IsAIResponse:    in.IsAIResponse,
		ParentMessageID: in.ParentMessageID,
		CreatedAt:       d.nextTimestamp(),
	}
	mk := keys.GenMessageKey(msg.Channel, msg.CreatedAt, msg.ID)

	b := d.client.NewBatch()
	defer b.Close()
	if err := setJSON(b, mk, msg); err != nil {
		return models.Message{}, err
	}
	if err := b.Set([]byte(keys.GenMessageIDIndex(msg.ID)), []byte(mk), nil); err != nil {
		return models.Message{}, err
	}
	if msg.IsAIResponse && msg.ParentMessageID != "" {
		if err := b.Set([]byte(keys.GenReplyIndex(msg.ParentMessageID)), []byte(msg.ID), nil); err != nil {
			return models.Message{}, err
		}
	}
	if err := d.apply(b); err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

func (d *DB) GetMessage(ctx context.Context, id string) (models.Message, error) {
	if err := keys.ValidateID(id); err != nil {
		return models.Message{}, store.ErrNotFound
	}
	mk, err := d.getString(keys.GenMessageIDIndex(id))
	if err != nil {
		return models.Message{}, err
	}
	var msg models.Message
	if err := d.getJSON(mk, &msg); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

func (d *DB) FindReply(ctx context.Context, parentID string) (models.Message, error) {
	if err := keys.ValidateID(parentID); err != nil {
		return models.Message{}, store.ErrNotFound
	}
	id, err := d.getString(keys.GenReplyIndex(parentID))
	if err != nil {
		return models.Message{}, err
	}
	return d.GetMessage(ctx, id)
}

// ListMessages walks the channel prefix backwards from the Before bound.
func (d *DB) ListMessages(ctx context.Context, req models.PageRequest) ([]models.Message, error) {
	if err := keys.ValidateChannel(req.Channel); err != nil {
		return nil, err
	}
	if d.client == nil {
		return nil, store.ErrClosed
	}
	limit := models.ClampLimit(req.Limit)
	prefix := keys.GenMessagePrefix(req.Channel)
	opts := &pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: keys.PrefixUpperBound(prefix),
	}
	if req.Before != nil {
		opts.UpperBound = []byte(keys.GenMessageUpperBound(req.Channel, *req.Before))
	}
	iter, err := d.client.NewIter(opts)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	out := make([]models.Message, 0, limit)
	for ok := iter.Last(); ok && len(out) < limit; ok = iter.Prev() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var msg models.Message
		if err := json.Unmarshal(iter.Value(), &msg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", iter.Key(), err)
		}
		out = append(out, msg)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return out, nil
}
