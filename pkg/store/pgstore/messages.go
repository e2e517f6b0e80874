package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"meerchat/pkg/models"
)

const pingTimeout = 2 * time.Second

const messageColumns = `id, channel, uid, message, is_ai_response, coalesce(parent_message_id, ''), created_at`

func scanMessage(row pgx.Row) (models.Message, error) {
	var m models.Message
	err := row.Scan(&m.ID, &m.Channel, &m.UID, &m.Body, &m.IsAIResponse, &m.ParentMessageID, &m.CreatedAt)
	m.CreatedAt = m.CreatedAt.UTC()
	return m, err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (d *DB) InsertMessage(ctx context.Context, in models.NewMessage) (models.Message, error) {
	row := d.pool.QueryRow(ctx,
		`INSERT INTO "Chats" (id, channel, uid, message, is_ai_response, parent_message_id)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+messageColumns,
		uuid.NewString(), in.Channel, in.UID, in.Body, in.IsAIResponse, nullable(in.ParentMessageID))
	m, err := scanMessage(row)
	if err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", mapErr(err))
	}
	return m, nil
}

func (d *DB) GetMessage(ctx context.Context, id string) (models.Message, error) {
	m, err := scanMessage(d.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM "Chats" WHERE id = $1`, id))
	return m, mapErr(err)
}

func (d *DB) FindReply(ctx context.Context, parentID string) (models.Message, error) {
	m, err := scanMessage(d.pool.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM "Chats" WHERE parent_message_id = $1 AND is_ai_response LIMIT 1`, parentID))
	return m, mapErr(err)
}

func (d *DB) ListMessages(ctx context.Context, req models.PageRequest) ([]models.Message, error) {
	limit := models.ClampLimit(req.Limit)
	var (
		rows pgx.Rows
		err  error
	)
	if req.Before != nil {
		rows, err = d.pool.Query(ctx,
			`SELECT `+messageColumns+` FROM "Chats" WHERE channel = $1 AND created_at < $2
			 ORDER BY created_at DESC LIMIT $3`, req.Channel, *req.Before, limit)
	} else {
		rows, err = d.pool.Query(ctx,
			`SELECT `+messageColumns+` FROM "Chats" WHERE channel = $1
			 ORDER BY created_at DESC LIMIT $2`, req.Channel, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (models.Message, error) {
		return scanMessage(r)
	})
	if err != nil {
		return nil, fmt.Errorf("collecting rows: %w", err)
	}
	return out, nil
}
