package feed

import (
	"slices"
	"time"

	"meerchat/pkg/models"
)

// Merger builds one channel's ascending, duplicate-free sequence.
// It is not safe for concurrent use.
type Merger struct {
	ledger    *Ledger
	channel   string
	keep      func(models.Message) bool
	watermark *time.Time
}

// NewMerger returns a merger for channel. keep may be nil.
func NewMerger(ledger *Ledger, channel string, keep func(models.Message) bool) *Merger {
	return &Merger{ledger: ledger, channel: channel, keep: keep}
}

// Watermark returns the oldest paged timestamp, or nil before the first page.
func (m *Merger) Watermark() *time.Time {
	if m.watermark == nil {
		return nil
	}
	w := *m.watermark
	return &w
}

func (m *Merger) lower(t time.Time) {
	if m.watermark == nil || t.Before(*m.watermark) {
		m.watermark = &t
	}
}

// admit reports whether msg is new and passes the filter.
func (m *Merger) admit(msg models.Message) bool {
	if m.ledger.Seen(m.channel, msg.ID) {
		return false
	}
	return m.keep == nil || m.keep(msg)
}

// MergeOlder prepends the unseen messages of batch to seq. Filtered and
// duplicate rows still move the watermark so paging keeps advancing.
func (m *Merger) MergeOlder(seq, batch []models.Message) []models.Message {
	out, _ := m.mergeOlder(seq, batch)
	return out
}

// mergeOlder also returns the admitted rows.
func (m *Merger) mergeOlder(seq, batch []models.Message) ([]models.Message, []models.Message) {
	fresh := make([]models.Message, 0, len(batch))
	for _, msg := range batch {
		m.lower(msg.CreatedAt)
		if m.admit(msg) {
			fresh = append(fresh, msg)
		}
	}
	if len(fresh) == 0 {
		return seq, nil
	}
	sortAscending(fresh)
	out := make([]models.Message, 0, len(fresh)+len(seq))
	out = append(out, fresh...)
	out = append(out, seq...)
	sortAscending(out)
	return out, fresh
}

// AppendLive adds msg unless already seen. Repeated calls are no-ops.
func (m *Merger) AppendLive(seq []models.Message, msg models.Message) []models.Message {
	if !m.admit(msg) {
		return seq
	}
	if m.watermark == nil {
		m.lower(msg.CreatedAt)
	}
	out := append(slices.Clip(seq), msg)
	sortAscending(out)
	return out
}
