package chatsync

import (
	"sort"

	"github.com/aura-webinar/livecore/internal/models"
)

// Feed is an id-ordered, duplicate-free list of chat messages. It is not safe for concurrent use.
type Feed struct {
	msgs []models.ChatMessage
	ids  map[int64]struct{}
}

// NewFeed returns an empty feed.
func NewFeed() *Feed {
	return &Feed{ids: make(map[int64]struct{})}
}

// Merge folds a fetched batch into the feed. Only messages with id > marker that are not
// already present are inserted, in id order. It returns the advanced marker and the inserted
// messages.
func (f *Feed) Merge(marker int64, batch []models.ChatMessage) (int64, []models.ChatMessage) {
	if len(batch) == 0 {
		return marker, nil
	}
	sorted := make([]models.ChatMessage, len(batch))
	copy(sorted, batch)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	next := marker
	var inserted []models.ChatMessage
	for _, m := range sorted {
		if m.ID <= marker {
			continue
		}
		if m.ID > next {
			next = m.ID
		}
		if f.Insert(m) {
			inserted = append(inserted, m)
		}
	}
	return next, inserted
}

// Insert places m at its id position. It reports false when the id is already present.
func (f *Feed) Insert(m models.ChatMessage) bool {
	if _, ok := f.ids[m.ID]; ok {
		return false
	}
	f.ids[m.ID] = struct{}{}
	n := len(f.msgs)
	if n == 0 || f.msgs[n-1].ID < m.ID {
		f.msgs = append(f.msgs, m)
		return true
	}
	i := sort.Search(n, func(i int) bool { return f.msgs[i].ID > m.ID })
	f.msgs = append(f.msgs, models.ChatMessage{})
	copy(f.msgs[i+1:], f.msgs[i:])
	f.msgs[i] = m
	return true
}

// Replace swaps the stored message with the same id for m. It reports false if absent.
func (f *Feed) Replace(m models.ChatMessage) bool {
	if _, ok := f.ids[m.ID]; !ok {
		return false
	}
	i := sort.Search(len(f.msgs), func(i int) bool { return f.msgs[i].ID >= m.ID })
	f.msgs[i] = m
	return true
}

// Get returns the message with id.
func (f *Feed) Get(id int64) (models.ChatMessage, bool) {
	if _, ok := f.ids[id]; !ok {
		return models.ChatMessage{}, false
	}
	i := sort.Search(len(f.msgs), func(i int) bool { return f.msgs[i].ID >= id })
	return f.msgs[i], true
}

// Snapshot returns a copy of the feed in id order.
func (f *Feed) Snapshot() []models.ChatMessage {
	out := make([]models.ChatMessage, len(f.msgs))
	copy(out, f.msgs)
	return out
}

func (f *Feed) Len() int { return len(f.msgs) }
