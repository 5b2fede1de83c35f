package confirm

import (
	"strconv"
	"sync"
)

// ItemKind says what kind of opponent action is waiting on a local decision.
type ItemKind string

const (
	ItemScoreSubmitted  ItemKind = "score_submitted"
	ItemVacateRequested ItemKind = "vacate_requested"
	ItemLineupChange    ItemKind = "lineup_change"
)

// Item is one pending opponent action.
type Item struct {
	Kind         ItemKind `json:"kind"`
	GameNumber   int      `json:"game_number,omitempty"`
	WinnerTeamID string   `json:"winner_team_id,omitempty"`
	ProposalID   string   `json:"proposal_id,omitempty"`
}

func (it Item) key() string {
	if it.Kind == ItemLineupChange {
		return string(it.Kind) + "|" + it.ProposalID
	}
	return string(it.Kind) + "|" + strconv.Itoa(it.GameNumber)
}

// Queue serializes opponent actions so the scorekeeper sees exactly one
// pending decision at a time. Pushing is idempotent per action, which is what
// makes duplicate feed delivery harmless upstream.
type Queue struct {
	mu        sync.Mutex
	items     []Item
	onCurrent func(Item)
}

// NewQueue creates a queue. onCurrent fires whenever a different item becomes
// the surfaced one; it may be nil.
func NewQueue(onCurrent func(Item)) *Queue {
	return &Queue{onCurrent: onCurrent}
}

func (q *Queue) Push(item Item) {
	q.mu.Lock()
	for _, existing := range q.items {
		if existing.key() == item.key() {
			q.mu.Unlock()
			return
		}
	}
	q.items = append(q.items, item)
	first := len(q.items) == 1
	q.mu.Unlock()

	if first && q.onCurrent != nil {
		q.onCurrent(item)
	}
}

// Current returns the surfaced item without removing it.
func (q *Queue) Current() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Item{}, false
	}
	return q.items[0], true
}

// Pop removes the surfaced item and surfaces the next one, if any.
func (q *Queue) Pop() (Item, bool) {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return Item{}, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	var next *Item
	if len(q.items) > 0 {
		n := q.items[0]
		next = &n
	}
	q.mu.Unlock()

	if next != nil && q.onCurrent != nil {
		q.onCurrent(*next)
	}
	return item, true
}

// DropGame discards queued items for a game that was resolved remotely.
func (q *Queue) DropGame(gameNumber int) {
	q.drop(func(item Item) bool {
		return item.Kind != ItemLineupChange && item.GameNumber == gameNumber
	})
}

// DropProposal discards a queued lineup item once the proposal is decided.
func (q *Queue) DropProposal(proposalID string) {
	q.drop(func(item Item) bool {
		return item.Kind == ItemLineupChange && item.ProposalID == proposalID
	})
}

// drop removes matching items. Removing the surfaced head promotes the next
// item, which has to fire onCurrent just like a Pop would.
func (q *Queue) drop(match func(Item) bool) {
	q.mu.Lock()
	var oldKey string
	if len(q.items) > 0 {
		oldKey = q.items[0].key()
	}
	kept := q.items[:0]
	for _, item := range q.items {
		if match(item) {
			continue
		}
		kept = append(kept, item)
	}
	q.items = kept

	var next *Item
	if oldKey != "" && len(q.items) > 0 && q.items[0].key() != oldKey {
		n := q.items[0]
		next = &n
	}
	q.mu.Unlock()

	if next != nil && q.onCurrent != nil {
		q.onCurrent(*next)
	}
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
