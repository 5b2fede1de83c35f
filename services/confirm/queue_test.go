package confirm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueueSurfacesOneItemAtATime(t *testing.T) {
	var surfaced []Item
	q := NewQueue(func(item Item) {
		surfaced = append(surfaced, item)
	})

	q.Push(Item{Kind: ItemScoreSubmitted, GameNumber: 1})
	q.Push(Item{Kind: ItemScoreSubmitted, GameNumber: 2})

	current, ok := q.Current()
	assert.True(t, ok)
	assert.Equal(t, 1, current.GameNumber)
	assert.Len(t, surfaced, 1, "only the head should surface")

	popped, ok := q.Pop()
	assert.True(t, ok)
	assert.Equal(t, 1, popped.GameNumber)

	current, ok = q.Current()
	assert.True(t, ok)
	assert.Equal(t, 2, current.GameNumber)
	assert.Len(t, surfaced, 2, "the next item surfaces after a pop")
}

// Duplicate feed delivery funnels into duplicate pushes; the queue absorbs
// them.
func TestQueuePushIsIdempotent(t *testing.T) {
	q := NewQueue(nil)

	q.Push(Item{Kind: ItemScoreSubmitted, GameNumber: 7})
	q.Push(Item{Kind: ItemScoreSubmitted, GameNumber: 7})
	q.Push(Item{Kind: ItemVacateRequested, GameNumber: 7})

	assert.Equal(t, 2, q.Len(), "same game, different kinds are distinct")
}

func TestQueueDropGame(t *testing.T) {
	q := NewQueue(nil)
	q.Push(Item{Kind: ItemScoreSubmitted, GameNumber: 3})
	q.Push(Item{Kind: ItemLineupChange, ProposalID: "prop-1"})
	q.Push(Item{Kind: ItemScoreSubmitted, GameNumber: 4})

	q.DropGame(3)

	assert.Equal(t, 2, q.Len())
	current, _ := q.Current()
	assert.Equal(t, ItemLineupChange, current.Kind)

	q.DropProposal("prop-1")
	current, _ = q.Current()
	assert.Equal(t, 4, current.GameNumber)
}

// A drop that removes the surfaced head promotes the next item, and the
// consumer hears about it the same way it would after a pop.
func TestQueueDropOfHeadSurfacesNext(t *testing.T) {
	var surfaced []Item
	q := NewQueue(func(item Item) {
		surfaced = append(surfaced, item)
	})

	q.Push(Item{Kind: ItemScoreSubmitted, GameNumber: 1})
	q.Push(Item{Kind: ItemVacateRequested, GameNumber: 2})
	assert.Len(t, surfaced, 1)

	q.DropGame(1)

	assert.Len(t, surfaced, 2)
	assert.Equal(t, ItemVacateRequested, surfaced[1].Kind)
	assert.Equal(t, 2, surfaced[1].GameNumber)

	// Dropping a non-head item leaves the surfaced head alone.
	q.Push(Item{Kind: ItemScoreSubmitted, GameNumber: 3})
	q.DropGame(3)
	assert.Len(t, surfaced, 2)

	current, ok := q.Current()
	assert.True(t, ok)
	assert.Equal(t, 2, current.GameNumber)
}

func TestQueueEmpty(t *testing.T) {
	q := NewQueue(nil)
	_, ok := q.Current()
	assert.False(t, ok)
	_, ok = q.Pop()
	assert.False(t, ok)
}
