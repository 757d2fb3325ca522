package appointment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransitionTable(t *testing.T) {
	allowed := map[[2]Status]bool{
		{StatusScheduled, StatusConfirmed}:  true,
		{StatusScheduled, StatusCancelled}:  true,
		{StatusScheduled, StatusNoShow}:     true,
		{StatusConfirmed, StatusInProgress}: true,
		{StatusConfirmed, StatusCancelled}:  true,
		{StatusConfirmed, StatusNoShow}:     true,
		{StatusInProgress, StatusCompleted}: true,
		{StatusInProgress, StatusCancelled}: true,
		{StatusInProgress, StatusNoShow}:    true,
	}

	all := []Status{StatusScheduled, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled, StatusNoShow}
	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[[2]Status{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestTransitionClosure(t *testing.T) {
	// every reachable state from scheduled stays inside the closed set
	seen := map[Status]bool{StatusScheduled: true}
	frontier := []Status{StatusScheduled}

	for len(frontier) > 0 {
		cur := frontier[0]
		frontier = frontier[1:]
		for _, next := range transitions[cur] {
			assert.True(t, ValidStatus(next), "reached unknown status %q", next)
			if !seen[next] {
				seen[next] = true
				frontier = append(frontier, next)
			}
		}
	}

	assert.Len(t, seen, 6)
}

func TestStatusClassification(t *testing.T) {
	assert.True(t, StatusScheduled.Occupying())
	assert.True(t, StatusConfirmed.Occupying())
	assert.True(t, StatusInProgress.Occupying())
	assert.False(t, StatusCompleted.Occupying())
	assert.False(t, StatusCancelled.Occupying())
	assert.False(t, StatusNoShow.Occupying())

	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.True(t, StatusNoShow.Terminal())
	assert.False(t, StatusScheduled.Terminal())
	assert.False(t, Status("bogus").Terminal())

	assert.False(t, ValidStatus(Status("pending")))
}
