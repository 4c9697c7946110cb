package tracker

import (
	"github.com/golang/geo/r2"
	"sort"
	"sync"
)

// Track represents the pixel history of one landmark
type Track struct {
	points []r2.Point
}

// Trail is the struct to keep a history of landmark positions used for
// drawing a trail
type Trail struct {
	// size is the maximum number of most recent points to keep in history
	size int
	// history of tracked points keyed by landmark id
	history map[int]*Track
	sync.Mutex
}

// NewTrail returns a new trail history instance.  Size is the maximum length
// of the trail to maintain per landmark
func NewTrail(size int) *Trail {
	return &Trail{
		size:    size,
		history: make(map[int]*Track),
	}
}

// Reset clears all history
func (t *Trail) Reset() {
	t.Lock()
	defer t.Unlock()

	t.history = make(map[int]*Track)
}

// Add appends the current positions of the live landmarks and forgets the
// landmarks no longer live
func (t *Trail) Add(ids []int, points []r2.Point) {
	t.Lock()
	defer t.Unlock()

	if t.size <= 0 {
		return
	}

	live := make(map[int]bool, len(ids))

	for i, id := range ids {
		live[id] = true

		// init map if no history exists yet for landmark id
		track, exists := t.history[id]

		if !exists {
			track = &Track{}
			t.history[id] = track
		}

		track.points = append(track.points, points[i])

		// check if history is exceeded and drop oldest point
		if len(track.points) > t.size {
			track.points = track.points[1:]
		}
	}

	for id := range t.history {
		if !live[id] {
			delete(t.history, id)
		}
	}
}

// GetPoints returns a copy of the point history for a landmark id
func (t *Trail) GetPoints(id int) []r2.Point {
	t.Lock()
	defer t.Unlock()

	if track, exists := t.history[id]; exists {
		return append([]r2.Point(nil), track.points...)
	}

	// no history yet
	return nil
}

// IDs returns the landmark ids with history in ascending order
func (t *Trail) IDs() []int {
	t.Lock()
	defer t.Unlock()

	ids := make([]int, 0, len(t.history))

	for id := range t.history {
		ids = append(ids, id)
	}

	sort.Ints(ids)

	return ids
}
