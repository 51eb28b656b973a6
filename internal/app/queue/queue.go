// Package queue implements the per-guild track queue.
//
// A queue holds two lanes: the priority lane is always drained before the
// main lane. Index-based operations address the concatenation
// [priority..., main...] and re-split the result by the priority lane length
// the operation started with.
package queue

import (
	"context"
	"slices"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo/mutable"

	"github.com/osa030/audiolink/internal/domain/track"
)

// DefaultHistorySize is the number of finished tracks remembered for Back.
const DefaultHistorySize = 50

var (
	ErrIndexOutOfRange = errors.New("queue index out of range")
	ErrHistoryEmpty    = errors.New("history is empty")
)

// RecommendFunc returns tracks to continue with once the queue runs dry.
// last is the track that just finished and may be nil.
type RecommendFunc func(ctx context.Context, last *track.Track) ([]*track.Track, error)

// AddOptions controls where Add places tracks.
type AddOptions struct {
	Priority  bool             // Append to the priority lane
	Position  *int             // Insert into the main lane at this index (ignored with Priority)
	Requester *track.Requester // Stamped on every added track when set
}

// Queue is the ordered track storage of one player.
type Queue struct {
	mu sync.RWMutex

	priority    []*track.Track
	main        []*track.Track
	current     *track.Track
	previous    *track.Track
	history     []*track.Track
	historySize int
	loop        LoopMode
	autoplay    bool
	recommend   RecommendFunc
}

// New creates an empty queue. historySize <= 0 selects DefaultHistorySize.
func New(historySize int) *Queue {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	return &Queue{historySize: historySize}
}

// Add places tracks into the queue and returns the stored copies.
func (q *Queue) Add(tracks []*track.Track, opts AddOptions) []*track.Track {
	q.mu.Lock()
	defer q.mu.Unlock()

	added := make([]*track.Track, 0, len(tracks))
	for _, t := range tracks {
		if t == nil {
			continue
		}
		added = append(added, t.Clone().WithRequester(opts.Requester))
	}
	if len(added) == 0 {
		return added
	}

	switch {
	case opts.Priority:
		q.priority = append(q.priority, added...)
	case opts.Position != nil:
		pos := min(max(*opts.Position, 0), len(q.main))
		q.main = slices.Insert(q.main, pos, added...)
	default:
		q.main = append(q.main, added...)
	}
	return added
}

// Remove deletes the track at index of the concatenated view.
func (q *Queue) Remove(index int) (*track.Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if index < 0 || index >= q.sizeLocked() {
		return nil, errors.Wrapf(ErrIndexOutOfRange, "remove %d", index)
	}
	if index < len(q.priority) {
		t := q.priority[index]
		q.priority = slices.Delete(q.priority, index, index+1)
		return t, nil
	}
	i := index - len(q.priority)
	t := q.main[i]
	q.main = slices.Delete(q.main, i, i+1)
	return t, nil
}

// RemoveRange deletes tracks in [start, end) of the concatenated view.
func (q *Queue) RemoveRange(start, end int) ([]*track.Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if start < 0 || end > q.sizeLocked() || start > end {
		return nil, errors.Wrapf(ErrIndexOutOfRange, "remove range [%d, %d)", start, end)
	}
	all := q.concatLocked()
	removed := slices.Clone(all[start:end])
	prio := len(q.priority)
	removedFromPriority := min(end, prio) - min(start, prio)

	rest := slices.Delete(all, start, end)
	q.splitLocked(rest, prio-removedFromPriority)
	return removed, nil
}

// Clear empties the main lane, and the priority lane when includePriority is set.
// It returns the number of tracks removed.
func (q *Queue) Clear(includePriority bool) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.main)
	q.main = nil
	if includePriority {
		n += len(q.priority)
		q.priority = nil
	}
	return n
}

// Shuffle randomises the main lane. The priority lane keeps its order.
func (q *Queue) Shuffle() {
	q.mu.Lock()
	defer q.mu.Unlock()

	mutable.Shuffle(q.main)
}

// Move relocates the track at from to index to.
func (q *Queue) Move(from, to int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	size := q.sizeLocked()
	if from < 0 || from >= size || to < 0 || to >= size {
		return errors.Wrapf(ErrIndexOutOfRange, "move %d -> %d", from, to)
	}
	prio := len(q.priority)
	all := q.concatLocked()
	t := all[from]
	all = slices.Delete(all, from, from+1)
	all = slices.Insert(all, to, t)
	q.splitLocked(all, prio)
	return nil
}

// Swap exchanges the tracks at i and j.
func (q *Queue) Swap(i, j int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	size := q.sizeLocked()
	if i < 0 || i >= size || j < 0 || j >= size {
		return errors.Wrapf(ErrIndexOutOfRange, "swap %d <-> %d", i, j)
	}
	prio := len(q.priority)
	all := q.concatLocked()
	all[i], all[j] = all[j], all[i]
	q.splitLocked(all, prio)
	return nil
}

// Next advances the queue and returns the new current track.
// A nil result means the queue has ended.
func (q *Queue) Next() *track.Track {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.loop == LoopTrack && q.current != nil {
		return q.current
	}

	finished := q.current
	if finished != nil {
		q.pushHistoryLocked(finished)
		q.previous = finished
		if q.loop == LoopQueue {
			q.main = append(q.main, finished)
		}
	}

	switch {
	case len(q.priority) > 0:
		q.current = q.priority[0]
		q.priority = q.priority[1:]
	case len(q.main) > 0:
		q.current = q.main[0]
		q.main = q.main[1:]
	case q.loop == LoopQueue && q.previous != nil:
		q.current = q.previous
	default:
		q.current = nil
	}
	return q.current
}

// Jump makes the track at position current. Tracks before it are moved to history.
func (q *Queue) Jump(position int) (*track.Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if position < 0 || position >= q.sizeLocked() {
		return nil, errors.Wrapf(ErrIndexOutOfRange, "jump %d", position)
	}
	prio := len(q.priority)
	all := q.concatLocked()

	for _, skipped := range all[:position] {
		q.pushHistoryLocked(skipped)
	}
	if q.current != nil {
		q.pushHistoryLocked(q.current)
		q.previous = q.current
	}
	q.current = all[position]
	q.splitLocked(slices.Clone(all[position+1:]), prio-(position+1))
	return q.current, nil
}

// Back returns to the most recent history entry.
// The current track is put back at the front of the priority lane.
func (q *Queue) Back() (*track.Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.history) == 0 {
		return nil, ErrHistoryEmpty
	}
	last := len(q.history) - 1
	t := q.history[last]
	q.history = q.history[:last]

	if q.current != nil {
		q.priority = slices.Insert(q.priority, 0, q.current)
		q.previous = q.current
	}
	q.current = t
	return t, nil
}

// SetCurrent makes t current without consuming either lane.
// The replaced track moves to history.
func (q *Queue) SetCurrent(t *track.Track) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.current != nil && !q.current.Same(t) {
		q.pushHistoryLocked(q.current)
		q.previous = q.current
	}
	q.current = t
}

// PeekNext returns the track Next would return, without advancing.
func (q *Queue) PeekNext() *track.Track {
	q.mu.RLock()
	defer q.mu.RUnlock()

	switch {
	case q.loop == LoopTrack && q.current != nil:
		return q.current
	case len(q.priority) > 0:
		return q.priority[0]
	case len(q.main) > 0:
		return q.main[0]
	case q.loop == LoopQueue:
		if q.current != nil {
			return q.current
		}
		return q.previous
	default:
		return nil
	}
}

// Destroy drops every track, including history.
func (q *Queue) Destroy() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.priority = nil
	q.main = nil
	q.history = nil
	q.current = nil
	q.previous = nil
	q.recommend = nil
}

func (q *Queue) Current() *track.Track {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.current
}

func (q *Queue) Previous() *track.Track {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.previous
}

// Size returns the number of upcoming tracks in both lanes.
func (q *Queue) Size() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.sizeLocked()
}

func (q *Queue) IsEmpty() bool {
	return q.Size() == 0
}

// Tracks returns the upcoming tracks in play order.
func (q *Queue) Tracks() []*track.Track {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.concatLocked()
}

func (q *Queue) Priority() []*track.Track {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return slices.Clone(q.priority)
}

func (q *Queue) Main() []*track.Track {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return slices.Clone(q.main)
}

// History returns finished tracks, oldest first.
func (q *Queue) History() []*track.Track {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return slices.Clone(q.history)
}

func (q *Queue) LoopMode() LoopMode {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.loop
}

func (q *Queue) SetLoopMode(m LoopMode) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.loop = m
}

func (q *Queue) Autoplay() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.autoplay
}

func (q *Queue) SetAutoplay(enabled bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.autoplay = enabled
}

// SetRecommender installs the function used by Recommend.
func (q *Queue) SetRecommender(fn RecommendFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.recommend = fn
}

// Recommend asks the recommender for follow-up tracks.
// It returns nil when autoplay is off or no recommender is installed.
func (q *Queue) Recommend(ctx context.Context, last *track.Track) ([]*track.Track, error) {
	q.mu.RLock()
	fn, enabled := q.recommend, q.autoplay
	q.mu.RUnlock()

	if !enabled || fn == nil {
		return nil, nil
	}
	return fn(ctx, last)
}

func (q *Queue) sizeLocked() int {
	return len(q.priority) + len(q.main)
}

func (q *Queue) concatLocked() []*track.Track {
	all := make([]*track.Track, 0, q.sizeLocked())
	all = append(all, q.priority...)
	return append(all, q.main...)
}

// splitLocked re-splits a concatenated view into lanes.
func (q *Queue) splitLocked(all []*track.Track, priorityLen int) {
	priorityLen = min(max(priorityLen, 0), len(all))
	q.priority = slices.Clone(all[:priorityLen])
	q.main = slices.Clone(all[priorityLen:])
}

func (q *Queue) pushHistoryLocked(t *track.Track) {
	q.history = append(q.history, t)
	if over := len(q.history) - q.historySize; over > 0 {
		q.history = slices.Delete(q.history, 0, over)
	}
}
