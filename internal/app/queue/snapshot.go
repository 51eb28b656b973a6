package queue

import (
	"encoding/json"

	"github.com/cockroachdb/errors"

	"github.com/osa030/audiolink/internal/domain/track"
)

// Snapshot is the serialisable state of a Queue.
// The recommender is not part of it and must be reinstalled after a restore.
type Snapshot struct {
	Priority    []*track.Track `json:"priority"`
	Main        []*track.Track `json:"main"`
	Current     *track.Track   `json:"current,omitempty"`
	Previous    *track.Track   `json:"previous,omitempty"`
	History     []*track.Track `json:"history"`
	HistorySize int            `json:"historySize"`
	Loop        LoopMode       `json:"loop"`
	Autoplay    bool           `json:"autoplay"`
}

// Snapshot returns a deep copy of the queue state.
func (q *Queue) Snapshot() Snapshot {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return Snapshot{
		Priority:    cloneAll(q.priority),
		Main:        cloneAll(q.main),
		Current:     q.current.Clone(),
		Previous:    q.previous.Clone(),
		History:     cloneAll(q.history),
		HistorySize: q.historySize,
		Loop:        q.loop,
		Autoplay:    q.autoplay,
	}
}

// Restore replaces the queue state with s. The recommender is kept.
func (q *Queue) Restore(s Snapshot) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.priority = cloneAll(s.Priority)
	q.main = cloneAll(s.Main)
	q.current = s.Current.Clone()
	q.previous = s.Previous.Clone()
	q.history = cloneAll(s.History)
	q.historySize = s.HistorySize
	if q.historySize <= 0 {
		q.historySize = DefaultHistorySize
	}
	if over := len(q.history) - q.historySize; over > 0 {
		q.history = q.history[over:]
	}
	q.loop = s.Loop
	q.autoplay = s.Autoplay
}

func (q *Queue) MarshalJSON() ([]byte, error) {
	return json.Marshal(q.Snapshot())
}

func (q *Queue) UnmarshalJSON(data []byte) error {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.Wrap(err, "failed to decode queue")
	}
	q.Restore(s)
	return nil
}

// FromJSON builds a queue from its serialised form.
func FromJSON(data []byte) (*Queue, error) {
	q := New(DefaultHistorySize)
	if err := q.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return q, nil
}

func cloneAll(tracks []*track.Track) []*track.Track {
	out := make([]*track.Track, 0, len(tracks))
	for _, t := range tracks {
		if t != nil {
			out = append(out, t.Clone())
		}
	}
	return out
}
