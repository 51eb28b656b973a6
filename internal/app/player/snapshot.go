package player

import (
	"context"
	"time"

	"github.com/disgoorg/snowflake/v2"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/audiolink/internal/app/queue"
	"github.com/osa030/audiolink/internal/domain/filter"
)

// Snapshot is the persisted state of a player.
type Snapshot struct {
	GuildID        snowflake.ID    `json:"guildId"`
	VoiceChannelID snowflake.ID    `json:"voiceChannelId"`
	TextChannelID  *snowflake.ID   `json:"textChannelId,omitempty"`
	SelfDeaf       bool            `json:"selfDeaf"`
	SelfMute       bool            `json:"selfMute"`
	Node           string          `json:"node,omitempty"`
	Volume         int             `json:"volume"`
	State          State           `json:"state"`
	Playing        bool            `json:"playing"`
	Paused         bool            `json:"paused"`
	Position       int64           `json:"position"` // Estimated at SavedAt, milliseconds
	Queue          queue.Snapshot  `json:"queue"`
	Filters        *filter.Filters `json:"filters,omitempty"`
	SavedAt        time.Time       `json:"savedAt"`
}

// Snapshot captures the player state with an estimated position.
func (p *Player) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s := Snapshot{
		GuildID:        p.guildID,
		VoiceChannelID: p.channelID,
		TextChannelID:  p.textChannelID,
		SelfDeaf:       p.selfDeaf,
		SelfMute:       p.selfMute,
		Volume:         p.volume,
		State:          p.state,
		Playing:        p.playing,
		Paused:         p.paused,
		Position:       p.estimatedPositionLocked(),
		Queue:          p.queue.Snapshot(),
		Filters:        p.filters.Clone(),
		SavedAt:        p.now(),
	}
	if p.node != nil {
		s.Node = p.node.Name()
	}
	return s
}

// applySnapshot loads queue, volume and filters from s. Voice and playback
// are restored separately by ResumeFrom.
func (p *Player) applySnapshot(s Snapshot) {
	p.queue.Restore(s.Queue)
	p.update(func() {
		p.volume = clampVolume(s.Volume)
		p.filters = s.Filters.Clone()
		p.position = s.Position
	})
}

// ResumeFrom restarts the current track at the snapshot position on the bound node.
func (p *Player) ResumeFrom(ctx context.Context, s Snapshot) error {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	if p.State() == StateDestroyed {
		return ErrDestroyed
	}
	cur := p.queue.Current()
	if !s.Playing || cur == nil {
		p.update(func() {
			if p.state == StateConnected {
				p.state = StateStopped
			}
		})
		p.armInactivityLocked(inactivityIdle)
		return nil
	}

	if err := p.startLocked(ctx, cur, PlayOptions{StartTime: time.Duration(s.Position) * time.Millisecond}); err != nil {
		return err
	}
	if s.Paused {
		n, err := p.ensureNodeLocked()
		if err != nil {
			return err
		}
		return p.repauseLocked(ctx, n)
	}
	zlog.Info().Msgf("player: resumed from snapshot: guild=%s track=%q position=%d", p.guildID, cur.Info.Title, s.Position)
	return nil
}
