package player

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/audiolink/internal/app/node"
	"github.com/osa030/audiolink/internal/app/notification"
	"github.com/osa030/audiolink/internal/app/voice"
)

// MoveTo re-homes the player onto target. It implements node.Migratable.
func (p *Player) MoveTo(ctx context.Context, target *node.Node) error {
	return p.migrate(ctx, target)
}

// migrate releases the old node, binds target and restores voice and playback there.
func (p *Player) migrate(ctx context.Context, target Node) error {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	if p.State() == StateDestroyed {
		return ErrDestroyed
	}

	p.mu.RLock()
	old := p.node
	position := p.estimatedPositionLocked()
	playing, paused := p.playing, p.paused
	p.mu.RUnlock()

	from := ""
	if old != nil {
		from = old.Name()
		if from == target.Name() {
			return nil
		}
		// The old node is usually unreachable by now.
		dctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := old.DestroyPlayer(dctx, p.guildID); err != nil {
			zlog.Debug().Msgf("player: old node cleanup failed: guild=%s node=%s err=%v", p.guildID, from, err)
		}
		cancel()
	}

	p.update(func() {
		p.node = target
		p.voiceSent = voice.Server{}
		p.voiceNode = ""
	})
	zlog.Info().Msgf("player: migrating: guild=%s from=%s to=%s position=%d", p.guildID, from, target.Name(), position)

	if p.conn.Connected() {
		if err := p.sendVoiceLocked(ctx, target, p.conn.Server()); err != nil {
			return errors.Wrapf(err, "migrate guild %s to %s", p.guildID, target.Name())
		}
	}

	if cur := p.queue.Current(); playing && cur != nil {
		opts := PlayOptions{StartTime: time.Duration(position) * time.Millisecond}
		if err := p.startLocked(ctx, cur, opts); err != nil {
			return errors.Wrapf(err, "migrate guild %s to %s", p.guildID, target.Name())
		}
		if paused {
			if err := p.repauseLocked(ctx, target); err != nil {
				return err
			}
		}
	}

	p.publish(notification.PlayerMigrated, notification.MigratedData{From: from, To: target.Name(), Position: position})
	return nil
}

// repauseLocked restores the paused flag after playback was re-issued on a new node.
func (p *Player) repauseLocked(ctx context.Context, n Node) error {
	paused := true
	if _, err := n.UpdatePlayer(ctx, p.guildID, &node.PlayerUpdate{Paused: &paused}, false); err != nil {
		return errors.Wrap(err, "failed to restore pause state")
	}
	p.update(func() {
		p.paused = true
		p.state = StatePaused
	})
	p.armInactivityLocked(inactivityPaused)
	return nil
}
