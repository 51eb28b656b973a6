package player

import (
	"context"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/audiolink/internal/app/node"
	"github.com/osa030/audiolink/internal/app/notification"
	"github.com/osa030/audiolink/internal/app/voice"
	"github.com/osa030/audiolink/internal/domain/track"
)

// enqueueNodeEvent queues a node event for in-order processing.
func (p *Player) enqueueNodeEvent(from string, msg node.EventMessage) {
	p.inbox.push(func() { p.applyNodeEvent(from, msg) })
}

// enqueuePlayerUpdate queues a position report for in-order processing.
func (p *Player) enqueuePlayerUpdate(from string, msg node.PlayerUpdateMessage) {
	p.inbox.push(func() { p.applyPlayerUpdate(from, msg) })
}

// onVoiceEvent is the Connection listener. It runs on the caller of the
// voice handlers, so the work is deferred to the mailbox.
func (p *Player) onVoiceEvent(e voice.Event) {
	p.inbox.push(func() { p.applyVoiceEvent(e) })
}

// fromBoundNode reports whether a frame from node name belongs to the current binding.
// Frames of a node the player migrated away from are stale.
func (p *Player) fromBoundNode(name string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.node != nil && p.node.Name() == name
}

func (p *Player) applyPlayerUpdate(from string, msg node.PlayerUpdateMessage) {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	if p.State() == StateDestroyed || !p.fromBoundNode(from) {
		return
	}
	p.update(func() {
		p.position = msg.State.Position
		p.positionAt = p.now()
		p.ping = msg.State.Ping
	})
	p.publish(notification.PlayerUpdated, notification.PlayerUpdatedData{
		Position:  msg.State.Position,
		Connected: msg.State.Connected,
		Ping:      msg.State.Ping,
	})
}

func (p *Player) applyNodeEvent(from string, msg node.EventMessage) {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	if p.State() == StateDestroyed {
		return
	}
	if !p.fromBoundNode(from) {
		zlog.Debug().Msgf("player: dropping event from stale node: guild=%s node=%s type=%s", p.guildID, from, msg.Type)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), restTimeout)
	defer cancel()

	switch msg.Type {
	case node.EventTrackStart:
		p.update(func() {
			p.playing = true
			if p.state != StateDisconnected && !p.paused {
				p.state = StatePlaying
			}
		})
		p.publish(notification.TrackStart, notification.TrackData{Track: p.eventTrack(msg)})

	case node.EventTrackEnd:
		current := p.isCurrent(msg.Track)
		if current {
			p.update(func() { p.playing = false })
		}
		p.publish(notification.TrackEnd, notification.TrackEndData{Track: p.eventTrack(msg), Reason: string(msg.Reason)})
		if msg.Reason.MayStartNext() && current {
			p.advanceLocked(ctx, "track end")
		}

	case node.EventTrackStuck:
		p.publish(notification.TrackStuck, notification.TrackStuckData{Track: p.eventTrack(msg), ThresholdMs: msg.ThresholdMs})
		if p.isCurrent(msg.Track) {
			p.advanceLocked(ctx, "track stuck")
		}

	case node.EventTrackException:
		data := notification.ErrorData{Track: p.eventTrack(msg)}
		if msg.Exception != nil {
			data.Message = msg.Exception.Message
			data.Severity = msg.Exception.Severity
		}
		zlog.Warn().Msgf("player: track exception: guild=%s message=%s severity=%s", p.guildID, data.Message, data.Severity)
		p.publish(notification.TrackError, data)
		if p.isCurrent(msg.Track) {
			p.advanceLocked(ctx, "track exception")
		}

	case node.EventWebSocketClosed:
		if msg.Code != node.CloseCodeDisconnected {
			zlog.Warn().Msgf("player: voice socket closed: guild=%s code=%d reason=%s remote=%t", p.guildID, msg.Code, msg.Reason, msg.ByRemote)
			return
		}
		p.update(func() {
			p.state = StateDisconnected
			p.playing = false
			p.voiceSent = voice.Server{}
			p.voiceNode = ""
		})
		zlog.Info().Msgf("player: disconnected by platform: guild=%s", p.guildID)
		p.publish(notification.PlayerDisconnected, notification.PlayerDisconnectedData{
			Code:     msg.Code,
			Reason:   string(msg.Reason),
			ByRemote: msg.ByRemote,
		})
		p.armInactivityLocked(inactivityIdle)

	default:
		zlog.Debug().Msgf("player: unknown event: guild=%s type=%s", p.guildID, msg.Type)
	}
}

// advanceLocked plays the next track after a node event. Errors are logged.
// Must be called with opMu held.
func (p *Player) advanceLocked(ctx context.Context, cause string) {
	if err := p.playLocked(ctx, PlayOptions{}); err != nil {
		zlog.Error().Msgf("player: failed to advance after %s: guild=%s err=%v", cause, p.guildID, err)
	}
}

// isCurrent reports whether an event track is the queue's current track.
// Events without a track are treated as current.
func (p *Player) isCurrent(t *track.Track) bool {
	if t == nil {
		return true
	}
	cur := p.queue.Current()
	return cur != nil && cur.Encoded == t.Encoded
}

// eventTrack prefers the local copy, which carries requester and user data.
func (p *Player) eventTrack(msg node.EventMessage) *track.Track {
	if cur := p.queue.Current(); cur != nil && (msg.Track == nil || cur.Encoded == msg.Track.Encoded) {
		return cur.Clone()
	}
	return msg.Track
}

func (p *Player) applyVoiceEvent(e voice.Event) {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	if p.State() == StateDestroyed {
		return
	}

	switch e.Type {
	case voice.EventReady:
		ctx, cancel := context.WithTimeout(context.Background(), restTimeout)
		defer cancel()
		if err := p.applyVoiceLocked(ctx, *e.Server); err != nil {
			zlog.Error().Msgf("player: failed to forward voice session: guild=%s err=%v", p.guildID, err)
		}

	case voice.EventMoved:
		p.update(func() { p.channelID = *e.NewChannelID })
		zlog.Info().Msgf("player: moved: guild=%s from=%s to=%s", p.guildID, e.OldChannelID, e.NewChannelID)
		p.publish(notification.PlayerMoved, notification.ChannelData{OldChannelID: e.OldChannelID, ChannelID: e.NewChannelID})

	case voice.EventDisconnected:
		p.update(func() {
			p.state = StateDisconnected
			p.playing = false
			p.voiceSent = voice.Server{}
			p.voiceNode = ""
		})
		zlog.Info().Msgf("player: voice disconnected: guild=%s", p.guildID)
		p.publish(notification.PlayerDisconnected, notification.PlayerDisconnectedData{Reason: "left voice channel", ByRemote: true})
		p.armInactivityLocked(inactivityIdle)
	}
}
