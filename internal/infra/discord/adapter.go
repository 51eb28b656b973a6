// Package discord connects the voice layer to a Discord gateway session.
package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Gateway is the part of *discordgo.Session used to send voice states.
type Gateway interface {
	ChannelVoiceJoinManual(gID, cID string, mute, deaf bool) error
}

// VoiceSink receives the gateway's voice events. player.Manager implements it.
type VoiceSink interface {
	HandleVoiceStateUpdate(guildID snowflake.ID, channelID *snowflake.ID, sessionID string)
	HandleVoiceServerUpdate(guildID snowflake.ID, token, endpoint string)
}

// Config tunes the outbound voice state rate.
type Config struct {
	VoiceRate  float64 // per second, shared by every guild
	VoiceBurst int
}

// Adapter implements voice.Adapter on a gateway session.
type Adapter struct {
	gateway Gateway
	limiter *rate.Limiter
	sink    VoiceSink
	selfID  func() string
}

// NewAdapter creates an adapter sending through gw. selfID returns the bot's
// own user id; voice states of other users are ignored.
func NewAdapter(gw Gateway, cfg Config, selfID func() string) *Adapter {
	if cfg.VoiceRate <= 0 {
		cfg.VoiceRate = 2
	}
	if cfg.VoiceBurst <= 0 {
		cfg.VoiceBurst = 5
	}
	return &Adapter{
		gateway: gw,
		limiter: rate.NewLimiter(rate.Limit(cfg.VoiceRate), cfg.VoiceBurst),
		selfID:  selfID,
	}
}

// SetSink sets the receiver of forwarded voice events.
func (a *Adapter) SetSink(sink VoiceSink) {
	a.sink = sink
}

// SendVoiceState joins channelID, or leaves the current channel when it is nil.
func (a *Adapter) SendVoiceState(ctx context.Context, guildID snowflake.ID, channelID *snowflake.ID, selfDeaf, selfMute bool) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "voice state rate limit")
	}

	cID := ""
	if channelID != nil {
		cID = channelID.String()
	}
	zlog.Debug().Msgf("discord: sending voice state: guild=%s channel=%s deaf=%t mute=%t", guildID, cID, selfDeaf, selfMute)
	if err := a.gateway.ChannelVoiceJoinManual(guildID.String(), cID, selfMute, selfDeaf); err != nil {
		return errors.Wrapf(err, "failed to send voice state for guild %s", guildID)
	}
	return nil
}

// Register adds the voice event handlers to s.
func (a *Adapter) Register(s *discordgo.Session) {
	s.AddHandler(a.onVoiceStateUpdate)
	s.AddHandler(a.onVoiceServerUpdate)
}

func (a *Adapter) onVoiceStateUpdate(_ *discordgo.Session, e *discordgo.VoiceStateUpdate) {
	if a.sink == nil || e.VoiceState == nil {
		return
	}
	if a.selfID == nil {
		return
	}
	if self := a.selfID(); self == "" || e.UserID != self {
		return
	}
	guildID, err := snowflake.Parse(e.GuildID)
	if err != nil {
		zlog.Warn().Msgf("discord: bad guild id in voice state: %q", e.GuildID)
		return
	}

	var channelID *snowflake.ID
	if e.ChannelID != "" {
		id, err := snowflake.Parse(e.ChannelID)
		if err != nil {
			zlog.Warn().Msgf("discord: bad channel id in voice state: %q", e.ChannelID)
			return
		}
		channelID = &id
	}
	a.sink.HandleVoiceStateUpdate(guildID, channelID, e.SessionID)
}

func (a *Adapter) onVoiceServerUpdate(_ *discordgo.Session, e *discordgo.VoiceServerUpdate) {
	if a.sink == nil {
		return
	}
	guildID, err := snowflake.Parse(e.GuildID)
	if err != nil {
		zlog.Warn().Msgf("discord: bad guild id in voice server update: %q", e.GuildID)
		return
	}
	a.sink.HandleVoiceServerUpdate(guildID, e.Token, e.Endpoint)
}

// NewSession creates a gateway session with the intents voice handling needs.
// The session is not opened.
func NewSession(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create discord session")
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates
	return s, nil
}

// SelfID returns the user id of the session's bot once it is ready.
func SelfID(s *discordgo.Session) func() string {
	return func() string {
		if s.State == nil || s.State.User == nil {
			return ""
		}
		return s.State.User.ID
	}
}
