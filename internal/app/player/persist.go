package player

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
	zlog "github.com/rs/zerolog/log"
)

// Store is the key/value persistence used for player snapshots.
type Store interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

func (m *Manager) snapshotKey(guildID snowflake.ID) string {
	return m.cfg.KeyPrefix + "player:" + guildID.String()
}

// Save writes a snapshot of every live player.
func (m *Manager) Save(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	var errs error
	saved := 0
	for _, p := range m.List() {
		if p.State() == StateDestroyed {
			continue
		}
		data, err := json.Marshal(p.Snapshot())
		if err != nil {
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "encode snapshot of guild %s", p.guildID))
			continue
		}
		if err := m.store.Set(ctx, m.snapshotKey(p.guildID), data, m.cfg.SnapshotTTL); err != nil {
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "save snapshot of guild %s", p.guildID))
			continue
		}
		saved++
	}
	zlog.Debug().Msgf("player manager: saved snapshots: count=%d", saved)
	return errs
}

// Restore recreates players from stored snapshots, rejoins voice and resumes
// playback. It returns the number of players restored; individual failures are logged.
func (m *Manager) Restore(ctx context.Context) (int, error) {
	if m.store == nil {
		return 0, nil
	}
	keys, err := m.store.Keys(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to list snapshots")
	}

	prefix := m.cfg.KeyPrefix + "player:"
	restored := 0
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		data, err := m.store.Get(ctx, key)
		if err != nil {
			zlog.Warn().Msgf("player manager: failed to read snapshot: key=%s err=%v", key, err)
			continue
		}
		var snap Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			zlog.Warn().Msgf("player manager: corrupt snapshot dropped: key=%s err=%v", key, err)
			_ = m.store.Delete(ctx, key)
			continue
		}
		if err := m.restoreOne(ctx, snap); err != nil {
			zlog.Error().Msgf("player manager: failed to restore player: guild=%s err=%v", snap.GuildID, err)
			continue
		}
		restored++
	}
	if restored > 0 {
		zlog.Info().Msgf("player manager: restored players: count=%d", restored)
	}
	return restored, nil
}

func (m *Manager) restoreOne(ctx context.Context, snap Snapshot) error {
	selfDeaf := snap.SelfDeaf
	p, created := m.Create(CreateOptions{
		GuildID:        snap.GuildID,
		VoiceChannelID: snap.VoiceChannelID,
		TextChannelID:  snap.TextChannelID,
		SelfDeaf:       &selfDeaf,
		SelfMute:       snap.SelfMute,
		Volume:         &snap.Volume,
	})
	if !created {
		return nil
	}
	p.applySnapshot(snap)

	if err := p.Connect(ctx); err != nil {
		return errors.Wrap(err, "rejoin voice")
	}
	return p.ResumeFrom(ctx, snap)
}

// RunAutosave saves snapshots every interval until ctx is done.
func (m *Manager) RunAutosave(ctx context.Context, interval time.Duration) {
	if m.store == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Save(ctx); err != nil {
				zlog.Warn().Msgf("player manager: autosave failed: err=%v", err)
			}
		}
	}
}
