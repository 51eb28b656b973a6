package connect

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/osa030/audiolink/internal/app/admission"
	"github.com/osa030/audiolink/internal/app/node"
	"github.com/osa030/audiolink/internal/app/notification"
	"github.com/osa030/audiolink/internal/app/player"
	"github.com/osa030/audiolink/internal/app/queue"
	"github.com/osa030/audiolink/internal/domain/track"
)

// eventBuffer is the per-watcher notification backlog.
const eventBuffer = 256

// adminRequester is stamped on tracks queued through the control API.
var adminRequester = &track.Requester{Name: "admin", Type: track.RequesterTypeSystem}

// AdminService implements the AdminService RPC.
type AdminService struct {
	players   *player.Manager
	nodes     *node.Manager
	notify    *notification.Manager
	admission *admission.Chain

	done      chan struct{}
	closeOnce sync.Once
}

// NewAdminService creates a new AdminService.
// A nil chain admits every track.
func NewAdminService(players *player.Manager, nodes *node.Manager, notify *notification.Manager, chain *admission.Chain) *AdminService {
	return &AdminService{
		players:   players,
		nodes:     nodes,
		notify:    notify,
		admission: chain,
		done:      make(chan struct{}),
	}
}

// Ensure AdminService implements the interface.
var _ AdminServiceHandler = (*AdminService)(nil)

// Close ends every open event stream.
func (s *AdminService) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// ListNodes lists the audio nodes in priority order.
func (s *AdminService) ListNodes(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[ListNodesResponse], error) {
	nodes := s.nodes.Nodes()
	return connect.NewResponse(&ListNodesResponse{
		Nodes: lo.Map(nodes, func(n *node.Node, _ int) NodeInfo { return nodeInfo(n) }),
	}), nil
}

// ConnectNode connects a node that is down.
func (s *AdminService) ConnectNode(
	ctx context.Context,
	req *connect.Request[NodeRequest],
) (*connect.Response[NodeResponse], error) {
	n, err := s.node(req.Msg.Name)
	if err != nil {
		return nil, err
	}
	if n.State() != node.StateConnected {
		if err := n.Connect(ctx); err != nil {
			return nil, toConnectError(err)
		}
	}
	zlog.Info().Msgf("admin: node connected: name=%s", n.Name())
	return connect.NewResponse(&NodeResponse{Node: nodeInfo(n)}), nil
}

// DisconnectNode closes a node's socket. Its players migrate to other nodes.
func (s *AdminService) DisconnectNode(
	ctx context.Context,
	req *connect.Request[NodeRequest],
) (*connect.Response[NodeResponse], error) {
	n, err := s.node(req.Msg.Name)
	if err != nil {
		return nil, err
	}
	if _, ok := s.nodes.Drain(n.Name(), "disconnected by admin"); !ok {
		return nil, connect.NewError(connect.CodeNotFound, errors.Newf("node not found: %s", n.Name()))
	}
	zlog.Info().Msgf("admin: node disconnected: name=%s", n.Name())
	return connect.NewResponse(&NodeResponse{Node: nodeInfo(n)}), nil
}

// ListPlayers lists every player.
func (s *AdminService) ListPlayers(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[ListPlayersResponse], error) {
	players := s.players.List()
	return connect.NewResponse(&ListPlayersResponse{
		Players: lo.Map(players, func(p *player.Player, _ int) PlayerInfo { return playerInfo(p) }),
	}), nil
}

// CreatePlayer creates the guild's player, or returns the existing one, and
// joins its voice channel.
func (s *AdminService) CreatePlayer(
	ctx context.Context,
	req *connect.Request[CreatePlayerRequest],
) (*connect.Response[CreatePlayerResponse], error) {
	msg := req.Msg
	if msg.GuildID == 0 || msg.VoiceChannelID == 0 {
		return nil, invalidArgument("guildId and voiceChannelId are required")
	}
	if msg.Volume != nil && (*msg.Volume < 0 || *msg.Volume > 100) {
		return nil, invalidArgument("volume must be within 0..100, got %d", *msg.Volume)
	}

	p, created := s.players.Create(player.CreateOptions{
		GuildID:        msg.GuildID,
		VoiceChannelID: msg.VoiceChannelID,
		TextChannelID:  msg.TextChannelID,
		SelfDeaf:       msg.SelfDeaf,
		Volume:         msg.Volume,
	})
	if msg.Autoplay != nil {
		p.SetAutoplay(*msg.Autoplay)
	}

	var err error
	switch {
	case created:
		err = p.Connect(ctx)
	case p.VoiceChannelID() != msg.VoiceChannelID:
		err = p.SwitchChannel(ctx, msg.VoiceChannelID)
	case p.State() == player.StateDisconnected:
		err = p.Connect(ctx)
	}
	if err != nil {
		if created {
			p.Destroy(context.WithoutCancel(ctx))
		}
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&CreatePlayerResponse{Player: playerInfo(p), Created: created}), nil
}

// DestroyPlayer destroys the guild's player.
func (s *AdminService) DestroyPlayer(
	ctx context.Context,
	req *connect.Request[GuildRequest],
) (*connect.Response[Empty], error) {
	if err := s.players.Destroy(ctx, req.Msg.GuildID); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&Empty{}), nil
}

// Play resolves a query, queues the result and starts playback when idle.
func (s *AdminService) Play(
	ctx context.Context,
	req *connect.Request[PlayRequest],
) (*connect.Response[PlayResponse], error) {
	query := strings.TrimSpace(req.Msg.Query)
	if query == "" {
		return nil, invalidArgument("query is required")
	}
	p, err := s.player(req.Msg.GuildID)
	if err != nil {
		return nil, err
	}

	result, err := p.Search(ctx, query)
	if err != nil {
		return nil, toConnectError(err)
	}
	tracks, err := selectTracks(result)
	if err != nil {
		return nil, err
	}

	requester := adminRequester
	if r := req.Msg.Requester; r != nil {
		requester = &track.Requester{ID: r.ID, Name: r.Name, Type: track.RequesterTypeUser}
	}
	tracks, rejections := s.admission.Admit(ctx, tracks, requester, p.Queue())
	rejected := make([]RejectedTrack, 0, len(rejections))
	for _, r := range rejections {
		rejected = append(rejected, RejectedTrack{Track: r.Track, Code: r.Code})
	}
	if len(tracks) == 0 {
		return nil, connect.NewError(connect.CodeFailedPrecondition, errors.Newf("all tracks rejected: %s", rejected[0].Code))
	}

	added := p.Add(tracks, queue.AddOptions{Priority: req.Msg.Next, Requester: requester})
	started, err := p.PlayIfIdle(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}
	zlog.Info().Msgf("admin: queued tracks: guild=%s count=%d rejected=%d started=%t", p.GuildID(), len(added), len(rejected), started)

	return connect.NewResponse(&PlayResponse{Added: added, Rejected: rejected, Started: started, Player: playerInfo(p)}), nil
}

// selectTracks picks what a load result contributes to the queue.
func selectTracks(result *node.LoadResult) ([]*track.Track, error) {
	switch result.LoadType {
	case node.LoadTypeError:
		msg := "load failed"
		if result.Exception != nil {
			msg = result.Exception.Message
		}
		return nil, connect.NewError(connect.CodeFailedPrecondition, errors.New(msg))
	case node.LoadTypeEmpty:
		return nil, connect.NewError(connect.CodeNotFound, errors.New("no matches"))
	case node.LoadTypePlaylist:
		if len(result.Tracks) > 0 {
			return result.Tracks, nil
		}
	default:
		if len(result.Tracks) > 0 {
			return result.Tracks[:1], nil
		}
	}
	return nil, connect.NewError(connect.CodeNotFound, errors.New("no matches"))
}

// Pause pauses playback.
func (s *AdminService) Pause(
	ctx context.Context,
	req *connect.Request[GuildRequest],
) (*connect.Response[PlayerResponse], error) {
	return s.withPlayer(req.Msg.GuildID, func(p *player.Player) error { return p.Pause(ctx) })
}

// Resume resumes playback.
func (s *AdminService) Resume(
	ctx context.Context,
	req *connect.Request[GuildRequest],
) (*connect.Response[PlayerResponse], error) {
	return s.withPlayer(req.Msg.GuildID, func(p *player.Player) error { return p.Resume(ctx) })
}

// Skip skips the current track.
func (s *AdminService) Skip(
	ctx context.Context,
	req *connect.Request[GuildRequest],
) (*connect.Response[PlayerResponse], error) {
	return s.withPlayer(req.Msg.GuildID, func(p *player.Player) error { return p.Skip(ctx) })
}

// Back replays the previous track.
func (s *AdminService) Back(
	ctx context.Context,
	req *connect.Request[GuildRequest],
) (*connect.Response[PlayerResponse], error) {
	return s.withPlayer(req.Msg.GuildID, func(p *player.Player) error { return p.Back(ctx) })
}

// Stop stops playback, optionally clearing the queue.
func (s *AdminService) Stop(
	ctx context.Context,
	req *connect.Request[StopRequest],
) (*connect.Response[PlayerResponse], error) {
	return s.withPlayer(req.Msg.GuildID, func(p *player.Player) error { return p.Stop(ctx, req.Msg.ClearQueue) })
}

// Seek moves within the current track.
func (s *AdminService) Seek(
	ctx context.Context,
	req *connect.Request[SeekRequest],
) (*connect.Response[PlayerResponse], error) {
	if req.Msg.PositionMs < 0 {
		return nil, invalidArgument("positionMs must not be negative")
	}
	position := time.Duration(req.Msg.PositionMs) * time.Millisecond
	return s.withPlayer(req.Msg.GuildID, func(p *player.Player) error { return p.Seek(ctx, position) })
}

// SetVolume changes the volume.
func (s *AdminService) SetVolume(
	ctx context.Context,
	req *connect.Request[SetVolumeRequest],
) (*connect.Response[PlayerResponse], error) {
	if req.Msg.Volume < 0 || req.Msg.Volume > 100 {
		return nil, invalidArgument("volume must be within 0..100, got %d", req.Msg.Volume)
	}
	return s.withPlayer(req.Msg.GuildID, func(p *player.Player) error { return p.SetVolume(ctx, req.Msg.Volume) })
}

// SetLoop changes the loop mode.
func (s *AdminService) SetLoop(
	ctx context.Context,
	req *connect.Request[SetLoopRequest],
) (*connect.Response[PlayerResponse], error) {
	mode, err := queue.ParseLoopMode(req.Msg.Mode)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	return s.withPlayer(req.Msg.GuildID, func(p *player.Player) error {
		p.SetLoop(mode)
		return nil
	})
}

// Shuffle shuffles the queue.
func (s *AdminService) Shuffle(
	ctx context.Context,
	req *connect.Request[GuildRequest],
) (*connect.Response[QueueResponse], error) {
	p, err := s.player(req.Msg.GuildID)
	if err != nil {
		return nil, err
	}
	p.Shuffle()
	return connect.NewResponse(queueResponse(p)), nil
}

// GetQueue returns the queue of the guild's player.
func (s *AdminService) GetQueue(
	ctx context.Context,
	req *connect.Request[GuildRequest],
) (*connect.Response[QueueResponse], error) {
	p, err := s.player(req.Msg.GuildID)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(queueResponse(p)), nil
}

// WatchEvents streams notifications until the client goes away.
func (s *AdminService) WatchEvents(
	ctx context.Context,
	req *connect.Request[WatchEventsRequest],
	stream *connect.ServerStream[EventMessage],
) error {
	categories, err := parseCategories(req.Msg.Categories)
	if err != nil {
		return err
	}

	events := notification.NewChannelStream(eventBuffer)
	subscriptionID := s.notify.Subscribe(events, categories...)
	defer s.notify.Unsubscribe(subscriptionID)
	zlog.Debug().Msgf("admin: event watcher subscribed: id=%s categories=%v", subscriptionID, categories)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			return nil
		case e := <-events.Events():
			if req.Msg.GuildID != 0 && e.GuildID != req.Msg.GuildID {
				continue
			}
			msg, err := eventMessage(e)
			if err != nil {
				zlog.Warn().Msgf("admin: failed to encode event: type=%s err=%v", e.Type, err)
				continue
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

func parseCategories(names []string) ([]notification.Category, error) {
	known := []notification.Category{
		notification.CategoryNode,
		notification.CategoryPlayer,
		notification.CategoryTrack,
		notification.CategoryQueue,
		notification.CategoryAutoplay,
	}
	out := make([]notification.Category, 0, len(names))
	for _, name := range names {
		c := notification.Category(strings.ToLower(strings.TrimSpace(name)))
		if !lo.Contains(known, c) {
			return nil, invalidArgument("unknown event category: %q", name)
		}
		out = append(out, c)
	}
	return lo.Uniq(out), nil
}

func eventMessage(e *notification.Event) (*EventMessage, error) {
	msg := &EventMessage{
		SequenceNo: e.SequenceNo,
		Type:       e.Type.String(),
		Category:   string(e.Type.Category()),
		Time:       e.Time,
		Node:       e.Node,
		GuildID:    e.GuildID,
	}
	if e.Data != nil {
		data, err := json.Marshal(e.Data)
		if err != nil {
			return nil, err
		}
		msg.Data = data
	}
	return msg, nil
}

func (s *AdminService) node(name string) (*node.Node, error) {
	if name == "" {
		return nil, invalidArgument("node name is required")
	}
	n, ok := s.nodes.Get(name)
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, errors.Newf("node not found: %s", name))
	}
	return n, nil
}

func (s *AdminService) player(guildID snowflake.ID) (*player.Player, error) {
	if guildID == 0 {
		return nil, invalidArgument("guildId is required")
	}
	p, err := s.players.MustGet(guildID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return p, nil
}

func (s *AdminService) withPlayer(guildID snowflake.ID, fn func(*player.Player) error) (*connect.Response[PlayerResponse], error) {
	p, err := s.player(guildID)
	if err != nil {
		return nil, err
	}
	if err := fn(p); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&PlayerResponse{Player: playerInfo(p)}), nil
}

func nodeInfo(n *node.Node) NodeInfo {
	info := NodeInfo{
		Name:     n.Name(),
		State:    n.State().String(),
		Priority: n.Priority(),
		Regions:  n.Regions(),
		Penalty:  n.Penalty(),
		UptimeMs: n.Uptime().Milliseconds(),
	}
	if stats := n.Stats(); stats != nil {
		info.Players = stats.Players
		info.PlayingPlayers = stats.PlayingPlayers
		info.SystemLoad = stats.CPU.SystemLoad
	}
	return info
}

func playerInfo(p *player.Player) PlayerInfo {
	q := p.Queue()
	return PlayerInfo{
		GuildID:        p.GuildID(),
		VoiceChannelID: p.VoiceChannelID(),
		TextChannelID:  p.TextChannelID(),
		State:          p.State().String(),
		Node:           p.NodeName(),
		Volume:         p.Volume(),
		Paused:         p.Paused(),
		PositionMs:     p.Position().Milliseconds(),
		Current:        q.Current(),
		QueueSize:      q.Size(),
		Loop:           q.LoopMode().String(),
		Autoplay:       q.Autoplay(),
	}
}

func queueResponse(p *player.Player) *QueueResponse {
	q := p.Queue()
	return &QueueResponse{
		Current:  q.Current(),
		Priority: q.Priority(),
		Tracks:   q.Main(),
		History:  q.History(),
		Loop:     q.LoopMode().String(),
	}
}
