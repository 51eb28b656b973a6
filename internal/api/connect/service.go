package connect

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

// AdminServiceName is the fully-qualified name of the admin service.
const AdminServiceName = "audiolink.v1.AdminService"

// Procedure paths of the admin service.
const (
	ListNodesProcedure      = "/" + AdminServiceName + "/ListNodes"
	ConnectNodeProcedure    = "/" + AdminServiceName + "/ConnectNode"
	DisconnectNodeProcedure = "/" + AdminServiceName + "/DisconnectNode"
	ListPlayersProcedure    = "/" + AdminServiceName + "/ListPlayers"
	CreatePlayerProcedure   = "/" + AdminServiceName + "/CreatePlayer"
	DestroyPlayerProcedure  = "/" + AdminServiceName + "/DestroyPlayer"
	PlayProcedure           = "/" + AdminServiceName + "/Play"
	PauseProcedure          = "/" + AdminServiceName + "/Pause"
	ResumeProcedure         = "/" + AdminServiceName + "/Resume"
	SkipProcedure           = "/" + AdminServiceName + "/Skip"
	BackProcedure           = "/" + AdminServiceName + "/Back"
	StopProcedure           = "/" + AdminServiceName + "/Stop"
	SeekProcedure           = "/" + AdminServiceName + "/Seek"
	SetVolumeProcedure      = "/" + AdminServiceName + "/SetVolume"
	SetLoopProcedure        = "/" + AdminServiceName + "/SetLoop"
	ShuffleProcedure        = "/" + AdminServiceName + "/Shuffle"
	GetQueueProcedure       = "/" + AdminServiceName + "/GetQueue"
	WatchEventsProcedure    = "/" + AdminServiceName + "/WatchEvents"
)

// AdminServiceHandler is the server side of the admin service.
type AdminServiceHandler interface {
	ListNodes(context.Context, *connect.Request[Empty]) (*connect.Response[ListNodesResponse], error)
	ConnectNode(context.Context, *connect.Request[NodeRequest]) (*connect.Response[NodeResponse], error)
	DisconnectNode(context.Context, *connect.Request[NodeRequest]) (*connect.Response[NodeResponse], error)
	ListPlayers(context.Context, *connect.Request[Empty]) (*connect.Response[ListPlayersResponse], error)
	CreatePlayer(context.Context, *connect.Request[CreatePlayerRequest]) (*connect.Response[CreatePlayerResponse], error)
	DestroyPlayer(context.Context, *connect.Request[GuildRequest]) (*connect.Response[Empty], error)
	Play(context.Context, *connect.Request[PlayRequest]) (*connect.Response[PlayResponse], error)
	Pause(context.Context, *connect.Request[GuildRequest]) (*connect.Response[PlayerResponse], error)
	Resume(context.Context, *connect.Request[GuildRequest]) (*connect.Response[PlayerResponse], error)
	Skip(context.Context, *connect.Request[GuildRequest]) (*connect.Response[PlayerResponse], error)
	Back(context.Context, *connect.Request[GuildRequest]) (*connect.Response[PlayerResponse], error)
	Stop(context.Context, *connect.Request[StopRequest]) (*connect.Response[PlayerResponse], error)
	Seek(context.Context, *connect.Request[SeekRequest]) (*connect.Response[PlayerResponse], error)
	SetVolume(context.Context, *connect.Request[SetVolumeRequest]) (*connect.Response[PlayerResponse], error)
	SetLoop(context.Context, *connect.Request[SetLoopRequest]) (*connect.Response[PlayerResponse], error)
	Shuffle(context.Context, *connect.Request[GuildRequest]) (*connect.Response[QueueResponse], error)
	GetQueue(context.Context, *connect.Request[GuildRequest]) (*connect.Response[QueueResponse], error)
	WatchEvents(context.Context, *connect.Request[WatchEventsRequest], *connect.ServerStream[EventMessage]) error
}

// NewAdminServiceHandler builds an HTTP handler for svc. It returns the path
// to mount the handler on.
func NewAdminServiceHandler(svc AdminServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(JSONCodec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(ListNodesProcedure, connect.NewUnaryHandler(ListNodesProcedure, svc.ListNodes, opts...))
	mux.Handle(ConnectNodeProcedure, connect.NewUnaryHandler(ConnectNodeProcedure, svc.ConnectNode, opts...))
	mux.Handle(DisconnectNodeProcedure, connect.NewUnaryHandler(DisconnectNodeProcedure, svc.DisconnectNode, opts...))
	mux.Handle(ListPlayersProcedure, connect.NewUnaryHandler(ListPlayersProcedure, svc.ListPlayers, opts...))
	mux.Handle(CreatePlayerProcedure, connect.NewUnaryHandler(CreatePlayerProcedure, svc.CreatePlayer, opts...))
	mux.Handle(DestroyPlayerProcedure, connect.NewUnaryHandler(DestroyPlayerProcedure, svc.DestroyPlayer, opts...))
	mux.Handle(PlayProcedure, connect.NewUnaryHandler(PlayProcedure, svc.Play, opts...))
	mux.Handle(PauseProcedure, connect.NewUnaryHandler(PauseProcedure, svc.Pause, opts...))
	mux.Handle(ResumeProcedure, connect.NewUnaryHandler(ResumeProcedure, svc.Resume, opts...))
	mux.Handle(SkipProcedure, connect.NewUnaryHandler(SkipProcedure, svc.Skip, opts...))
	mux.Handle(BackProcedure, connect.NewUnaryHandler(BackProcedure, svc.Back, opts...))
	mux.Handle(StopProcedure, connect.NewUnaryHandler(StopProcedure, svc.Stop, opts...))
	mux.Handle(SeekProcedure, connect.NewUnaryHandler(SeekProcedure, svc.Seek, opts...))
	mux.Handle(SetVolumeProcedure, connect.NewUnaryHandler(SetVolumeProcedure, svc.SetVolume, opts...))
	mux.Handle(SetLoopProcedure, connect.NewUnaryHandler(SetLoopProcedure, svc.SetLoop, opts...))
	mux.Handle(ShuffleProcedure, connect.NewUnaryHandler(ShuffleProcedure, svc.Shuffle, opts...))
	mux.Handle(GetQueueProcedure, connect.NewUnaryHandler(GetQueueProcedure, svc.GetQueue, opts...))
	mux.Handle(WatchEventsProcedure, connect.NewServerStreamHandler(WatchEventsProcedure, svc.WatchEvents, opts...))
	return "/" + AdminServiceName + "/", mux
}

// AdminServiceClient is the client side of the admin service.
type AdminServiceClient struct {
	listNodes      *connect.Client[Empty, ListNodesResponse]
	connectNode    *connect.Client[NodeRequest, NodeResponse]
	disconnectNode *connect.Client[NodeRequest, NodeResponse]
	listPlayers    *connect.Client[Empty, ListPlayersResponse]
	createPlayer   *connect.Client[CreatePlayerRequest, CreatePlayerResponse]
	destroyPlayer  *connect.Client[GuildRequest, Empty]
	play           *connect.Client[PlayRequest, PlayResponse]
	pause          *connect.Client[GuildRequest, PlayerResponse]
	resume         *connect.Client[GuildRequest, PlayerResponse]
	skip           *connect.Client[GuildRequest, PlayerResponse]
	back           *connect.Client[GuildRequest, PlayerResponse]
	stop           *connect.Client[StopRequest, PlayerResponse]
	seek           *connect.Client[SeekRequest, PlayerResponse]
	setVolume      *connect.Client[SetVolumeRequest, PlayerResponse]
	setLoop        *connect.Client[SetLoopRequest, PlayerResponse]
	shuffle        *connect.Client[GuildRequest, QueueResponse]
	getQueue       *connect.Client[GuildRequest, QueueResponse]
	watchEvents    *connect.Client[WatchEventsRequest, EventMessage]
}

// NewAdminServiceClient creates a client for the service at baseURL.
func NewAdminServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *AdminServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(JSONCodec{})}, opts...)
	return &AdminServiceClient{
		listNodes:      connect.NewClient[Empty, ListNodesResponse](httpClient, baseURL+ListNodesProcedure, opts...),
		connectNode:    connect.NewClient[NodeRequest, NodeResponse](httpClient, baseURL+ConnectNodeProcedure, opts...),
		disconnectNode: connect.NewClient[NodeRequest, NodeResponse](httpClient, baseURL+DisconnectNodeProcedure, opts...),
		listPlayers:    connect.NewClient[Empty, ListPlayersResponse](httpClient, baseURL+ListPlayersProcedure, opts...),
		createPlayer:   connect.NewClient[CreatePlayerRequest, CreatePlayerResponse](httpClient, baseURL+CreatePlayerProcedure, opts...),
		destroyPlayer:  connect.NewClient[GuildRequest, Empty](httpClient, baseURL+DestroyPlayerProcedure, opts...),
		play:           connect.NewClient[PlayRequest, PlayResponse](httpClient, baseURL+PlayProcedure, opts...),
		pause:          connect.NewClient[GuildRequest, PlayerResponse](httpClient, baseURL+PauseProcedure, opts...),
		resume:         connect.NewClient[GuildRequest, PlayerResponse](httpClient, baseURL+ResumeProcedure, opts...),
		skip:           connect.NewClient[GuildRequest, PlayerResponse](httpClient, baseURL+SkipProcedure, opts...),
		back:           connect.NewClient[GuildRequest, PlayerResponse](httpClient, baseURL+BackProcedure, opts...),
		stop:           connect.NewClient[StopRequest, PlayerResponse](httpClient, baseURL+StopProcedure, opts...),
		seek:           connect.NewClient[SeekRequest, PlayerResponse](httpClient, baseURL+SeekProcedure, opts...),
		setVolume:      connect.NewClient[SetVolumeRequest, PlayerResponse](httpClient, baseURL+SetVolumeProcedure, opts...),
		setLoop:        connect.NewClient[SetLoopRequest, PlayerResponse](httpClient, baseURL+SetLoopProcedure, opts...),
		shuffle:        connect.NewClient[GuildRequest, QueueResponse](httpClient, baseURL+ShuffleProcedure, opts...),
		getQueue:       connect.NewClient[GuildRequest, QueueResponse](httpClient, baseURL+GetQueueProcedure, opts...),
		watchEvents:    connect.NewClient[WatchEventsRequest, EventMessage](httpClient, baseURL+WatchEventsProcedure, opts...),
	}
}

func unary[Req, Res any](ctx context.Context, c *connect.Client[Req, Res], msg *Req) (*Res, error) {
	resp, err := c.CallUnary(ctx, connect.NewRequest(msg))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *AdminServiceClient) ListNodes(ctx context.Context) (*ListNodesResponse, error) {
	return unary(ctx, c.listNodes, &Empty{})
}

func (c *AdminServiceClient) ConnectNode(ctx context.Context, req *NodeRequest) (*NodeResponse, error) {
	return unary(ctx, c.connectNode, req)
}

func (c *AdminServiceClient) DisconnectNode(ctx context.Context, req *NodeRequest) (*NodeResponse, error) {
	return unary(ctx, c.disconnectNode, req)
}

func (c *AdminServiceClient) ListPlayers(ctx context.Context) (*ListPlayersResponse, error) {
	return unary(ctx, c.listPlayers, &Empty{})
}

func (c *AdminServiceClient) CreatePlayer(ctx context.Context, req *CreatePlayerRequest) (*CreatePlayerResponse, error) {
	return unary(ctx, c.createPlayer, req)
}

func (c *AdminServiceClient) DestroyPlayer(ctx context.Context, req *GuildRequest) error {
	_, err := unary(ctx, c.destroyPlayer, req)
	return err
}

func (c *AdminServiceClient) Play(ctx context.Context, req *PlayRequest) (*PlayResponse, error) {
	return unary(ctx, c.play, req)
}

func (c *AdminServiceClient) Pause(ctx context.Context, req *GuildRequest) (*PlayerResponse, error) {
	return unary(ctx, c.pause, req)
}

func (c *AdminServiceClient) Resume(ctx context.Context, req *GuildRequest) (*PlayerResponse, error) {
	return unary(ctx, c.resume, req)
}

func (c *AdminServiceClient) Skip(ctx context.Context, req *GuildRequest) (*PlayerResponse, error) {
	return unary(ctx, c.skip, req)
}

func (c *AdminServiceClient) Back(ctx context.Context, req *GuildRequest) (*PlayerResponse, error) {
	return unary(ctx, c.back, req)
}

func (c *AdminServiceClient) Stop(ctx context.Context, req *StopRequest) (*PlayerResponse, error) {
	return unary(ctx, c.stop, req)
}

func (c *AdminServiceClient) Seek(ctx context.Context, req *SeekRequest) (*PlayerResponse, error) {
	return unary(ctx, c.seek, req)
}

func (c *AdminServiceClient) SetVolume(ctx context.Context, req *SetVolumeRequest) (*PlayerResponse, error) {
	return unary(ctx, c.setVolume, req)
}

func (c *AdminServiceClient) SetLoop(ctx context.Context, req *SetLoopRequest) (*PlayerResponse, error) {
	return unary(ctx, c.setLoop, req)
}

func (c *AdminServiceClient) Shuffle(ctx context.Context, req *GuildRequest) (*QueueResponse, error) {
	return unary(ctx, c.shuffle, req)
}

func (c *AdminServiceClient) GetQueue(ctx context.Context, req *GuildRequest) (*QueueResponse, error) {
	return unary(ctx, c.getQueue, req)
}

// WatchEvents opens the event stream. The caller must close it.
func (c *AdminServiceClient) WatchEvents(ctx context.Context, req *WatchEventsRequest) (*connect.ServerStreamForClient[EventMessage], error) {
	return c.watchEvents.CallServerStream(ctx, connect.NewRequest(req))
}
