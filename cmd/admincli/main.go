// Package main provides the admin CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/disgoorg/snowflake/v2"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/audiolink/internal/api/connect"
	"github.com/osa030/audiolink/internal/domain/track"
)

var (
	app    = kingpin.New("audiolink-admincli", "audiolink admin client")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token  = app.Flag("token", "Admin token (or set ADMIN_TOKEN env)").Envar("ADMIN_TOKEN").String()

	// nodes commands
	nodesCmd          = app.Command("nodes", "List audio nodes")
	connectNodeCmd    = app.Command("connect-node", "Connect an audio node")
	connectNodeName   = connectNodeCmd.Arg("name", "Node name").Required().String()
	disconnectNodeCmd = app.Command("disconnect-node", "Disconnect an audio node")
	disconnectName    = disconnectNodeCmd.Arg("name", "Node name").Required().String()

	// player commands
	playersCmd     = app.Command("players", "List players").Alias("list")
	createCmd      = app.Command("create", "Create a player and join a voice channel")
	createGuild    = createCmd.Arg("guild-id", "Guild ID").Required().String()
	createChannel  = createCmd.Arg("channel-id", "Voice channel ID").Required().String()
	createText     = createCmd.Flag("text-channel", "Text channel ID").String()
	createVolume   = createCmd.Flag("volume", "Initial volume (default: server setting)").Default("-1").Int()
	createAutoplay = createCmd.Flag("autoplay", "Enable autoplay").Bool()
	destroyCmd     = app.Command("destroy", "Destroy a player")
	destroyGuild   = destroyCmd.Arg("guild-id", "Guild ID").Required().String()

	// playback commands
	playCmd      = app.Command("play", "Search and enqueue tracks")
	playGuild    = playCmd.Arg("guild-id", "Guild ID").Required().String()
	playQuery    = playCmd.Arg("query", "Search query or URL").Required().Strings()
	playNext     = playCmd.Flag("next", "Queue ahead of the main queue").Bool()
	playFor      = playCmd.Flag("for", "Queue on behalf of this user ID").String()
	playForName  = playCmd.Flag("for-name", "Display name of the user").Default("user").String()
	pauseCmd     = app.Command("pause", "Pause playback")
	pauseGuild   = pauseCmd.Arg("guild-id", "Guild ID").Required().String()
	resumeCmd    = app.Command("resume", "Resume playback")
	resumeGuild  = resumeCmd.Arg("guild-id", "Guild ID").Required().String()
	skipCmd      = app.Command("skip", "Skip the current track")
	skipGuild    = skipCmd.Arg("guild-id", "Guild ID").Required().String()
	backCmd      = app.Command("back", "Play the previous track")
	backGuild    = backCmd.Arg("guild-id", "Guild ID").Required().String()
	stopCmd      = app.Command("stop", "Stop playback")
	stopGuild    = stopCmd.Arg("guild-id", "Guild ID").Required().String()
	stopClear    = stopCmd.Flag("clear", "Also clear the queue").Bool()
	seekCmd      = app.Command("seek", "Seek within the current track")
	seekGuild    = seekCmd.Arg("guild-id", "Guild ID").Required().String()
	seekPos      = seekCmd.Arg("position", "Position (e.g. 1m30s)").Required().Duration()
	volumeCmd    = app.Command("volume", "Set the volume")
	volumeGuild  = volumeCmd.Arg("guild-id", "Guild ID").Required().String()
	volumeValue  = volumeCmd.Arg("volume", "Volume (0-1000)").Required().Int()
	loopCmd      = app.Command("loop", "Set the loop mode")
	loopGuild    = loopCmd.Arg("guild-id", "Guild ID").Required().String()
	loopMode     = loopCmd.Arg("mode", "Loop mode").Required().Enum("none", "track", "queue")
	shuffleCmd   = app.Command("shuffle", "Shuffle the queue")
	shuffleGuild = shuffleCmd.Arg("guild-id", "Guild ID").Required().String()
	queueCmd     = app.Command("queue", "Show the queue")
	queueGuild   = queueCmd.Arg("guild-id", "Guild ID").Required().String()

	// watch command
	watchCmd        = app.Command("watch", "Stream events as JSON lines")
	watchCategories = watchCmd.Flag("category", "Event category (repeatable)").Strings()
	watchGuild      = watchCmd.Flag("guild", "Only events of this guild").String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if *token == "" {
		fmt.Println("Error: admin token is required (use --token or ADMIN_TOKEN env)")
		os.Exit(1)
	}

	client := apiconnect.NewAdminServiceClient(
		http.DefaultClient,
		*server,
		connect.WithInterceptors(apiconnect.NewTokenInterceptor(*token)),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch command {
	case nodesCmd.FullCommand():
		listNodes(ctx, client)
	case connectNodeCmd.FullCommand():
		resp, err := client.ConnectNode(ctx, &apiconnect.NodeRequest{Name: *connectNodeName})
		exitOnError(err)
		printNode(resp.Node)
	case disconnectNodeCmd.FullCommand():
		resp, err := client.DisconnectNode(ctx, &apiconnect.NodeRequest{Name: *disconnectName})
		exitOnError(err)
		printNode(resp.Node)
	case playersCmd.FullCommand():
		listPlayers(ctx, client)
	case createCmd.FullCommand():
		createPlayer(ctx, client)
	case destroyCmd.FullCommand():
		exitOnError(client.DestroyPlayer(ctx, &apiconnect.GuildRequest{GuildID: mustID(*destroyGuild)}))
		fmt.Println("Player destroyed")
	case playCmd.FullCommand():
		play(ctx, client)
	case pauseCmd.FullCommand():
		printPlayerResult(client.Pause(ctx, guild(*pauseGuild)))
	case resumeCmd.FullCommand():
		printPlayerResult(client.Resume(ctx, guild(*resumeGuild)))
	case skipCmd.FullCommand():
		printPlayerResult(client.Skip(ctx, guild(*skipGuild)))
	case backCmd.FullCommand():
		printPlayerResult(client.Back(ctx, guild(*backGuild)))
	case stopCmd.FullCommand():
		printPlayerResult(client.Stop(ctx, &apiconnect.StopRequest{GuildID: mustID(*stopGuild), ClearQueue: *stopClear}))
	case seekCmd.FullCommand():
		printPlayerResult(client.Seek(ctx, &apiconnect.SeekRequest{GuildID: mustID(*seekGuild), PositionMs: seekPos.Milliseconds()}))
	case volumeCmd.FullCommand():
		printPlayerResult(client.SetVolume(ctx, &apiconnect.SetVolumeRequest{GuildID: mustID(*volumeGuild), Volume: *volumeValue}))
	case loopCmd.FullCommand():
		printPlayerResult(client.SetLoop(ctx, &apiconnect.SetLoopRequest{GuildID: mustID(*loopGuild), Mode: *loopMode}))
	case shuffleCmd.FullCommand():
		resp, err := client.Shuffle(ctx, guild(*shuffleGuild))
		exitOnError(err)
		printQueue(resp)
	case queueCmd.FullCommand():
		resp, err := client.GetQueue(ctx, guild(*queueGuild))
		exitOnError(err)
		printQueue(resp)
	case watchCmd.FullCommand():
		watch(ctx, client)
	}
}

func listNodes(ctx context.Context, client *apiconnect.AdminServiceClient) {
	resp, err := client.ListNodes(ctx)
	exitOnError(err)

	fmt.Printf("Nodes (%d):\n", len(resp.Nodes))
	for _, n := range resp.Nodes {
		printNode(n)
	}
}

func printNode(n apiconnect.NodeInfo) {
	regions := "any"
	if len(n.Regions) > 0 {
		regions = strings.Join(n.Regions, ",")
	}
	fmt.Printf("  %s: %s (priority: %d, regions: %s, players: %d/%d, load: %.2f, penalty: %.1f, uptime: %s)\n",
		n.Name, n.State, n.Priority, regions, n.PlayingPlayers, n.Players, n.SystemLoad, n.Penalty,
		time.Duration(n.UptimeMs)*time.Millisecond)
}

func listPlayers(ctx context.Context, client *apiconnect.AdminServiceClient) {
	resp, err := client.ListPlayers(ctx)
	exitOnError(err)

	fmt.Printf("Players (%d):\n", len(resp.Players))
	for _, p := range resp.Players {
		printPlayer(p)
	}
}

func createPlayer(ctx context.Context, client *apiconnect.AdminServiceClient) {
	req := &apiconnect.CreatePlayerRequest{
		GuildID:        mustID(*createGuild),
		VoiceChannelID: mustID(*createChannel),
	}
	if *createVolume >= 0 {
		req.Volume = createVolume
	}
	if *createText != "" {
		id := mustID(*createText)
		req.TextChannelID = &id
	}
	if *createAutoplay {
		req.Autoplay = createAutoplay
	}

	resp, err := client.CreatePlayer(ctx, req)
	exitOnError(err)
	if resp.Created {
		fmt.Println("Player created")
	} else {
		fmt.Println("Player already exists")
	}
	printPlayer(resp.Player)
}

func play(ctx context.Context, client *apiconnect.AdminServiceClient) {
	req := &apiconnect.PlayRequest{
		GuildID: mustID(*playGuild),
		Query:   strings.Join(*playQuery, " "),
		Next:    *playNext,
	}
	if *playFor != "" {
		req.Requester = &apiconnect.RequesterInfo{ID: mustID(*playFor), Name: *playForName}
	}
	resp, err := client.Play(ctx, req)
	exitOnError(err)

	fmt.Printf("Added (%d):\n", len(resp.Added))
	for _, t := range resp.Added {
		fmt.Printf("  %s\n", formatTrack(t))
	}
	if len(resp.Rejected) > 0 {
		fmt.Printf("Rejected (%d):\n", len(resp.Rejected))
		for _, r := range resp.Rejected {
			fmt.Printf("  %s [%s]\n", formatTrack(r.Track), r.Code)
		}
	}
	if resp.Started {
		fmt.Println("Playback started")
	}
	printPlayer(resp.Player)
}

func printPlayerResult(resp *apiconnect.PlayerResponse, err error) {
	exitOnError(err)
	printPlayer(resp.Player)
}

func printPlayer(p apiconnect.PlayerInfo) {
	fmt.Printf("  Guild %s: %s\n", p.GuildID, p.State)
	fmt.Printf("    Voice Channel: %s\n", p.VoiceChannelID)
	if p.Node != "" {
		fmt.Printf("    Node: %s\n", p.Node)
	}
	fmt.Printf("    Volume: %d  Paused: %v  Loop: %s  Autoplay: %v\n", p.Volume, p.Paused, p.Loop, p.Autoplay)
	if p.Current != nil {
		fmt.Printf("    Current: %s [%s / %s]\n", formatTrack(p.Current),
			time.Duration(p.PositionMs)*time.Millisecond, p.Current.Duration())
	} else {
		fmt.Println("    No track currently playing")
	}
	fmt.Printf("    Queue Size: %d\n", p.QueueSize)
}

func printQueue(q *apiconnect.QueueResponse) {
	fmt.Printf("Loop: %s\n", q.Loop)
	if q.Current != nil {
		fmt.Printf("Now Playing: %s\n", formatTrack(q.Current))
	}
	if len(q.Priority) > 0 {
		fmt.Printf("Up Next (%d):\n", len(q.Priority))
		for i, t := range q.Priority {
			fmt.Printf("  %d. %s\n", i+1, formatTrack(t))
		}
	}
	fmt.Printf("Queue (%d):\n", len(q.Tracks))
	for i, t := range q.Tracks {
		fmt.Printf("  %d. %s\n", i+1, formatTrack(t))
	}
	fmt.Printf("History: %d tracks\n", len(q.History))
}

func watch(ctx context.Context, client *apiconnect.AdminServiceClient) {
	req := &apiconnect.WatchEventsRequest{Categories: *watchCategories}
	if *watchGuild != "" {
		req.GuildID = mustID(*watchGuild)
	}

	stream, err := client.WatchEvents(ctx, req)
	exitOnError(err)
	defer stream.Close()

	enc := json.NewEncoder(os.Stdout)
	for stream.Receive() {
		if err := enc.Encode(stream.Msg()); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	if err := stream.Err(); err != nil && ctx.Err() == nil {
		exitOnError(err)
	}
}

func formatTrack(t *track.Track) string {
	s := fmt.Sprintf("%s - %s (%s)", t.Info.Author, t.Info.Title, t.Duration())
	if t.Requester != nil {
		s += fmt.Sprintf(" requested by %s", t.Requester.Name)
	}
	return s
}

func guild(raw string) *apiconnect.GuildRequest {
	return &apiconnect.GuildRequest{GuildID: mustID(raw)}
}

func mustID(raw string) snowflake.ID {
	id, err := snowflake.Parse(raw)
	if err != nil {
		fmt.Printf("Error: invalid id %q: %v\n", raw, err)
		os.Exit(1)
	}
	return id
}

func exitOnError(err error) {
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}
