// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/audiolink/internal/api/connect"
	"github.com/osa030/audiolink/internal/app/admission"
	"github.com/osa030/audiolink/internal/app/autoplay"
	"github.com/osa030/audiolink/internal/app/node"
	"github.com/osa030/audiolink/internal/app/notification"
	"github.com/osa030/audiolink/internal/app/player"
	"github.com/osa030/audiolink/internal/infra/config"
	"github.com/osa030/audiolink/internal/infra/discord"
	"github.com/osa030/audiolink/internal/infra/logger"
	"github.com/osa030/audiolink/internal/infra/spotify"
	"github.com/osa030/audiolink/internal/infra/store"
)

var (
	app        = kingpin.New("audiolink-server", "audiolink audio node orchestrator")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// check-config command
	checkConfigCmd = app.Command("check-config", "Validate the config file and exit")

	// list-filters command
	listFiltersCmd = app.Command("list-filters", "List available admission filters and exit")
)

func init() {
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listFiltersCmd.FullCommand() {
		printFilters()
		return
	}

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	closeLog, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer closeLog()

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if command == checkConfigCmd.FullCommand() {
		if _, err := admission.NewChainFromConfig(cfg.Admission); err != nil {
			zlog.Fatal().Msgf("Invalid admission config: %v", err)
		}
		fmt.Printf("config OK: nodes=%d store=%s autoplay=%v\n", len(cfg.Nodes), cfg.Store.Type, cfg.Autoplay.Enabled)
		return
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		closeLog()
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	admissionChain, err := admission.NewChainFromConfig(cfg.Admission)
	if err != nil {
		return errors.Wrap(err, "invalid admission config")
	}

	snapshots, err := store.New(cfg.Store)
	if err != nil {
		return errors.Wrap(err, "failed to open store")
	}
	defer func() {
		if err := snapshots.Close(); err != nil {
			zlog.Warn().Msgf("Failed to close store: %v", err)
		}
	}()

	notify := notification.NewManager()
	defer notify.Close()

	// Discord comes first: nodes need the bot user id in their handshake.
	session, err := discord.NewSession(cfg.Discord.Token)
	if err != nil {
		return err
	}
	adapter := discord.NewAdapter(session, discord.Config{
		VoiceRate:  cfg.Discord.VoiceRate,
		VoiceBurst: cfg.Discord.VoiceBurst,
	}, discord.SelfID(session))
	adapter.Register(session)

	if err := session.Open(); err != nil {
		return errors.Wrap(err, "failed to open discord session")
	}
	defer session.Close()

	userID, err := botUserID(session)
	if err != nil {
		return err
	}
	zlog.Info().Msgf("Discord session ready: user_id=%s", userID)

	nodes := node.NewManager(&http.Client{Timeout: 15 * time.Second}, notify)
	for _, nc := range cfg.Nodes {
		nodes.Add(node.Config{
			Name:          nc.Name,
			Host:          nc.Host,
			Port:          nc.Port,
			Password:      nc.Password,
			Secure:        nc.Secure,
			Priority:      nc.Priority,
			Regions:       nc.Regions,
			RetryAmount:   nc.RetryAmount,
			RetryDelay:    nc.RetryDelay,
			Resume:        nc.Resume,
			ResumeTimeout: nc.ResumeTimeout,
			UserID:        userID,
		})
	}

	deps := player.Deps{
		Adapter:   adapter,
		Selector:  player.ManagerSelector(nodes),
		Publisher: notify,
	}
	if cfg.Autoplay.Enabled {
		engine, err := newAutoplayEngine(ctx, cfg, nodes)
		if err != nil {
			return errors.Wrap(err, "failed to create autoplay engine")
		}
		deps.Recommender = engine
	}

	players := player.NewManager(player.Config{
		DefaultVolume: cfg.Player.DefaultVolume,
		HistorySize:   cfg.Player.HistorySize,
		VoiceTimeout:  cfg.Player.VoiceTimeout,
		SelfDeaf:      cfg.Player.SelfDeafOrDefault(),
		Autoplay:      cfg.Autoplay.Enabled,
		SearchPrefix:  cfg.Autoplay.SearchPrefix,
		Inactivity: player.Inactivity{
			Idle:       cfg.Player.Inactivity.Idle,
			Paused:     cfg.Player.Inactivity.Paused,
			EmptyQueue: cfg.Player.Inactivity.EmptyQueue,
		},
		KeyPrefix:   cfg.Store.KeyPrefix,
		SnapshotTTL: cfg.Store.TTL,
	}, deps, snapshots)
	adapter.SetSink(players)
	nodes.SetHandler(players)
	nodes.SetPlayerSource(players)

	nodes.ConnectAll(ctx)
	defer nodes.DisconnectAll()

	restored, err := players.Restore(ctx)
	if err != nil {
		zlog.Warn().Msgf("Failed to restore players: %v", err)
	}
	zlog.Info().Msgf("Restored players: count=%d", restored)
	go players.RunAutosave(ctx, cfg.Store.SaveInterval)

	adminService := apiconnect.NewAdminService(players, nodes, notify, admissionChain)

	mux := http.NewServeMux()
	adminPath, adminHandler := apiconnect.NewAdminServiceHandler(
		adminService,
		connect.WithInterceptors(apiconnect.NewAdminAuthInterceptor(cfg.Server.AdminToken)),
	)
	mux.Handle(adminPath, adminHandler)

	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: h2c.NewHandler(mux, &http2.Server{}),
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		runErr = errors.Wrap(err, "server error")
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := players.Save(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to save players: %v", err)
	}

	// Close the admin service first to end event streams
	adminService.Close()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}
	cancel()

	zlog.Info().Msg("Server stopped")
	return runErr
}

// printFilters prints available admission filters.
func printFilters() {
	fmt.Println("Available Filters:")
	for _, name := range admission.Names() {
		f := admission.GetRegistered()[name]()
		codes := strings.Join(f.ReturnCodes(), ", ")
		fmt.Printf("  %-20s - %s [codes: %s]\n", f.Name(), f.Description(), codes)
	}
}

// botUserID returns the id of the bot user. Open has processed READY by the
// time it returns, so state is populated.
func botUserID(s *discordgo.Session) (snowflake.ID, error) {
	raw := discord.SelfID(s)()
	if raw == "" {
		return 0, errors.New("discord session has no user after open")
	}
	id, err := snowflake.Parse(raw)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid bot user id: %s", raw)
	}
	return id, nil
}

func newAutoplayEngine(ctx context.Context, cfg *config.Config, nodes *node.Manager) (*autoplay.Engine, error) {
	deps := autoplay.Deps{Loader: autoplay.NodeLoader(nodes)}
	if cfg.UsesProvider("spotify") {
		client, err := spotify.New(ctx, spotify.Config{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			Market:       cfg.Spotify.Market,
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to create Spotify client")
		}
		deps.Spotify = client
	}
	return autoplay.NewEngineFromConfig(cfg.Autoplay, deps)
}
