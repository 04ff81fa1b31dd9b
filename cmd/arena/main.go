// cmd/arena/main.go
//
// The match host. It resolves both team specifications, opens the broadcast
// and control channels, spawns competitor clients and viewers, drives the
// match through the engine collaborator, and tears everything down on every
// exit path. With -replay it instead re-emits a recorded log.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/arenalab/arena/internal/broadcast"
	"github.com/arenalab/arena/internal/channel"
	"github.com/arenalab/arena/internal/config"
	"github.com/arenalab/arena/internal/control"
	"github.com/arenalab/arena/internal/game"
	"github.com/arenalab/arena/internal/logging"
	"github.com/arenalab/arena/internal/replay"
	"github.com/arenalab/arena/internal/session"
	"github.com/arenalab/arena/internal/supervisor"
	"github.com/arenalab/arena/internal/team"
)

type options struct {
	configPath  string
	rounds      int
	moveTimeout time.Duration
	maxTimeouts int
	seed        int64
	publishBind string
	controlBind string
	viewers     int
	noBroadcast bool
	controlled  bool
	standalone  bool
	dryRun      bool
	recordPath  string
	replayPath  string
	playerBin   string
	viewerBin   string
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var opts options
	fs := flag.NewFlagSet("arena", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "", "match configuration file")
	fs.IntVar(&opts.rounds, "rounds", 0, "round limit (overrides config)")
	fs.DurationVar(&opts.moveTimeout, "move-timeout", 0, "per-move timeout (overrides config)")
	fs.IntVar(&opts.maxTimeouts, "max-timeouts", 0, "timeouts before disqualification (overrides config)")
	fs.Int64Var(&opts.seed, "seed", 0, "random seed (overrides config)")
	fs.StringVar(&opts.publishBind, "publish-to", "", "broadcast bind address (overrides config)")
	fs.StringVar(&opts.controlBind, "control-on", "", "control bind address (overrides config)")
	fs.IntVar(&opts.viewers, "viewers", 0, "viewer processes to spawn")
	fs.BoolVar(&opts.noBroadcast, "no-broadcast", false, "disable the broadcast channel")
	fs.BoolVar(&opts.controlled, "controlled", false, "gate round advancement on an external controller")
	fs.BoolVar(&opts.standalone, "standalone", false, "run competitor logic in-process (debugging only)")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "validate configuration and team specs, then exit")
	fs.StringVar(&opts.recordPath, "record", "", "write a replay log to this file")
	fs.StringVar(&opts.replayPath, "replay", "", "replay a recorded log instead of playing")
	fs.StringVar(&opts.playerBin, "player-cmd", "arena-player", "competitor client binary")
	fs.StringVar(&opts.viewerBin, "viewer-cmd", "arena-viewer", "viewer binary")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "arena: %v\n", err)
		return 1
	}
	logger, err := logging.New(cwd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "arena: %v\n", err)
		return 1
	}
	defer logger.Close()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "arena: %v\n", err)
		return 1
	}
	applyOverrides(&cfg, opts)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "arena: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.replayPath != "" {
		if err := runReplay(ctx, cfg, opts, logger); err != nil {
			fmt.Fprintf(os.Stderr, "arena: %v\n", err)
			return 1
		}
		return 0
	}

	if fs.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "arena: need exactly two team specifications")
		return 2
	}
	outcome, err := runMatch(ctx, cfg, opts, fs.Arg(0), fs.Arg(1), logger)
	if err != nil {
		if errors.Is(err, session.ErrInterrupted) {
			fmt.Fprintln(os.Stderr, "arena: match interrupted")
		} else {
			fmt.Fprintf(os.Stderr, "arena: %v\n", err)
		}
		return 1
	}
	if outcome.Result != "" {
		fmt.Printf("%s after %d rounds (%s vs %s)\n",
			outcome.Result, outcome.Rounds, outcome.Teams[0], outcome.Teams[1])
	}
	return 0
}

func applyOverrides(cfg *config.Match, opts options) {
	if opts.rounds > 0 {
		cfg.Rounds = opts.rounds
	}
	if opts.moveTimeout > 0 {
		cfg.MoveTimeout = opts.moveTimeout
	}
	if opts.maxTimeouts > 0 {
		cfg.MaxTimeouts = opts.maxTimeouts
	}
	if opts.seed != 0 {
		cfg.Seed = opts.seed
	}
	if opts.publishBind != "" {
		cfg.PublishBind = opts.publishBind
	}
	if opts.controlBind != "" {
		cfg.ControlBind = opts.controlBind
	}
	if opts.viewers > 0 {
		cfg.Viewers = opts.viewers
	}
	if opts.noBroadcast {
		cfg.Broadcast = false
	}
}

// runReplay rebuilds a broadcast stream from a persisted log. No competitor
// processes are involved; only viewers matter.
func runReplay(ctx context.Context, cfg config.Match, opts options, logger *logging.Logger) error {
	log, err := replay.Load(opts.replayPath)
	if err != nil {
		return err
	}
	logger.Printf("replay: %s holds %d snapshots", opts.replayPath, log.Len())

	wire, err := channel.OpenPublisher(cfg.PublishBind)
	if err != nil {
		return err
	}
	defer wire.Close()
	pub := broadcast.New(wire)
	fmt.Printf("replaying %s on %s\n", opts.replayPath, pub.Addr())

	sup := supervisor.New(logger)
	defer sup.Shutdown()
	for i := 0; i < cfg.Viewers; i++ {
		name := fmt.Sprintf("viewer-%d", i)
		if _, err := sup.Spawn(name, supervisor.KindViewer, opts.viewerBin, "-subscribe", pub.Addr()); err != nil {
			return err
		}
	}
	if cfg.Viewers > 0 {
		waitForSubscribers(ctx, wire, cfg.Viewers)
	}
	if err := replay.Run(log, pub); err != nil {
		return err
	}
	viewerGrace(ctx, sup, viewerExitGrace)
	return nil
}

func runMatch(ctx context.Context, cfg config.Match, opts options, specLeft, specRight string, logger *logging.Logger) (session.Outcome, error) {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	// Both specs resolve before anything binds or spawns, so a bad team
	// name or plugin aborts with nothing to clean up.
	specs := [2]string{specLeft, specRight}
	var resolutions [2]team.Resolution
	for i, spec := range specs {
		res, err := team.Resolve(spec, rng)
		if err != nil {
			return session.Outcome{}, err
		}
		resolutions[i] = res
	}
	if opts.dryRun {
		for i, res := range resolutions {
			if res.Remote {
				fmt.Printf("team %d: remote, listening on %s\n", i, res.Bind)
			} else {
				fmt.Printf("team %d: %s\n", i, res.Team.Name)
			}
		}
		return session.Outcome{}, nil
	}

	sink := broadcast.Sink(broadcast.Discard)
	var wire *channel.Publisher
	var rec *replay.Recorder
	if opts.recordPath != "" {
		var err error
		rec, err = replay.NewRecorder(opts.recordPath)
		if err != nil {
			return session.Outcome{}, err
		}
		defer rec.Close()
	}
	if cfg.Broadcast {
		var err error
		wire, err = channel.OpenPublisher(cfg.PublishBind)
		if err != nil {
			return session.Outcome{}, err
		}
		defer wire.Close()
		var pubOpts []broadcast.Option
		if rec != nil {
			pubOpts = append(pubOpts, broadcast.WithRecorder(rec))
		}
		pub := broadcast.New(wire, pubOpts...)
		sink = pub
		logger.Printf("broadcasting on %s", pub.Addr())
		fmt.Printf("broadcasting on %s\n", pub.Addr())
	} else if rec != nil {
		// Recording stands on its own; a headless match still produces its log.
		sink = broadcast.NewRecording(rec)
		logger.Printf("recording to %s without broadcast", opts.recordPath)
	}

	var sessionOpts []session.Option
	sessionOpts = append(sessionOpts, session.WithLogger(logger))
	if opts.controlled {
		rs, err := channel.OpenReplyServer(cfg.ControlBind)
		if err != nil {
			return session.Outcome{}, err
		}
		defer rs.Close()
		ctrl := control.NewServer(rs, logger)
		sessionOpts = append(sessionOpts, session.WithControl(ctrl))
		fmt.Printf("control channel on %s\n", ctrl.Addr())
	}

	// Everything spawned from here on is torn down by this one deferred
	// call, no matter which path ends the match.
	sup := supervisor.New(logger)
	defer sup.Shutdown()

	slots, closers, err := bindTeams(ctx, sup, specs, resolutions, opts, rng)
	defer func() {
		for _, c := range closers {
			c()
		}
	}()
	if err != nil {
		return session.Outcome{}, err
	}

	if cfg.Broadcast {
		for i := 0; i < cfg.Viewers; i++ {
			name := fmt.Sprintf("viewer-%d", i)
			if _, err := sup.Spawn(name, supervisor.KindViewer, opts.viewerBin, "-subscribe", wire.Addr()); err != nil {
				return session.Outcome{}, err
			}
		}
		if cfg.Viewers > 0 {
			waitForSubscribers(ctx, wire, cfg.Viewers)
		}
	}

	engine := game.New(cfg.Rounds, []string{slots[0].Name, slots[1].Name})
	sess := session.New(session.Config{
		ID:          uuid.NewString(),
		Rounds:      cfg.Rounds,
		MoveTimeout: cfg.MoveTimeout,
		MaxTimeouts: cfg.MaxTimeouts,
	}, slots, engine, sink, sessionOpts...)
	outcome, err := sess.Run(ctx)
	if err == nil {
		viewerGrace(ctx, sup, viewerExitGrace)
	}
	return outcome, err
}

// bindTeams turns resolutions into mover clients: local teams run in-process
// in standalone mode, otherwise every side gets an isolated competitor
// process (or a remote party) dialing into its own peer listener.
func bindTeams(ctx context.Context, sup *supervisor.Supervisor, specs [2]string, resolutions [2]team.Resolution, opts options, rng *rand.Rand) ([2]session.Slot, []func(), error) {
	var slots [2]session.Slot
	var closers []func()
	var listeners [2]*channel.PeerListener

	for i, res := range resolutions {
		if opts.standalone && !res.Remote {
			slots[i] = session.Slot{Name: res.Team.Name, Client: session.NewLocalClient(res.Team)}
			continue
		}
		bind := "ws://*:0"
		if res.Remote {
			bind = res.Bind
		}
		pl, err := channel.OpenPeerListener(bind)
		if err != nil {
			return slots, closers, err
		}
		closers = append(closers, func() { pl.Close() })
		listeners[i] = pl
		if res.Remote {
			fmt.Printf("waiting for remote team %d on %s\n", i, pl.Addr())
			continue
		}
		name := fmt.Sprintf("player-%d", i)
		// Each player draws its seed from the match rng so a fixed -seed
		// reproduces builtin behavior across runs.
		seed := strconv.FormatInt(rng.Int63(), 10)
		if _, err := sup.Spawn(name, supervisor.KindPlayer, opts.playerBin,
			"-spec", specs[i], "-dial", pl.Addr(), "-seed", seed); err != nil {
			return slots, closers, err
		}
	}

	// Accept both sides concurrently; a remote team may take a while to
	// show up and the spawned players race each other anyway.
	g, gctx := errgroup.WithContext(ctx)
	for i := range resolutions {
		if listeners[i] == nil {
			continue
		}
		i := i
		g.Go(func() error {
			peer, err := listeners[i].Accept(gctx)
			if err != nil {
				return err
			}
			client := session.NewPeerClient(peer)
			hctx, cancel := context.WithTimeout(gctx, 10*time.Second)
			defer cancel()
			name, err := client.Hello(hctx)
			if err != nil {
				client.Close()
				return fmt.Errorf("team %d handshake: %w", i, err)
			}
			slots[i] = session.Slot{Name: name, Client: client}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return slots, closers, err
	}
	for i := range slots {
		if slots[i].Client != nil {
			client := slots[i].Client
			closers = append(closers, func() { client.Close() })
		}
	}
	return slots, closers, nil
}

// viewerExitGrace bounds how long a clean finish waits for viewers to
// render the terminal snapshot and exit on their own. Viewers quit
// themselves shortly after match-over, so this normally ends early.
const viewerExitGrace = 3 * time.Second

// viewerGrace reaps viewers that exit within the grace window; anything
// still running afterwards is left to the usual shutdown.
func viewerGrace(ctx context.Context, sup *supervisor.Supervisor, grace time.Duration) {
	deadline := time.Now().Add(grace)
	for _, h := range sup.Handles() {
		if h.Kind() != supervisor.KindViewer {
			continue
		}
		h := h
		exited := make(chan struct{})
		go func() {
			h.Reap()
			close(exited)
		}()
		select {
		case <-exited:
		case <-time.After(time.Until(deadline)):
		case <-ctx.Done():
		}
	}
}

// waitForSubscribers briefly holds the first snapshot back until the spawned
// viewers have attached, so they do not miss the opening rounds.
func waitForSubscribers(ctx context.Context, wire *channel.Publisher, want int) {
	deadline := time.Now().Add(5 * time.Second)
	for wire.SubscriberCount() < want && time.Now().Before(deadline) && ctx.Err() == nil {
		time.Sleep(20 * time.Millisecond)
	}
}
