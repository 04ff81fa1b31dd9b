// cmd/arena-player/main.go
//
// Competitor client helper. The host spawns one per local team: it resolves
// the team spec in its own address space, dials the host's peer address, and
// answers hello/move requests until the host hangs up or asks it to stop.
// Buggy or slow competitor code can only cost itself moves; it cannot touch
// the host's state.

package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arenalab/arena/internal/channel"
	"github.com/arenalab/arena/internal/session"
	"github.com/arenalab/arena/internal/team"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var (
		spec string
		dial string
		seed int64
	)
	fs := flag.NewFlagSet("arena-player", flag.ContinueOnError)
	fs.StringVar(&spec, "spec", "", "team specification (plugin path or builtin ids)")
	fs.StringVar(&dial, "dial", "", "host peer address to dial")
	fs.Int64Var(&seed, "seed", 0, "random seed for builtin players")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if spec == "" || dial == "" {
		fmt.Fprintln(os.Stderr, "arena-player: -spec and -dial are required")
		return 2
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	res, err := team.Resolve(spec, rand.New(rand.NewSource(seed)))
	if err != nil {
		fmt.Fprintf(os.Stderr, "arena-player: %v\n", err)
		return 1
	}
	if res.Remote {
		fmt.Fprintf(os.Stderr, "arena-player: spec %q names a remote team; a player needs local logic\n", spec)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := channel.DialPeer(dial)
	if err != nil {
		fmt.Fprintf(os.Stderr, "arena-player: dial %s: %v\n", dial, err)
		return 1
	}
	defer conn.Close()

	if err := session.ServeTeam(ctx, conn, res.Team); err != nil {
		fmt.Fprintf(os.Stderr, "arena-player: %v\n", err)
		return 1
	}
	return 0
}
