// Command wdht-server runs one native KademliaNode as a standalone
// process. It dispatches on a subcommand the way the teacher's
// cmd/dep2p/main.go dispatches on flags rather than a cobra tree: this
// binary only ever does one thing ("server"), so the subcommand exists
// to leave room for a future one without breaking the flag set.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/SnowyCoder/wdht/internal/metrics"
	"github.com/SnowyCoder/wdht/internal/node"
	"github.com/SnowyCoder/wdht/internal/transport/nativetransport"
	"github.com/SnowyCoder/wdht/pkg/types"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run returns the process exit code: 0 on a clean shutdown, 1 if the
// transport couldn't bind, 2 on a bad flag/argument (spec.md §6's
// exit-code contract).
func run(args []string) int {
	if len(args) == 0 || args[0] != "server" {
		fmt.Fprintln(os.Stderr, "usage: wdht-server server [flags]")
		return 2
	}

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	bind := fs.String("bind", "127.0.0.1:0", "native transport listen address")
	metricsAddr := fs.String("metrics-addr", "", "address to serve /metrics on (empty disables it)")
	seed := fs.String("bootstrap", "", "comma-separated id@host:port seeds to bootstrap from")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}

	seeds, err := parseSeeds(*seed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wdht-server: %v\n", err)
		return 2
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg, "wdht")

	localID, err := types.RandomID()
	if err != nil {
		fmt.Fprintf(os.Stderr, "wdht-server: generate id: %v\n", err)
		return 2
	}

	tr, err := nativetransport.Listen(localID, *bind)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wdht-server: %v\n", err)
		return 1
	}

	n, err := node.New(fixedIdentity{localID}, tr, nil, node.WithMetrics(m))
	if err != nil {
		fmt.Fprintf(os.Stderr, "wdht-server: %v\n", err)
		return 2
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := n.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "wdht-server: start: %v\n", err)
		return 1
	}
	defer n.Close()

	fmt.Printf("wdht node %s listening on %s\n", n.LocalID().ShortString(), *bind)

	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, reg)
	}

	if len(seeds) > 0 {
		bctx, bcancel := context.WithTimeout(ctx, 20*time.Second)
		err := n.Bootstrap(bctx, seeds)
		bcancel()
		if err != nil {
			fmt.Fprintf(os.Stderr, "wdht-server: bootstrap: %v\n", err)
		}
	}

	waitForSignal()
	fmt.Println("wdht-server: shutting down")
	return 0
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "wdht-server: metrics server: %v\n", err)
	}
}

func waitForSignal() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
}

// fixedIdentity hands out exactly the ID this process generated once at
// startup; KademliaNode.New calls GenerateID exactly once, so there is no
// risk of it being asked for a second, different ID.
type fixedIdentity struct{ id types.ID }

func (f fixedIdentity) GenerateID() (types.ID, error) { return f.id, nil }
