// Command rft-server serves files over the rft protocol on a UDP port.
//
// Usage:
//
//	rft-server <port> [--root <dir>] [--config <file>] [--metrics-addr <host:port>]
//
// Exit codes: 0 on clean shutdown, 2 on bind failure, 1 on any other
// internal error.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quietport/rft/config"
	"github.com/quietport/rft/dispatch"
	"github.com/quietport/rft/logging"
	"github.com/quietport/rft/metrics"
	"github.com/quietport/rft/sockopt"
)

const (
	exitOK       = 0
	exitInternal = 1
	exitBindFail = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	flag.CommandLine.Init(os.Args[0], flag.ContinueOnError)
	root := flag.String("root", ".", "directory to serve files from")
	configPath := flag.String("config", "", "optional YAML config file")
	metricsAddr := flag.String("metrics-addr", "", "if set, serve Prometheus metrics on this address")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s <port> [--root <dir>] [--config <file>] [--metrics-addr <host:port>]\n", os.Args[0])
		flag.PrintDefaults()
	}
	// Flags may appear before or after the port argument.
	var args []string
	rest := os.Args[1:]
	for {
		if err := flag.CommandLine.Parse(rest); err != nil {
			return exitInternal
		}
		if flag.NArg() == 0 {
			break
		}
		args = append(args, flag.Arg(0))
		rest = flag.Args()[1:]
	}

	log := logging.New(false)

	if len(args) != 1 {
		flag.Usage()
		return exitInternal
	}
	port, err := strconv.Atoi(args[0])
	if err != nil || port < 1 || port > 65535 {
		log.WithField("port", args[0]).Error("rft-server: invalid port")
		return exitInternal
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Error("rft-server: failed to load config")
		return exitInternal
	}

	rootSetOnCLI := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "root" {
			rootSetOnCLI = true
		}
	})
	servingRoot := *root
	if !rootSetOnCLI && cfg.Root != "" {
		servingRoot = cfg.Root
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		log.WithError(err).WithField("port", port).Error("rft-server: bind failed")
		return exitBindFail
	}
	defer conn.Close()

	sockopt.TuneBuffers(conn, cfg.SocketRecvBuf, cfg.SocketSendBuf, log.WithField("component", "sockopt"))

	promReg := prometheus.NewRegistry()
	reg := metrics.NewRegistry(promReg)

	addr := *metricsAddr
	if addr == "" {
		addr = cfg.MetricsAddr
	}
	if addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
		metricsSrv := &http.Server{Addr: addr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Warn("rft-server: metrics server stopped")
			}
		}()
		defer metricsSrv.Close()
		log.WithField("addr", addr).Info("rft-server: serving metrics")
	}

	srv := dispatch.NewServer(conn, servingRoot, cfg.SenderOptions(), log, reg)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.WithField("port", port).WithField("root", servingRoot).Info("rft-server: listening")
	if err := srv.Serve(ctx); err != nil && ctx.Err() == nil {
		log.WithError(err).Error("rft-server: serve loop exited")
		return exitInternal
	}
	log.Info("rft-server: shutting down")
	return exitOK
}
