// Command rft-client fetches a file from an rft server over UDP.
//
// Usage:
//
//	rft-client GET <host:port>/<name> [--loss <percent>] [--out <dir>] [--timeout <duration>]
//
// Exit codes: 0 on success, 3 on transfer failure, 4 on a server ERR, 1 on
// invalid arguments.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/schollz/progressbar/v3"

	"github.com/quietport/rft/client"
	"github.com/quietport/rft/logging"
	"github.com/quietport/rft/receiver"
	"github.com/quietport/rft/types"
)

const (
	exitOK             = 0
	exitInvalidArgs    = 1
	exitTransferFailed = 3
	exitServerRejected = 4
)

func main() {
	os.Exit(run())
}

func run() int {
	flag.CommandLine.Init(os.Args[0], flag.ContinueOnError)
	lossPercent := flag.Int("loss", 0, "simulate this percentage of inbound packet loss, for testing")
	outDir := flag.String("out", ".", "directory to write the fetched file into")
	timeout := flag.Duration("timeout", 60*time.Second, "overall transfer timeout")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s GET <host:port>/<name> [--loss <percent>] [--out <dir>] [--timeout <duration>]\n", os.Args[0])
		flag.PrintDefaults()
	}
	// Flags may appear before, between or after the positional arguments.
	var args []string
	rest := os.Args[1:]
	for {
		if err := flag.CommandLine.Parse(rest); err != nil {
			return exitInvalidArgs
		}
		if flag.NArg() == 0 {
			break
		}
		args = append(args, flag.Arg(0))
		rest = flag.Args()[1:]
	}

	log := logging.New(false)

	if len(args) != 2 || !strings.EqualFold(args[0], "GET") {
		flag.Usage()
		return exitInvalidArgs
	}
	if *lossPercent < 0 || *lossPercent > 100 {
		log.Error("rft-client: --loss must be in [0, 100]")
		return exitInvalidArgs
	}

	remoteAddr, name, err := splitTarget(args[1])
	if err != nil {
		log.WithError(err).Error("rft-client: invalid target")
		return exitInvalidArgs
	}

	udpAddr, err := net.ResolveUDPAddr("udp", remoteAddr)
	if err != nil {
		log.WithError(err).WithField("remote", remoteAddr).Error("rft-client: cannot resolve remote address")
		return exitInvalidArgs
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.WithError(err).WithField("dir", *outDir).Error("rft-client: cannot create output directory")
		return exitInvalidArgs
	}

	destPath := filepath.Join(*outDir, fmt.Sprintf("%s.%s", xid.New().String(), filepath.Base(name)))
	out, err := os.Create(destPath)
	if err != nil {
		log.WithError(err).WithField("path", destPath).Error("rft-client: cannot create output file")
		return exitInvalidArgs
	}
	defer out.Close()

	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		log.WithError(err).Error("rft-client: cannot open local socket")
		return exitTransferFailed
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	bar := progressbar.Default(-1, fmt.Sprintf("fetching %s", name))
	defer bar.Close()

	opts := client.Options{
		Receiver: receiver.Options{LossPercent: *lossPercent},
		ProgressFunc: func(filled, total int) {
			if total > 0 {
				bar.ChangeMax(total)
			}
			bar.Set(filled)
		},
	}

	entry := log.WithField("remote", remoteAddr).WithField("file", name)
	err = client.Fetch(ctx, conn, udpAddr, name, out, opts, entry, nil)
	if err == nil {
		entry.WithField("out", destPath).Info("rft-client: transfer complete")
		return exitOK
	}

	os.Remove(destPath)
	if errors.Is(err, types.ErrServerRejected) {
		entry.WithError(err).Error("rft-client: server rejected the request")
		return exitServerRejected
	}
	entry.WithError(err).Error("rft-client: transfer failed")
	return exitTransferFailed
}

// splitTarget parses "host:port/name" into its UDP address and requested
// file name.
func splitTarget(target string) (addr, name string, err error) {
	i := strings.Index(target, "/")
	if i < 0 {
		return "", "", fmt.Errorf("rft-client: target %q is missing /<name>", target)
	}
	addr, name = target[:i], target[i+1:]
	if addr == "" || name == "" {
		return "", "", fmt.Errorf("rft-client: target %q must be host:port/name", target)
	}
	return addr, name, nil
}
