// Command epaxosd runs a single EPaxos replica process: it parses its own
// id and the ensemble's peer addresses, opens a TCPTransport, builds a
// replica.Replica, and drives its receive loop until interrupted.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/kboxdb/epaxoskv/internal/cmdlog"
	"github.com/kboxdb/epaxoskv/internal/replica"
	"github.com/kboxdb/epaxoskv/internal/telemetry"
	"github.com/kboxdb/epaxoskv/internal/transport"
	"github.com/spf13/cobra"
)

var (
	flagID       string
	flagPeers    []string
	flagListen   string
	flagLogLevel string
	flagDebug    bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "epaxosd",
		Short:         "epaxosd runs one replica of an EPaxos key-value ensemble",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.Flags().StringVar(&flagID, "id", "", "this replica's id (required)")
	root.Flags().StringSliceVar(&flagPeers, "peers", nil, "comma-separated id=host:port peer list, including self")
	root.Flags().StringVar(&flagListen, "listen", "", "address to listen on (required)")
	root.Flags().StringVar(&flagLogLevel, "log-level", "info", "panic|fatal|error|warn|info|debug|trace")
	root.Flags().BoolVar(&flagDebug, "debug", false, "crash-stop on a protocol violation found while committing an instance, instead of logging it")
	_ = root.MarkFlagRequired("id")
	_ = root.MarkFlagRequired("listen")
	return root
}

// parsePeers turns "a=host:port,b=host:port" into an ordered replica list
// and an id->addr map, erroring on a malformed entry.
func parsePeers(raw []string) ([]cmdlog.ReplicaID, map[string]string, error) {
	ids := make([]cmdlog.ReplicaID, 0, len(raw))
	addrs := make(map[string]string, len(raw))
	for _, entry := range raw {
		id, addr, ok := strings.Cut(entry, "=")
		if !ok || id == "" || addr == "" {
			return nil, nil, fmt.Errorf("malformed --peers entry %q, want id=host:port", entry)
		}
		ids = append(ids, cmdlog.ReplicaID(id))
		addrs[id] = addr
	}
	return ids, addrs, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	telemetry.SetLevel(flagLogLevel)

	replicaList, addrs, err := parsePeers(flagPeers)
	if err != nil {
		return err
	}

	tr, err := transport.Listen(flagID, flagListen, addrs)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", flagListen, err)
	}
	defer tr.Close()

	r := replica.New(cmdlog.ReplicaID(flagID), replicaList, tr, flagDebug)

	log := telemetry.Replica(flagID)
	log.WithField("listen", flagListen).WithField("peers", flagPeers).Info("replica starting")

	closeCh := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down")
		close(closeCh)
	}()

	r.Run(closeCh)
	return nil
}
