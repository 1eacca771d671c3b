// Command psgcassd runs the PSG Cassandra-facing subsystem as a
// standalone daemon: schema/messages refresh, the processor
// dispatcher, time-series counters, and the ambient HTTP surface.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/ncbi/psg-cassvc/blobid"
	"github.com/ncbi/psg-cassvc/cassandra"
	"github.com/ncbi/psg-cassvc/config"
	"github.com/ncbi/psg-cassvc/cstask"
	"github.com/ncbi/psg-cassvc/httpapi"
	"github.com/ncbi/psg-cassvc/logger"
	"github.com/ncbi/psg-cassvc/monitor"
	"github.com/ncbi/psg-cassvc/processor"
	"github.com/ncbi/psg-cassvc/schema"
	"github.com/ncbi/psg-cassvc/statsclient"
	"github.com/ncbi/psg-cassvc/timeseries"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	rc := &cobra.Command{
		Use:   "psgcassd",
		Short: "psgcassd serves PSG's Cassandra-facing schema, task, and dispatch subsystem",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, cmd.Flags())
		},
	}
	rc.Flags().StringVarP(&configPath, "config", "c", "", "TOML configuration file")
	return rc
}

func run(configPath string, flags *pflag.FlagSet) error {
	cfg, err := config.Load(configPath, flags)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logger.NewStandardLogger(os.Stderr)

	monitor.MustInit(cfg.Server.SentryDSN, "psgcassd")

	registry := cassandra.NewRegistry(cfg.Cassandra, cassandra.NopServiceResolver{})

	bootstrapConn, err := registry.Dial(cfg.Cassandra.BootstrapHosts)
	if err != nil {
		return fmt.Errorf("dialing bootstrap cluster: %w", err)
	}
	defer bootstrapConn.Close()

	provider := schema.NewProvider(
		cassandra.NewSessionAdapter(bootstrapConn.Session()),
		bootstrapConn,
		cassandra.Dialer{Registry: registry},
		registry,
		cfg.Cassandra.ResolverRequired,
		log,
	)

	var initial errgroup.Group
	initial.Go(func() error {
		if res, err := provider.RefreshSchema(cfg.Cassandra.MetaKeyspace, cfg.Cassandra.Domain, true); err != nil {
			log.Errorf("initial schema refresh failed: %v (%v)", err, res)
		}
		return nil
	})
	initial.Go(func() error {
		if res, err := provider.RefreshMessages(cfg.Cassandra.MetaKeyspace, cfg.Cassandra.Domain, true); err != nil {
			log.Errorf("initial messages refresh failed: %v (%v)", err, res)
		}
		return nil
	})
	_ = initial.Wait()

	var stats statsclient.StatsClient = statsclient.NopStatsClient
	if cfg.Server.StatsDHost != "" {
		ddStats, err := statsclient.NewStatsClient(cfg.Server.StatsDHost, log)
		if err != nil {
			log.Warnf("statsclient: init failed: %v", err)
		} else {
			stats = ddStats
			defer ddStats.Close()
		}
	}

	tsRegistry := timeseries.NewRegistry(stats, log)
	requestSeries := tsRegistry.Counters("requests")

	dispatcher := processor.NewDispatcher(cfg.Server.WorkerLoops, log)
	dispatcher.Register(&publicCommentFactory{provider: provider})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tsRegistry.Run(ctx)
	defer tsRegistry.Stop()

	go refreshLoop(ctx, "schema", time.Duration(cfg.Server.SchemaRefresh), log, func() {
		if _, err := provider.RefreshSchema(cfg.Cassandra.MetaKeyspace, cfg.Cassandra.Domain, true); err != nil {
			log.Errorf("schema refresh: %v", err)
			requestSeries.Add(timeseries.KindErrors)
		}
	})
	go refreshLoop(ctx, "messages", time.Duration(cfg.Server.MessagesRefresh), log, func() {
		if _, err := provider.RefreshMessages(cfg.Cassandra.MetaKeyspace, cfg.Cassandra.Domain, true); err != nil {
			log.Errorf("messages refresh: %v", err)
			requestSeries.Add(timeseries.KindErrors)
		}
	})

	resolvePublicComment := func(blobIDText string, flags uint64) (string, bool, error) {
		id, err := blobid.Parse(blobIDText)
		if err != nil {
			return "", false, err
		}
		reply := &blobReply{}
		outcome := dispatcher.Dispatch(ctx, blobRequest{id: id, flags: cstask.BlobFlags(flags)}, reply)
		if outcome.Status == processor.StatusNotFound {
			return "", false, fmt.Errorf("no processor could resolve blob %s against the current schema", blobIDText)
		}
		return reply.comment, reply.found, reply.err
	}

	api := httpapi.New(provider, dispatcher.GroupCounts, resolvePublicComment, log)
	go func() {
		log.Infof("listening on %s", cfg.Server.Bind)
		if err := api.ListenAndServe(cfg.Server.Bind); err != nil {
			log.Errorf("http server: %v", err)
		}
	}()
	defer api.Close()
	defer dispatcher.Shutdown()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Infof("shutting down")
	return nil
}

func refreshLoop(ctx context.Context, name string, interval time.Duration, log logger.Logger, step func()) {
	log = logger.Component(log, name)
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Debugf("refreshing")
			step()
		}
	}
}
