package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/stolen-wallet-registry/registry-coordinator/api"
	"github.com/stolen-wallet-registry/registry-coordinator/chains"
	"github.com/stolen-wallet-registry/registry-coordinator/cmd/flags"
	"github.com/stolen-wallet-registry/registry-coordinator/common"
	"github.com/stolen-wallet-registry/registry-coordinator/httpserver"
	"github.com/stolen-wallet-registry/registry-coordinator/metrics"
	"github.com/stolen-wallet-registry/registry-coordinator/peerrelay"
	"github.com/stolen-wallet-registry/registry-coordinator/registry"
	"github.com/stolen-wallet-registry/registry-coordinator/session"
)

var coordinatorFlags = append([]cli.Flag{
	flags.ListenAddrFlag,
	flags.ChainConfigFlag,
	&cli.IntFlag{
		Name:  "p2p-port",
		Value: 0,
		Usage: "TCP port for the libp2p relay host, 0 selects a random port",
	},
	&cli.BoolFlag{
		Name:  "p2p-disable",
		Value: false,
		Usage: "disable the libp2p relay host; p2pRelay sessions are then rejected",
	},
	&cli.StringFlag{
		Name:  "relayer-directory",
		Usage: "URL of a trusted-relayer JSON directory to dial at startup",
	},
	&cli.StringFlag{
		Name:  "dnsaddr-domain",
		Usage: "domain carrying dnsaddr TXT records with relayer multiaddrs",
	},
	&cli.StringFlag{
		Name:  "dns-resolver",
		Value: "1.1.1.1:53",
		Usage: "DNS resolver used for dnsaddr lookups",
	},
	&cli.Int64Flag{
		Name:  "poll-seconds",
		Value: 5,
		Usage: "cadence of registry status polls and block reads",
	},
	flags.LogServiceFlagFn("registry-coordinator"),
}, flags.CommonFlags...)

func main() {
	app := &cli.App{
		Name:   "coordinator",
		Usage:  "Coordinate stolen wallet registrations across chains",
		Flags:  coordinatorFlags,
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	table := chains.Default()
	if path := cCtx.String(flags.ChainConfigFlag.Name); path != "" {
		parsed, err := chains.Parse(path)
		if err != nil {
			logger.Error("Failed to load chain table", "err", err, "path", path)
			return err
		}
		table = parsed
	}
	resolver := chains.NewResolver(table, logger)

	pool := chains.NewPool(table, logger)
	defer pool.Close()
	gateways := registry.NewGatewayFactory(table, pool, logger)

	var metricsSrv *metrics.MetricsServer
	var recorder *metrics.Recorder
	if addr := cCtx.String(flags.MetricsAddrFlag.Name); addr != "" {
		var err error
		metricsSrv, err = metrics.New(common.PackageName, addr)
		if err != nil {
			logger.Error("Failed to create metrics server", "err", err)
			return err
		}
		recorder = metricsSrv.Recorder()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The relay host is optional; without it the coordinator still serves the
	// standard and selfRelay modes.
	var peers session.PeerWatcher
	var messenger *peerrelay.Messenger
	if !cCtx.Bool("p2p-disable") {
		host, err := peerrelay.NewHost(&peerrelay.HostConfig{
			ListenPort: cCtx.Int("p2p-port"),
			Log:        logger,
		})
		if err != nil {
			logger.Error("Failed to start relay host", "err", err)
			return err
		}
		defer host.Close()
		logger.Info("Relay host listening", "peerID", host.ID())

		coordinator := peerrelay.NewCoordinator(host, host.Events(), recorder, logger)
		go coordinator.Run(ctx)
		peers = coordinator

		messenger = peerrelay.NewMessenger(host, logger)
		host.HandleRelayStreams(messenger)

		dialRelayers(ctx, cCtx, host, logger)
	}

	manager := session.NewManager(session.ManagerConfig{
		PollInterval: time.Duration(cCtx.Int64("poll-seconds")) * time.Second,
	}, table, resolver, gateways, pool, peers, recorder, logger)
	defer manager.Close()

	if messenger != nil {
		// Relay envelopes carry the same event shapes the HTTP API accepts;
		// feed them straight into the session they address.
		messenger.SetHandler(func(env peerrelay.Envelope) {
			deliverEnvelope(ctx, manager, env, logger)
		})
	}

	handler := httpserver.NewHandler(manager, table, logger)
	cfg := flags.ConfigureServer(cCtx, logger, cCtx.String(flags.ListenAddrFlag.Name))
	server, err := httpserver.New(cfg, handler, metricsSrv)
	if err != nil {
		logger.Error("Failed to create server", "err", err)
		return err
	}

	server.RunInBackground()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

	logger.Info("Coordinator is running, press Ctrl+C to stop")
	<-exit
	logger.Info("Shutdown signal received")

	server.Shutdown()
	logger.Info("Coordinator shutdown complete")
	return nil
}

// dialRelayers connects the relay host to every relayer found through the
// configured discovery sources. Discovery failures are logged and skipped;
// sessions can still hand in relay peers explicitly.
func dialRelayers(ctx context.Context, cCtx *cli.Context, host *peerrelay.Host, logger *slog.Logger) {
	dialCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if url := cCtx.String("relayer-directory"); url != "" {
		relayers, err := peerrelay.FetchTrustedRelayers(dialCtx, nil, url, logger)
		if err != nil {
			logger.Warn("Relayer directory fetch failed", "err", err, "url", url)
		}
		for _, relayer := range relayers {
			if err := host.Connect(dialCtx, relayer.Maddr); err != nil {
				logger.Warn("Failed to dial relayer", "err", err, "name", relayer.Name, "maddr", relayer.Maddr)
			}
		}
	}

	if domain := cCtx.String("dnsaddr-domain"); domain != "" {
		maddrs, err := peerrelay.LookupDNSAddrs(dialCtx, cCtx.String("dns-resolver"), domain, logger)
		if err != nil {
			logger.Warn("dnsaddr lookup failed", "err", err, "domain", domain)
		}
		for _, maddr := range maddrs {
			if err := host.Connect(dialCtx, maddr); err != nil {
				logger.Warn("Failed to dial relayer", "err", err, "maddr", maddr)
			}
		}
	}
}

// deliverEnvelope feeds one relay message into its session. A rejection is
// the machine refusing the remote side's report; it is logged and dropped,
// the remote learns the real state on its next status read.
func deliverEnvelope(ctx context.Context, manager *session.Manager, env peerrelay.Envelope, logger *slog.Logger) {
	sessionID, err := uuid.Parse(env.SessionID)
	if err != nil {
		logger.Warn("Relay envelope with invalid session id", "sessionID", env.SessionID)
		return
	}

	var req api.EventRequest
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			logger.Warn("Relay envelope with invalid payload", "err", err, "sessionID", env.SessionID)
			return
		}
	}
	req.Type = env.Type

	ev, err := req.ToEvent()
	if err != nil {
		logger.Warn("Relay envelope does not decode to an event", "err", err, "sessionID", env.SessionID)
		return
	}

	submitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := manager.SubmitEvent(submitCtx, sessionID, ev); err != nil {
		logger.Warn("Relay event rejected", "err", err, "sessionID", env.SessionID, "type", env.Type)
	}
}
