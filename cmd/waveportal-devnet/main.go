package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/wave-portal/waveportal/internal/config"
	"github.com/wave-portal/waveportal/internal/devnet"
	"github.com/wave-portal/waveportal/internal/logging"
)

func main() {
	configPath := flag.String("config", "waveportal.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override listen port")
	reject := flag.Bool("reject", false, "Reject every account access request")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}
	if *port > 0 {
		cfg.Devnet.Port = *port
	}
	if *reject {
		cfg.Devnet.RejectAccess = true
	}
	if err := logging.Setup(cfg.Log, os.Stderr); err != nil {
		log.WithError(err).Fatal("invalid log config")
	}

	d := devnet.New(devnet.Options{
		Chain: devnet.ChainOptions{
			ChainID:      cfg.Devnet.ChainID,
			Contract:     cfg.ContractAddress(),
			Accounts:     cfg.Devnet.Accounts,
			Preauthorize: cfg.Devnet.Preauthorize,
			RejectAccess: cfg.Devnet.RejectAccess,
			Cooldown:     cfg.Devnet.Cooldown,
		},
		MineDelay:      cfg.Devnet.MineDelay,
		BotInterval:    cfg.Devnet.BotInterval,
		AllowedOrigins: cfg.Devnet.AllowedOrigins,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d.Generator.Seed(cfg.Devnet.SeedWaves)
	d.Generator.Start(ctx)

	srv := &http.Server{
		Addr:              cfg.DevnetAddr(),
		Handler:           d.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Shutdown does not track hijacked connections.
	srv.RegisterOnShutdown(d.Broadcaster.DisconnectAll)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("devnet listening on %s (chain %d, contract %s)", srv.Addr, cfg.Devnet.ChainID, cfg.Contract.Address)
		for _, a := range d.Chain.Accounts() {
			log.Infof("account %s", a.Hex())
		}
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Fatal("server error")
	}
}
