package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"mme/internal/admin"
	"mme/internal/config"
	"mme/internal/core"
	"mme/internal/enb"
	"mme/internal/hss"
	"mme/internal/listener"
	"mme/internal/logger"
	"mme/internal/metrics"
	"mme/pkg/nas"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "mme",
		Short:        "S1-MME control plane",
		Long:         `mme accepts eNodeB associations, runs S1 Setup and starts the attach of UEs up to the NAS Authentication Request.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(config.New(), cfgFile)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file in YAML, defaults are used when empty")
	root.AddCommand(newSubscriberCmd())
	return root
}

func newStore(ctx context.Context, cfg *config.Config) (hss.Store, func() error, error) {
	switch cfg.HSS.Backend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.HSS.Redis.Addr,
			Password: cfg.HSS.Redis.Password,
			DB:       cfg.HSS.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("redis %s: %w", cfg.HSS.Redis.Addr, err)
		}
		return hss.NewRedisStore(rdb, cfg.HSS.Redis.KeyPrefix), rdb.Close, nil
	default:
		subs := make([]hss.Subscriber, 0, len(cfg.HSS.Subscribers))
		for _, sc := range cfg.HSS.Subscribers {
			s, err := sc.Subscriber()
			if err != nil {
				return nil, nil, err
			}
			subs = append(subs, s)
		}
		store, err := hss.NewMemoryStore(subs...)
		if err != nil {
			return nil, nil, err
		}
		return store, func() error { return nil }, nil
	}
}

func run(parent context.Context, cfg *config.Config) error {
	zl, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer zl.Sync()
	log := zl.Sugar()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.NewPrometheusService()
	enbs := enb.NewTable()

	store, closeStore, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	gw, err := hss.New(store, cfg.MME.PLMN(), zl.Named("hss"))
	if err != nil {
		return err
	}
	d, err := core.NewDispatcher(core.MME{
		Name:             cfg.MME.Name,
		PLMN:             cfg.MME.PLMN(),
		GroupID:          cfg.MME.GroupID,
		Code:             cfg.MME.Code,
		RelativeCapacity: cfg.MME.RelativeCapacity,
	}, core.Deps{
		ENBs:       enbs,
		HSS:        gw,
		NAS:        nas.Codec{},
		Metrics:    m,
		Logger:     zl.Named("s1ap"),
		MaxPDUSize: cfg.S1AP.MaxPDUSize,
	})
	if err != nil {
		return err
	}

	var l *listener.Listener
	switch cfg.S1AP.Transport {
	case "tcp":
		l, err = listener.ListenTCP(cfg.S1AP.TCPAddr(), d, m, zl.Named("listener"))
	default:
		l, err = listener.ListenSCTP(listener.SCTPConfig{
			Addrs:   cfg.S1AP.BindAddrs,
			Port:    cfg.S1AP.Port,
			BufSize: cfg.S1AP.BufSize,
			SndBuf:  cfg.S1AP.SndBuf,
			RcvBuf:  cfg.S1AP.RcvBuf,
		}, d, m, zl.Named("listener"))
	}
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.Admin.HTTPAddr,
		Handler:           admin.NewRouter(enbs, m.Registry(), zl.Named("admin")),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("admin http: %v", err)
		}
	}()

	grpcServer, hs := admin.NewGRPCServer()
	if cfg.Admin.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Admin.GRPCAddr)
		if err != nil {
			l.Close()
			return fmt.Errorf("grpc server failed to listen: %w", err)
		}
		go func() {
			if err := grpcServer.Serve(lis); err != nil {
				log.Errorf("grpc failed to serve: %v", err)
			}
		}()
	}

	served := make(chan error, 1)
	go func() {
		served <- l.Serve(ctx)
	}()
	hs.SetServingStatus(admin.ServiceName, healthpb.HealthCheckResponse_SERVING)
	log.Infow("MME started", "name", cfg.MME.Name, "plmn", cfg.MME.PLMN().String(), "s1ap", l.Addr().String())

	select {
	case <-ctx.Done():
		err = nil
	case err = <-served:
	}
	stop()

	log.Info("stopping server...")
	hs.Shutdown()
	l.Close()

	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := server.Shutdown(sctx); serr != nil {
		log.Error(serr)
	}
	grpcServer.GracefulStop()
	if err != nil {
		log.Errorf("listener stopped: %v", err)
	}
	return err
}
