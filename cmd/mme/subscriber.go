package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"mme/internal/config"
	"mme/internal/hss"
)

func newSubscriberCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscriber",
		Short: "Manage subscribers of the redis HSS backend",
	}

	var sc hss.SubscriberConfig
	add := &cobra.Command{
		Use:   "add",
		Short: "Provision or overwrite a subscriber",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sub, err := sc.Subscriber()
			if err != nil {
				return err
			}
			return withRedis(cmd.Context(), func(ctx context.Context, s *hss.RedisStore) error {
				if err := s.Put(ctx, sub); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "subscriber %015d stored\n", sub.IMSI)
				return nil
			})
		},
	}
	add.Flags().StringVar(&sc.IMSI, "imsi", "", "IMSI, up to 15 digits")
	add.Flags().StringVar(&sc.K, "k", "", "subscriber key K in hex")
	add.Flags().StringVar(&sc.OP, "op", "", "operator key OP in hex")
	add.Flags().StringVar(&sc.OPc, "opc", "", "derived operator key OPc in hex")
	add.Flags().StringVar(&sc.AMF, "amf", "8000", "authentication management field in hex")
	add.Flags().StringVar(&sc.SQN, "sqn", "0", "initial sequence number in hex")
	add.MarkFlagRequired("imsi")
	add.MarkFlagRequired("k")
	add.MarkFlagsOneRequired("op", "opc")

	del := &cobra.Command{
		Use:   "delete IMSI",
		Short: "Remove a subscriber",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			imsi, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("IMSI %q: %w", args[0], err)
			}
			return withRedis(cmd.Context(), func(ctx context.Context, s *hss.RedisStore) error {
				return s.Delete(ctx, imsi)
			})
		},
	}

	cmd.AddCommand(add, del)
	return cmd
}

func withRedis(parent context.Context, fn func(context.Context, *hss.RedisStore) error) error {
	cfg, err := config.Load(config.New(), cfgFile)
	if err != nil {
		return err
	}
	if cfg.HSS.Backend != "redis" {
		return errors.New("subscribers are provisioned in the config file unless hss.backend is redis")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.HSS.Redis.Addr,
		Password: cfg.HSS.Redis.Password,
		DB:       cfg.HSS.Redis.DB,
	})
	defer rdb.Close()

	ctx, cancel := context.WithTimeout(parent, 5*time.Second)
	defer cancel()
	return fn(ctx, hss.NewRedisStore(rdb, cfg.HSS.Redis.KeyPrefix))
}
