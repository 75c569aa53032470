package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"rollout.io/rollout/internal/cache"
	"rollout.io/rollout/internal/infrastructure"
	"rollout.io/rollout/internal/repository"
)

func (c *cli) warmCacheCmd() *cobra.Command {
	var flush bool
	cmd := &cobra.Command{
		Use:   "warm-cache",
		Short: "Load every flag into the shared Redis cache",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !c.cfg.Redis.Enabled() {
				return errors.New("redis.addr is not set; the in-process cache cannot be warmed from outside the server")
			}
			ctx := cmd.Context()
			client, err := infrastructure.NewRedisClient(ctx, c.cfg.Redis)
			if err != nil {
				return err
			}
			defer client.Close()

			return c.withDB(ctx, func(db *infrastructure.DatabaseClients) error {
				flagCache := cache.NewFlagCache(cache.NewRedisStore(client), cache.FlagCacheOptions{
					FlagTTL:     c.cfg.Cache.FlagTTL,
					DecisionTTL: c.cfg.Cache.DecisionTTL,
				})
				if flush {
					if err := flagCache.InvalidateAll(ctx); err != nil {
						return err
					}
				}
				n, err := flagCache.WarmUp(ctx, repository.NewFlagRepository(db.Pool))
				if err != nil {
					return err
				}
				fmt.Fprintf(c.out, "cached %d flags\n", n)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&flush, "flush", false, "drop cached flags and decisions first")
	return cmd
}
