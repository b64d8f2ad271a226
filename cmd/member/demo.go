package main

import (
	"context"
	"fmt"

	"github.com/pg-sharding/partmig/app"
	"github.com/pg-sharding/partmig/pkg/config"
	"github.com/pg-sharding/partmig/pkg/models/migrations"
	"github.com/pg-sharding/partmig/pkg/statistics"
	"github.com/pg-sharding/partmig/pkg/transport"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	demoKeys  int
	demoCopy  bool
	demoParts int32
)

func init() {
	demoCmd.Flags().IntVar(&demoKeys, "keys", 1000, "number of keys to load into the source member")
	demoCmd.Flags().Int32Var(&demoParts, "partitions", 4, "number of partitions to migrate concurrently")
	demoCmd.Flags().BoolVar(&demoCopy, "copy", false, "copy partitions instead of moving them")
}

func demoMember(port int32) *config.Member {
	cfg := config.Default()
	cfg.Host = "127.0.0.1"
	cfg.Port = port
	return &cfg
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "migrate partitions between two in-process members",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyLogging(demoMember(0)); err != nil {
			return err
		}
		ctx := context.Background()

		hub := transport.NewLoopback()
		source, err := app.NewLoopbackApp(demoMember(5701), hub)
		if err != nil {
			return err
		}
		dest, err := app.NewLoopbackApp(demoMember(5702), hub)
		if err != nil {
			return err
		}
		for _, m := range []*app.App{source, dest} {
			m.Start()
			defer m.Close()
		}

		for i := range demoKeys {
			key := fmt.Sprintf("key-%d", i)
			if _, err := source.Maps.Put(key, []byte(fmt.Sprintf("value-%d", i))); err != nil {
				return err
			}
		}

		from := source.Engine.ThisAddress()
		to := dest.Engine.ThisAddress()

		g, gctx := errgroup.WithContext(ctx)
		results := make([]bool, demoParts)
		for pid := range demoParts {
			g.Go(func() error {
				rec := migrations.NewRecord(pid, 0, !demoCopy, &from, to)
				ok, err := source.Migrator.Migrate(gctx, rec)
				if err != nil {
					return err
				}
				results[pid] = ok

				// the migration is over either way; the registry entry is ours to drop
				if err := dest.Partitions.RemoveActiveMigration(gctx, rec); err != nil {
					return err
				}
				if ok && rec.IsMoving() {
					source.Maps.ClearReplica(pid, 0)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		for pid, ok := range results {
			fmt.Printf("partition %d: success=%t source=%d destination=%d\n",
				pid, ok, source.Maps.Len(int32(pid), 0), dest.Maps.Len(int32(pid), 0))
		}
		stats := statistics.GetTransferStats()
		fmt.Printf("transfers: total=%d failed=%d avg=%s replay p50=%.3fms\n",
			stats.TotalTransfers, stats.FailedTransfers, stats.AverageTime,
			statistics.GetTimeQuantile(statistics.StatisticsTypeReplay, 0.5))
		return nil
	},
}
