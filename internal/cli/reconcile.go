package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/predictgate-dev/predictgate/internal/reconcile"
	"github.com/predictgate-dev/predictgate/pkg/thread"
)

func init() {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Rewrite quota usage counters from the thread log",
		Run:   runReconcile,
	}

	RootCmd.AddCommand(cmd)
}

func runReconcile(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}
	if cfg.Storage != "redis" {
		exitErr("reconcile", fmt.Errorf("requires redis storage, configured backend is %q", cfg.Storage))
	}

	threads, err := thread.NewRedisStore(thread.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err != nil {
		exitErr("open thread store", err)
	}
	defer threads.Close()

	quotas, err := openQuotaStore()
	if err != nil {
		exitErr("open quota store", err)
	}
	defer quotas.Close()

	r := reconcile.New(threads, quotas, "")
	if err := r.ReconcileAll(cmd.Context()); err != nil {
		exitErr("reconcile", err)
	}
}
