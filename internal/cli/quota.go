package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/predictgate-dev/predictgate/pkg/config"
	"github.com/predictgate-dev/predictgate/pkg/quota"
)

func init() {
	quotaCmd := &cobra.Command{
		Use:   "quota",
		Short: "Inspect and adjust user token quotas",
	}

	getCmd := &cobra.Command{
		Use:   "get",
		Short: "Show a user's quota",
		Run:   runQuotaGet,
	}
	getCmd.Flags().StringP("user", "u", "", "User ID (required)")
	getCmd.MarkFlagRequired("user")

	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Set a user's token allowance",
		Run:   runQuotaSet,
	}
	setCmd.Flags().StringP("user", "u", "", "User ID (required)")
	setCmd.Flags().Int64P("allowed", "a", quota.DefaultAllowedTokens, "Token allowance")
	setCmd.MarkFlagRequired("user")

	quotaCmd.AddCommand(getCmd, setCmd)
	RootCmd.AddCommand(quotaCmd)
}

func openQuotaStore() (quota.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	if cfg.Storage != "redis" {
		return nil, fmt.Errorf("quota commands require redis storage, configured backend is %q", cfg.Storage)
	}

	return quota.NewRedisStore(redisConfig(cfg))
}

func redisConfig(cfg *config.Config) quota.RedisConfig {
	return quota.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	}
}

func runQuotaGet(cmd *cobra.Command, args []string) {
	userID, _ := cmd.Flags().GetString("user")

	store, err := openQuotaStore()
	if err != nil {
		exitErr("open quota store", err)
	}
	defer store.Close()

	q, err := quota.NewLedger(store).GetQuota(cmd.Context(), userID)
	if err != nil {
		exitErr("get quota", err)
	}

	b, _ := json.MarshalIndent(q, "", "  ")
	fmt.Println(string(b))
}

func runQuotaSet(cmd *cobra.Command, args []string) {
	userID, _ := cmd.Flags().GetString("user")
	allowed, _ := cmd.Flags().GetInt64("allowed")

	store, err := openQuotaStore()
	if err != nil {
		exitErr("open quota store", err)
	}
	defer store.Close()

	if err := quota.NewLedger(store).SetAllowance(cmd.Context(), userID, allowed); err != nil {
		exitErr("set allowance", err)
	}

	fmt.Printf("allowance for %s set to %d tokens\n", userID, allowed)
}
