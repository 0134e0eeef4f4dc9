package commands

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/ozwald-dev/ozwald/internal/statestore"
)

var statusRealm string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show instance records for a realm",
	Long: `List the active-state records of a realm, including terminal
records not yet pruned.

Examples:
  ozwald status --realm prod`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusRealm, "realm", "", "realm to inspect (required)")
	_ = statusCmd.MarkFlagRequired("realm")
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer client.Close()

	store := statestore.NewRedisStore(client)
	instances, err := store.List(cmd.Context(), statusRealm)
	if err != nil {
		return err
	}
	if len(instances) == 0 {
		fmt.Printf("No instance records in realm %s\n", statusRealm)
		return nil
	}

	for _, inst := range instances {
		line := fmt.Sprintf("%-50s %-16s host=%-12s %s",
			inst.Identity, inst.State, inst.Host, inst.LastTransition.Format(time.RFC3339))
		if inst.LastError != "" {
			line += fmt.Sprintf("  [%s] %s", inst.ErrorKind, inst.LastError)
		}
		fmt.Println(line)
	}
	return nil
}
