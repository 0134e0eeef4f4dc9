package commands

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/ozwald-dev/ozwald/internal/footprint"
	"github.com/ozwald-dev/ozwald/models"
)

var (
	footprintRealm   string
	footprintAll     bool
	footprintVariety string
	footprintProfile string
)

var footprintCmd = &cobra.Command{
	Use:   "footprint",
	Short: "Manage footprint measurement requests",
	Long: `Queue and inspect footprint measurement requests.

The provisioner processes requests while its host is unloaded, so a
queued request waits until every service has drained.`,
}

var footprintRequestCmd = &cobra.Command{
	Use:   "request [service]",
	Short: "Queue a footprint measurement",
	Long: `Queue a footprint measurement for one service or for every
service in the realm.

Examples:
  ozwald footprint request --realm prod --all
  ozwald footprint request whisper --realm prod --variety nvidia --profile large`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFootprintRequest,
}

var footprintListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending footprint requests",
	RunE:  runFootprintList,
}

var footprintLogsCmd = &cobra.Command{
	Use:   "logs <service>",
	Short: "Show the output of the latest measurement run",
	Long: `Show the retained output of the most recent footprint measurement
run for a service. Output is kept for the configured retention period
after each run.

Examples:
  ozwald footprint logs whisper
  ozwald footprint logs whisper --variety nvidia --profile large`,
	Args: cobra.ExactArgs(1),
	RunE: runFootprintLogs,
}

func init() {
	footprintRequestCmd.Flags().StringVar(&footprintRealm, "realm", "", "realm the services belong to (required)")
	footprintRequestCmd.Flags().BoolVar(&footprintAll, "all", false, "measure every service in the realm")
	footprintRequestCmd.Flags().StringVar(&footprintVariety, "variety", "", "hardware variety to measure")
	footprintRequestCmd.Flags().StringVar(&footprintProfile, "profile", "", "profile to measure")
	_ = footprintRequestCmd.MarkFlagRequired("realm")

	footprintLogsCmd.Flags().StringVar(&footprintVariety, "variety", "", "hardware variety the run was measured for")
	footprintLogsCmd.Flags().StringVar(&footprintProfile, "profile", "", "profile the run was measured for")

	footprintCmd.AddCommand(footprintRequestCmd)
	footprintCmd.AddCommand(footprintListCmd)
	footprintCmd.AddCommand(footprintLogsCmd)
}

func footprintQueue() (footprint.Queue, *redis.Client) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return footprint.NewRedisQueue(client), client
}

func runFootprintRequest(cmd *cobra.Command, args []string) error {
	if !footprintAll && len(args) == 0 {
		return fmt.Errorf("either a service name or --all is required")
	}

	req := models.FootprintRequest{
		ID:          uuid.NewString(),
		Realm:       footprintRealm,
		All:         footprintAll,
		RequestedAt: time.Now().UTC(),
	}
	if !footprintAll {
		req.Targets = []models.FootprintKey{{
			Service: args[0],
			Variety: footprintVariety,
			Profile: footprintProfile,
		}}
	}

	queue, client := footprintQueue()
	defer client.Close()

	if err := queue.Enqueue(cmd.Context(), req); err != nil {
		return fmt.Errorf("failed to queue footprint request: %w", err)
	}

	fmt.Printf("Queued footprint request %s\n", req.ID)
	return nil
}

func runFootprintList(cmd *cobra.Command, args []string) error {
	queue, client := footprintQueue()
	defer client.Close()

	reqs, err := queue.List(cmd.Context())
	if err != nil {
		return err
	}
	if len(reqs) == 0 {
		fmt.Println("No pending footprint requests")
		return nil
	}

	for _, req := range reqs {
		status := "pending"
		if req.InProgress {
			status = "in progress"
		}
		scope := fmt.Sprintf("%d target(s)", len(req.Targets))
		if req.All {
			scope = "all services"
		}
		fmt.Printf("%s  realm=%s  %s  %s  requested %s\n",
			req.ID, req.Realm, scope, status, req.RequestedAt.Format(time.RFC3339))
	}
	return nil
}

func runFootprintLogs(cmd *cobra.Command, args []string) error {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer client.Close()

	logs := footprint.NewRedisLogStore(client, cfg.Provisioner.FootprintLogTTL)
	lines, err := logs.Lines(cmd.Context(), models.FootprintKey{
		Service: args[0],
		Variety: footprintVariety,
		Profile: footprintProfile,
	})
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		fmt.Println("No measurement logs retained")
		return nil
	}
	for _, line := range lines {
		fmt.Println(line)
	}
	return nil
}
