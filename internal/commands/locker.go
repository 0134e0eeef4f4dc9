package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/ozwald-dev/ozwald/internal/vault"
)

var (
	lockerRealm string
	lockerToken string
)

var lockerCmd = &cobra.Command{
	Use:   "locker",
	Short: "Manage secret lockers",
	Long: `Write and verify encrypted secret lockers.

Locker contents never leave the vault unencrypted; the token given here
is the only thing that can open the locker again.`,
}

var lockerPutCmd = &cobra.Command{
	Use:   "put [locker] [env-file]",
	Short: "Seal an env file into a locker",
	Long: `Encrypt the KEY=value pairs of an env file under the given token
and store them as the locker's new contents. Replaces the whole locker.

Examples:
  ozwald locker put database-creds ./db.env --realm prod --token "$LOCKER_TOKEN"`,
	Args: cobra.ExactArgs(2),
	RunE: runLockerPut,
}

var lockerCheckCmd = &cobra.Command{
	Use:   "check [locker]",
	Short: "Verify a locker opens with a token",
	Args:  cobra.ExactArgs(1),
	RunE:  runLockerCheck,
}

func init() {
	for _, cmd := range []*cobra.Command{lockerPutCmd, lockerCheckCmd} {
		cmd.Flags().StringVar(&lockerRealm, "realm", "", "realm the locker belongs to (required)")
		cmd.Flags().StringVar(&lockerToken, "token", "", "locker token (required)")
		_ = cmd.MarkFlagRequired("realm")
		_ = cmd.MarkFlagRequired("token")
	}

	lockerCmd.AddCommand(lockerPutCmd)
	lockerCmd.AddCommand(lockerCheckCmd)
}

func blobStore() (vault.BlobStore, *redis.Client) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return vault.NewRedisBlobStore(client), client
}

func runLockerPut(cmd *cobra.Command, args []string) error {
	locker, envFile := args[0], args[1]

	secrets, err := parseEnvFile(envFile)
	if err != nil {
		return err
	}
	if len(secrets) == 0 {
		return fmt.Errorf("%s contains no KEY=value entries", envFile)
	}

	blob, err := vault.Seal(secrets, lockerToken)
	if err != nil {
		return fmt.Errorf("failed to seal locker: %w", err)
	}

	store, client := blobStore()
	defer client.Close()

	if err := store.SetSecret(cmd.Context(), lockerRealm, locker, blob); err != nil {
		return fmt.Errorf("failed to store locker: %w", err)
	}

	fmt.Printf("Locker %s/%s sealed with %d entr(ies)\n", lockerRealm, locker, len(secrets))
	return nil
}

func runLockerCheck(cmd *cobra.Command, args []string) error {
	locker := args[0]

	store, client := blobStore()
	defer client.Close()

	blob, err := store.GetSecret(cmd.Context(), lockerRealm, locker)
	if err != nil {
		return fmt.Errorf("locker check failed: %w", err)
	}
	secrets, err := vault.Open(blob, lockerToken)
	if err != nil {
		return fmt.Errorf("locker check failed: %w", err)
	}

	fmt.Printf("✓ Locker %s/%s opens (%d entr(ies))\n", lockerRealm, locker, len(secrets))
	return nil
}

func parseEnvFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read env file: %w", err)
	}
	defer f.Close()

	secrets := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("invalid line in %s: %q", path, line)
		}
		secrets[strings.TrimSpace(key)] = value
	}
	return secrets, scanner.Err()
}
