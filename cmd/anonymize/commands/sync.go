// ABOUTME: Sync commands for Charm cloud synchronization of prompt settings
// ABOUTME: Provides status, push, wipe, and keys management
package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harper/anonymizer/internal/charm"
	"github.com/harper/anonymizer/internal/config"
	"github.com/harper/anonymizer/internal/storage"
)

// NewSyncCmd creates the sync command group
func NewSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Manage Charm cloud synchronization",
		Long: `Manage synchronization of few-shot examples with Charm cloud.

With ANONYMIZER_SETTINGS_BACKEND=charm the examples live in a Charm KV
store and sync across devices linked to the same Charm account via SSH
keys. Documents and anonymized output never leave this machine; only
the examples are synced.`,
	}

	cmd.AddCommand(newSyncStatusCmd())
	cmd.AddCommand(newSyncNowCmd())
	cmd.AddCommand(newSyncPushCmd())
	cmd.AddCommand(newSyncWipeCmd())
	cmd.AddCommand(newSyncKeysCmd())

	return cmd
}

// charmClient connects using the configured host and database
func charmClient() (*charm.Client, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	charm.Configure(&charm.Config{Host: cfg.CharmHost, DBName: cfg.CharmDBName, AutoSync: cfg.AutoSync})

	client, err := charm.GetClient()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to Charm: %w", err)
	}
	return client, cfg, nil
}

func newSyncStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sync status and connection info",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := charmClient()
			if err != nil {
				return err
			}
			defer charm.ResetGlobalClient()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Settings backend: %s\n", cfg.SettingsBackend)

			keys, err := client.ListKeys(charm.SettingsPrefix)
			if err != nil {
				return err
			}
			if len(keys) == 0 {
				fmt.Fprintln(out, "Stored settings: none (built-in defaults)")
			} else {
				fmt.Fprintf(out, "Stored settings: %s\n", strings.Join(keys, ", "))
			}

			id, err := client.ID()
			if err != nil {
				fmt.Fprintln(out, "Status: Not connected")
				fmt.Fprintln(out, "Run 'anonymize sync keys' to check your SSH keys")
				return nil
			}

			host := client.Config().Host
			if host == "" {
				host = "(charm default)"
			}
			fmt.Fprintln(out, "Status: Connected")
			fmt.Fprintf(out, "User ID: %s\n", id)
			fmt.Fprintf(out, "Host: %s\n", host)
			fmt.Fprintf(out, "Database: %s\n", client.Config().DBName)

			return nil
		},
	}
}

func newSyncNowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "now",
		Short: "Force immediate sync with Charm cloud",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := charmClient()
			if err != nil {
				return err
			}
			defer charm.ResetGlobalClient()

			fmt.Fprintln(cmd.OutOrStdout(), "Syncing...")
			if err := client.Sync(); err != nil {
				return fmt.Errorf("sync failed: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Sync complete")
			return nil
		},
	}
}

func newSyncPushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push",
		Short: "Copy the local examples file into the Charm store",
		Long: `Copy the examples from the local settings file into the Charm KV
store and sync them, for switching ANONYMIZER_SETTINGS_BACKEND from
file to charm without re-entering examples.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			local := storage.NewFileStore(config.SettingsDir())
			settings, err := local.Load()
			if err != nil {
				return fmt.Errorf("failed to read local examples: %w", err)
			}

			client, _, err := charmClient()
			if err != nil {
				return err
			}
			defer charm.ResetGlobalClient()

			if err := storage.NewCharmStore(client).Save(settings); err != nil {
				return fmt.Errorf("failed to store examples: %w", err)
			}
			if err := client.Sync(); err != nil {
				return fmt.Errorf("sync failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Pushed %d example(s) from %s\n", len(settings.Examples), local.Path())
			return nil
		},
	}
}

func newSyncWipeCmd() *cobra.Command {
	var confirm bool

	cmd := &cobra.Command{
		Use:   "wipe",
		Short: "Wipe all local Charm data (nuclear option)",
		Long: `Completely wipe all local Charm data.

WARNING: This deletes the locally cached examples. Your cloud data
remains intact and will be re-synced on next access.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				fmt.Fprintln(cmd.OutOrStdout(), "This will wipe ALL local Charm data!")
				fmt.Fprintln(cmd.OutOrStdout(), "Run with --confirm to proceed")
				return nil
			}

			client, _, err := charmClient()
			if err != nil {
				return err
			}
			defer charm.ResetGlobalClient()

			if err := client.Reset(); err != nil {
				return fmt.Errorf("failed to wipe data: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Local data wiped successfully")
			return nil
		},
	}

	cmd.Flags().BoolVar(&confirm, "confirm", false, "Confirm the wipe operation")

	return cmd
}

func newSyncKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List authorized SSH keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := charmClient()
			if err != nil {
				return err
			}
			defer charm.ResetGlobalClient()

			keys, err := client.GetAuthorizedKeys()
			if err != nil {
				return fmt.Errorf("failed to get authorized keys: %w", err)
			}

			if keys == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "No authorized keys found")
				return nil
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Authorized SSH keys:")
			fmt.Fprintln(cmd.OutOrStdout(), keys)

			return nil
		},
	}
}
