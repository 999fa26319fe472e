package main

import (
	"time"

	"github.com/spf13/cobra"
)

func buildServeCmd(configPath *string) *cobra.Command {
	var drainTimeout time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook gateway",
		Long: `Start the webhook gateway with every configured provider.

Providers without credentials are skipped. SIGINT or SIGTERM stops accepting
requests and drains in-flight calls before exiting.`,
		Example: `  voxa serve
  voxa serve --config /etc/voxa/production.yaml --drain-timeout 30s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), resolveConfigPath(*configPath), drainTimeout)
		},
	}
	cmd.Flags().DurationVar(&drainTimeout, "drain-timeout", 15*time.Second, "How long to wait for in-flight work on shutdown")
	return cmd
}

// syncActions maps a sync subcommand to the reconcile step it runs.
var syncActions = []struct {
	name  string
	short string
}{
	{"full", "Run every reconcile step in order"},
	{"status", "Compare local and remote counts"},
	{"phones-in", "Import phone numbers from the remote platform"},
	{"phones-out", "Push local phone numbers to the remote platform"},
	{"assistants-in", "Import remote assistants as agents"},
	{"agents-out", "Push local agents to the remote platform"},
}

func buildSyncCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile a tenant with the remote voice platform",
	}
	for _, action := range syncActions {
		action := action
		var tenant string
		sub := &cobra.Command{
			Use:   action.name,
			Short: action.short,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runSync(cmd.Context(), cmd.OutOrStdout(), resolveConfigPath(*configPath), action.name, tenant)
			},
		}
		sub.Flags().StringVarP(&tenant, "tenant", "t", "", "Tenant to reconcile")
		_ = sub.MarkFlagRequired("tenant")
		cmd.AddCommand(sub)
	}
	return cmd
}

func buildCallCmd(configPath *string) *cobra.Command {
	var tenant, agent, to string
	var vars map[string]string
	cmd := &cobra.Command{
		Use:   "call",
		Short: "Place an outbound call",
		Example: `  voxa call --tenant acme --agent support --to +15551234567
  voxa call -t acme -a support --to +15551234567 --var name=Dana`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(cmd.Context(), cmd.OutOrStdout(), resolveConfigPath(*configPath), tenant, agent, to, vars)
		},
	}
	cmd.Flags().StringVarP(&tenant, "tenant", "t", "", "Tenant placing the call")
	cmd.Flags().StringVarP(&agent, "agent", "a", "", "Agent that handles the call")
	cmd.Flags().StringVar(&to, "to", "", "Destination number in E.164 form")
	cmd.Flags().StringToStringVar(&vars, "var", nil, "Customer data passed to the agent (key=value)")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("agent")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func buildConfigCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfig(cmd.OutOrStdout(), resolveConfigPath(*configPath))
		},
	}
}
