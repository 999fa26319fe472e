// Package main provides the CLI entry point for the voxa voice-call gateway.
//
// Start the gateway:
//
//	voxa serve --config voxa.yaml
//
// Reconcile a tenant with the remote voice platform:
//
//	voxa sync full --tenant acme
//	voxa sync status --tenant acme
//
// Place an outbound call:
//
//	voxa call --tenant acme --agent support --to +15551234567
//
// Every config key can be overridden from the environment with the VOXA_
// prefix, for example VOXA_LOG_LEVEL=debug. VOXA_CONFIG names the config file.
package main

import (
	"fmt"
	"os"

	"github.com/harunnryd/voxa/pkg/runner"
	"github.com/spf13/cobra"
)

var (
	commit = "none"
	date   = "unknown"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:   "voxa",
		Short: "voxa - multi-tenant voice agent gateway",
		Long: `voxa answers phone calls on behalf of configured agents.

It receives Vapi and Twilio webhooks, runs each call through the session
state machine, and keeps local phone numbers and agents reconciled with the
remote voice platform.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", runner.Version, commit, date),
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file (or set VOXA_CONFIG)")

	root.AddCommand(
		buildServeCmd(&configPath),
		buildSyncCmd(&configPath),
		buildCallCmd(&configPath),
		buildConfigCmd(&configPath),
	)
	return root
}
