package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var addr string

	root := &cobra.Command{
		Use:           "fleetctl",
		Short:         "Control a running fleetd daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	defaultAddr := "http://127.0.0.1:8090"
	if v := os.Getenv("FLEETD_ADDR"); v != "" {
		defaultAddr = v
	}
	root.PersistentFlags().StringVar(&addr, "addr", defaultAddr, "fleetd base URL (defaults FLEETD_ADDR)")

	cli := func() *client { return newClient(addr) }

	statusCmd := &cobra.Command{
		Use:     "status",
		Short:   "Show all services and GPU state",
		Example: "  fleetctl status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli().printFleetStatus(cmd.OutOrStdout())
		},
	}

	startCmd := &cobra.Command{
		Use:     "start <service-id>",
		Short:   "Start a service (subject to GPU admission)",
		Args:    cobra.ExactArgs(1),
		Example: "  fleetctl start comfyui",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli().command(cmd.OutOrStdout(), "/services/"+args[0]+"/start", nil)
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop <service-id>",
		Short: "Stop a service (idempotent)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli().command(cmd.OutOrStdout(), "/services/"+args[0]+"/stop", nil)
		},
	}

	var ensureTimeout int
	ensureCmd := &cobra.Command{
		Use:   "ensure <service-id>",
		Short: "Start a service and wait until it is running",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{}
			if ensureTimeout > 0 {
				body["start_timeout_seconds"] = ensureTimeout
			}
			return cli().command(cmd.OutOrStdout(), "/services/"+args[0]+"/ensure", body)
		},
	}
	ensureCmd.Flags().IntVar(&ensureTimeout, "timeout", 0, "Start timeout in seconds (0 = server default)")

	touchCmd := &cobra.Command{
		Use:   "touch <service-id>",
		Short: "Refresh a service's last-activity timestamp",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli().command(cmd.OutOrStdout(), "/services/"+args[0]+"/activity", nil)
		},
	}

	var keep []string
	stopUnusedCmd := &cobra.Command{
		Use:     "stop-unused",
		Short:   "Stop running GPU services except those kept",
		Example: "  fleetctl stop-unused --keep comfyui",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli().postJSON(cmd.OutOrStdout(), "/services/stop-unused",
				map[string]any{"keep_running": keep})
		},
	}
	stopUnusedCmd.Flags().StringSliceVar(&keep, "keep", nil, "Service ids to keep running")

	var evictAll bool
	vramCmd := &cobra.Command{
		Use:   "vram",
		Short: "Evict loaded models from the model host",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli().postJSON(cmd.OutOrStdout(), "/vram/manage",
				map[string]any{"preserve_embedding": !evictAll})
		},
	}
	vramCmd.Flags().BoolVar(&evictAll, "all", false, "Evict embedding models too")

	gpuCmd := &cobra.Command{
		Use:   "gpu",
		Short: "Show live GPU telemetry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli().getJSON(cmd.OutOrStdout(), "/gpu")
		},
	}

	root.AddCommand(statusCmd, startCmd, stopCmd, ensureCmd, touchCmd, stopUnusedCmd, vramCmd, gpuCmd)
	return root
}
