package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	agentActiveOnly bool
	agentLimit      int
	agentOffset     int
	reportFailure   bool

	servicePrice       string
	serviceDescription string
)

func init() {
	rootCmd.AddCommand(agentCmd, serviceCmd, adminCmd)
	agentCmd.AddCommand(agentRegisterCmd, agentGetCmd, agentListCmd, agentUpdateCmd, agentActivateCmd, agentDeactivateCmd, agentReportCmd)
	serviceCmd.AddCommand(serviceRegisterCmd, serviceEnableCmd, serviceDisableCmd, serviceListCmd, serviceGetCmd)
	adminCmd.AddCommand(adminTransferCmd)

	agentListCmd.Flags().BoolVar(&agentActiveOnly, "active", false, "only list active agents")
	agentListCmd.Flags().IntVar(&agentLimit, "limit", 50, "maximum agents to return")
	agentListCmd.Flags().IntVar(&agentOffset, "offset", 0, "agents to skip")
	agentReportCmd.Flags().BoolVar(&reportFailure, "failure", false, "report a failed transaction instead of a success")

	serviceRegisterCmd.Flags().StringVar(&servicePrice, "price", "0", "price per call")
	serviceRegisterCmd.Flags().StringVar(&serviceDescription, "description", "", "human readable description")
	addAmountFlags(serviceRegisterCmd)
}

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Manage agent identities and reputation",
}

var agentRegisterCmd = &cobra.Command{
	Use:   "register <metadata>",
	Short: "Register the caller as an agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		agent, err := client.RegisterAgent(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, agent)
	},
}

var agentGetCmd = &cobra.Command{
	Use:   "get <address>",
	Short: "Show an agent profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		identity, err := parseAddress("agent", args[0])
		if err != nil {
			return err
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		agent, err := client.Agent(cmd.Context(), identity)
		if err != nil {
			return err
		}
		return printJSON(cmd, agent)
	},
}

var agentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered agents in registration order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		page, err := client.Agents(cmd.Context(), agentActiveOnly, agentLimit, agentOffset)
		if err != nil {
			return err
		}
		return printJSON(cmd, page)
	},
}

var agentUpdateCmd = &cobra.Command{
	Use:   "update <metadata>",
	Short: "Replace the caller's metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		agent, err := client.UpdateMetadata(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, agent)
	},
}

func activeCommand(use, short string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			agent, err := client.SetActive(cmd.Context(), active)
			if err != nil {
				return err
			}
			return printJSON(cmd, agent)
		},
	}
}

var (
	agentActivateCmd   = activeCommand("activate", "Mark the caller's agent active", true)
	agentDeactivateCmd = activeCommand("deactivate", "Mark the caller's agent inactive", false)
)

var agentReportCmd = &cobra.Command{
	Use:   "report <address>",
	Short: "Report a transaction outcome for an agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		identity, err := parseAddress("agent", args[0])
		if err != nil {
			return err
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		agent, err := client.Report(cmd.Context(), identity, !reportFailure)
		if err != nil {
			return err
		}
		return printJSON(cmd, agent)
	},
}

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Publish and browse agent services",
}

var serviceRegisterCmd = &cobra.Command{
	Use:   "register <service-id>",
	Short: "Register or update one of the caller's services",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		price, err := parseAmount(servicePrice, amountDecimals, amountBase)
		if err != nil {
			return err
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		svc, err := client.RegisterService(cmd.Context(), args[0], price, serviceDescription)
		if err != nil {
			return err
		}
		return printJSON(cmd, svc)
	},
}

func availabilityCommand(use, short string, available bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <service-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			svc, err := client.SetServiceAvailability(cmd.Context(), args[0], available)
			if err != nil {
				return err
			}
			return printJSON(cmd, svc)
		},
	}
}

var (
	serviceEnableCmd  = availabilityCommand("enable", "Make a service available", true)
	serviceDisableCmd = availabilityCommand("disable", "Withdraw a service from offer", false)
)

var serviceListCmd = &cobra.Command{
	Use:   "list <address>",
	Short: "List an agent's services",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		identity, err := parseAddress("agent", args[0])
		if err != nil {
			return err
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		services, err := client.Services(cmd.Context(), identity)
		if err != nil {
			return err
		}
		return printJSON(cmd, services)
	},
}

var serviceGetCmd = &cobra.Command{
	Use:   "get <address> <service-id>",
	Short: "Show one service",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		identity, err := parseAddress("agent", args[0])
		if err != nil {
			return err
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		svc, err := client.Service(cmd.Context(), identity, args[1])
		if err != nil {
			return err
		}
		return printJSON(cmd, svc)
	},
}

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Directory administration",
}

var adminTransferCmd = &cobra.Command{
	Use:   "transfer <address>",
	Short: "Hand the directory admin role to another address (admin only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		next, err := parseAddress("admin", args[0])
		if err != nil {
			return err
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		if err := client.TransferAdmin(cmd.Context(), next); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "directory admin transferred to %s\n", next.Hex())
		return nil
	},
}
