package cli

import (
	"github.com/spf13/cobra"
)

var vaultAsset string

func init() {
	rootCmd.AddCommand(limitCmd, vaultCmd)
	limitCmd.AddCommand(limitGetCmd, limitSetCmd, limitResetCmd)
	vaultCmd.AddCommand(vaultStatusCmd, vaultPauseCmd, vaultUnpauseCmd, vaultWithdrawCmd, vaultDepositCmd, vaultTransferCmd)

	for _, cmd := range []*cobra.Command{limitGetCmd, limitSetCmd, limitResetCmd, vaultWithdrawCmd, vaultDepositCmd} {
		cmd.Flags().StringVar(&vaultAsset, "asset", "", "token address, empty for the native asset")
	}
	for _, cmd := range []*cobra.Command{limitSetCmd, vaultWithdrawCmd, vaultDepositCmd} {
		addAmountFlags(cmd)
	}
}

var limitCmd = &cobra.Command{
	Use:   "limit",
	Short: "Inspect and configure per-asset spending limits",
}

var limitGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the spending limit of an asset",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		asset, err := parseAsset(vaultAsset)
		if err != nil {
			return err
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		limit, err := client.Limit(cmd.Context(), asset)
		if err != nil {
			return err
		}
		return printJSON(cmd, limit)
	},
}

var limitSetCmd = &cobra.Command{
	Use:   "set <amount>",
	Short: "Set the spending limit of an asset (controller only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asset, err := parseAsset(vaultAsset)
		if err != nil {
			return err
		}
		amount, err := parseAmount(args[0], amountDecimals, amountBase)
		if err != nil {
			return err
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		limit, err := client.SetLimit(cmd.Context(), asset, amount)
		if err != nil {
			return err
		}
		return printJSON(cmd, limit)
	},
}

var limitResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the spent counter of an asset (controller only)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		asset, err := parseAsset(vaultAsset)
		if err != nil {
			return err
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		limit, err := client.ResetSpent(cmd.Context(), asset)
		if err != nil {
			return err
		}
		return printJSON(cmd, limit)
	},
}

var vaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Inspect and operate the execution vault",
}

var vaultStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show controller, pause flag and native balance",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		status, err := client.Vault(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, status)
	},
}

func pauseCommand(use, short string, paused bool) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			status, err := client.SetPaused(cmd.Context(), paused)
			if err != nil {
				return err
			}
			return printJSON(cmd, status)
		},
	}
}

var (
	vaultPauseCmd   = pauseCommand("pause", "Stop all executions (controller only)", true)
	vaultUnpauseCmd = pauseCommand("unpause", "Resume executions (controller only)", false)
)

var vaultWithdrawCmd = &cobra.Command{
	Use:   "withdraw <amount>",
	Short: "Move vault funds to the controller's payouts (controller only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asset, err := parseAsset(vaultAsset)
		if err != nil {
			return err
		}
		amount, err := parseAmount(args[0], amountDecimals, amountBase)
		if err != nil {
			return err
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		balance, err := client.Withdraw(cmd.Context(), asset, amount)
		if err != nil {
			return err
		}
		return printJSON(cmd, balance)
	},
}

var vaultDepositCmd = &cobra.Command{
	Use:   "deposit <amount>",
	Short: "Credit funds to the vault",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asset, err := parseAsset(vaultAsset)
		if err != nil {
			return err
		}
		amount, err := parseAmount(args[0], amountDecimals, amountBase)
		if err != nil {
			return err
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		balance, err := client.Deposit(cmd.Context(), asset, amount)
		if err != nil {
			return err
		}
		return printJSON(cmd, balance)
	},
}

var vaultTransferCmd = &cobra.Command{
	Use:   "transfer <address>",
	Short: "Hand the controller role to another address (controller only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		next, err := parseAddress("controller", args[0])
		if err != nil {
			return err
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		status, err := client.TransferOwnership(cmd.Context(), next)
		if err != nil {
			return err
		}
		return printJSON(cmd, status)
	},
}
