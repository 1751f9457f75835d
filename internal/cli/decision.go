package cli

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

var (
	decisionProof string
	decisionFile  string

	executePayee    string
	executeAsset    string
	executeAmount   string
	executeCategory string

	historyLimit  int
	historyOffset int
	historyNewest bool

	amountDecimals int32
	amountBase     bool
)

func init() {
	rootCmd.AddCommand(decisionCmd, executeCmd, historyCmd)
	decisionCmd.AddCommand(decisionLogCmd, decisionGetCmd, decisionFingerprintCmd)

	decisionLogCmd.Flags().StringVar(&decisionProof, "proof", "", "proof pointer, e.g. ipfs://<cid> (required)")
	decisionLogCmd.Flags().StringVar(&decisionFile, "file", "", "derive the fingerprint as keccak256 of this file")

	executeCmd.Flags().StringVar(&executePayee, "payee", "", "recipient address (required)")
	executeCmd.Flags().StringVar(&executeAsset, "asset", "", "token address, empty for the native asset")
	executeCmd.Flags().StringVar(&executeAmount, "amount", "", "amount to pay (required)")
	executeCmd.Flags().StringVar(&executeCategory, "category", "", "spending category label")
	addAmountFlags(executeCmd)

	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum records to return")
	historyCmd.Flags().IntVar(&historyOffset, "offset", 0, "records to skip")
	historyCmd.Flags().BoolVar(&historyNewest, "newest", false, "newest records first")
}

func addAmountFlags(cmd *cobra.Command) {
	cmd.Flags().Int32Var(&amountDecimals, "decimals", 18, "decimals used to scale human amounts")
	cmd.Flags().BoolVar(&amountBase, "base", false, "amounts are already in base units")
}

var decisionCmd = &cobra.Command{
	Use:   "decision",
	Short: "Record and inspect decision fingerprints",
}

var decisionLogCmd = &cobra.Command{
	Use:   "log [fingerprint]",
	Short: "Record a decision fingerprint with its proof pointer",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var fingerprint common.Hash
		switch {
		case decisionFile != "" && len(args) == 0:
			hash, err := fileFingerprint(decisionFile)
			if err != nil {
				return err
			}
			fingerprint = hash
		case decisionFile == "" && len(args) == 1:
			hash, err := parseFingerprint(args[0])
			if err != nil {
				return err
			}
			fingerprint = hash
		default:
			return fmt.Errorf("provide either a fingerprint argument or --file")
		}
		if decisionProof == "" {
			return fmt.Errorf("--proof is required")
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		decision, err := client.LogDecision(cmd.Context(), fingerprint, decisionProof)
		if err != nil {
			return err
		}
		return printJSON(cmd, decision)
	},
}

var decisionGetCmd = &cobra.Command{
	Use:   "get <fingerprint>",
	Short: "Show a recorded decision",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fingerprint, err := parseFingerprint(args[0])
		if err != nil {
			return err
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		decision, err := client.Decision(cmd.Context(), fingerprint)
		if err != nil {
			return err
		}
		return printJSON(cmd, decision)
	},
}

var decisionFingerprintCmd = &cobra.Command{
	Use:   "fingerprint <file>",
	Short: "Print the keccak256 fingerprint of a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := fileFingerprint(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash.Hex())
		return nil
	},
}

func fileFingerprint(path string) (common.Hash, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return common.Hash{}, fmt.Errorf("read %s: %w", path, err)
	}
	return crypto.Keccak256Hash(data), nil
}

var executeCmd = &cobra.Command{
	Use:   "execute <fingerprint>",
	Short: "Pay out against a logged decision",
	Long:  "Verifies the fingerprint, checks the spending limit and pays the payee. The caller must be the vault controller.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fingerprint, err := parseFingerprint(args[0])
		if err != nil {
			return err
		}
		payee, err := parseAddress("--payee", executePayee)
		if err != nil {
			return err
		}
		asset, err := parseAsset(executeAsset)
		if err != nil {
			return err
		}
		amount, err := parseAmount(executeAmount, amountDecimals, amountBase)
		if err != nil {
			return err
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		receipt, err := client.Execute(cmd.Context(), fingerprint, payee, asset, amount, executeCategory)
		if err != nil {
			return err
		}
		return printJSON(cmd, receipt)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List executed payouts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		page, err := client.History(cmd.Context(), historyLimit, historyOffset, historyNewest)
		if err != nil {
			return err
		}
		return printJSON(cmd, page)
	},
}
