// Package cli implements agentvaultctl, the operator command line for the
// AgentVault API.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"AgentVault/pkg/units"
	"AgentVault/sdk/go/agentvault"
)

const defaultURL = "http://127.0.0.1:8080"

var (
	flagURL     string
	flagAddress string
	flagKey     string
)

var rootCmd = &cobra.Command{
	Use:           "agentvaultctl",
	Short:         "Operate an AgentVault decision ledger and agent directory",
	Long:          "Talks to agentvaultd over REST. Callers are identified by --address (header mode) or sign requests with --key (signature mode).",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagURL, "url", "", "API base URL (env: AGENTVAULT_URL)")
	rootCmd.PersistentFlags().StringVar(&flagAddress, "address", "", "caller address sent as X-Agent-Address (env: AGENTVAULT_ADDRESS)")
	rootCmd.PersistentFlags().StringVar(&flagKey, "key", "", "hex private key used to sign requests (env: AGENTVAULT_KEY)")
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "agentvaultctl: %v\n", err)
		os.Exit(1)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func newClient() (*agentvault.Client, error) {
	baseURL := firstNonEmpty(flagURL, os.Getenv("AGENTVAULT_URL"), defaultURL)

	var opts []agentvault.Option
	if key := firstNonEmpty(flagKey, os.Getenv("AGENTVAULT_KEY")); key != "" {
		priv, err := crypto.HexToECDSA(strings.TrimPrefix(key, "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid --key: %w", err)
		}
		opts = append(opts, agentvault.WithKey(priv))
	} else if addr := firstNonEmpty(flagAddress, os.Getenv("AGENTVAULT_ADDRESS")); addr != "" {
		parsed, err := parseAddress("--address", addr)
		if err != nil {
			return nil, err
		}
		opts = append(opts, agentvault.WithAddress(parsed))
	}
	return agentvault.NewClient(baseURL, opts...)
}

func parseAddress(name, value string) (common.Address, error) {
	value = strings.TrimSpace(value)
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("%s: %q is not a hex address", name, value)
	}
	return common.HexToAddress(value), nil
}

// parseAsset 空值表示原生资产。
func parseAsset(value string) (common.Address, error) {
	if strings.TrimSpace(value) == "" {
		return common.Address{}, nil
	}
	return parseAddress("--asset", value)
}

func parseFingerprint(value string) (common.Hash, error) {
	raw, err := hexutil.Decode(strings.TrimSpace(value))
	if err != nil || len(raw) != common.HashLength {
		return common.Hash{}, fmt.Errorf("fingerprint %q must be 0x followed by 64 hex characters", value)
	}
	return common.BytesToHash(raw), nil
}

// parseAmount reads a human decimal such as "0.5" scaled by decimals, or a
// raw base unit integer when base is set.
func parseAmount(value string, decimals int32, base bool) (*uint256.Int, error) {
	if base {
		return units.ParseBase(value)
	}
	return units.Parse(value, decimals)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
