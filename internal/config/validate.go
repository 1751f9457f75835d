package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"AgentVault/pkg/units"
)

// TokenLimit 是解析后的代币额度。
type TokenLimit struct {
	Asset common.Address
	Limit *uint256.Int
}

// Validate 检查地址与金额格式，所有问题一次性返回。
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Driver {
	case "memory":
	case "sqlite", "mysql":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			errs = append(errs, fmt.Errorf("storage.dsn 不能为空 (driver=%s)", c.Storage.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("不支持的 storage.driver: %s", c.Storage.Driver))
	}

	switch strings.ToLower(c.Auth.Mode) {
	case "header", "signature":
	default:
		errs = append(errs, fmt.Errorf("不支持的 auth.mode: %s", c.Auth.Mode))
	}

	if c.Ledger.Controller != "" && !common.IsHexAddress(c.Ledger.Controller) {
		errs = append(errs, fmt.Errorf("ledger.controller 不是合法地址: %s", c.Ledger.Controller))
	}
	if c.Directory.Admin != "" && !common.IsHexAddress(c.Directory.Admin) {
		errs = append(errs, fmt.Errorf("directory.admin 不是合法地址: %s", c.Directory.Admin))
	}
	if _, err := units.ParseEther(c.Ledger.DefaultNativeLimit); err != nil {
		errs = append(errs, fmt.Errorf("ledger.default_native_limit: %w", err))
	}
	if c.Ledger.InitialDeposit != "" {
		if _, err := units.ParseEther(c.Ledger.InitialDeposit); err != nil {
			errs = append(errs, fmt.Errorf("ledger.initial_deposit: %w", err))
		}
	}
	if _, err := c.Ledger.Tokens(); err != nil {
		errs = append(errs, err)
	}

	switch strings.ToLower(c.Directory.ReputationReporting) {
	case "open", "gated":
	default:
		errs = append(errs, fmt.Errorf("不支持的 directory.reputation_reporting: %s", c.Directory.ReputationReporting))
	}

	for _, sink := range c.Events.Sinks {
		switch strings.ToLower(sink) {
		case "log", "none":
		case "redis":
			if c.Events.Redis.Address == "" {
				errs = append(errs, errors.New("events.redis.address 不能为空"))
			}
		case "rabbitmq":
			if c.Events.RabbitMQ.URL == "" {
				errs = append(errs, errors.New("events.rabbitmq.url 不能为空"))
			}
		default:
			errs = append(errs, fmt.Errorf("不支持的事件目标: %s", sink))
		}
	}

	return errors.Join(errs...)
}

// ControllerAddress 返回配置的控制者地址，未配置时为零地址。
func (c LedgerConfig) ControllerAddress() common.Address {
	return common.HexToAddress(c.Controller)
}

// NativeLimit 返回以 wei 表示的默认原生资产额度。
func (c LedgerConfig) NativeLimit() (*uint256.Int, error) {
	return units.ParseEther(c.DefaultNativeLimit)
}

// Deposit 返回启动时注入的原生资产余额，未配置时为 nil。
func (c LedgerConfig) Deposit() (*uint256.Int, error) {
	if strings.TrimSpace(c.InitialDeposit) == "" {
		return nil, nil
	}
	return units.ParseEther(c.InitialDeposit)
}

// Tokens 解析预置的代币额度。
func (c LedgerConfig) Tokens() ([]TokenLimit, error) {
	out := make([]TokenLimit, 0, len(c.TokenLimits))
	for i, t := range c.TokenLimits {
		if !common.IsHexAddress(t.Asset) || common.HexToAddress(t.Asset) == (common.Address{}) {
			return nil, fmt.Errorf("ledger.token_limits[%d].asset 不是合法代币地址: %s", i, t.Asset)
		}
		limit, err := units.Parse(t.Limit, t.Decimals)
		if err != nil {
			return nil, fmt.Errorf("ledger.token_limits[%d].limit: %w", i, err)
		}
		out = append(out, TokenLimit{Asset: common.HexToAddress(t.Asset), Limit: limit})
	}
	return out, nil
}

// AdminAddress 返回配置的目录管理员，未配置时回退到金库控制者。
func (c *Config) AdminAddress() common.Address {
	if c.Directory.Admin != "" {
		return common.HexToAddress(c.Directory.Admin)
	}
	return c.Ledger.ControllerAddress()
}
