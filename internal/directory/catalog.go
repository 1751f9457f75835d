package directory

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	xerrors "AgentVault/internal/errors"
	"AgentVault/internal/events"
	"AgentVault/pkg/logger"
)

// ServiceCatalog 维护每个代理名下的服务条目。
type ServiceCatalog struct {
	*core
}

// Register 为已登记的 caller 新增或覆盖一项服务，覆盖后总是可用。
func (c *ServiceCatalog) Register(ctx context.Context, caller common.Address, serviceID string, price *uint256.Int, description string) (svc Service, err error) {
	defer c.observe("register_service", &err)

	serviceID = strings.TrimSpace(serviceID)
	err = c.store.Atomic(ctx, func(tx Tx) error {
		if _, err := requireAgent(tx, caller); err != nil {
			return err
		}
		if serviceID == "" {
			return xerrors.New(xerrors.CodeInvalidArgument, "service id is required", xerrors.WithMetadata("field", "service_id"))
		}
		if utf8.RuneCountInString(serviceID) > MaxServiceIDLength {
			return xerrors.New(xerrors.CodeInvalidArgument,
				"service id exceeds "+strconv.Itoa(MaxServiceIDLength)+" characters",
				xerrors.WithMetadata("field", "service_id"))
		}
		if len(description) > MaxDescriptionLength {
			return xerrors.New(xerrors.CodeInvalidArgument,
				"description exceeds "+strconv.Itoa(MaxDescriptionLength)+" bytes",
				xerrors.WithMetadata("field", "description"))
		}
		svc = Service{
			Agent:       caller,
			ServiceID:   serviceID,
			Description: description,
			Available:   true,
			UpdatedAt:   c.now(),
		}
		if price != nil {
			svc.Price = *price
		}
		return tx.PutService(svc)
	})
	if err != nil {
		return Service{}, err
	}

	logger.Audit().Info("service registered",
		slog.String("identity", caller.Hex()),
		slog.String("service_id", serviceID),
		slog.String("price", svc.Price.Dec()))
	c.emit(ctx, events.New(events.KindServiceRegistered, caller.Hex(), map[string]string{
		"service_id": serviceID,
		"price":      svc.Price.Dec(),
	}))
	return svc, nil
}

// SetAvailability 修改 caller 自己名下服务的可用状态。
func (c *ServiceCatalog) SetAvailability(ctx context.Context, caller common.Address, serviceID string, available bool) (err error) {
	defer c.observe("set_service_availability", &err)

	serviceID = strings.TrimSpace(serviceID)
	err = c.store.Atomic(ctx, func(tx Tx) error {
		if _, err := requireAgent(tx, caller); err != nil {
			return err
		}
		svc, ok, err := tx.Service(caller, serviceID)
		if err != nil {
			return err
		}
		if !ok {
			return serviceNotFound(caller, serviceID)
		}
		svc.Available = available
		svc.UpdatedAt = c.now()
		return tx.PutService(svc)
	})
	if err != nil {
		return err
	}

	logger.Audit().Info("service availability changed",
		slog.String("identity", caller.Hex()),
		slog.String("service_id", serviceID),
		slog.Bool("available", available))
	c.emit(ctx, events.New(events.KindServiceAvailabilityChanged, caller.Hex(), map[string]string{
		"service_id": serviceID,
		"available":  strconv.FormatBool(available),
	}))
	return nil
}

// Get 返回单个服务条目。
func (c *ServiceCatalog) Get(ctx context.Context, identity common.Address, serviceID string) (Service, error) {
	var out Service
	err := c.store.View(ctx, func(tx ReadTx) error {
		svc, ok, err := tx.Service(identity, strings.TrimSpace(serviceID))
		if err != nil {
			return err
		}
		if !ok {
			return serviceNotFound(identity, serviceID)
		}
		out = svc
		return nil
	})
	return out, err
}

// List 按服务 ID 排序返回代理名下的全部服务。
func (c *ServiceCatalog) List(ctx context.Context, identity common.Address) ([]Service, error) {
	var out []Service
	err := c.store.View(ctx, func(tx ReadTx) error {
		if _, err := requireAgent(tx, identity); err != nil {
			return err
		}
		services, err := tx.Services(identity)
		out = services
		return err
	})
	return out, err
}

func serviceNotFound(identity common.Address, serviceID string) error {
	return xerrors.New(CodeServiceNotFound,
		"service "+serviceID+" not found for "+identity.Hex(),
		xerrors.WithMetadata("identity", identity.Hex()),
		xerrors.WithMetadata("service_id", serviceID))
}
