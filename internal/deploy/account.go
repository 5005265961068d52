package deploy

import (
	"context"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	apperrors "github.com/hashenkooleh/Votes-system/internal/pkg/errors"
)

// AccountLister lists the accounts the node can sign for.
type AccountLister interface {
	Accounts(ctx context.Context) ([]common.Address, error)
}

// AccountResolver picks the deployer account once per run.
type AccountResolver struct {
	node AccountLister
	// Preferred, when set, must be one of the node's accounts.
	Preferred *common.Address
	logger    *slog.Logger
}

// NewAccountResolver creates a resolver that selects the node's first account
// unless preferred is set.
func NewAccountResolver(node AccountLister, preferred *common.Address, logger *slog.Logger) *AccountResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountResolver{node: node, Preferred: preferred, logger: logger}
}

// Accounts returns every account the node exposes.
func (r *AccountResolver) Accounts(ctx context.Context) ([]common.Address, error) {
	accounts, err := r.node.Accounts(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrAccountResolution, "eth_accounts: %w", err)
	}
	return accounts, nil
}

// ResolveDeployer returns the account that signs every transaction of the run.
func (r *AccountResolver) ResolveDeployer(ctx context.Context) (common.Address, error) {
	accounts, err := r.Accounts(ctx)
	if err != nil {
		return common.Address{}, err
	}
	return r.Select(accounts)
}

// Select chooses the deployer from an already fetched account list.
func (r *AccountResolver) Select(accounts []common.Address) (common.Address, error) {
	if len(accounts) == 0 {
		return common.Address{}, apperrors.Wrap(apperrors.ErrAccountResolution, "node exposes no accounts")
	}

	if r.Preferred == nil {
		r.logger.Debug("selected first node account", slog.String("account", accounts[0].Hex()))
		return accounts[0], nil
	}
	for _, account := range accounts {
		if account == *r.Preferred {
			return account, nil
		}
	}
	return common.Address{}, apperrors.Wrap(apperrors.ErrAccountResolution,
		"configured account %s is not managed by the node", r.Preferred.Hex())
}
