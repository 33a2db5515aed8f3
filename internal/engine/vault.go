package engine

import (
	"context"
	"fmt"

	"keeper-vault/internal/domain"
	"keeper-vault/internal/events"
	"keeper-vault/internal/observability"
	"keeper-vault/internal/policy"
	"keeper-vault/internal/solana"
)

// Deposit moves amount of class from the owner's external account into the vault.
func (e *Engine) Deposit(ctx context.Context, caller, owner solana.PublicKey, class domain.VaultClass, amount uint64) (*domain.Account, error) {
	if _, err := domain.ParseVaultClass(string(class)); err != nil {
		return nil, e.reject("deposit", err)
	}

	var pulled bool
	acct, err := e.accounts.Update(ctx, owner, func(a *domain.Account) error {
		if err := requireOwner(a, caller); err != nil {
			return err
		}
		if amount == 0 {
			return fmt.Errorf("%w: deposit amount must be positive", domain.ErrInsufficientBalance)
		}
		next, err := policy.CheckedAddU64(a.Vaults.Balance(class), amount)
		if err != nil {
			return err
		}
		if err := e.custodian.Pull(ctx, class, caller, amount); err != nil {
			return fmt.Errorf("pull %s: %w", class, err)
		}
		pulled = true
		a.Vaults.Set(class, next)
		return nil
	})
	if err != nil {
		if pulled {
			// The record did not commit; hand the pulled funds back.
			if perr := e.custodian.Push(context.WithoutCancel(ctx), class, caller, amount); perr != nil {
				e.logger.Printf("return deposit owner=%s vault=%s amount=%d failed: %v", owner, class, amount, perr)
			}
		}
		return nil, e.reject("deposit", err)
	}

	observability.RecordTransfer(string(class), "deposit")
	e.logger.Printf("deposit owner=%s vault=%s amount=%d balance=%d", owner, class, amount, acct.Vaults.Balance(class))

	ev := events.New(domain.EventDepositMade, owner, e.clock().Unix())
	ev.VaultType = string(class)
	ev.Amount = amount
	e.publish(ctx, ev)
	return acct, nil
}

// Withdraw moves amount of class from the vault to the owner's external account.
// The fee pool can only release lamports above the reserve. The vault is
// debited first; a failed transfer credits it back.
func (e *Engine) Withdraw(ctx context.Context, caller, owner solana.PublicKey, class domain.VaultClass, amount uint64) (*domain.Account, error) {
	if _, err := domain.ParseVaultClass(string(class)); err != nil {
		return nil, e.reject("withdraw", err)
	}

	acct, err := e.accounts.Update(ctx, owner, func(a *domain.Account) error {
		if err := requireOwner(a, caller); err != nil {
			return err
		}
		if amount == 0 {
			return fmt.Errorf("%w: withdrawal amount must be positive", domain.ErrInsufficientBalance)
		}

		balance := a.Vaults.Balance(class)
		if class == domain.VaultFeePool {
			if spendable := policy.Spendable(balance, e.FeePoolReserve()); spendable < amount {
				return fmt.Errorf("%w: spendable %d, requested %d", domain.ErrInsufficientFeePool, spendable, amount)
			}
		} else if balance < amount {
			return fmt.Errorf("%w: %s vault holds %d, requested %d", domain.ErrInsufficientBalance, class, balance, amount)
		}

		a.Vaults.Set(class, balance-amount)
		return nil
	})
	if err != nil {
		return nil, e.reject("withdraw", err)
	}

	// The debit is committed before value leaves custody.
	if err := e.custodian.Push(context.WithoutCancel(ctx), class, caller, amount); err != nil {
		e.restore(context.WithoutCancel(ctx), owner, class, amount)
		return nil, e.reject("withdraw", fmt.Errorf("push %s: %w", class, err))
	}

	observability.RecordTransfer(string(class), "withdraw")
	e.logger.Printf("withdraw owner=%s vault=%s amount=%d balance=%d", owner, class, amount, acct.Vaults.Balance(class))

	ev := events.New(domain.EventWithdrawalMade, owner, e.clock().Unix())
	ev.VaultType = string(class)
	ev.Amount = amount
	e.publish(ctx, ev)
	return acct, nil
}
