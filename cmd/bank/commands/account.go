package commands

import (
	"context"
	"errors"

	"github.com/fergusinlondon/actorstage/proxy"
	"github.com/fergusinlondon/actorstage/rtlog"
	"github.com/fergusinlondon/actorstage/runtime"
)

// ErrInsufficientFunds is returned by Withdraw when the requested amount
// exceeds the account's current balance. It fails the invocation: the
// caller's future gets the error, and the account's mailbox is suspended
// and the failure routed to supervision.
var ErrInsufficientFunds = errors.New("bank: insufficient funds")

// AccountProtocol builds Account actors, each opened with a starting
// balance passed as the first spawn parameter.
type AccountProtocol struct{}

func (AccountProtocol) TypeName() string { return "bank.account" }

func (AccountProtocol) Instantiate(env *runtime.Environment, params []any) (runtime.Actor, error) {
	a := &Account{}
	runtime.BindEnvironment(a, env)
	if len(params) > 0 {
		a.openingBalance = params[0].(int64)
	}
	a.balance = a.openingBalance
	return a, nil
}

// Account is a single bank account actor. Its balance lives entirely in
// process memory: a restart reopens the account at its original balance,
// discarding whatever it held at the moment of failure.
type Account struct {
	runtime.Base
	openingBalance int64
	balance        int64
	restarts       int
}

func (a *Account) BeforeStart(ctx context.Context) error {
	a.Environment().Logger().Info("account opened",
		rtlog.Int64("opening_balance", a.openingBalance))
	return nil
}

func (a *Account) AfterRestart(ctx context.Context, cause error) {
	a.restarts++
	a.Environment().Logger().Warn("account restarted after overdraft",
		rtlog.Err(cause), rtlog.Int("restarts", a.restarts))
}

// AccountProxy is the typed façade callers hold instead of the raw
// Environment.
type AccountProxy struct{ proxy.Base }

func NewAccountProxy(env *runtime.Environment) AccountProxy {
	return AccountProxy{Base: proxy.NewBase(env)}
}

func (p AccountProxy) Deposit(amount int64) proxy.Future {
	return p.Invoke("bank.account.Deposit", func(actor any) (any, error) {
		acc := actor.(*Account)
		acc.balance += amount
		return acc.balance, nil
	})
}

func (p AccountProxy) Withdraw(amount int64) proxy.Future {
	return p.Invoke("bank.account.Withdraw", func(actor any) (any, error) {
		acc := actor.(*Account)
		if amount > acc.balance {
			return nil, ErrInsufficientFunds
		}
		acc.balance -= amount
		return acc.balance, nil
	})
}

func (p AccountProxy) Balance() proxy.Future {
	return p.Invoke("bank.account.Balance", func(actor any) (any, error) {
		return actor.(*Account).balance, nil
	})
}
