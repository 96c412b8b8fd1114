package ledger

import (
	"context"
	"fmt"
	"sync"

	"ticket-market/models"

	"github.com/shopspring/decimal"
)

// Memory is an in-process ledger for the native unit and any number of tokens.
// It backs development mode and tests.
type Memory struct {
	mu         sync.Mutex
	balances   map[models.Currency]map[string]decimal.Decimal
	allowances map[models.Currency]map[allowanceKey]decimal.Decimal
	rejecting  map[string]bool
}

type allowanceKey struct {
	owner   string
	spender string
}

func NewMemory() *Memory {
	return &Memory{
		balances:   make(map[models.Currency]map[string]decimal.Decimal),
		allowances: make(map[models.Currency]map[allowanceKey]decimal.Decimal),
		rejecting:  make(map[string]bool),
	}
}

func (m *Memory) Provider() Provider {
	return ProviderMemory
}

func (m *Memory) CreateLedger(_ context.Context, token string) (TokenLedger, error) {
	if token == "" {
		return nil, fmt.Errorf("memory ledger: empty token id")
	}
	return m.Token(token), nil
}

// Native returns a channel whose custody account is custody.
func (m *Memory) Native(custody string) NativeChannel {
	return &memoryNative{m: m, custody: custody}
}

func (m *Memory) Token(id string) TokenLedger {
	return &memoryToken{m: m, asset: models.Token(id)}
}

// Mint credits an account out of thin air.
func (m *Memory) Mint(asset models.Currency, account string, amount decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credit(asset, account, amount)
}

func (m *Memory) Approve(token, owner, spender string, amount decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()

	asset := models.Token(token)
	if m.allowances[asset] == nil {
		m.allowances[asset] = make(map[allowanceKey]decimal.Decimal)
	}
	m.allowances[asset][allowanceKey{owner, spender}] = amount
}

// Reject makes every inbound transfer to account fail with ErrRejected.
func (m *Memory) Reject(account string, reject bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejecting[account] = reject
}

func (m *Memory) BalanceOf(asset models.Currency, account string) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[asset][account]
}

func (m *Memory) credit(asset models.Currency, account string, amount decimal.Decimal) {
	if m.balances[asset] == nil {
		m.balances[asset] = make(map[string]decimal.Decimal)
	}
	m.balances[asset][account] = m.balances[asset][account].Add(amount)
}

func (m *Memory) move(asset models.Currency, from, to string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("memory ledger: negative amount %s", amount)
	}
	if amount.IsZero() {
		return nil
	}
	if m.rejecting[to] {
		return fmt.Errorf("%w: %s", ErrRejected, to)
	}
	if m.balances[asset][from].LessThan(amount) {
		return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientBalance, from, m.balances[asset][from], amount)
	}
	m.balances[asset][from] = m.balances[asset][from].Sub(amount)
	m.credit(asset, to, amount)
	return nil
}

type memoryNative struct {
	m       *Memory
	custody string
}

func (n *memoryNative) Receive(_ context.Context, from string, amount decimal.Decimal) error {
	n.m.mu.Lock()
	defer n.m.mu.Unlock()
	return n.m.move(models.Native(), from, n.custody, amount)
}

func (n *memoryNative) Send(_ context.Context, to string, amount decimal.Decimal) error {
	n.m.mu.Lock()
	defer n.m.mu.Unlock()
	return n.m.move(models.Native(), n.custody, to, amount)
}

func (n *memoryNative) Balance(_ context.Context, account string) (decimal.Decimal, error) {
	return n.m.BalanceOf(models.Native(), account), nil
}

type memoryToken struct {
	m     *Memory
	asset models.Currency
}

func (t *memoryToken) BalanceOf(_ context.Context, account string) (decimal.Decimal, error) {
	return t.m.BalanceOf(t.asset, account), nil
}

func (t *memoryToken) Allowance(_ context.Context, owner, spender string) (decimal.Decimal, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	return t.m.allowances[t.asset][allowanceKey{owner, spender}], nil
}

func (t *memoryToken) Transfer(_ context.Context, from, to string, amount decimal.Decimal) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	return t.m.move(t.asset, from, to, amount)
}

func (t *memoryToken) TransferFrom(_ context.Context, spender, from, to string, amount decimal.Decimal) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()

	if amount.IsZero() {
		return nil
	}
	key := allowanceKey{from, spender}
	allowed := t.m.allowances[t.asset][key]
	if allowed.LessThan(amount) {
		return fmt.Errorf("%w: %s allows %s %s, needs %s", ErrInsufficientAllowance, from, spender, allowed, amount)
	}
	if err := t.m.move(t.asset, from, to, amount); err != nil {
		return err
	}
	t.m.allowances[t.asset][key] = allowed.Sub(amount)
	return nil
}
