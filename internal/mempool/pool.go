// Package mempool implements the pending-transaction pool and the
// ingestion worker that admits raw submissions into it.
package mempool

import (
	"sort"
	"sync"

	"github.com/certen/kernel/internal/types"
)

// AddOutcome classifies the result of Mempool.Add.
type AddOutcome uint8

const (
	// AddReady means the transaction's nonce matches the account's next
	// committed nonce and it is immediately selectable.
	AddReady AddOutcome = iota
	// AddFuture means the transaction's nonce is ahead of the account's
	// committed nonce; it waits for its predecessors to land.
	AddFuture
	// AddRejected means the transaction cannot enter the pool at all.
	AddRejected
)

// AddResult is the outcome of an Add call; Reason is populated only
// for AddRejected.
type AddResult struct {
	Outcome AddOutcome
	Reason  string
}

type entry struct {
	tx      *types.ChainTransaction
	hash    [32]byte
	account types.AccountId
	nonce   uint64
	hasAcct bool
}

// Mempool holds pending transactions keyed by canonical hash, indexed
// by (account, nonce) for ordered per-account admission.
type Mempool struct {
	mu sync.Mutex

	byHash    map[[32]byte]*entry
	byAccount map[types.AccountId]map[uint64][32]byte
}

// New returns an empty mempool.
func New() *Mempool {
	return &Mempool{
		byHash:    make(map[[32]byte]*entry),
		byAccount: make(map[types.AccountId]map[uint64][32]byte),
	}
}

// Add inserts tx under hash. account/nonce, if present, gate admission
// against committedNonce: a nonce below it is stale and rejected, a
// nonce equal to it is Ready, anything higher is Future. Transactions
// with no account/nonce pair (e.g. semantic aggregates) are always
// Ready.
func (m *Mempool) Add(tx *types.ChainTransaction, hash [32]byte, account *types.AccountId, nonce uint64, committedNonce uint64) AddResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byHash[hash]; exists {
		return AddResult{Outcome: AddRejected, Reason: "duplicate transaction hash"}
	}

	e := &entry{tx: tx, hash: hash}
	if account != nil {
		if nonce < committedNonce {
			return AddResult{Outcome: AddRejected, Reason: "nonce already committed"}
		}
		if existing, ok := m.byAccount[*account][nonce]; ok && existing != hash {
			return AddResult{Outcome: AddRejected, Reason: "nonce slot already occupied"}
		}
		e.account = *account
		e.nonce = nonce
		e.hasAcct = true

		if m.byAccount[*account] == nil {
			m.byAccount[*account] = make(map[uint64][32]byte)
		}
		m.byAccount[*account][nonce] = hash
	}

	m.byHash[hash] = e

	if !e.hasAcct || nonce == committedNonce {
		return AddResult{Outcome: AddReady}
	}
	return AddResult{Outcome: AddFuture}
}

// ContainsAccount reports whether any pending transaction belongs to
// acc.
func (m *Mempool) ContainsAccount(acc types.AccountId) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byAccount[acc]
	return ok
}

// RemoveByHash drops a transaction from the pool, e.g. after it lands
// in a block or its batch times out.
func (m *Mempool) RemoveByHash(hash [32]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byHash[hash]
	if !ok {
		return
	}
	delete(m.byHash, hash)
	if e.hasAcct {
		if slots, ok := m.byAccount[e.account]; ok {
			delete(slots, e.nonce)
			if len(slots) == 0 {
				delete(m.byAccount, e.account)
			}
		}
	}
}

// PendingAccounts returns every account with at least one pending
// transaction, for callers (the orchestrator) that need to resolve
// committed nonces ahead of a SelectTransactions call.
func (m *Mempool) PendingAccounts() []types.AccountId {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.AccountId, 0, len(m.byAccount))
	for acc := range m.byAccount {
		out = append(out, acc)
	}
	return out
}

// Len reports the number of pending transactions.
func (m *Mempool) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byHash)
}

// SelectTransactions returns every Ready transaction, ordered by
// (account, nonce) ascending across accounts, up to gasBudget
// transactions (the kernel has no fine-grained gas metering of its
// own, so gasBudget bounds transaction count). committedNonces
// supplies the caller's current view of each account's next nonce.
// Within a single account, consecutive pending nonces starting at its
// committed nonce are all Ready — selecting one logically advances
// that account's next-expected nonce for the rest of this call, so a
// run of back-to-back pending nonces is not held up by a static
// snapshot.
func (m *Mempool) SelectTransactions(gasBudget int, committedNonces map[types.AccountId]uint64) []*types.ChainTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	accounts := make([]types.AccountId, 0, len(m.byAccount))
	for acc := range m.byAccount {
		accounts = append(accounts, acc)
	}
	sort.Slice(accounts, func(i, j int) bool { return lessAccount(accounts[i], accounts[j]) })

	out := make([]*types.ChainTransaction, 0, gasBudget)
	for _, acc := range accounts {
		next := committedNonces[acc]
		for len(out) < gasBudget {
			hash, ok := m.byAccount[acc][next]
			if !ok {
				break
			}
			out = append(out, m.byHash[hash].tx)
			next++
		}
		if len(out) >= gasBudget {
			break
		}
	}

	for _, e := range m.byHash {
		if len(out) >= gasBudget {
			break
		}
		if !e.hasAcct {
			out = append(out, e.tx)
		}
	}
	return out
}

func lessAccount(a, b types.AccountId) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
