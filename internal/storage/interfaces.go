package storage

import (
	"context"
	"database/sql"
	"time"
)

// AccountStore persists accounts and their public keys (§3 Account,
// AccountPublicKey; invariant: at least one active key per account).
type AccountStore interface {
	CreateAccount(ctx context.Context, a Account) (Account, error)
	GetAccount(ctx context.Context, id []byte) (Account, error)
	GetAccountByUsername(ctx context.Context, username string) (Account, error)
	DeleteAccount(ctx context.Context, id []byte) error

	AddPublicKey(ctx context.Context, k AccountPublicKey) (AccountPublicKey, error)
	GetPublicKey(ctx context.Context, pubkey []byte) (AccountPublicKey, error)
	ActiveKeyCount(ctx context.Context, accountID []byte) (int, error)
	DisableKeyTx(ctx context.Context, target []byte, disabledBy []byte) error
}

// ProviderStore persists provider profiles (§3 ProviderProfile, §4.10).
type ProviderStore interface {
	UpsertProfile(ctx context.Context, p ProviderProfile) error
	GetProfile(ctx context.Context, providerPubkey []byte) (ProviderProfile, error)
	SetTrustScore(ctx context.Context, providerPubkey []byte, score int, reasons []string) error
}

// OfferingStore persists offerings and agent pools (§3 Offering, AgentPool).
type OfferingStore interface {
	CreateOffering(ctx context.Context, o Offering) (Offering, error)
	GetOffering(ctx context.Context, providerPubkey []byte, offeringID string) (Offering, error)
	Search(ctx context.Context, filter SearchFilter) ([]Offering, error)

	CreatePool(ctx context.Context, p AgentPool) (AgentPool, error)
	GetPool(ctx context.Context, poolID string) (AgentPool, error)
	DeletePool(ctx context.Context, poolID string) error
	PoolIsEmpty(ctx context.Context, poolID string) (bool, error)
}

// SearchFilter is the parsed form of the §4.10 search DSL.
type SearchFilter struct {
	Clauses []SearchClause
	Limit   int
	Offset  int
}

type SearchClauseOp string

const (
	OpEquals SearchClauseOp = "eq"
	OpRange  SearchClauseOp = "range"
	OpGTE    SearchClauseOp = "gte"
	OpLTE    SearchClauseOp = "lte"
	OpGT     SearchClauseOp = "gt"
	OpLT     SearchClauseOp = "lt"
)

type SearchClause struct {
	Field string
	Op    SearchClauseOp
	Value string
	Lo    string
	Hi    string
}

// AgentStore persists delegations and setup tokens (§3 AgentDelegation,
// SetupToken; §4.4 consume-setup-token transaction).
type AgentStore interface {
	CreateSetupToken(ctx context.Context, t SetupToken) (SetupToken, error)
	ConsumeSetupTokenTx(ctx context.Context, token []byte, agentPubkey []byte, defaultPerms Permission) (AgentDelegation, AgentPool, error)

	GetDelegation(ctx context.Context, agentPubkey []byte) (AgentDelegation, error)
	RevokeDelegation(ctx context.Context, agentPubkey []byte) error

	RecordOrphanSighting(ctx context.Context, agentPubkey []byte, externalID string) (OrphanSighting, error)
	ClearOrphanSighting(ctx context.Context, agentPubkey []byte, externalID string) error
}

// ContractStore persists contracts, their status history, and extensions
// (§3 Contract, ContractStatusHistory, ContractExtension; §4.5).
type ContractStore interface {
	// CreateContractTx inserts the contract row and its "requested" history
	// entry atomically; if contractID already exists it returns the
	// existing row instead (idempotent creation, §4.5/Testable property 3).
	CreateContractTx(ctx context.Context, c Contract) (Contract, created bool, err error)

	GetContract(ctx context.Context, contractID []byte) (Contract, error)
	ListPendingProvision(ctx context.Context, poolID string, location string) ([]Contract, error)
	ListActiveByProvider(ctx context.Context, providerPubkey []byte) ([]Contract, error)
	ListExpiredActive(ctx context.Context, nowNs int64) ([]Contract, error)

	// TransitionTx moves the contract from its current status to newStatus,
	// applying mutate within the same transaction as the status-history
	// insert, and fails InvalidTransition if fromStatus doesn't match the
	// stored row (optimistic concurrency on status).
	TransitionTx(ctx context.Context, contractID []byte, fromStatus, newStatus string, changedBy []byte, memo string, nowNs int64, mutate func(*sql.Tx, *Contract) error) (Contract, error)

	AppendExtensionTx(ctx context.Context, contractID []byte, extensionHours int64, extensionPaymentE9s int64) (Contract, error)

	History(ctx context.Context, contractID []byte) ([]ContractStatusHistoryEntry, error)
}

// LockStore implements the §4.6 provisioning-lock CAS.
type LockStore interface {
	AcquireTx(ctx context.Context, contractID []byte, agentPubkey []byte, ttl time.Duration, nowNs int64) (acquired bool, err error)
	ReleaseTx(ctx context.Context, contractID []byte, agentPubkey []byte) (released bool, err error)
	Get(ctx context.Context, contractID []byte) (ProvisioningLock, bool, error)
}

// EmailStore implements the §4.8 durable email queue.
type EmailStore interface {
	Enqueue(ctx context.Context, e EmailQueueEntry) (EmailQueueEntry, error)
	ListDue(ctx context.Context, backoff func(attempts int) time.Duration, now time.Time, limit int) ([]EmailQueueEntry, error)
	MarkSent(ctx context.Context, id int64, now time.Time) error
	MarkAttemptFailed(ctx context.Context, id int64, lastError string, now time.Time) (EmailQueueEntry, error)
	MarkNotifiedRetry(ctx context.Context, id int64) error
	MarkNotifiedGaveUp(ctx context.Context, id int64) error
	ExpireStalePending(ctx context.Context, olderThan time.Time) (int64, error)
	ResetForManualRetry(ctx context.Context, id int64, now time.Time) error
}

// NotifyStore persists notification events, SLA state, and daily quota
// counters (§3 NotificationEvent, §4.9).
type NotifyStore interface {
	RecordEvent(ctx context.Context, e NotificationEvent) (NotificationEvent, error)
	MarkSLAAlerted(ctx context.Context, messageID string) (alerted bool, err error)

	// PendingBeyondSLA lists notification events still pending whose
	// sla_window_hours has elapsed since creation, not yet alerted.
	PendingBeyondSLA(ctx context.Context, now time.Time) ([]NotificationEvent, error)

	// IncrementQuota atomically bumps the per-day counter and returns the
	// post-increment count, for comparison against the configured limit.
	IncrementQuota(ctx context.Context, accountID []byte, channel string, day time.Time) (int, error)
}

// LedgerStore projects the external append-only ledger feed (§3
// TokenTransfer, §4.11).
type LedgerStore interface {
	IngestTransfersTx(ctx context.Context, transfers []TokenTransfer) error
	Balance(ctx context.Context, principal []byte) (int64, error)
}

// AuditStore implements durable replay protection (§4.3): a SignatureAudit
// row is the record of one verified write, keyed by (public_key, nonce).
type AuditStore interface {
	// CheckAndRecordTx returns ErrReplay if (publicKey, nonce) was already
	// recorded within window; otherwise inserts the row.
	CheckAndRecordTx(ctx context.Context, a SignatureAudit, window time.Duration) error
}
