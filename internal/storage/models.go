// Package storage defines the coordinator's domain model (§3) and the
// per-aggregate store interfaces its services depend on. Concrete
// implementations live in storage/postgres, grounded on the teacher's
// database/sql + lib/pq repository pattern.
package storage

import "time"

type Account struct {
	ID            []byte
	Username      string
	Email         string
	EmailVerified bool
	AuthProvider  string // seed | oauth
	IsAdmin       bool
	Profile       map[string]any
	CreatedAt     time.Time
}

type AccountPublicKey struct {
	ID               int64
	AccountID        []byte
	PublicKey        []byte
	IsActive         bool
	AddedAt          time.Time
	DisabledAt       *time.Time
	DisabledByKeyID  *int64
	DeviceName       string
}

type ProviderProfile struct {
	AccountID           []byte
	DisplayName         string
	Contact             map[string]any
	OnboardingFlags     map[string]any
	TrustScore          int
	HasCriticalFlags    bool
	CriticalFlagReasons []string
	AutoAcceptRentals   bool
	UpdatedAt           time.Time
}

type Offering struct {
	ID                int64
	ProviderPubkey    []byte
	OfferingID        string
	CPUCores          int
	MemoryMB          int
	StorageGB         int
	GPUModel          string
	MonthlyPriceE9s   int64
	Visibility        string // public | private
	StockStatus       string
	DatacenterCountry string
	DatacenterCity    string
	AgentPoolID       string
	ProvisionerType   string
	ProvisionerConfig []byte // opaque JSON
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type AgentPool struct {
	PoolID          string
	ProviderPubkey  []byte
	Name            string
	Location        string
	ProvisionerType string
	CreatedAt       time.Time
}

// Permission is a bit in the agent delegation's permission bitset (§4.4).
type Permission uint32

const (
	PermissionProvision Permission = 1 << iota
	PermissionTerminate
	PermissionReport
	PermissionHeartbeat
)

func (p Permission) Has(flag Permission) bool { return p&flag != 0 }

type AgentDelegation struct {
	AgentPubkey    []byte
	ProviderPubkey []byte
	PoolID         string
	Permissions    Permission
	CreatedAt      time.Time
	RevokedAt      *time.Time
}

func (d AgentDelegation) Active() bool { return d.RevokedAt == nil }

type SetupToken struct {
	Token     []byte
	PoolID    string
	Label     string
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// Contract status values, the vertices of the §4.5 state machine.
const (
	StatusRequested    = "requested"
	StatusPending      = "pending"
	StatusAccepted     = "accepted"
	StatusProvisioning = "provisioning"
	StatusProvisioned  = "provisioned"
	StatusActive       = "active"
	StatusCompleted    = "completed"
	StatusRejected     = "rejected"
	StatusCancelled    = "cancelled"
	StatusTerminated   = "terminated"
)

const (
	PaymentMethodToken  = "token"
	PaymentMethodStripe = "stripe"
	PaymentMethodICPay  = "icpay"
)

type Contract struct {
	ContractID                []byte
	RequesterPubkey           []byte
	ProviderPubkey            []byte
	OfferingID                string
	PaymentAmountE9s          int64
	Currency                  string
	PaymentMethod             string
	PaymentStatus             string
	Status                    string
	DurationHours             int64
	StartTimestampNs          *int64
	EndTimestampNs            *int64
	ProvisioningCompletedAtNs *int64
	RequesterSSHPubkey        string
	RequesterContact          string
	Memo                      string
	StripePaymentIntentID     string
	ICPayIntentID             string
	TaxRateBP                 int
	AgentPoolID               string
	ExternalInstanceID        string
	InstanceDetails           string
	StatusUpdatedAtNs         int64
}

type ContractStatusHistoryEntry struct {
	ID              int64
	ContractID      []byte
	OldStatus       string
	NewStatus       string
	ChangedAtNs     int64
	ChangedByPubkey []byte
	Memo            string
}

type ContractExtension struct {
	ID                  int64
	ContractID          []byte
	ExtensionHours      int64
	ExtensionPaymentE9s int64
	AppliedAt           time.Time
}

type ProvisioningLock struct {
	ContractID   []byte
	AgentPubkey  []byte
	ExpiresAtNs  int64
}

const (
	EmailStatusPending = "pending"
	EmailStatusSent    = "sent"
	EmailStatusFailed  = "failed"
)

// EmailTypeGeneral marks an account-facing notice (delivery retry/gave-up
// warnings, SLA alerts) as opposed to the domain email it concerns.
const EmailTypeGeneral = "general"

type EmailQueueEntry struct {
	ID                  int64
	ToAddr              string
	FromAddr            string
	Subject             string
	Body                string
	IsHTML              bool
	EmailType           string
	Status              string
	Attempts            int
	LastError           string
	CreatedAt           time.Time
	LastAttemptedAt     *time.Time
	SentAt              *time.Time
	RelatedAccountID    []byte
	UserNotifiedRetry   bool
	UserNotifiedGaveUp  bool
}

type NotificationEvent struct {
	ID              int64
	RecipientPubkey []byte
	MessageID       string
	Status          string // pending | sent | skipped
	SLAWindowHours  int
	SLAAlerted      bool
	CreatedAt       time.Time
	ContractID      []byte // the rental thread this message belongs to, if any
	ProviderPubkey  []byte // who the SLA breach alert is sent to
}

type TokenTransfer struct {
	ID               int64
	From             []byte
	To               []byte
	AmountE9s        int64
	FeeE9s           int64
	Memo             string
	BlockTimestampNs int64
	LedgerSeq        int64
}

type SignatureAudit struct {
	ID            int64
	AccountID     []byte
	Action        string
	Payload       []byte
	Signature     []byte
	PublicKey     []byte
	RequestTS     time.Time
	Nonce         []byte
	IsAdminAction bool
}

type OrphanSighting struct {
	AgentPubkey []byte
	ExternalID  string
	FirstSeen   time.Time
}
