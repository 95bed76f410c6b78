package httpapi

import (
	"time"

	"github.com/aethermarket/coordinator/internal/logging"
	"github.com/aethermarket/coordinator/internal/services/accounts"
	"github.com/aethermarket/coordinator/internal/services/agents"
	"github.com/aethermarket/coordinator/internal/services/contracts"
	"github.com/aethermarket/coordinator/internal/services/locks"
	"github.com/aethermarket/coordinator/internal/services/notify"
	"github.com/aethermarket/coordinator/internal/services/offerings"
	"github.com/aethermarket/coordinator/internal/storage"
)

// Handler bundles every service the REST surface dispatches to,
// mirroring the teacher's handler{app *app.Application, ...} shape.
type Handler struct {
	accounts      *accounts.Service
	providers     storage.ProviderStore
	offerings     *offerings.Service
	agentsSvc     *agents.Service
	contracts     *contracts.Service
	contractStore storage.ContractStore
	locks         *locks.Manager
	notify        *notify.Service
	audit         storage.AuditStore
	log           *logging.Logger

	trustAggregator offerings.Aggregator

	clockSkew         time.Duration
	replayWindow      time.Duration
	baseHeartbeatSecs int
}

// Deps is everything the router needs to wire the Handler and its auth
// gates; it exists so NewRouter's signature stays short as dependencies grow.
type Deps struct {
	Accounts          *accounts.Service
	Providers         storage.ProviderStore
	Offerings         *offerings.Service
	Agents            *agents.Service
	Contracts         *contracts.Service
	ContractStore     storage.ContractStore
	Locks             *locks.Manager
	Notify            *notify.Service
	Audit             storage.AuditStore
	Log               *logging.Logger
	TrustAggregator   offerings.Aggregator
	ClockSkew         time.Duration
	ReplayWindow      time.Duration
	BaseHeartbeatSecs int
}

func newHandler(d Deps) *Handler {
	if d.BaseHeartbeatSecs <= 0 {
		d.BaseHeartbeatSecs = 60
	}
	return &Handler{
		accounts:          d.Accounts,
		providers:         d.Providers,
		offerings:         d.Offerings,
		agentsSvc:         d.Agents,
		contracts:         d.Contracts,
		contractStore:     d.ContractStore,
		locks:             d.Locks,
		notify:            d.Notify,
		audit:             d.Audit,
		log:               d.Log,
		trustAggregator:   d.TrustAggregator,
		clockSkew:         d.ClockSkew,
		replayWindow:      d.ReplayWindow,
		baseHeartbeatSecs: d.BaseHeartbeatSecs,
	}
}
