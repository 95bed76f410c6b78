package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/aethermarket/coordinator/internal/storage"
)

// ErrInvalidTransition signals that the contract's current status no
// longer matches the caller's expected fromStatus (§4.5: "A state
// transition not in the table must be rejected").
var ErrInvalidTransition = errors.New("postgres: invalid contract state transition")

type ContractStore struct {
	db *sql.DB
}

func NewContractStore(db *sql.DB) *ContractStore { return &ContractStore{db: db} }

const contractColumns = `contract_id, requester_pubkey, provider_pubkey, offering_id, payment_amount_e9s,
	currency, payment_method, payment_status, status, duration_hours, start_timestamp_ns, end_timestamp_ns,
	provisioning_completed_at_ns, COALESCE(requester_ssh_pubkey,''), COALESCE(requester_contact,''),
	COALESCE(memo,''), COALESCE(stripe_payment_intent_id,''), COALESCE(icpay_intent_id,''), tax_rate_bp,
	COALESCE(agent_pool_id,''), COALESCE(external_instance_id,''), COALESCE(instance_details,''), status_updated_at_ns`

func scanContractRow(row interface{ Scan(...any) error }) (storage.Contract, error) {
	var c storage.Contract
	if err := row.Scan(
		&c.ContractID, &c.RequesterPubkey, &c.ProviderPubkey, &c.OfferingID, &c.PaymentAmountE9s,
		&c.Currency, &c.PaymentMethod, &c.PaymentStatus, &c.Status, &c.DurationHours, &c.StartTimestampNs, &c.EndTimestampNs,
		&c.ProvisioningCompletedAtNs, &c.RequesterSSHPubkey, &c.RequesterContact,
		&c.Memo, &c.StripePaymentIntentID, &c.ICPayIntentID, &c.TaxRateBP,
		&c.AgentPoolID, &c.ExternalInstanceID, &c.InstanceDetails, &c.StatusUpdatedAtNs,
	); err != nil {
		return storage.Contract{}, err
	}
	return c, nil
}

func (s *ContractStore) CreateContractTx(ctx context.Context, c storage.Contract) (storage.Contract, bool, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return storage.Contract{}, false, err
	}
	defer tx.Rollback()

	existing, err := scanContractRow(tx.QueryRowContext(ctx, `SELECT `+contractColumns+` FROM contracts WHERE contract_id = $1`, c.ContractID))
	if err == nil {
		return existing, false, tx.Commit()
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return storage.Contract{}, false, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO contracts (contract_id, requester_pubkey, provider_pubkey, offering_id, payment_amount_e9s,
			currency, payment_method, payment_status, status, duration_hours, requester_ssh_pubkey, requester_contact,
			memo, tax_rate_bp, agent_pool_id, status_updated_at_ns)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NULLIF($11,''),NULLIF($12,''),NULLIF($13,''),$14,NULLIF($15,''),$16)
	`, c.ContractID, c.RequesterPubkey, c.ProviderPubkey, c.OfferingID, c.PaymentAmountE9s,
		c.Currency, c.PaymentMethod, c.PaymentStatus, c.Status, c.DurationHours, c.RequesterSSHPubkey, c.RequesterContact,
		c.Memo, c.TaxRateBP, c.AgentPoolID, c.StatusUpdatedAtNs)
	if err != nil {
		return storage.Contract{}, false, err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO contract_status_history (contract_id, old_status, new_status, changed_at_ns, changed_by_pubkey)
		VALUES ($1, NULL, $2, $3, $4)
	`, c.ContractID, c.Status, c.StatusUpdatedAtNs, c.RequesterPubkey); err != nil {
		return storage.Contract{}, false, err
	}

	if err := tx.Commit(); err != nil {
		return storage.Contract{}, false, err
	}
	return c, true, nil
}

func (s *ContractStore) GetContract(ctx context.Context, contractID []byte) (storage.Contract, error) {
	return scanContractRow(s.db.QueryRowContext(ctx, `SELECT `+contractColumns+` FROM contracts WHERE contract_id = $1`, contractID))
}

func (s *ContractStore) ListPendingProvision(ctx context.Context, poolID string, location string) ([]storage.Contract, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+contractColumns+` FROM contracts c
		WHERE c.status = 'accepted' AND c.payment_status = 'succeeded'
		AND (c.agent_pool_id = $1 OR ($2 = '' AND c.agent_pool_id IN (
			SELECT pool_id FROM agent_pools WHERE location = $3
		)))
	`, poolID, poolID, location)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanContracts(rows)
}

func (s *ContractStore) ListActiveByProvider(ctx context.Context, providerPubkey []byte) ([]storage.Contract, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+contractColumns+` FROM contracts
		WHERE provider_pubkey = $1 AND status IN ('active','provisioned','provisioning')
	`, providerPubkey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanContracts(rows)
}

func (s *ContractStore) ListExpiredActive(ctx context.Context, nowNs int64) ([]storage.Contract, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+contractColumns+` FROM contracts
		WHERE status = 'active' AND end_timestamp_ns IS NOT NULL AND end_timestamp_ns < $1
	`, nowNs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanContracts(rows)
}

func scanContracts(rows *sql.Rows) ([]storage.Contract, error) {
	var out []storage.Contract
	for rows.Next() {
		c, err := scanContractRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *ContractStore) TransitionTx(ctx context.Context, contractID []byte, fromStatus, newStatus string, changedBy []byte, memo string, nowNs int64, mutate func(*sql.Tx, *storage.Contract) error) (storage.Contract, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return storage.Contract{}, err
	}
	defer tx.Rollback()

	c, err := scanContractRow(tx.QueryRowContext(ctx, `SELECT `+contractColumns+` FROM contracts WHERE contract_id = $1 FOR UPDATE`, contractID))
	if err != nil {
		return storage.Contract{}, err
	}
	if c.Status != fromStatus {
		return storage.Contract{}, ErrInvalidTransition
	}

	if mutate != nil {
		if err := mutate(tx, &c); err != nil {
			return storage.Contract{}, err
		}
	}
	c.Status = newStatus
	c.StatusUpdatedAtNs = nowNs

	if _, err := tx.ExecContext(ctx, `
		UPDATE contracts SET payment_status = $2, status = $3, start_timestamp_ns = $4, end_timestamp_ns = $5,
			provisioning_completed_at_ns = $6, memo = NULLIF($7,''), stripe_payment_intent_id = NULLIF($8,''),
			icpay_intent_id = NULLIF($9,''), external_instance_id = NULLIF($10,''), instance_details = NULLIF($11,''),
			status_updated_at_ns = $12
		WHERE contract_id = $1
	`, c.ContractID, c.PaymentStatus, c.Status, c.StartTimestampNs, c.EndTimestampNs,
		c.ProvisioningCompletedAtNs, c.Memo, c.StripePaymentIntentID,
		c.ICPayIntentID, c.ExternalInstanceID, c.InstanceDetails, c.StatusUpdatedAtNs); err != nil {
		return storage.Contract{}, err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO contract_status_history (contract_id, old_status, new_status, changed_at_ns, changed_by_pubkey, memo)
		VALUES ($1,$2,$3,$4,$5,NULLIF($6,''))
	`, c.ContractID, fromStatus, newStatus, nowNs, changedBy, memo); err != nil {
		return storage.Contract{}, err
	}

	if err := tx.Commit(); err != nil {
		return storage.Contract{}, err
	}
	return c, nil
}

func (s *ContractStore) AppendExtensionTx(ctx context.Context, contractID []byte, extensionHours int64, extensionPaymentE9s int64) (storage.Contract, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return storage.Contract{}, err
	}
	defer tx.Rollback()

	c, err := scanContractRow(tx.QueryRowContext(ctx, `SELECT `+contractColumns+` FROM contracts WHERE contract_id = $1 FOR UPDATE`, contractID))
	if err != nil {
		return storage.Contract{}, err
	}

	c.DurationHours += extensionHours
	if c.EndTimestampNs != nil {
		newEnd := *c.EndTimestampNs + extensionHours*3600*1_000_000_000
		c.EndTimestampNs = &newEnd
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO contract_extensions (contract_id, extension_hours, extension_payment_e9s, applied_at)
		VALUES ($1,$2,$3,now())
	`, contractID, extensionHours, extensionPaymentE9s); err != nil {
		return storage.Contract{}, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE contracts SET duration_hours = $2, end_timestamp_ns = $3 WHERE contract_id = $1
	`, contractID, c.DurationHours, c.EndTimestampNs); err != nil {
		return storage.Contract{}, err
	}

	if err := tx.Commit(); err != nil {
		return storage.Contract{}, err
	}
	return c, nil
}

func (s *ContractStore) History(ctx context.Context, contractID []byte) ([]storage.ContractStatusHistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, contract_id, COALESCE(old_status,''), new_status, changed_at_ns, changed_by_pubkey, COALESCE(memo,'')
		FROM contract_status_history WHERE contract_id = $1 ORDER BY changed_at_ns ASC
	`, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.ContractStatusHistoryEntry
	for rows.Next() {
		var e storage.ContractStatusHistoryEntry
		if err := rows.Scan(&e.ID, &e.ContractID, &e.OldStatus, &e.NewStatus, &e.ChangedAtNs, &e.ChangedByPubkey, &e.Memo); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
