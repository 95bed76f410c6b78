package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/aethermarket/coordinator/internal/storage"
)

// ErrPoolNotEmpty is returned by DeletePool when agents still delegate
// into the pool (§3 AgentPool: "deletion refused if non-empty").
var ErrPoolNotEmpty = errors.New("postgres: agent pool is not empty")

type OfferingStore struct {
	db *sql.DB
}

func NewOfferingStore(db *sql.DB) *OfferingStore { return &OfferingStore{db: db} }

func (s *OfferingStore) CreateOffering(ctx context.Context, o storage.Offering) (storage.Offering, error) {
	now := time.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO offerings (provider_pubkey, offering_id, cpu_cores, memory_mb, storage_gb, gpu_model,
			monthly_price_e9s, visibility, stock_status, datacenter_country, datacenter_city,
			agent_pool_id, provisioner_type, provisioner_config, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,NULLIF($6,''),$7,$8,$9,$10,NULLIF($11,''),NULLIF($12,''),$13,$14,$15,$16)
		RETURNING id
	`, o.ProviderPubkey, o.OfferingID, o.CPUCores, o.MemoryMB, o.StorageGB, o.GPUModel,
		o.MonthlyPriceE9s, o.Visibility, o.StockStatus, o.DatacenterCountry, o.DatacenterCity,
		o.AgentPoolID, o.ProvisionerType, o.ProvisionerConfig, o.CreatedAt, o.UpdatedAt)
	if err := row.Scan(&o.ID); err != nil {
		return storage.Offering{}, err
	}
	return o, nil
}

func (s *OfferingStore) GetOffering(ctx context.Context, providerPubkey []byte, offeringID string) (storage.Offering, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, provider_pubkey, offering_id, cpu_cores, memory_mb, storage_gb, COALESCE(gpu_model,''),
			monthly_price_e9s, visibility, stock_status, datacenter_country, COALESCE(datacenter_city,''),
			COALESCE(agent_pool_id,''), provisioner_type, provisioner_config, created_at, updated_at
		FROM offerings WHERE provider_pubkey = $1 AND offering_id = $2
	`, providerPubkey, offeringID)
	return scanOffering(row)
}

func scanOffering(row *sql.Row) (storage.Offering, error) {
	var o storage.Offering
	if err := row.Scan(&o.ID, &o.ProviderPubkey, &o.OfferingID, &o.CPUCores, &o.MemoryMB, &o.StorageGB, &o.GPUModel,
		&o.MonthlyPriceE9s, &o.Visibility, &o.StockStatus, &o.DatacenterCountry, &o.DatacenterCity,
		&o.AgentPoolID, &o.ProvisionerType, &o.ProvisionerConfig, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return storage.Offering{}, err
	}
	return o, nil
}

// Search returns every public offering ordered by monthly price ascending;
// the services/offerings package applies the parsed DSL clauses and
// pagination against this candidate set (§4.10).
func (s *OfferingStore) Search(ctx context.Context, _ storage.SearchFilter) ([]storage.Offering, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, provider_pubkey, offering_id, cpu_cores, memory_mb, storage_gb, COALESCE(gpu_model,''),
			monthly_price_e9s, visibility, stock_status, datacenter_country, COALESCE(datacenter_city,''),
			COALESCE(agent_pool_id,''), provisioner_type, provisioner_config, created_at, updated_at
		FROM offerings WHERE visibility = 'public'
		ORDER BY monthly_price_e9s ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.Offering
	for rows.Next() {
		var o storage.Offering
		if err := rows.Scan(&o.ID, &o.ProviderPubkey, &o.OfferingID, &o.CPUCores, &o.MemoryMB, &o.StorageGB, &o.GPUModel,
			&o.MonthlyPriceE9s, &o.Visibility, &o.StockStatus, &o.DatacenterCountry, &o.DatacenterCity,
			&o.AgentPoolID, &o.ProvisionerType, &o.ProvisionerConfig, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *OfferingStore) CreatePool(ctx context.Context, p storage.AgentPool) (storage.AgentPool, error) {
	p.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_pools (pool_id, provider_pubkey, name, location, provisioner_type, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, p.PoolID, p.ProviderPubkey, p.Name, p.Location, p.ProvisionerType, p.CreatedAt)
	if err != nil {
		return storage.AgentPool{}, err
	}
	return p, nil
}

func (s *OfferingStore) GetPool(ctx context.Context, poolID string) (storage.AgentPool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT pool_id, provider_pubkey, name, location, provisioner_type, created_at
		FROM agent_pools WHERE pool_id = $1
	`, poolID)
	var p storage.AgentPool
	if err := row.Scan(&p.PoolID, &p.ProviderPubkey, &p.Name, &p.Location, &p.ProvisionerType, &p.CreatedAt); err != nil {
		return storage.AgentPool{}, err
	}
	return p, nil
}

func (s *OfferingStore) DeletePool(ctx context.Context, poolID string) error {
	empty, err := s.PoolIsEmpty(ctx, poolID)
	if err != nil {
		return err
	}
	if !empty {
		return ErrPoolNotEmpty
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM agent_pools WHERE pool_id = $1`, poolID)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *OfferingStore) PoolIsEmpty(ctx context.Context, poolID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM agent_delegations WHERE pool_id = $1 AND revoked_at IS NULL`, poolID).Scan(&n)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}
