package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"

	"github.com/aethermarket/coordinator/internal/storage"
)

type ProviderStore struct {
	db *sql.DB
}

func NewProviderStore(db *sql.DB) *ProviderStore { return &ProviderStore{db: db} }

func (s *ProviderStore) UpsertProfile(ctx context.Context, p storage.ProviderProfile) error {
	contactJSON, err := json.Marshal(p.Contact)
	if err != nil {
		return err
	}
	flagsJSON, err := json.Marshal(p.OnboardingFlags)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO provider_profiles (account_id, display_name, contact, onboarding_flags, trust_score, has_critical_flags, critical_flag_reasons, auto_accept_rentals, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (account_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			contact = EXCLUDED.contact,
			onboarding_flags = EXCLUDED.onboarding_flags,
			auto_accept_rentals = EXCLUDED.auto_accept_rentals,
			updated_at = now()
	`, p.AccountID, p.DisplayName, contactJSON, flagsJSON, p.TrustScore, p.HasCriticalFlags, pq.Array(p.CriticalFlagReasons), p.AutoAcceptRentals)
	return err
}

func (s *ProviderStore) GetProfile(ctx context.Context, providerPubkey []byte) (storage.ProviderProfile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT account_id, display_name, contact, onboarding_flags, trust_score, has_critical_flags, critical_flag_reasons, auto_accept_rentals, updated_at
		FROM provider_profiles WHERE account_id = $1
	`, providerPubkey)
	var p storage.ProviderProfile
	var contactRaw, flagsRaw []byte
	if err := row.Scan(&p.AccountID, &p.DisplayName, &contactRaw, &flagsRaw, &p.TrustScore, &p.HasCriticalFlags, pq.Array(&p.CriticalFlagReasons), &p.AutoAcceptRentals, &p.UpdatedAt); err != nil {
		return storage.ProviderProfile{}, err
	}
	_ = json.Unmarshal(contactRaw, &p.Contact)
	_ = json.Unmarshal(flagsRaw, &p.OnboardingFlags)
	return p, nil
}

func (s *ProviderStore) SetTrustScore(ctx context.Context, providerPubkey []byte, score int, reasons []string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE provider_profiles
		SET trust_score = $2, has_critical_flags = $3, critical_flag_reasons = $4, updated_at = $5
		WHERE account_id = $1
	`, providerPubkey, score, len(reasons) > 0, pq.Array(reasons), time.Now().UTC())
	return err
}
