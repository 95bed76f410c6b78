package offerings

import (
	"context"

	"github.com/aethermarket/coordinator/internal/apierr"
	"github.com/aethermarket/coordinator/internal/storage"
)

type Service struct {
	offerings storage.OfferingStore
	providers storage.ProviderStore
}

func NewService(offerings storage.OfferingStore, providers storage.ProviderStore) *Service {
	return &Service{offerings: offerings, providers: providers}
}

// CreateOffering enforces the per-(provider_pubkey, offering_id)
// uniqueness invariant at the application layer in addition to the
// database's unique index, so callers get apierr.Conflict rather than a
// raw driver error.
func (s *Service) CreateOffering(ctx context.Context, o storage.Offering) (storage.Offering, error) {
	if _, err := s.offerings.GetOffering(ctx, o.ProviderPubkey, o.OfferingID); err == nil {
		return storage.Offering{}, apierr.Conflict("offering_exists", "an offering with this offering_id already exists for this provider")
	}
	return s.offerings.CreateOffering(ctx, o)
}

// Search parses the DSL query, fetches the public candidate set sorted by
// price, filters it through the compiled clauses, then paginates
// (§4.10: unknown fields fail before any row is touched).
func (s *Service) Search(ctx context.Context, query string, limit, offset int) ([]storage.Offering, error) {
	clauses, err := ParseQuery(query)
	if err != nil {
		return nil, err
	}

	candidates, err := s.offerings.Search(ctx, storage.SearchFilter{Clauses: clauses, Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}

	var filtered []storage.Offering
	for _, o := range candidates {
		ok, err := matches(o, clauses)
		if err != nil {
			return nil, err
		}
		if ok {
			filtered = append(filtered, o)
		}
	}

	if offset >= len(filtered) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(filtered) {
		end = len(filtered)
	}
	return filtered[offset:end], nil
}
