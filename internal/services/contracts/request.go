package contracts

import (
	"github.com/aethermarket/coordinator/internal/storage"
	"github.com/aethermarket/coordinator/internal/wire"
)

// SignRequest is the canonically-encoded payload a requester signs to
// create a rental (§4.5, §6, §9). ContractID = H(borsh(SignRequest)); the
// encoding below is the "borsh" referred to there: fixed field order,
// length-prefixed, no reflection.
type SignRequest struct {
	RequesterPubkey    []byte
	ProviderPubkey     []byte
	OfferingID         string
	PaymentAmountE9s   int64
	Currency           string
	PaymentMethod      string
	DurationHours      int64
	RequesterSSHPubkey string
	RequesterContact   string
	Memo               string
	Nonce              []byte
	TimestampNs        int64
}

// Encode produces the exact bytes a client signs; the server verifies
// against these same bytes (§9: "must not re-serialize before verification").
func (r SignRequest) Encode() []byte {
	e := wire.NewEncoder().
		Raw(r.RequesterPubkey).
		Raw(r.ProviderPubkey).
		String(r.OfferingID).
		I64(r.PaymentAmountE9s).
		String(r.Currency).
		String(r.PaymentMethod).
		I64(r.DurationHours).
		String(r.RequesterSSHPubkey).
		String(r.RequesterContact).
		String(r.Memo).
		Raw(r.Nonce).
		I64(r.TimestampNs)
	return e.Bytes()
}

// ContractID derives the deterministic primary key: H(borsh(SignRequest)).
// Two submissions of the identical request yield the same ID and the same
// row (Testable Property 3).
func (r SignRequest) ContractID() []byte {
	h := wire.Hash(r.Encode())
	return h[:]
}

func (r SignRequest) toContract() storage.Contract {
	return storage.Contract{
		ContractID:         r.ContractID(),
		RequesterPubkey:    r.RequesterPubkey,
		ProviderPubkey:     r.ProviderPubkey,
		OfferingID:         r.OfferingID,
		PaymentAmountE9s:   r.PaymentAmountE9s,
		Currency:           r.Currency,
		PaymentMethod:      r.PaymentMethod,
		PaymentStatus:      "initiated",
		Status:             storage.StatusRequested,
		DurationHours:      r.DurationHours,
		RequesterSSHPubkey: r.RequesterSSHPubkey,
		RequesterContact:   r.RequesterContact,
		Memo:               r.Memo,
		StatusUpdatedAtNs:  r.TimestampNs,
	}
}
