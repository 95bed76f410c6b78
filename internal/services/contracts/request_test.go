package contracts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func sampleRequest() SignRequest {
	return SignRequest{
		RequesterPubkey:    []byte("requester-pubkey-bytes"),
		ProviderPubkey:     []byte("provider-pubkey-bytes"),
		OfferingID:         "offering-1",
		PaymentAmountE9s:   24_000_000_000,
		Currency:           "USD",
		PaymentMethod:      "token",
		DurationHours:      24,
		RequesterSSHPubkey: "ssh-ed25519 AAAA...",
		RequesterContact:   "requester@example.com",
		Memo:               "",
		Nonce:              []byte{1, 2, 3, 4},
		TimestampNs:        1_700_000_000_000_000_000,
	}
}

func TestContractIDIsDeterministic(t *testing.T) {
	a := sampleRequest().ContractID()
	b := sampleRequest().ContractID()
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)
}

func TestContractIDChangesWithAnyField(t *testing.T) {
	base := sampleRequest().ContractID()

	withMemo := sampleRequest()
	withMemo.Memo = "different"
	assert.NotEqual(t, base, withMemo.ContractID())

	withNonce := sampleRequest()
	withNonce.Nonce = []byte{9, 9, 9, 9}
	assert.NotEqual(t, base, withNonce.ContractID())

	withAmount := sampleRequest()
	withAmount.PaymentAmountE9s++
	assert.NotEqual(t, base, withAmount.ContractID())
}
