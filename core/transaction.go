package core

// transaction.go – transaction construction, signing and verification.

import (
	"crypto/ed25519"
	"fmt"
)

// NewTransaction builds an unsigned transaction from typed fields.
func NewTransaction(chainID uint32, from, to Address, amount, fee, nonce uint64, data []byte) *Transaction {
	return &Transaction{
		ChainID: chainID,
		From:    from,
		To:      to,
		Amount:  amount,
		Fee:     fee,
		Nonce:   nonce,
		Data:    data,
	}
}

// NewCoinbase builds the reward transaction credited to beneficiary at
// height h. Its nonce equals the block height per the coinbase rules.
func NewCoinbase(beneficiary Address, amount uint64, height uint64) *Transaction {
	return &Transaction{
		ChainID: ChainID,
		From:    AddressZero,
		To:      beneficiary,
		Amount:  amount,
		Fee:     0,
		Nonce:   height,
	}
}

// Sign signs tx's canonical signing hash with priv and stores the result.
func (tx *Transaction) Sign(priv ed25519.PrivateKey) {
	h := signingHash(tx)
	tx.Signature = Sign(priv, h[:])
}

// VerifySignature checks tx.Signature against tx.From over the canonical
// signing hash. Coinbase transactions (empty signature, zero sender) are
// never valid here — callers must special-case them via IsCoinbase.
func (tx *Transaction) VerifySignature() error {
	if len(tx.Signature) == 0 {
		return validationErr("empty signature on non-coinbase transaction")
	}
	h := signingHash(tx)
	if !Verify(tx.From, h[:], tx.Signature) {
		return validationErr("invalid transaction signature")
	}
	return nil
}

// Validate checks size and chain_id bounds independent of chain state.
func (tx *Transaction) Validate(expectedChainID uint32) error {
	if tx.ChainID != expectedChainID {
		return validationErr(fmt.Sprintf("chain_id mismatch: got %d want %d", tx.ChainID, expectedChainID))
	}
	if len(tx.Data) > MaxTxDataSize {
		return validationErr("tx data exceeds maximum size")
	}
	if tx.SizeBytes() > MaxTxSize {
		return validationErr("tx exceeds maximum size")
	}
	return nil
}
