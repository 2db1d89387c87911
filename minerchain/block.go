package minerchain

import (
	"fmt"
	"math/big"

	"github.com/modality-network/modalnode/shared/hashutil"
)

// Block is a PoW miner block (spec.md §3). Nonce and Difficulty are u128 in
// the original; Go represents them with math/big.Int, persisted as decimal
// strings. Hash is the proof-of-work digest itself: HashFunc names which
// configured hash function produced it, since the network allows per-epoch
// hash function selection (spec.md §1.3).
type Block struct {
	Hash            string   `json:"hash"`
	HashFunc        string   `json:"hash_func"`
	Index           uint64   `json:"index"`
	Epoch           uint64   `json:"epoch"`
	PreviousHash    string   `json:"previous_hash"`
	Timestamp       int64    `json:"timestamp"`
	DataHash        string   `json:"data_hash"`
	Nonce           *big.Int `json:"-"`
	NonceStr        string   `json:"nonce"`
	Difficulty      *big.Int `json:"-"`
	DifficultyStr   string   `json:"difficulty"`
	NominatedPeerID string   `json:"nominated_peer_id"`
	MinerNumber     uint64   `json:"miner_number"`
	IsCanonical     bool     `json:"is_canonical"`
	IsOrphaned      bool     `json:"is_orphaned"`
	OrphanReason    string   `json:"orphan_reason,omitempty"`
	SeenAt          int64    `json:"seen_at"`
}

// PrepareForEncoding mirrors the big.Int fields into their string twins,
// called before JSON marshaling.
func (b *Block) PrepareForEncoding() {
	if b.Nonce != nil {
		b.NonceStr = b.Nonce.String()
	}
	if b.Difficulty != nil {
		b.DifficultyStr = b.Difficulty.String()
	}
}

// PrepareAfterDecoding parses the string twins back into big.Int fields,
// called after JSON unmarshaling.
func (b *Block) PrepareAfterDecoding() error {
	b.Nonce = new(big.Int)
	if b.NonceStr != "" {
		if _, ok := b.Nonce.SetString(b.NonceStr, 10); !ok {
			return fmt.Errorf("invalid nonce %q", b.NonceStr)
		}
	}
	b.Difficulty = new(big.Int)
	if b.DifficultyStr != "" {
		if _, ok := b.Difficulty.SetString(b.DifficultyStr, 10); !ok {
			return fmt.Errorf("invalid difficulty %q", b.DifficultyStr)
		}
	}
	return nil
}

// hashInputWithNonce builds the canonical serialization of
// (index, previous_hash, data_hash, timestamp, difficulty, nonce,
// nominated_peer_id, miner_number) in that exact order (spec.md §6).
func (b *Block) hashInputWithNonce(nonce *big.Int) string {
	diff := "0"
	if b.Difficulty != nil {
		diff = b.Difficulty.String()
	}
	return fmt.Sprintf("%d|%s|%s|%d|%s|%s|%s|%d",
		b.Index, b.PreviousHash, b.DataHash, b.Timestamp, diff, nonce.String(), b.NominatedPeerID, b.MinerNumber)
}

// ComputeHash recomputes the block's proof-of-work digest from its fields
// and nonce, using HashFunc (defaulting to SHA-256 if unset, e.g. genesis).
func (b *Block) ComputeHash() string {
	fn := b.HashFunc
	if fn == "" {
		fn = hashutil.FuncSHA256
	}
	nonce := b.Nonce
	if nonce == nil {
		nonce = big.NewInt(0)
	}
	hash, err := hashutil.HashString(b.hashInputWithNonce(nonce), fn)
	if err != nil {
		// fn was validated at config load and mining time; an unsupported
		// name here means the block was tampered with or corrupted.
		return ""
	}
	return hash
}

// VerifyHash recomputes the block's hash and reports whether it matches the
// stored Hash field (ingest validation step 1 of spec.md §4.1).
func (b *Block) VerifyHash() bool {
	return b.ComputeHash() == b.Hash
}

// VerifyProofOfWork reports whether the block's hash satisfies its own
// claimed difficulty under the network's fixed target formula (spec.md §8
// property 1: "no block whose hash fails the active target is ever
// accepted").
func (b *Block) VerifyProofOfWork() (bool, error) {
	return IsHashAcceptable(b.Hash, b.ActualizedDifficulty().Uint64())
}

// Genesis constructs the fixed genesis block for a network: index 0, no
// parent, zero nonce, minimum difficulty.
func Genesis(dataHash string) *Block {
	b := &Block{
		Index:        0,
		Epoch:        0,
		PreviousHash: "",
		Timestamp:    0,
		DataHash:     dataHash,
		HashFunc:     hashutil.FuncSHA256,
		Nonce:        big.NewInt(0),
		Difficulty:   big.NewInt(1),
		MinerNumber:  0,
		IsCanonical:  true,
	}
	b.Hash = b.ComputeHash()
	return b
}
