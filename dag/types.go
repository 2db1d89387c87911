package dag

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	bitfield "github.com/prysmaticlabs/go-bitfield"
)

// Validator is a single committee member with its stake weight (spec.md §3
// Committee / Validator Set).
type Validator struct {
	PeerID string `json:"peer_id"`
	Stake  uint64 `json:"stake"`
}

// Committee is the validator set a round of certificates is checked
// against. Validators is a fixed order (nominated, then alternates, then
// staked) that every certificate's Signers bitmap indexes into, so every
// node must construct it identically from the same miner-chain-derived
// validator set.
type Committee struct {
	Epoch       uint64      `json:"epoch"`
	MiningEpoch uint64      `json:"mining_epoch"`
	Validators  []Validator `json:"validators"`
}

// NewCommittee builds a Committee from ordered peer-id lists (as returned by
// minerchain.DeriveValidatorSet), assigning stake 1 to every member until
// the staking mechanism lands (spec.md §4.1 "staked reserved for future
// stake mechanism").
func NewCommittee(epoch, miningEpoch uint64, nominated, alternates, staked []string) *Committee {
	c := &Committee{Epoch: epoch, MiningEpoch: miningEpoch}
	for _, ids := range [][]string{nominated, alternates, staked} {
		for _, id := range ids {
			c.Validators = append(c.Validators, Validator{PeerID: id, Stake: 1})
		}
	}
	return c
}

// TotalStake sums every validator's stake.
func (c *Committee) TotalStake() uint64 {
	var total uint64
	for _, v := range c.Validators {
		total += v.Stake
	}
	return total
}

// QuorumThreshold is floor(2*total_stake/3) + 1 (spec.md §3).
func (c *Committee) QuorumThreshold() uint64 {
	return (2*c.TotalStake())/3 + 1
}

// FBound is the count-based Byzantine fault bound (n-1)/3, used as a
// fallback quorum check under uniform stake (spec.md §4.2).
func (c *Committee) FBound() int {
	return (len(c.Validators) - 1) / 3
}

// IndexOf returns the committee-order index of peerID, or -1 if absent.
func (c *Committee) IndexOf(peerID string) int {
	for i, v := range c.Validators {
		if v.PeerID == peerID {
			return i
		}
	}
	return -1
}

// Header is a certificate's unsigned content (spec.md §3).
type Header struct {
	Author      string          `json:"author"`
	Round       uint64          `json:"round"`
	BatchDigest string          `json:"batch_digest"`
	Parents     map[string]bool `json:"parents"`
	Timestamp   int64           `json:"timestamp"`
}

// ParentList returns Parents as a sorted slice, for deterministic iteration
// and serialization.
func (h *Header) ParentList() []string {
	out := make([]string, 0, len(h.Parents))
	for p := range h.Parents {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Certificate is a signed, quorum-aggregated batch header (spec.md §3).
type Certificate struct {
	Header              Header           `json:"header"`
	AggregatedSignature []byte           `json:"aggregated_signature"`
	Signers             bitfield.Bitlist `json:"signers"` // bitmap over committee order
	Digest              string           `json:"digest"`
}

// NewSignersBitlist allocates an all-unset committee-order bitmap sized for
// committee, the same bitlist this certificate's Signers field indexes into.
func NewSignersBitlist(committee *Committee) bitfield.Bitlist {
	return bitfield.NewBitlist(uint64(len(committee.Validators)))
}

// ComputeDigest hashes the header's canonical serialization with SHA-256.
// The aggregated signature and signers bitmap are excluded: the digest
// identifies the header's content, not its proof of quorum.
func (c *Certificate) ComputeDigest() string {
	input := fmt.Sprintf("%s|%d|%s|%s|%d",
		c.Header.Author, c.Header.Round, c.Header.BatchDigest,
		joinStrings(c.Header.ParentList()), c.Header.Timestamp)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

func joinStrings(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}

// StakeSignedBy sums the stake of every committee member whose bit is set
// in Signers, used for quorum checks (spec.md §4.2).
func (c *Certificate) StakeSignedBy(committee *Committee) uint64 {
	var total uint64
	for i, v := range committee.Validators {
		if uint64(i) < c.Signers.Len() && c.Signers.BitAt(uint64(i)) {
			total += v.Stake
		}
	}
	return total
}

// SignerCount counts set bits in Signers, for the count-based quorum
// fallback under uniform stake.
func (c *Certificate) SignerCount() int {
	return int(c.Signers.Count())
}
