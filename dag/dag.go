package dag

import (
	"encoding/json"
	"sync"

	mapset "github.com/deckarep/golang-set"
	"github.com/pkg/errors"

	"github.com/modality-network/modalnode/store"
)

// DAG holds the certificate graph for one node's view of Narwhal consensus
// (spec.md §4.2). It keeps three in-memory indexes in lock-step: by digest,
// by round, and by (author, round). All three are updated atomically under
// mu, matching spec.md §5's "equivocation check, parent check, and
// three-index update are atomic w.r.t. the DAG lock".
type DAG struct {
	mu sync.RWMutex

	mgr *store.Manager

	byDigest      map[string]*Certificate
	byRound       map[uint64]map[string]*Certificate // round -> digest -> cert
	byAuthorRound map[string]map[uint64]*Certificate  // author -> round -> cert

	// equivocating holds every author ever caught signing two distinct
	// digests at one round, so callers can flag that peer (spec.md §9's
	// ingest-error table: Equivocation "peer may be flagged").
	equivocating mapset.Set
}

// New returns an empty DAG backed by mgr for certificate persistence.
func New(mgr *store.Manager) *DAG {
	return &DAG{
		mgr:           mgr,
		byDigest:      make(map[string]*Certificate),
		byRound:       make(map[uint64]map[string]*Certificate),
		byAuthorRound: make(map[string]map[uint64]*Certificate),
		equivocating:  mapset.NewSet(),
	}
}

// Insert validates and adds cert to the DAG (spec.md §3, §4.2):
//  1. reject if an equivocating certificate (same author+round, different
//     digest) is already present;
//  2. reject round>0 certs with any parent digest absent from the DAG;
//  3. otherwise insert into all three indexes and persist to validator_active.
//
// The whole check-then-insert sequence runs under a single write lock.
func (d *DAG) Insert(cert *Certificate) error {
	if cert.Digest == "" {
		cert.Digest = cert.ComputeDigest()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, ok := d.getAuthorRoundLocked(cert.Header.Author, cert.Header.Round); ok {
		if existing.Digest != cert.Digest {
			d.equivocating.Add(cert.Header.Author)
			certificatesIngested.WithLabelValues("equivocation").Inc()
			return newError(KindEquivocation, "author %s already has certificate %s at round %d, rejecting %s",
				cert.Header.Author, existing.Digest, cert.Header.Round, cert.Digest)
		}
		// identical resubmission: no-op, not an error.
		return nil
	}

	if cert.Header.Round > 0 {
		for _, parent := range cert.Header.ParentList() {
			if _, ok := d.byDigest[parent]; !ok {
				certificatesIngested.WithLabelValues("parent_missing").Inc()
				return newError(KindParentMissing, "certificate %s round %d references missing parent %s",
					cert.Digest, cert.Header.Round, parent)
			}
		}
	}

	d.insertIndexesLocked(cert)

	if err := d.persist(cert); err != nil {
		d.removeIndexesLocked(cert)
		certificatesIngested.WithLabelValues("store_error").Inc()
		return errors.Wrap(err, "persisting certificate")
	}

	certificatesIngested.WithLabelValues("accepted").Inc()
	var highest uint64
	for r := range d.byRound {
		if r > highest {
			highest = r
		}
	}
	highestRoundGauge.Set(float64(highest))
	roundSizeGauge.Set(float64(len(d.byRound[highest])))
	return nil
}

func (d *DAG) insertIndexesLocked(cert *Certificate) {
	d.byDigest[cert.Digest] = cert

	if d.byRound[cert.Header.Round] == nil {
		d.byRound[cert.Header.Round] = make(map[string]*Certificate)
	}
	d.byRound[cert.Header.Round][cert.Digest] = cert

	if d.byAuthorRound[cert.Header.Author] == nil {
		d.byAuthorRound[cert.Header.Author] = make(map[uint64]*Certificate)
	}
	d.byAuthorRound[cert.Header.Author][cert.Header.Round] = cert
}

func (d *DAG) removeIndexesLocked(cert *Certificate) {
	delete(d.byDigest, cert.Digest)
	if byDigest := d.byRound[cert.Header.Round]; byDigest != nil {
		delete(byDigest, cert.Digest)
	}
	if byRound := d.byAuthorRound[cert.Header.Author]; byRound != nil {
		delete(byRound, cert.Header.Round)
	}
}

func (d *DAG) getAuthorRoundLocked(author string, round uint64) (*Certificate, bool) {
	byRound := d.byAuthorRound[author]
	if byRound == nil {
		return nil, false
	}
	cert, ok := byRound[round]
	return cert, ok
}

func (d *DAG) persist(cert *Certificate) error {
	raw, err := json.Marshal(cert)
	if err != nil {
		return errors.Wrap(err, "marshaling certificate")
	}
	return d.mgr.ValidatorActive().Put([]byte(store.DAGCertificateKey(cert.Header.Round, cert.Digest)), raw)
}

// Get returns the certificate for digest, if present.
func (d *DAG) Get(digest string) (*Certificate, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	cert, ok := d.byDigest[digest]
	return cert, ok
}

// GetAuthorCert returns the certificate author produced at round, if any.
func (d *DAG) GetAuthorCert(author string, round uint64) (*Certificate, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.getAuthorRoundLocked(author, round)
}

// RoundSize returns the number of certificates present at round.
func (d *DAG) RoundSize(round uint64) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byRound[round])
}

// RoundCerts returns every certificate at round, order unspecified.
func (d *DAG) RoundCerts(round uint64) []*Certificate {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*Certificate, 0, len(d.byRound[round]))
	for _, c := range d.byRound[round] {
		out = append(out, c)
	}
	return out
}

// IsEquivocating reports whether author has ever been caught signing two
// distinct certificates at the same round.
func (d *DAG) IsEquivocating(author string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.equivocating.Contains(author)
}

// EquivocatingAuthors returns every author flagged by IsEquivocating so far,
// order unspecified.
func (d *DAG) EquivocatingAuthors() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, d.equivocating.Cardinality())
	for _, v := range d.equivocating.ToSlice() {
		out = append(out, v.(string))
	}
	return out
}

// HighestRound returns the greatest round with at least one certificate,
// and false if the DAG is empty.
func (d *DAG) HighestRound() (uint64, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var max uint64
	found := false
	for r := range d.byRound {
		if !found || r > max {
			max = r
			found = true
		}
	}
	return max, found
}

// HasPath reports whether to is reachable from from by following parent
// edges (spec.md §9: "path queries use explicit stacks with a visited
// set" — no recursion, no pointer cycles since adjacency is by digest).
func (d *DAG) HasPath(from, to string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if from == to {
		return true
	}
	visited := map[string]bool{from: true}
	stack := []string{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		cert, ok := d.byDigest[cur]
		if !ok {
			continue
		}
		for _, parent := range cert.Header.ParentList() {
			if parent == to {
				return true
			}
			if !visited[parent] {
				visited[parent] = true
				stack = append(stack, parent)
			}
		}
	}
	return false
}

// GetMissingParents returns the parent digests of cert not present in the
// DAG, fuel for sync (spec.md §4.2).
func (d *DAG) GetMissingParents(cert *Certificate) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var missing []string
	for _, parent := range cert.Header.ParentList() {
		if _, ok := d.byDigest[parent]; !ok {
			missing = append(missing, parent)
		}
	}
	return missing
}

// HasAllParents reports whether every parent of cert is present in the DAG.
func (d *DAG) HasAllParents(cert *Certificate) bool {
	return len(d.GetMissingParents(cert)) == 0
}

// GetMissingCertificatesUpToRound reports, for every round in [0, round],
// the author identities that produced no certificate at that round yet —
// gap detection for catch-up (spec.md §4.2). committee supplies the
// expected author set per round.
func (d *DAG) GetMissingCertificatesUpToRound(round uint64, committee *Committee) map[uint64][]string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	gaps := make(map[uint64][]string)
	for r := uint64(0); r <= round; r++ {
		present := d.byAuthorRound
		var missingAuthors []string
		for _, v := range committee.Validators {
			authorRounds := present[v.PeerID]
			if authorRounds == nil {
				missingAuthors = append(missingAuthors, v.PeerID)
				continue
			}
			if _, ok := authorRounds[r]; !ok {
				missingAuthors = append(missingAuthors, v.PeerID)
			}
		}
		if len(missingAuthors) > 0 {
			gaps[r] = missingAuthors
		}
	}
	return gaps
}
