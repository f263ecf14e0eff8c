// Package normalize resolves raw referrer/referred identifiers to canonical
// entities. Resolution is an explicit tagged outcome; ambiguous fuzzy matches
// are never merged on a best guess.
package normalize

import (
	"sort"
	"strconv"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/refintel/api/schemas"
)

// entityNamespace seeds the deterministic entity ids.
var entityNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/xkilldash9x/refintel/entity"))

// ResolutionKind tags the outcome of resolving one identifier.
type ResolutionKind int

const (
	Resolved ResolutionKind = iota
	Ambiguous
	Unresolved
)

func (k ResolutionKind) String() string {
	switch k {
	case Resolved:
		return "resolved"
	case Ambiguous:
		return "ambiguous"
	default:
		return "unresolved"
	}
}

// Resolution is the result of resolving an identifier.
// EntityIndex and EntityID are only meaningful when Kind is Resolved;
// Candidates is only set when Kind is Ambiguous.
type Resolution struct {
	Kind        ResolutionKind
	EntityIndex int
	EntityID    string
	Candidates  []string
}

// Identifier is one side of a referral record.
type Identifier struct {
	Name     string
	Account  string
	KindHint schemas.EntityKind
}

func (id Identifier) rawKey() string {
	name := strings.Join(strings.Fields(id.Name), " ")
	if acct := strings.TrimSpace(id.Account); acct != "" {
		return name + "#" + acct
	}
	return name
}

// Similarity scores two canonical names in [0, 1].
type Similarity func(a, b string) float64

// JaroWinkler is the default similarity function.
func JaroWinkler(a, b string) float64 {
	return strutil.Similarity(a, b, metrics.NewJaroWinkler())
}

// Option customizes a Normalizer.
type Option func(*Normalizer)

// WithSimilarity replaces the fuzzy similarity function.
func WithSimilarity(s Similarity) Option {
	return func(n *Normalizer) { n.similarity = s }
}

// WithStaffCodes marks identifiers equal to one of the given staff codes as
// staff. The map value is the staff tier label of the code.
func WithStaffCodes(codes map[string]string) Option {
	return func(n *Normalizer) {
		for code, tier := range codes {
			n.staffCodes[strings.ToUpper(strings.TrimSpace(code))] = tier
		}
	}
}

// WithReport collects unresolved identity warnings into the run report.
func WithReport(report *schemas.RunReport) Option {
	return func(n *Normalizer) { n.report = report }
}

type entityBuilder struct {
	entity schemas.Entity
	rawIDs map[string]struct{}
}

// Normalizer resolves identifiers for a single run. It is not safe for
// concurrent use; a run owns exactly one.
type Normalizer struct {
	canon      *Canonicalizer
	similarity Similarity
	threshold  float64
	staffCodes map[string]string
	report     *schemas.RunReport
	log        *zap.Logger

	entities  []*entityBuilder
	byKey     map[string]int // exact (canonical, account) key -> entity index
	fuzzy     []int          // account-less entities in creation order
	memo      map[string]Resolution
	usedIDs   map[string]int
	warnedRaw map[string]struct{}

	stage *stage
}

// stage journals the changes made while resolving a record so they can be
// undone when the record is excluded.
type stage struct {
	entities int
	fuzzy    int
	keys     []string
	usedIDs  map[string]int
	memo     []string
}

// New creates a Normalizer.
func New(suffixes []string, threshold float64, logger *zap.Logger, opts ...Option) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &Normalizer{
		canon:      NewCanonicalizer(suffixes),
		similarity: JaroWinkler,
		threshold:  threshold,
		staffCodes: make(map[string]string),
		log:        logger.Named("normalizer"),
		byKey:      make(map[string]int),
		memo:       make(map[string]Resolution),
		usedIDs:    make(map[string]int),
		warnedRaw:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Canonicalize exposes the canonical form used for matching.
func (n *Normalizer) Canonicalize(raw string) string {
	return n.canon.Canonicalize(raw)
}

// Resolve maps an identifier to an entity. recordIndex and side only feed
// the warning emitted for unresolved or ambiguous identifiers.
func (n *Normalizer) Resolve(id Identifier, recordIndex int, side string) Resolution {
	raw := id.rawKey()
	res := n.lookup(id, raw)
	switch res.Kind {
	case Resolved:
		n.attach(res.EntityIndex, id, raw)
	default:
		n.warn(res, raw, recordIndex, side)
	}
	return res
}

// ResolvePair resolves both sides of one record. ok is true only when both
// sides resolve; otherwise every entity created for the record is discarded,
// so an excluded record leaves the entity set untouched.
func (n *Normalizer) ResolvePair(referrer, referred Identifier, recordIndex int) (from, to Resolution, ok bool) {
	n.stage = &stage{entities: len(n.entities), fuzzy: len(n.fuzzy), usedIDs: make(map[string]int)}
	fromRaw, toRaw := referrer.rawKey(), referred.rawKey()
	from = n.lookup(referrer, fromRaw)
	to = n.lookup(referred, toRaw)
	s := n.stage
	n.stage = nil

	if from.Kind == Resolved && to.Kind == Resolved {
		n.attach(from.EntityIndex, referrer, fromRaw)
		n.attach(to.EntityIndex, referred, toRaw)
		return from, to, true
	}

	staged := n.rollback(s)
	if from.Kind != Resolved {
		from.Candidates = withoutStaged(from.Candidates, staged)
		n.warn(from, fromRaw, recordIndex, "referrer")
	}
	if to.Kind != Resolved {
		to.Candidates = withoutStaged(to.Candidates, staged)
		n.warn(to, toRaw, recordIndex, "referred")
	}
	return from, to, false
}

func withoutStaged(candidates []string, staged map[string]struct{}) []string {
	if len(staged) == 0 {
		return candidates
	}
	var out []string
	for _, c := range candidates {
		if _, ok := staged[c]; !ok {
			out = append(out, c)
		}
	}
	return out
}

// lookup resolves an identifier through the memo without attaching it.
func (n *Normalizer) lookup(id Identifier, raw string) Resolution {
	if res, ok := n.memo[raw]; ok {
		return res
	}
	res := n.resolve(id, raw)
	n.memo[raw] = res
	if n.stage != nil {
		n.stage.memo = append(n.stage.memo, raw)
	}
	return res
}

// rollback drops the entities created since s began together with every
// index entry and memoized outcome that refers to them. It returns the ids
// of the dropped entities.
func (n *Normalizer) rollback(s *stage) map[string]struct{} {
	staged := make(map[string]struct{}, len(n.entities)-s.entities)
	for _, b := range n.entities[s.entities:] {
		staged[b.entity.ID] = struct{}{}
	}
	n.entities = n.entities[:s.entities]
	n.fuzzy = n.fuzzy[:s.fuzzy]
	for _, key := range s.keys {
		delete(n.byKey, key)
	}
	for key, prev := range s.usedIDs {
		if prev == 0 {
			delete(n.usedIDs, key)
		} else {
			n.usedIDs[key] = prev
		}
	}
	for _, raw := range s.memo {
		res := n.memo[raw]
		drop := res.Kind == Resolved && res.EntityIndex >= s.entities
		for _, c := range res.Candidates {
			if _, ok := staged[c]; ok {
				drop = true
			}
		}
		if drop {
			delete(n.memo, raw)
		}
	}
	return staged
}

func (n *Normalizer) resolve(id Identifier, raw string) Resolution {
	canonical := n.canon.Canonicalize(id.Name)
	if canonical == "" {
		return Resolution{Kind: Unresolved}
	}

	if account := CanonicalAccount(id.Account); account != "" {
		key := "acct|" + canonical + "|" + account
		if idx, ok := n.byKey[key]; ok {
			return n.resolved(idx)
		}
		idx := n.create(key, canonical, account, id)
		n.byKey[key] = idx
		if n.stage != nil {
			n.stage.keys = append(n.stage.keys, key)
		}
		return n.resolved(idx)
	}

	// Fuzzy grouping only ever compares account-less identities.
	var candidates []int
	for _, idx := range n.fuzzy {
		if n.similarity(canonical, n.entities[idx].entity.Canonical) >= n.threshold {
			candidates = append(candidates, idx)
		}
	}

	switch len(candidates) {
	case 0:
		idx := n.create("name|"+canonical, canonical, "", id)
		n.fuzzy = append(n.fuzzy, idx)
		return n.resolved(idx)
	case 1:
		return n.resolved(candidates[0])
	default:
		ids := make([]string, len(candidates))
		for i, idx := range candidates {
			ids[i] = n.entities[idx].entity.ID
		}
		sort.Strings(ids)
		return Resolution{Kind: Ambiguous, Candidates: ids}
	}
}

func (n *Normalizer) resolved(idx int) Resolution {
	return Resolution{Kind: Resolved, EntityIndex: idx, EntityID: n.entities[idx].entity.ID}
}

func (n *Normalizer) create(key, canonical, account string, id Identifier) int {
	// Identical keys can only repeat when a custom similarity refused to merge
	// them; keep the ids distinct and still deterministic.
	if n.stage != nil {
		if _, ok := n.stage.usedIDs[key]; !ok {
			n.stage.usedIDs[key] = n.usedIDs[key]
		}
	}
	if seen := n.usedIDs[key]; seen > 0 {
		n.usedIDs[key] = seen + 1
		key = key + "|" + strconv.Itoa(seen)
	} else {
		n.usedIDs[key] = 1
	}

	idx := len(n.entities)
	n.entities = append(n.entities, &entityBuilder{
		entity: schemas.Entity{
			Index:       idx,
			ID:          uuid.NewSHA1(entityNamespace, []byte(key)).String(),
			DisplayName: strings.Join(strings.Fields(id.Name), " "),
			Canonical:   canonical,
			Account:     account,
			Kind:        schemas.KindExternal,
		},
		rawIDs: make(map[string]struct{}),
	})
	n.log.Debug("Entity created", zap.String("entity_id", n.entities[idx].entity.ID), zap.String("canonical", canonical))
	return idx
}

// attach records the raw identifier and upgrades the entity kind if the
// identifier carries stronger evidence.
func (n *Normalizer) attach(idx int, id Identifier, raw string) {
	b := n.entities[idx]
	b.rawIDs[raw] = struct{}{}

	kind, tier := n.kindOf(id)
	if kind.Rank() > b.entity.Kind.Rank() {
		b.entity.Kind = kind
	}
	if tier != "" && b.entity.StaffTier == "" {
		b.entity.StaffTier = tier
	}
}

// kindOf derives the kind an identifier evidences: an explicit type hint,
// then an account (member), then a name equal to one of the run's staff
// codes (staff). The tier is only reported for staff.
func (n *Normalizer) kindOf(id Identifier) (schemas.EntityKind, string) {
	tier, isStaffCode := n.staffCodes[strings.ToUpper(strings.TrimSpace(id.Name))]

	kind := schemas.KindExternal
	switch {
	case id.KindHint != "":
		kind = id.KindHint
	case CanonicalAccount(id.Account) != "":
		kind = schemas.KindMember
	case isStaffCode:
		kind = schemas.KindStaff
	}
	if kind != schemas.KindStaff {
		tier = ""
	}
	return kind, tier
}

func (n *Normalizer) warn(res Resolution, raw string, recordIndex int, side string) {
	if _, done := n.warnedRaw[raw]; done {
		return
	}
	n.warnedRaw[raw] = struct{}{}

	msg := "identifier could not be resolved"
	if res.Kind == Ambiguous {
		msg = "identifier matches multiple entities within the similarity threshold"
	}
	n.log.Warn("Unresolved identity, record excluded",
		zap.String("identifier", raw),
		zap.String("side", side),
		zap.Int("record_index", recordIndex),
		zap.String("resolution", res.Kind.String()),
		zap.Strings("candidates", res.Candidates))
	if n.report != nil {
		n.report.Add(schemas.Warning{
			Kind:        schemas.WarnUnresolvedIdentity,
			RecordIndex: recordIndex,
			Field:       side,
			Raw:         raw,
			Message:     msg,
			Candidates:  res.Candidates,
		})
	}
}

// Entities returns the closed entity set in creation order. Each call
// returns fresh copies.
func (n *Normalizer) Entities() []schemas.Entity {
	out := make([]schemas.Entity, len(n.entities))
	for i, b := range n.entities {
		e := b.entity
		e.RawIDs = make([]string, 0, len(b.rawIDs))
		for raw := range b.rawIDs {
			e.RawIDs = append(e.RawIDs, raw)
		}
		sort.Strings(e.RawIDs)
		out[i] = e
	}
	return out
}
