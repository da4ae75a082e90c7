package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/helmsman-ai/concierge/pkg/common"
	"github.com/helmsman-ai/concierge/pkg/logger"
	"github.com/helmsman-ai/concierge/pkg/store"
)

const (
	// verifyTopN bounds how many fuzzy candidates get identifier
	// verification before a match is accepted.
	verifyTopN = 5
	// verificationBoost is added to a candidate's confidence for each
	// stored identifier that matches the query.
	verificationBoost = 0.15
	// verifiedConfidenceCap limits boosted fuzzy confidence.
	verifiedConfidenceCap = 0.95
	// acceptThreshold is the confidence at which a fuzzy match is
	// accepted without disambiguation.
	acceptThreshold = 0.75
	// candidateFloor drops fuzzy candidates that stay below it even
	// after verification.
	candidateFloor = 0.70
	// newIdentityConfidence is assigned to links created for entities
	// that matched nothing.
	newIdentityConfidence = 0.5
	// verifiedLinkThreshold marks links created at or above it as
	// verified.
	verifiedLinkThreshold = 0.95
)

// Oracle decides between ambiguous candidates. Satisfied by
// Disambiguator.
type Oracle interface {
	Disambiguate(ctx context.Context, query Query, candidates []common.MatchCandidate) (Verdict, error)
}

// ResolverParams configures a Resolver.
type ResolverParams struct {
	Store store.Store
	// Oracle may be nil, in which case ambiguous fuzzy matches fall
	// through to new-identity creation.
	Oracle Oracle
	// FuzzyThreshold is the 0-100 similarity cutoff, 85 when zero.
	FuzzyThreshold int
	// DefaultRegion interprets phone numbers without a country code,
	// "US" when empty.
	DefaultRegion string
}

// Resolver maps inbound queries to entities through staged matching.
type Resolver struct {
	store   store.Store
	oracle  Oracle
	matcher *Matcher
	region  string
}

// NewResolver builds a resolver over the given store.
func NewResolver(params ResolverParams) *Resolver {
	region := params.DefaultRegion
	if region == "" {
		region = "US"
	}
	return &Resolver{
		store:   params.Store,
		oracle:  params.Oracle,
		matcher: NewMatcher(params.FuzzyThreshold),
		region:  region,
	}
}

// Resolve maps a query to an entity, creating one when nothing
// matches. Queries without any identifier return ErrNoIdentifiers.
func (r *Resolver) Resolve(ctx context.Context, q Query) (Resolution, error) {
	if q.Name == "" && q.Email == "" && q.Phone == "" {
		return Resolution{}, ErrNoIdentifiers
	}

	normalizedEmail, _ := NormalizeEmail(q.Email)
	normalizedPhone, _ := NormalizePhone(q.Phone, r.region)
	normalizedName, _ := NormalizeName(q.Name)

	platformID := q.PlatformIdentifier
	if platformID == "" {
		switch {
		case normalizedEmail != "":
			platformID = normalizedEmail
		case normalizedPhone != "":
			platformID = normalizedPhone
		default:
			platformID = "unknown_" + q.Platform
		}
	}

	resolution, err := r.resolveExact(ctx, q, platformID, normalizedEmail, normalizedPhone)
	if err != nil {
		return Resolution{}, err
	}
	if resolution != nil {
		return *resolution, nil
	}

	if normalizedName != "" {
		resolution, err = r.resolveFuzzy(ctx, q, platformID, normalizedName, normalizedEmail, normalizedPhone)
		if err != nil {
			return Resolution{}, err
		}
		if resolution != nil {
			return *resolution, nil
		}
	}

	return r.createIdentity(ctx, q, platformID, normalizedEmail, normalizedPhone)
}

// resolveExact checks the platform identifier and then normalized
// email and phone against existing links. A nil resolution with a nil
// error means no exact match exists.
func (r *Resolver) resolveExact(ctx context.Context, q Query, platformID, normalizedEmail, normalizedPhone string) (*Resolution, error) {
	link, err := r.store.GetLinkByPlatformIdentifier(ctx, q.Platform, platformID)
	if err == nil {
		entity, err := r.store.GetEntity(ctx, link.EntityID)
		if err != nil {
			return nil, fmt.Errorf("entity %s for link %s: %w", link.EntityID, link.ID, err)
		}
		return &Resolution{
			MatchFound: true,
			Entity:     entity,
			Link:       link,
			Confidence: 1.0,
			Method:     common.MatchExactIdentity,
			Reasoning:  "Exact match on existing " + q.Platform + " identifier",
		}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("link lookup: %w", err)
	}

	if normalizedEmail != "" {
		resolution, err := r.linkByNormalized(ctx, q, platformID, normalizedEmail, common.MatchExactEmail,
			"Email matches a known identity")
		if err != nil || resolution != nil {
			return resolution, err
		}
	}

	if normalizedPhone != "" {
		resolution, err := r.linkByNormalized(ctx, q, platformID, normalizedPhone, common.MatchExactPhone,
			"Phone number matches a known identity")
		if err != nil || resolution != nil {
			return resolution, err
		}
	}

	return nil, nil
}

func (r *Resolver) linkByNormalized(ctx context.Context, q Query, platformID, normalized string, method common.MatchMethod, reasoning string) (*Resolution, error) {
	existing, err := r.store.GetLinkByNormalizedIdentifier(ctx, normalized)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("normalized lookup: %w", err)
	}

	entity, err := r.store.GetEntity(ctx, existing.EntityID)
	if err != nil {
		return nil, fmt.Errorf("entity %s for link %s: %w", existing.EntityID, existing.ID, err)
	}

	return r.finishWithLink(ctx, q, entity, platformID, 1.0, method, reasoning)
}

// resolveFuzzy runs name matching with identifier verification, then
// hands unresolved ambiguity to the oracle. A nil resolution with a
// nil error falls through to new-identity creation.
func (r *Resolver) resolveFuzzy(ctx context.Context, q Query, platformID, normalizedName, normalizedEmail, normalizedPhone string) (*Resolution, error) {
	entities, err := r.store.ListEntities(ctx)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}

	candidates := r.matcher.MatchEntities(normalizedName, entities)
	if len(candidates) == 0 {
		return nil, nil
	}

	verified := r.verifyCandidates(candidates, normalizedEmail, normalizedPhone)
	if len(verified) == 0 {
		return nil, nil
	}

	best := verified[0]
	if best.Confidence >= acceptThreshold {
		reasoning := fmt.Sprintf("Name similarity %.0f matched %s", best.Score, best.Entity.CanonicalName)
		return r.finishWithLink(ctx, q, best.Entity, platformID, best.Confidence, common.MatchFuzzy, reasoning)
	}

	if r.oracle == nil {
		return nil, nil
	}

	verdict, err := r.oracle.Disambiguate(ctx, q, verified)
	if err != nil {
		logger.Warn("[Identity] Disambiguation failed, creating new identity", "error", err)
		return nil, nil
	}
	if !verdict.MatchFound || verdict.Entity == nil {
		return nil, nil
	}

	return r.finishWithLink(ctx, q, *verdict.Entity, platformID, verdict.Confidence, common.MatchLLM, verdict.Reasoning)
}

// verifyCandidates boosts the top fuzzy candidates once per stored
// identifier (email, phone) that matches the query, capped at 0.95,
// and drops anything still below the floor.
func (r *Resolver) verifyCandidates(candidates []common.MatchCandidate, normalizedEmail, normalizedPhone string) []common.MatchCandidate {
	limit := len(candidates)
	if limit > verifyTopN {
		limit = verifyTopN
	}

	verified := make([]common.MatchCandidate, 0, limit)
	for _, candidate := range candidates[:limit] {
		confidence := candidate.Confidence

		entityEmail, _ := NormalizeEmail(candidate.Entity.Email)
		entityPhone, _ := NormalizePhone(candidate.Entity.Phone, r.region)
		if normalizedEmail != "" && normalizedEmail == entityEmail {
			confidence += verificationBoost
		}
		if normalizedPhone != "" && normalizedPhone == entityPhone {
			confidence += verificationBoost
		}
		if confidence > verifiedConfidenceCap {
			confidence = verifiedConfidenceCap
		}

		if confidence >= candidateFloor {
			candidate.Confidence = confidence
			verified = append(verified, candidate)
		}
	}

	return verified
}

// createIdentity builds a fresh entity and links the query to it.
func (r *Resolver) createIdentity(ctx context.Context, q Query, platformID, normalizedEmail, normalizedPhone string) (Resolution, error) {
	name := q.Name
	if name == "" {
		name = "Unknown User"
	}

	email := normalizedEmail
	if email == "" {
		email = q.Email
	}
	phone := normalizedPhone
	if phone == "" {
		phone = q.Phone
	}

	entity, err := r.store.CreateEntity(ctx, common.Entity{
		CanonicalName: name,
		Email:         email,
		Phone:         phone,
		Metadata: map[string]any{
			"created_from":       q.Platform,
			"initial_identifier": platformID,
		},
	})
	if err != nil {
		return Resolution{}, fmt.Errorf("create entity: %w", err)
	}
	logger.Debug("[Identity] Created new entity", "id", entity.ID, "platform", q.Platform)

	resolution, err := r.finishWithLink(ctx, q, entity, platformID, newIdentityConfidence, common.MatchNewIdentity,
		"No existing match found, created new entity profile")
	if err != nil {
		return Resolution{}, err
	}
	return *resolution, nil
}

// finishWithLink records the platform link for a resolved entity. A
// duplicate insert means a concurrent request already linked this
// identifier, in which case the stored link wins.
func (r *Resolver) finishWithLink(ctx context.Context, q Query, entity common.Entity, platformID string, confidence float64, method common.MatchMethod, reasoning string) (*Resolution, error) {
	link, err := r.store.CreateIdentityLink(ctx, common.IdentityLink{
		EntityID:             entity.ID,
		Platform:             q.Platform,
		PlatformIdentifier:   platformID,
		NormalizedIdentifier: r.normalizedIdentifier(q.Platform, platformID),
		DisplayName:          q.Name,
		Confidence:           confidence,
		Method:               method,
		Verified:             confidence >= verifiedLinkThreshold,
	})
	if errors.Is(err, store.ErrDuplicateLink) {
		logger.Debug("[Identity] Link already exists, reusing", "platform", q.Platform, "identifier", platformID)
		existing, err := r.store.GetLinkByPlatformIdentifier(ctx, q.Platform, platformID)
		if err != nil {
			return nil, fmt.Errorf("reload duplicate link: %w", err)
		}
		linkedEntity, err := r.store.GetEntity(ctx, existing.EntityID)
		if err != nil {
			return nil, fmt.Errorf("entity %s for link %s: %w", existing.EntityID, existing.ID, err)
		}
		return &Resolution{
			MatchFound: true,
			Entity:     linkedEntity,
			Link:       existing,
			Confidence: 1.0,
			Method:     common.MatchExactIdentity,
			Reasoning:  "Exact match on existing " + q.Platform + " identifier",
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create link: %w", err)
	}

	return &Resolution{
		MatchFound: method != common.MatchNewIdentity,
		Entity:     entity,
		Link:       link,
		Confidence: confidence,
		Method:     method,
		Reasoning:  reasoning,
	}, nil
}

// normalizedIdentifier canonicalizes a platform identifier for
// cross-platform lookups. Email-shaped identifiers get email rules,
// phone platforms get E.164, everything else folds case.
func (r *Resolver) normalizedIdentifier(platform, platformID string) string {
	if normalized, ok := normalizeIdentifier(platform, platformID, r.region); ok {
		return normalized
	}
	return ""
}

func normalizeIdentifier(platform, platformID, region string) (string, bool) {
	if strings.Contains(platformID, "@") {
		return NormalizeEmail(platformID)
	}
	switch platform {
	case "whatsapp", "phone", "sms":
		return NormalizePhone(platformID, region)
	}
	return strings.ToLower(strings.TrimSpace(platformID)), true
}
