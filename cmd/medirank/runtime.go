package main

import (
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/carelink/medirank/internal/profile"
	"github.com/carelink/medirank/plugin/ai"
	"github.com/carelink/medirank/plugin/recommend"
	"github.com/carelink/medirank/plugin/recommend/indexer"
	"github.com/carelink/medirank/plugin/recommend/retriever"
	"github.com/carelink/medirank/plugin/recommend/scoring"
	"github.com/carelink/medirank/plugin/recommend/travel"
	"github.com/carelink/medirank/plugin/recommend/vecindex"
	"github.com/carelink/medirank/server/service/ranking"
	"github.com/carelink/medirank/store/cache"
)

// policySeed makes fresh policy initializations reproducible across hosts.
const policySeed = 42

func parseDomain(s string) (recommend.Domain, error) {
	switch recommend.Domain(s) {
	case recommend.DomainHospital, recommend.DomainPharmacy, recommend.DomainDrug, recommend.DomainCondition:
		return recommend.Domain(s), nil
	default:
		return "", errors.Errorf("unknown domain %q (hospital, pharmacy, drug, condition)", s)
	}
}

// newEmbedder returns the configured embedding gateway. Demo mode without
// an API key falls back to the deterministic in-process mock so the full
// pipeline stays usable offline.
func newEmbedder(p *profile.Profile) (ai.EmbeddingService, error) {
	if !p.IsEmbeddingEnabled() {
		if p.Mode == "demo" {
			return ai.NewMockEmbeddingService(p.EmbeddingDimensions), nil
		}
		return nil, errors.New("embedding gateway not configured; set MEDIRANK_OPENAI_API_KEY")
	}
	return ai.NewEmbeddingService(ai.NewEmbeddingConfigFromProfile(p))
}

func policyPath(dataDir string, domain recommend.Domain) string {
	return filepath.Join(dataDir, string(domain)+".policy.json")
}

// policyShape returns the network shape for a domain: the narrow net over
// travel features for pharmacies, the wide net over embedding differences
// for every other domain (hospitals included).
func policyShape(domain recommend.Domain, embeddingDims int) (inputDim, hiddenDim int) {
	switch domain {
	case recommend.DomainPharmacy:
		return 2, scoring.TravelHiddenDim
	default:
		return embeddingDims, scoring.EmbeddingHiddenDim
	}
}

func loadPolicy(p *profile.Profile, domain recommend.Domain) (*scoring.Policy, error) {
	inputDim, hiddenDim := policyShape(domain, p.EmbeddingDimensions)
	params, err := scoring.LoadOrInitParameters(policyPath(p.Data, domain), inputDim, hiddenDim, policySeed)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load %s policy", domain)
	}
	return scoring.NewPolicy(params), nil
}

func newTieredCache(p *profile.Profile) (*cache.TieredCache, error) {
	config := cache.DefaultTieredConfig()
	if p.RedisAddr != "" {
		redisConfig := cache.DefaultRedisConfig()
		redisConfig.Addr = p.RedisAddr
		redisConfig.Password = p.RedisPassword
		config.Redis = redisConfig
	}
	return cache.NewTieredCache(config)
}

func newTravelProvider(p *profile.Profile) (travel.Provider, error) {
	if p.DirectionsBaseURL == "" {
		return nil, nil
	}
	return travel.NewClient(&travel.Config{
		BaseURL: p.DirectionsBaseURL,
		APIKey:  p.DirectionsAPIKey,
	})
}

// loadDomainRuntime loads one domain's index artifacts and policy for
// serving.
func loadDomainRuntime(p *profile.Profile, embedder ai.EmbeddingService, domain recommend.Domain) (*ranking.DomainRuntime, error) {
	flatPath, ivfPath, metaPath := indexer.Paths(p.Data, domain)
	idx, entries, err := vecindex.LoadAny(ivfPath, flatPath, metaPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load %s index; run build-index first", domain)
	}

	policy, err := loadPolicy(p, domain)
	if err != nil {
		return nil, err
	}

	return &ranking.DomainRuntime{
		Retriever: retriever.New(embedder, idx, entries),
		Policy:    policy,
	}, nil
}
