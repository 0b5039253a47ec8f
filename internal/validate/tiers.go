package validate

import (
	"net/url"
	"strings"

	"github.com/ppiankov/lexicite/internal/model"
)

// TierClassifier sorts evidence hosts into authority tiers: primary for
// courts, official code publishers and case-law databases, secondary for
// legal reference and commercial summaries, tertiary for everything else.
type TierClassifier struct {
	domainMap map[string]model.AuthorityTier
	primary   []string
	secondary []string
}

// NewTierClassifier creates a classifier; a nil config uses the defaults
func NewTierClassifier(cfg *model.SourceTierConfig) *TierClassifier {
	if cfg == nil {
		cfg = &model.DefaultConfig().Sources
	}

	c := &TierClassifier{
		domainMap: make(map[string]model.AuthorityTier, len(cfg.DomainMap)),
		primary:   normalizeDomains(cfg.PrimaryDomains),
		secondary: normalizeDomains(cfg.SecondaryDomains),
	}
	for host, tier := range cfg.DomainMap {
		c.domainMap[strings.ToLower(host)] = parseTierString(tier)
	}
	return c
}

// Classify returns the tier of a URL's host
func (c *TierClassifier) Classify(rawURL string) model.AuthorityTier {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Hostname() == "" {
		return model.TierTertiary
	}
	host := strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")

	// Explicit mappings win
	if tier, ok := c.domainMap[host]; ok {
		return tier
	}
	if matchesAny(host, c.primary) {
		return model.TierPrimary
	}
	if matchesAny(host, c.secondary) {
		return model.TierSecondary
	}

	// Government hosts publish primary law; universities mostly commentary
	if strings.HasSuffix(host, ".gov") || strings.HasSuffix(host, ".mil") {
		return model.TierPrimary
	}
	if strings.HasSuffix(host, ".edu") {
		return model.TierSecondary
	}

	return model.TierTertiary
}

func matchesAny(host string, domains []string) bool {
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func normalizeDomains(in []string) []string {
	out := make([]string, 0, len(in))
	for _, d := range in {
		d = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), "www.")
		if d != "" {
			out = append(out, d)
		}
	}
	return out
}

// parseTierString converts a tier string to AuthorityTier
func parseTierString(tier string) model.AuthorityTier {
	switch strings.ToLower(tier) {
	case "primary", "1":
		return model.TierPrimary
	case "secondary", "2":
		return model.TierSecondary
	default:
		return model.TierTertiary
	}
}
