package fetcher

import (
	"net/url"
	"strings"

	"github.com/ow2stats/herostats/internal/stats"
)

// BuildURL renders the stats page URL for one configuration. The upstream
// page expects rq=1 for competitive, rq=0 otherwise, and map slugs with
// dashes ("all-maps" for the aggregate view).
func BuildURL(base string, cfg stats.StatConfiguration) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}

	rq := "0"
	if strings.EqualFold(cfg.Gamemode, "competitive") {
		rq = "1"
	}
	mapParam := "all-maps"
	if !strings.EqualFold(cfg.Map, "all") && cfg.Map != "" {
		mapParam = strings.ReplaceAll(strings.ToLower(cfg.Map), " ", "-")
	}
	tier := cfg.Tier
	if tier == "" {
		tier = "All"
	}

	q := url.Values{}
	q.Set("input", cfg.Platform)
	q.Set("map", mapParam)
	q.Set("region", cfg.Region)
	q.Set("role", "all")
	q.Set("rq", rq)
	q.Set("tier", tier)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
