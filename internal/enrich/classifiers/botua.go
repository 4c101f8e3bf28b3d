// Package classifiers holds the fifteen Classifier implementations run in
// declared order by the Forge's enrich.Chain.
package classifiers

import (
	"os"
	"strings"

	"github.com/smartpixl/core/internal/enrich"
	"gopkg.in/yaml.v3"
)

// BotUA flags user agents matching a known bot/crawler/monitoring-tool
// signature list, loaded once from a replaceable data file like the gpu and
// cultural packages' tables.
type BotUA struct {
	patterns []string // lower-cased substrings
}

type botUAFile struct {
	Patterns []string `yaml:"patterns"`
}

// NewBotUA loads the bot user-agent substring list from path.
func NewBotUA(path string) (*BotUA, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f botUAFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, err
	}
	patterns := make([]string, len(f.Patterns))
	for i, p := range f.Patterns {
		patterns[i] = strings.ToLower(p)
	}
	return &BotUA{patterns: patterns}, nil
}

func (c *BotUA) Name() string { return "botua" }

// Classify appends _srv_knownBot=true and the matched UA family when the
// snapshot's user agent matches a known bot signature.
func (c *BotUA) Classify(snap *enrich.Snapshot, ctx *enrich.Context) error {
	ua := strings.ToLower(snap.UA)
	if ua == "" {
		return nil
	}
	for _, p := range c.patterns {
		if strings.Contains(ua, p) {
			ctx.Append("knownBot", "true")
			ctx.Append("uaFamily", p)
			return nil
		}
	}
	return nil
}
