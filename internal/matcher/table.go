package matcher

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/afero"

	"github.com/alanyoungcy/ftarb/internal/domain"
)

// tableFile is the on-disk layout of the comparables table.
type tableFile struct {
	Comparables []comparableEntry `toml:"comparable"`
	Fallbacks   []fallbackEntry   `toml:"fallback"`
}

type comparableEntry struct {
	Key            string         `toml:"key"`
	URL            string         `toml:"url"`
	GammaSlug      string         `toml:"gamma_slug"`
	Outcomes       []outcomeEntry `toml:"outcomes"`
	ImpliedPayouts []outcomeEntry `toml:"implied_payouts"`
}

type outcomeEntry struct {
	Label string  `toml:"label"`
	Value float64 `toml:"value"`
}

type fallbackEntry struct {
	Keywords []string `toml:"keywords"`
	Key      string   `toml:"key"`
}

// LoadTable reads a comparables table from path on fsys. Entry order is
// preserved; it decides which entry wins when several keys match a title.
func LoadTable(fsys afero.Fs, path string) (*domain.ComparableTable, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("matcher: read table %s: %w", path, err)
	}
	return ParseTable(string(data))
}

// ParseTable decodes a TOML comparables table and checks it for consistency.
func ParseTable(data string) (*domain.ComparableTable, error) {
	var f tableFile
	if _, err := toml.Decode(data, &f); err != nil {
		return nil, fmt.Errorf("matcher: decode table: %w", err)
	}

	t := &domain.ComparableTable{
		Entries:   make([]domain.Comparable, 0, len(f.Comparables)),
		Fallbacks: make([]domain.Fallback, 0, len(f.Fallbacks)),
	}
	seen := make(map[string]bool, len(f.Comparables))
	for i, c := range f.Comparables {
		key := strings.ToLower(strings.TrimSpace(c.Key))
		if key == "" {
			return nil, fmt.Errorf("matcher: comparable %d: empty key", i)
		}
		if seen[key] {
			return nil, fmt.Errorf("matcher: duplicate comparable key %q", key)
		}
		seen[key] = true
		t.Entries = append(t.Entries, domain.Comparable{
			Key:            key,
			URL:            c.URL,
			GammaSlug:      c.GammaSlug,
			Outcomes:       distribution(c.Outcomes),
			ImpliedPayouts: distribution(c.ImpliedPayouts),
		})
	}
	for _, fb := range f.Fallbacks {
		key := strings.ToLower(strings.TrimSpace(fb.Key))
		if !seen[key] {
			return nil, fmt.Errorf("matcher: fallback references unknown key %q", fb.Key)
		}
		kws := make([]string, 0, len(fb.Keywords))
		for _, k := range fb.Keywords {
			if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
				kws = append(kws, k)
			}
		}
		t.Fallbacks = append(t.Fallbacks, domain.Fallback{Keywords: kws, Key: key})
	}
	return t, nil
}

func distribution(in []outcomeEntry) domain.Distribution {
	if len(in) == 0 {
		return nil
	}
	out := make(domain.Distribution, 0, len(in))
	for _, o := range in {
		out = append(out, domain.OutcomeProb{Label: strings.ToLower(o.Label), Value: o.Value})
	}
	return out
}
