package matcher

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ftarb/internal/domain"
)

const testTable = `
[[comparable]]
key = "fed decision in march 2026"
url = "https://polymarket.com/event/fed-decision-in-march-885"
outcomes = [{ label = "No Change", value = 0.97 }, { label = "25 bps decrease", value = 0.02 }]

[[comparable]]
key = "bank of japan decision in march"
url = "https://polymarket.com/event/bank-of-japan-decision-in-march"
gamma_slug = "bank-of-japan-decision-in-march"
outcomes = [{ label = "no change", value = 0.95 }, { label = "25 bps increase", value = 0.04 }]

[[comparable]]
key = "bank of japan decision in april"
url = "https://polymarket.com/event/bank-of-japan-decision-in-april"
outcomes = [{ label = "no change", value = 0.51 }]

[[fallback]]
keywords = ["Bank of Japan", "boj"]
key = "bank of japan decision in march"
`

func titled(title string) domain.NormalizedMarket {
	return domain.NormalizedMarket{Title: &title}
}

func newMatcher(t *testing.T) *Matcher {
	t.Helper()
	table, err := ParseTable(testTable)
	require.NoError(t, err)
	return New(table, nil)
}

func TestParseTable(t *testing.T) {
	table, err := ParseTable(testTable)
	require.NoError(t, err)

	require.Len(t, table.Entries, 3)
	assert.Equal(t, "fed decision in march 2026", table.Entries[0].Key)
	assert.Equal(t, domain.Distribution{{Label: "no change", Value: 0.97}, {Label: "25 bps decrease", Value: 0.02}}, table.Entries[0].Outcomes)
	assert.Equal(t, []domain.Fallback{{Keywords: []string{"bank of japan", "boj"}, Key: "bank of japan decision in march"}}, table.Fallbacks)
}

func TestParseTable_Invalid(t *testing.T) {
	_, err := ParseTable(`[[comparable]]
key = "a"
[[comparable]]
key = "A"`)
	assert.ErrorContains(t, err, "duplicate")

	_, err = ParseTable(`[[fallback]]
keywords = ["x"]
key = "missing"`)
	assert.ErrorContains(t, err, "unknown key")

	_, err = ParseTable(`[[comparable]`)
	assert.Error(t, err)
}

func TestLoadTable_ShippedFile(t *testing.T) {
	table, err := LoadTable(afero.NewReadOnlyFs(afero.NewOsFs()), "../../comparables.toml")
	require.NoError(t, err)

	require.Len(t, table.Entries, 3)
	c, ok := table.Entry("bank of japan decision in march")
	require.True(t, ok)
	v, ok := c.Outcomes.Get("no change")
	require.True(t, ok)
	assert.Equal(t, 0.95, v)
}

func TestLoadTable_Missing(t *testing.T) {
	_, err := LoadTable(afero.NewMemMapFs(), "comparables.toml")
	assert.Error(t, err)
}

func TestMatch(t *testing.T) {
	m := newMatcher(t)

	cases := []struct {
		title string
		want  string
	}{
		{"Fed decision in March 2026?", "fed decision in march 2026"},
		{"Bank of Japan Decision in April", "bank of japan decision in april"},
		{"fed decision", "fed decision in march 2026"},
		{"Will the BoJ hike in June?", "bank of japan decision in march"},
		{"Bank of Japan rate path 2027", "bank of japan decision in march"},
	}
	for _, tc := range cases {
		t.Run(tc.title, func(t *testing.T) {
			got := m.Match(titled(tc.title))
			require.NotNil(t, got)
			assert.Equal(t, tc.want, got.Key)
		})
	}
}

func TestMatch_QuestionFallback(t *testing.T) {
	q := "Bank of Japan decision in March?"
	got := newMatcher(t).Match(domain.NormalizedMarket{Question: &q})
	require.NotNil(t, got)
	assert.Equal(t, "bank of japan decision in march", got.Key)
}

func TestMatch_NoMatch(t *testing.T) {
	m := newMatcher(t)
	assert.Nil(t, m.Match(titled("Will BTC close above 100k?")))
	assert.Nil(t, m.Match(domain.NormalizedMarket{}))
	assert.Nil(t, m.Match(titled("   ")))
}

func TestMatch_Deterministic(t *testing.T) {
	m := newMatcher(t)
	mk := titled("BoJ decision")
	first := m.Match(mk)
	for i := 0; i < 10; i++ {
		assert.Same(t, first, m.Match(mk))
	}
}

type fakeSource map[string]domain.Distribution

func (f fakeSource) EventDistribution(_ context.Context, slug string) (domain.Distribution, error) {
	d, ok := f[slug]
	if !ok {
		return nil, errors.New("boom")
	}
	return d, nil
}

func TestRefresh(t *testing.T) {
	m := newMatcher(t)
	live := domain.Distribution{{Label: "no change", Value: 0.9}, {Label: "25 bps increase", Value: 0.1}}

	n := m.Refresh(context.Background(), fakeSource{"bank-of-japan-decision-in-march": live})
	assert.Equal(t, 1, n)

	c, _ := m.Table().Entry("bank of japan decision in march")
	assert.Equal(t, live, c.Outcomes)
	fed, _ := m.Table().Entry("fed decision in march 2026")
	assert.Equal(t, 0.97, fed.Outcomes[0].Value)
}

func TestRefresh_KeepsCuratedLabels(t *testing.T) {
	m := newMatcher(t)
	live := domain.Distribution{{Label: "50+ bps increase", Value: 0.05}, {Label: "No Change", Value: 0.8}}

	require.Equal(t, 1, m.Refresh(context.Background(), fakeSource{"bank-of-japan-decision-in-march": live}))

	c, _ := m.Table().Entry("bank of japan decision in march")
	assert.Equal(t, domain.Distribution{
		{Label: "no change", Value: 0.8},
		{Label: "50+ bps increase", Value: 0.05},
	}, c.Outcomes)
}

func TestRefresh_FailureKeepsCurated(t *testing.T) {
	m := newMatcher(t)
	before, _ := m.Table().Entry("bank of japan decision in march")
	want := before.Outcomes

	n := m.Refresh(context.Background(), fakeSource{})
	assert.Equal(t, 0, n)

	after, _ := m.Table().Entry("bank of japan decision in march")
	assert.Equal(t, want, after.Outcomes)
}
