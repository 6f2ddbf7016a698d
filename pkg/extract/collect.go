package extract

import (
	"sort"

	"github.com/j0rgje/KDVcontactscraper/pkg/types"
)

type matchKey struct {
	category, value, pattern, source, pageURL string
}

// collector は抽出結果を重複なく蓄積します。
type collector struct {
	values  map[string]map[string]struct{}
	matches map[matchKey]types.Match
}

func newCollector() *collector {
	return &collector{
		values:  make(map[string]map[string]struct{}),
		matches: make(map[matchKey]types.Match),
	}
}

func (c *collector) add(m types.Match) {
	if m.Value == "" {
		return
	}
	set, ok := c.values[m.Category]
	if !ok {
		set = make(map[string]struct{})
		c.values[m.Category] = set
	}
	set[m.Value] = struct{}{}

	key := matchKey{m.Category, m.Value, m.Pattern, m.Source, m.PageURL}
	if prev, ok := c.matches[key]; !ok || m.Confidence > prev.Confidence {
		c.matches[key] = m
	}
}

func (c *collector) merge(ct types.Contacts) {
	for _, m := range ct.Matches {
		c.add(m)
	}
	add := func(category string, values []string) {
		for _, v := range values {
			c.add(types.Match{Category: category, Value: v, Pattern: "merged"})
		}
	}
	// Matches を持たない Contacts も値の集合として統合する
	add(types.CategoryEmail, ct.Emails)
	add(types.CategoryPhone, ct.Phones)
	add(types.CategoryAddress, ct.Addresses)
	add(types.CategoryManager, ct.Managers)
}

// retain は keep が false を返した値を category から取り除きます。
func (c *collector) retain(category string, keep func(string) bool) {
	for v := range c.values[category] {
		if !keep(v) {
			delete(c.values[category], v)
		}
	}
	for k := range c.matches {
		if k.category != category {
			continue
		}
		if _, ok := c.values[category][k.value]; !ok {
			delete(c.matches, k)
		}
	}
}

func (c *collector) sorted(category string) []string {
	set := c.values[category]
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func (c *collector) contacts() types.Contacts {
	matches := make([]types.Match, 0, len(c.matches))
	for _, m := range c.matches {
		if m.Pattern == "merged" {
			continue
		}
		matches = append(matches, m)
	}
	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.Value != b.Value {
			return a.Value < b.Value
		}
		if a.Pattern != b.Pattern {
			return a.Pattern < b.Pattern
		}
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		return a.PageURL < b.PageURL
	})

	return types.Contacts{
		Emails:    c.sorted(types.CategoryEmail),
		Phones:    c.sorted(types.CategoryPhone),
		Addresses: c.sorted(types.CategoryAddress),
		Managers:  c.sorted(types.CategoryManager),
		Matches:   matches,
	}
}

// Merge は複数の抽出結果の和集合を返します。
func Merge(parts ...types.Contacts) types.Contacts {
	c := newCollector()
	for _, p := range parts {
		c.merge(p)
	}
	return c.contacts()
}
