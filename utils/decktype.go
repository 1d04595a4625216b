package utils

import (
	"sort"
	"strings"

	"card-league-system/models"

	"github.com/gosimple/slug"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// minFuzzyLen keeps one- and two-letter inputs from matching half the catalog.
const minFuzzyLen = 3

// DeckTypeResolver maps free-form deck type input onto canonical catalog keys.
type DeckTypeResolver struct {
	keys    []string
	lookup  map[string]string // slug of key or alias -> key
	display map[string]string
}

func NewDeckTypeResolver(entries []models.DeckTypeEntry) *DeckTypeResolver {
	r := &DeckTypeResolver{
		lookup:  make(map[string]string),
		display: make(map[string]string),
	}
	title := cases.Title(language.English)
	for _, e := range entries {
		key := slug.Make(e.Key)
		r.keys = append(r.keys, key)
		r.lookup[key] = key
		for _, a := range e.Aliases {
			r.lookup[slug.Make(a)] = key
		}
		r.display[key] = title.String(strings.ReplaceAll(key, "-", " "))
	}
	return r
}

// Resolve returns the canonical key for input. Exact key or alias matches win;
// otherwise a unique closest fuzzy match is accepted.
func (r *DeckTypeResolver) Resolve(input string) (string, bool) {
	s := slug.Make(input)
	if s == "" {
		return "", false
	}
	if key, ok := r.lookup[s]; ok {
		return key, true
	}
	if len(s) < minFuzzyLen {
		return "", false
	}

	candidates := make([]string, 0, len(r.lookup))
	for k := range r.lookup {
		candidates = append(candidates, k)
	}
	ranks := fuzzy.RankFindNormalizedFold(s, candidates)
	if len(ranks) == 0 {
		return "", false
	}
	sort.Sort(ranks)
	best := r.lookup[ranks[0].Target]
	for _, rk := range ranks[1:] {
		if rk.Distance > ranks[0].Distance {
			break
		}
		if r.lookup[rk.Target] != best {
			return "", false // ambiguous
		}
	}
	return best, true
}

// Keys lists canonical keys in catalog order.
func (r *DeckTypeResolver) Keys() []string {
	return append([]string(nil), r.keys...)
}

// DisplayName renders a canonical key for people, e.g. "fire" -> "Fire".
func (r *DeckTypeResolver) DisplayName(key string) string {
	if d, ok := r.display[key]; ok {
		return d
	}
	return cases.Title(language.English).String(key)
}
