// Package heroes holds the hero vocabulary used for extraction and
// normalization. The roster is explicit immutable data passed into the
// pipeline components rather than ambient state.
package heroes

import "strings"

// Hero class values as persisted.
const (
	ClassTank    = "tank"
	ClassDamage  = "damage"
	ClassSupport = "support"
)

// Hero is one roster entry. Aliases cover spellings the upstream page has
// used historically (renames, missing diacritics).
type Hero struct {
	ID      string
	Name    string
	Class   string
	Aliases []string
}

// All returns the current roster.
func All() []Hero {
	return []Hero{
		{ID: "dva", Name: "D.Va", Class: ClassTank},
		{ID: "doomfist", Name: "Doomfist", Class: ClassTank},
		{ID: "hazard", Name: "Hazard", Class: ClassTank},
		{ID: "junker-queen", Name: "Junker Queen", Class: ClassTank},
		{ID: "mauga", Name: "Mauga", Class: ClassTank},
		{ID: "orisa", Name: "Orisa", Class: ClassTank},
		{ID: "ramattra", Name: "Ramattra", Class: ClassTank},
		{ID: "reinhardt", Name: "Reinhardt", Class: ClassTank},
		{ID: "roadhog", Name: "Roadhog", Class: ClassTank},
		{ID: "sigma", Name: "Sigma", Class: ClassTank},
		{ID: "winston", Name: "Winston", Class: ClassTank},
		{ID: "wrecking-ball", Name: "Wrecking Ball", Class: ClassTank},
		{ID: "zarya", Name: "Zarya", Class: ClassTank},
		{ID: "ashe", Name: "Ashe", Class: ClassDamage},
		{ID: "bastion", Name: "Bastion", Class: ClassDamage},
		{ID: "cassidy", Name: "Cassidy", Class: ClassDamage, Aliases: []string{"McCree"}},
		{ID: "echo", Name: "Echo", Class: ClassDamage},
		{ID: "freja", Name: "Freja", Class: ClassDamage},
		{ID: "genji", Name: "Genji", Class: ClassDamage},
		{ID: "hanzo", Name: "Hanzo", Class: ClassDamage},
		{ID: "junkrat", Name: "Junkrat", Class: ClassDamage},
		{ID: "mei", Name: "Mei", Class: ClassDamage},
		{ID: "pharah", Name: "Pharah", Class: ClassDamage},
		{ID: "reaper", Name: "Reaper", Class: ClassDamage},
		{ID: "sojourn", Name: "Sojourn", Class: ClassDamage},
		{ID: "soldier-76", Name: "Soldier: 76", Class: ClassDamage, Aliases: []string{"Soldier 76"}},
		{ID: "sombra", Name: "Sombra", Class: ClassDamage},
		{ID: "symmetra", Name: "Symmetra", Class: ClassDamage},
		{ID: "torbjorn", Name: "Torbjörn", Class: ClassDamage, Aliases: []string{"Torbjorn"}},
		{ID: "tracer", Name: "Tracer", Class: ClassDamage},
		{ID: "venture", Name: "Venture", Class: ClassDamage},
		{ID: "widowmaker", Name: "Widowmaker", Class: ClassDamage},
		{ID: "ana", Name: "Ana", Class: ClassSupport},
		{ID: "baptiste", Name: "Baptiste", Class: ClassSupport},
		{ID: "brigitte", Name: "Brigitte", Class: ClassSupport},
		{ID: "illari", Name: "Illari", Class: ClassSupport},
		{ID: "juno", Name: "Juno", Class: ClassSupport},
		{ID: "kiriko", Name: "Kiriko", Class: ClassSupport},
		{ID: "lifeweaver", Name: "Lifeweaver", Class: ClassSupport},
		{ID: "lucio", Name: "Lúcio", Class: ClassSupport, Aliases: []string{"Lucio"}},
		{ID: "mercy", Name: "Mercy", Class: ClassSupport},
		{ID: "moira", Name: "Moira", Class: ClassSupport},
		{ID: "zenyatta", Name: "Zenyatta", Class: ClassSupport},
	}
}

// Vocabulary resolves page tokens to canonical roster entries.
type Vocabulary struct {
	byToken map[string]Hero
	tokens  []string
}

// NewVocabulary builds a lookup over names and aliases, case-insensitive.
func NewVocabulary(list []Hero) Vocabulary {
	v := Vocabulary{byToken: make(map[string]Hero, len(list)*2)}
	for _, h := range list {
		for _, token := range append([]string{h.Name}, h.Aliases...) {
			key := normalizeToken(token)
			if _, exists := v.byToken[key]; !exists {
				v.byToken[key] = h
				v.tokens = append(v.tokens, token)
			}
		}
		// IDs also resolve so already-canonical records re-normalize cleanly.
		if _, exists := v.byToken[h.ID]; !exists {
			v.byToken[h.ID] = h
		}
	}
	return v
}

// Canonical maps a matched token (name, alias, or id) to its roster entry.
func (v Vocabulary) Canonical(token string) (Hero, bool) {
	h, ok := v.byToken[normalizeToken(token)]
	return h, ok
}

// Tokens returns every name and alias the extractor should scan for.
func (v Vocabulary) Tokens() []string {
	out := make([]string, len(v.tokens))
	copy(out, v.tokens)
	return out
}

func normalizeToken(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
