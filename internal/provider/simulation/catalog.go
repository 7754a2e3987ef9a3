package simulation

import "strings"

type catalogEntry struct {
	slug     string
	keywords []string
}

// catalog is ordered: the first entry with a keyword in the prompt wins.
var catalog = []catalogEntry{
	{slug: "robot", keywords: []string{"robot", "mech", "android", "cyborg"}},
	{slug: "vehicle", keywords: []string{"car", "vehicle", "truck", "spaceship", "ship"}},
	{slug: "creature", keywords: []string{"dragon", "creature", "monster", "cat", "dog"}},
	{slug: "nature", keywords: []string{"tree", "forest", "plant", "flower", "mountain"}},
	{slug: "building", keywords: []string{"house", "castle", "building", "tower"}},
}

var defaultEntry = catalogEntry{slug: "default"}

func match(prompt string) catalogEntry {
	words := strings.FieldsFunc(strings.ToLower(prompt), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	for _, entry := range catalog {
		for _, kw := range entry.keywords {
			for _, w := range words {
				if w == kw || w == kw+"s" {
					return entry
				}
			}
		}
	}
	return defaultEntry
}
