package signal

import "sort"

// sortedKeys gives map iteration a fixed order so matched keyword lists are
// reproducible.
func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
