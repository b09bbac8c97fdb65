package discovery

// MergeCandidates collapses candidates from multiple engines into one list,
// keyed by source-page URL. An identity-verified candidate replaces a visual
// one pointing at the same page; duplicates from the same kind keep the first
// occurrence, which arrives rank-ordered per engine. Candidates without a
// source URL cannot collide and pass through untouched. The surviving list
// keeps the original insertion order.
func MergeCandidates(candidates []Candidate) []Candidate {
	merged := make([]Candidate, 0, len(candidates))
	byURL := make(map[string]int, len(candidates))

	for _, c := range candidates {
		if c.SourceURL == "" {
			merged = append(merged, c)
			continue
		}

		pos, seen := byURL[c.SourceURL]
		if !seen {
			byURL[c.SourceURL] = len(merged)
			merged = append(merged, c)
			continue
		}

		if merged[pos].Kind != KindIdentity && c.Kind == KindIdentity {
			merged[pos] = c
		}
	}

	return merged
}
