package domain

import "sort"

// SortResults orders results by rank with unranked results last, then by participant.
func SortResults(results []SessionResult) {
	sort.Slice(results, func(i, j int) bool {
		ri, rj := results[i].Rank, results[j].Rank
		if (ri == 0) != (rj == 0) {
			return rj == 0
		}
		if ri != rj {
			return ri < rj
		}
		return results[i].Participant < results[j].Participant
	})
}
