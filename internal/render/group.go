package render

import (
	"sort"
	"strings"

	"github.com/spherical/quizgen/internal/domain"
)

// Section is the questions of one bucket in render order.
type Section struct {
	Bucket    Bucket
	Questions []domain.Question
}

// Group buckets questions by difficulty. Inside a bucket questions are
// ordered by Index and clustered by hierarchy path in first-seen order.
// Empty buckets are omitted.
func Group(questions []domain.Question) []Section {
	byBucket := make(map[Bucket][]domain.Question)
	for _, q := range questions {
		b := Classify(q.DifficultyTag)
		byBucket[b] = append(byBucket[b], q)
	}

	var sections []Section
	for _, b := range Buckets {
		qs := byBucket[b]
		if len(qs) == 0 {
			continue
		}
		sections = append(sections, Section{Bucket: b, Questions: clusterByPath(qs)})
	}
	return sections
}

func clusterByPath(qs []domain.Question) []domain.Question {
	sorted := make([]domain.Question, len(qs))
	copy(sorted, qs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	firstSeen := make(map[string]int)
	for _, q := range sorted {
		key := pathKey(q.HierarchyPath)
		if _, ok := firstSeen[key]; !ok {
			firstSeen[key] = len(firstSeen)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return firstSeen[pathKey(sorted[i].HierarchyPath)] < firstSeen[pathKey(sorted[j].HierarchyPath)]
	})
	return sorted
}

func pathKey(path []string) string {
	return strings.Join(path, "\x00")
}

// changedFrom returns the first level at which path differs from prev, or
// len(path) when path adds nothing new.
func changedFrom(prev, path []string) int {
	for i := range path {
		if i >= len(prev) || prev[i] != path[i] {
			return i
		}
	}
	return len(path)
}
