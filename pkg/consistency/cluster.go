package consistency

import "slices"

// Cluster groups sample texts that are close to the cluster's anchor, the
// first text placed in it.
type Cluster struct {
	Members []string `json:"members"`
	// Indices are the issue-order positions of Members.
	Indices []int `json:"indices"`
}

// Anchor returns the representative text of the cluster.
func (c Cluster) Anchor() string {
	if len(c.Members) == 0 {
		return ""
	}
	return c.Members[0]
}

// Size returns the number of members.
func (c Cluster) Size() int {
	return len(c.Members)
}

// ClusterTexts assigns each text, in order, to the first existing cluster
// whose anchor scores at least threshold against it, or opens a new cluster.
// Membership is checked against the anchor only, so it is not transitive.
func ClusterTexts(texts []string, threshold float64, sim SimilarityFunc) []Cluster {
	if sim == nil {
		sim = Similarity
	}
	var clusters []Cluster
	for i, text := range texts {
		placed := false
		for c := range clusters {
			if sim(text, clusters[c].Anchor()) >= threshold {
				clusters[c].Members = append(clusters[c].Members, text)
				clusters[c].Indices = append(clusters[c].Indices, i)
				placed = true
				break
			}
		}
		if !placed {
			clusters = append(clusters, Cluster{Members: []string{text}, Indices: []int{i}})
		}
	}
	return clusters
}

// Select returns the anchor of the largest cluster. Ties go to the cluster
// created first. ok is false when there are no clusters.
func Select(clusters []Cluster) (text string, ok bool) {
	i := winnerIndex(clusters)
	if i < 0 {
		return "", false
	}
	return clusters[i].Anchor(), true
}

// winnerIndex stable-sorts cluster positions by size, descending.
func winnerIndex(clusters []Cluster) int {
	if len(clusters) == 0 {
		return -1
	}
	order := make([]int, len(clusters))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return clusters[b].Size() - clusters[a].Size()
	})
	return order[0]
}
