// Package cluster groups embedding vectors by cosine density. Used to lay
// out the scene wall by visual similarity and to gather faces into
// identities without knowing how many there are up front.
package cluster

import (
	"math"
	"sort"
)

// Noise marks items that belong to no cluster.
const Noise = -1

// Item is one vector to cluster, keyed by the caller's row id.
type Item struct {
	ID  int64
	Vec []float32
}

// Assignment is the result for one item: its cluster id after size-ordered
// remapping (largest cluster is 0) and its position within the cluster,
// ascending cosine distance from the centroid.
type Assignment struct {
	ID        int64
	ClusterID int
	Order     float64
}

// Params tune the density scan. Eps is a cosine distance radius; MinPts is
// the neighbourhood size needed to seed a cluster.
type Params struct {
	Eps    float64
	MinPts int
}

// Run executes a deterministic density scan over the items. Items are
// visited in input order and neighbourhoods expand in input order, so the
// same input always yields the same clusters.
func Run(items []Item, p Params) []Assignment {
	if p.Eps <= 0 {
		p.Eps = 0.3
	}
	if p.MinPts <= 0 {
		p.MinPts = 2
	}

	n := len(items)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = Noise
	}

	unit := make([][]float32, n)
	for i, it := range items {
		unit[i] = normalizeUnit(it.Vec)
	}

	neighbors := func(i int) []int {
		var out []int
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			if 1-dot(unit[i], unit[j]) <= p.Eps {
				out = append(out, j)
			}
		}
		return out
	}

	nextCluster := 0
	visited := make([]bool, n)
	for i := 0; i < n; i++ {
		if visited[i] {
			continue
		}
		visited[i] = true
		seeds := neighbors(i)
		if len(seeds) < p.MinPts-1 {
			continue
		}
		cid := nextCluster
		nextCluster++
		labels[i] = cid

		// Expand breadth-first in index order.
		queue := append([]int(nil), seeds...)
		for qi := 0; qi < len(queue); qi++ {
			j := queue[qi]
			if labels[j] == Noise {
				labels[j] = cid
			}
			if visited[j] {
				continue
			}
			visited[j] = true
			more := neighbors(j)
			if len(more) >= p.MinPts-1 {
				queue = append(queue, more...)
			}
		}
	}

	remap := remapBySize(labels, nextCluster)

	// Per-cluster centroid ordering.
	centroids := make(map[int][]float64)
	counts := make(map[int]int)
	for i, lbl := range labels {
		if lbl == Noise {
			continue
		}
		cid := remap[lbl]
		c := centroids[cid]
		if c == nil {
			c = make([]float64, len(unit[i]))
			centroids[cid] = c
		}
		for d, v := range unit[i] {
			c[d] += float64(v)
		}
		counts[cid]++
	}
	for cid, c := range centroids {
		for d := range c {
			c[d] /= float64(counts[cid])
		}
	}

	out := make([]Assignment, n)
	for i, lbl := range labels {
		a := Assignment{ID: items[i].ID, ClusterID: Noise}
		if lbl != Noise {
			cid := remap[lbl]
			a.ClusterID = cid
			a.Order = cosineDistance(unit[i], centroids[cid])
		}
		out[i] = a
	}
	return out
}

// remapBySize renumbers cluster ids so the biggest cluster is 0, ties
// broken by original id for determinism.
func remapBySize(labels []int, clusters int) map[int]int {
	sizes := make([]int, clusters)
	for _, lbl := range labels {
		if lbl != Noise {
			sizes[lbl]++
		}
	}
	order := make([]int, clusters)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		if sizes[order[a]] != sizes[order[b]] {
			return sizes[order[a]] > sizes[order[b]]
		}
		return order[a] < order[b]
	})
	remap := make(map[int]int, clusters)
	for newID, oldID := range order {
		remap[oldID] = newID
	}
	return remap
}

func normalizeUnit(v []float32) []float32 {
	if len(v) == 0 {
		return v
	}
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum <= 0 {
		return v
	}
	den := float32(1.0 / math.Sqrt(sum))
	out := make([]float32, len(v))
	for i := range v {
		out[i] = v[i] * den
	}
	return out
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func cosineDistance(v []float32, centroid []float64) float64 {
	var dot, na, nb float64
	n := len(v)
	if len(centroid) < n {
		n = len(centroid)
	}
	for i := 0; i < n; i++ {
		dot += float64(v[i]) * centroid[i]
		na += float64(v[i]) * float64(v[i])
		nb += centroid[i] * centroid[i]
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
