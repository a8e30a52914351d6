package cluster

import "math"

// noiseLabel marks points with fewer than minPts neighbors inside eps.
const noiseLabel = -1

// euclidean returns the Euclidean distance between two vectors of equal length.
func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// dbscan labels every vector with a cluster id starting at 0, or noiseLabel.
// A point is a core point when at least minPts vectors (itself included) lie
// within eps; clusters grow by breadth-first expansion from core points.
// Iteration follows input order, so labeling is deterministic.
func dbscan(vectors [][]float64, minPts int, eps float64) []int {
	n := len(vectors)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = noiseLabel
	}

	visited := make([]bool, n)
	nextCluster := 0

	for i := 0; i < n; i++ {
		if visited[i] {
			continue
		}
		visited[i] = true

		neighbors := regionQuery(vectors, i, eps)
		if len(neighbors) < minPts {
			continue
		}

		labels[i] = nextCluster
		queue := append([]int(nil), neighbors...)
		for head := 0; head < len(queue); head++ {
			j := queue[head]
			if labels[j] == noiseLabel {
				labels[j] = nextCluster
			}
			if visited[j] {
				continue
			}
			visited[j] = true

			expanded := regionQuery(vectors, j, eps)
			if len(expanded) >= minPts {
				queue = append(queue, expanded...)
			}
		}

		nextCluster++
	}

	return labels
}

// regionQuery returns the indexes of all vectors within eps of vectors[center],
// including center itself.
func regionQuery(vectors [][]float64, center int, eps float64) []int {
	neighbors := make([]int, 0, 8)
	for i := range vectors {
		if euclidean(vectors[center], vectors[i]) <= eps {
			neighbors = append(neighbors, i)
		}
	}
	return neighbors
}

// clustersFromLabels converts per-point labels into member index lists ordered
// by cluster id. Noise points are excluded.
func clustersFromLabels(labels []int) [][]int {
	count := 0
	for _, label := range labels {
		if label+1 > count {
			count = label + 1
		}
	}

	clusters := make([][]int, count)
	for i, label := range labels {
		if label == noiseLabel {
			continue
		}
		clusters[label] = append(clusters[label], i)
	}
	return clusters
}
