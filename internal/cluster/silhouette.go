package cluster

import "math"

// ScoreFloor is the silhouette value assigned to partitions the metric is
// undefined for: fewer than two clusters, or too few points to cluster at all.
const ScoreFloor = -1.0

// silhouetteScore computes the mean silhouette coefficient over all clustered
// points. Noise points are ignored. Partitions with fewer than two clusters
// score ScoreFloor, which ranks them below any proper multi-cluster result.
func silhouetteScore(vectors [][]float64, labels []int) float64 {
	clusters := clustersFromLabels(labels)
	if len(clusters) < 2 {
		return ScoreFloor
	}

	var total float64
	var counted int

	for clusterID, members := range clusters {
		for _, i := range members {
			a := meanDistance(vectors, i, members)
			b := math.Inf(1)
			for otherID, others := range clusters {
				if otherID == clusterID {
					continue
				}
				if d := meanDistance(vectors, i, others); d < b {
					b = d
				}
			}

			denom := math.Max(a, b)
			if denom > 0 {
				total += (b - a) / denom
			}
			counted++
		}
	}

	if counted == 0 {
		return ScoreFloor
	}
	return total / float64(counted)
}

// meanDistance is the average distance from vectors[i] to the listed members,
// excluding i itself. A singleton cluster yields zero.
func meanDistance(vectors [][]float64, i int, members []int) float64 {
	var sum float64
	var count int
	for _, j := range members {
		if j == i {
			continue
		}
		sum += euclidean(vectors[i], vectors[j])
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
