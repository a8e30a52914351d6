package cluster

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Options control the threshold grid search. Thresholds are sampled linearly
// across [ThresholdLo, ThresholdHi]; each sample runs a full density
// clustering pass and is scored by (cluster count) x (silhouette score).
type Options struct {
	MinPoints   int
	ThresholdLo float64
	ThresholdHi float64
	Samples     int

	// DisableEarlyStop turns off the heuristic that abandons the search once
	// the cluster count falls below its running maximum. The heuristic is
	// empirical, so it stays switchable.
	DisableEarlyStop bool
}

func (o Options) validate() error {
	if o.MinPoints < 1 {
		return fmt.Errorf("min points must be >= 1, got %d", o.MinPoints)
	}
	if o.ThresholdLo <= 0 {
		return fmt.Errorf("threshold lower bound must be > 0, got %g", o.ThresholdLo)
	}
	if o.ThresholdHi < o.ThresholdLo {
		return fmt.Errorf("threshold range is inverted: [%g, %g]", o.ThresholdLo, o.ThresholdHi)
	}
	if o.Samples < 1 {
		return fmt.Errorf("sample count must be >= 1, got %d", o.Samples)
	}
	return nil
}

// Group is one cluster: member indexes into the input vector list and the
// member nearest the cluster centroid.
type Group struct {
	Members        []int
	Representative int
}

// Result is the outcome of one clustering run.
type Result struct {
	Groups    []Group
	Threshold float64
	MinPoints int
	Score     float64
	Rows      int
	Dims      int
}

// Engine picks a similarity threshold by grid search and partitions embedding
// vectors into story groups. The numeric work runs on a ComputePool.
type Engine struct {
	pool   *ComputePool
	logger zerolog.Logger
}

func NewEngine(pool *ComputePool, logger zerolog.Logger) *Engine {
	return &Engine{pool: pool, logger: logger}
}

// Run clusters the given vectors. Fewer than MinPoints inputs yield an empty
// result with the score at its floor so the caller can still persist a run.
// All vectors must share one dimension; a mismatch is an error.
func (e *Engine) Run(ctx context.Context, vectors [][]float64, opts Options) (Result, error) {
	if err := opts.validate(); err != nil {
		return Result{}, err
	}

	dims := 0
	if len(vectors) > 0 {
		dims = len(vectors[0])
	}
	for i, vector := range vectors {
		if len(vector) != dims {
			return Result{}, fmt.Errorf("vector %d has %d dimensions, expected %d", i, len(vector), dims)
		}
	}

	base := Result{
		Threshold: opts.ThresholdLo,
		MinPoints: opts.MinPoints,
		Score:     ScoreFloor,
		Rows:      len(vectors),
		Dims:      dims,
	}
	if len(vectors) < opts.MinPoints {
		return base, nil
	}

	result, err := runOn(ctx, e.pool, func() Result {
		return e.search(vectors, opts, base)
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

func (e *Engine) search(vectors [][]float64, opts Options, base Result) Result {
	best := base
	bestObjective := 0.0
	bestClustered := 0
	haveBest := false
	maxClusters := 0

	for sample := 0; sample < opts.Samples; sample++ {
		threshold := sampleThreshold(opts, sample)

		labels := dbscan(vectors, opts.MinPoints, threshold)
		clusters := clustersFromLabels(labels)
		score := silhouetteScore(vectors, labels)

		e.logger.Debug().
			Float64("threshold", threshold).
			Int("clusters", len(clusters)).
			Float64("score", score).
			Msg("clustering sample")

		// A sample that found nothing carries no information; it never
		// displaces a sample that produced clusters. Ties on the composite
		// objective go to the partition that clusters more points.
		if len(clusters) > 0 {
			candidate := objective(len(clusters), score)
			clustered := clusteredPoints(clusters)
			better := candidate > bestObjective ||
				(candidate == bestObjective && clustered > bestClustered)
			if !haveBest || better {
				haveBest = true
				bestObjective = candidate
				bestClustered = clustered
				best = base
				best.Threshold = threshold
				best.Score = score
				best.Groups = buildGroups(vectors, clusters)
			}
		}

		if len(clusters) > maxClusters {
			maxClusters = len(clusters)
		} else if !opts.DisableEarlyStop && len(clusters) < maxClusters {
			// Tighter thresholds have started merging clusters away; wider
			// ones are assumed to only get worse.
			break
		}
	}

	return best
}

func sampleThreshold(opts Options, sample int) float64 {
	if opts.Samples == 1 {
		return opts.ThresholdLo
	}
	step := (opts.ThresholdHi - opts.ThresholdLo) / float64(opts.Samples-1)
	return opts.ThresholdLo + step*float64(sample)
}

func objective(clusters int, score float64) float64 {
	return float64(clusters) * score
}

func clusteredPoints(clusters [][]int) int {
	total := 0
	for _, members := range clusters {
		total += len(members)
	}
	return total
}

// buildGroups picks each cluster's representative: the member nearest the
// cluster centroid under a per-cluster kd-tree.
func buildGroups(vectors [][]float64, clusters [][]int) []Group {
	groups := make([]Group, 0, len(clusters))
	for _, members := range clusters {
		groups = append(groups, Group{
			Members:        members,
			Representative: nearestToCentroid(vectors, members),
		})
	}
	return groups
}

func nearestToCentroid(vectors [][]float64, members []int) int {
	centroid := make([]float64, len(vectors[members[0]]))
	for _, i := range members {
		for d, value := range vectors[i] {
			centroid[d] += value
		}
	}
	for d := range centroid {
		centroid[d] /= float64(len(members))
	}

	tree := newKDTree(vectors, members)
	representative, ok := tree.nearest(centroid)
	if !ok {
		return members[0]
	}
	return representative
}
