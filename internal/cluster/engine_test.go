package cluster

import (
	"context"
	"math"
	"reflect"
	"testing"

	"github.com/rs/zerolog"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()

	pool := NewComputePool(2)
	t.Cleanup(pool.Close)
	return NewEngine(pool, zerolog.Nop())
}

// Three vectors within 0.1 of each other plus two outliers more than 2.0 away
// from everything else.
func tightTrioWithOutliers() [][]float64 {
	return [][]float64{
		{0.00, 0.00},
		{0.05, 0.00},
		{0.00, 0.06},
		{5.00, 5.00},
		{-5.00, 4.00},
	}
}

func TestRun_GroupsTightTrio(t *testing.T) {
	t.Parallel()

	engine := testEngine(t)
	result, err := engine.Run(context.Background(), tightTrioWithOutliers(), Options{
		MinPoints:   2,
		ThresholdLo: 0.05,
		ThresholdHi: 1.0,
		Samples:     20,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(result.Groups) != 1 {
		t.Fatalf("expected one group, got %d", len(result.Groups))
	}
	group := result.Groups[0]
	if !reflect.DeepEqual(group.Members, []int{0, 1, 2}) {
		t.Fatalf("unexpected members: %v", group.Members)
	}

	// Centroid is roughly (0.017, 0.02); vector 0 sits closest.
	if group.Representative != 0 {
		t.Fatalf("expected representative 0, got %d", group.Representative)
	}

	if result.Threshold < 0.05 || result.Threshold > 1.0 {
		t.Fatalf("threshold %g outside the search range", result.Threshold)
	}
	if result.Rows != 5 || result.Dims != 2 {
		t.Fatalf("unexpected run shape: rows=%d dims=%d", result.Rows, result.Dims)
	}
}

func TestRun_FewerInputsThanMinPoints(t *testing.T) {
	t.Parallel()

	engine := testEngine(t)
	result, err := engine.Run(context.Background(), [][]float64{{1, 2, 3}}, Options{
		MinPoints:   3,
		ThresholdLo: 0.1,
		ThresholdHi: 1.0,
		Samples:     10,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(result.Groups) != 0 {
		t.Fatalf("expected no groups, got %d", len(result.Groups))
	}
	if result.Score != ScoreFloor {
		t.Fatalf("expected floor score, got %g", result.Score)
	}
	if result.Threshold < 0.1 || result.Threshold > 1.0 {
		t.Fatalf("threshold %g outside the search range", result.Threshold)
	}
	if result.Rows != 1 || result.Dims != 3 {
		t.Fatalf("unexpected run shape: rows=%d dims=%d", result.Rows, result.Dims)
	}
}

func TestRun_SingleClusterScoresAtFloor(t *testing.T) {
	t.Parallel()

	// Everything fits in one cluster at every sampled threshold.
	vectors := [][]float64{
		{0.00, 0.00},
		{0.01, 0.00},
		{0.00, 0.01},
		{0.01, 0.01},
	}

	engine := testEngine(t)
	result, err := engine.Run(context.Background(), vectors, Options{
		MinPoints:   2,
		ThresholdLo: 0.5,
		ThresholdHi: 1.0,
		Samples:     5,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(result.Groups) != 1 {
		t.Fatalf("expected one group, got %d", len(result.Groups))
	}
	if result.Score != ScoreFloor {
		t.Fatalf("single-cluster partitions should score at the floor, got %g", result.Score)
	}
}

func TestRun_PrefersSeparatedPairs(t *testing.T) {
	t.Parallel()

	// Two tight pairs far apart. A good threshold keeps them as two clusters.
	vectors := [][]float64{
		{0.0, 0.0},
		{0.1, 0.0},
		{10.0, 10.0},
		{10.1, 10.0},
	}

	engine := testEngine(t)
	result, err := engine.Run(context.Background(), vectors, Options{
		MinPoints:   2,
		ThresholdLo: 0.2,
		ThresholdHi: 5.0,
		Samples:     25,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(result.Groups) != 2 {
		t.Fatalf("expected two groups, got %d", len(result.Groups))
	}
	if result.Score <= 0.9 {
		t.Fatalf("expected a near-perfect silhouette for well separated pairs, got %g", result.Score)
	}
	for _, group := range result.Groups {
		found := false
		for _, member := range group.Members {
			if member == group.Representative {
				found = true
			}
		}
		if !found {
			t.Fatalf("representative %d not among members %v", group.Representative, group.Members)
		}
	}
}

func TestRun_DeterministicAcrossRepeats(t *testing.T) {
	t.Parallel()

	engine := testEngine(t)
	opts := Options{
		MinPoints:   2,
		ThresholdLo: 0.05,
		ThresholdHi: 1.0,
		Samples:     20,
	}

	first, err := engine.Run(context.Background(), tightTrioWithOutliers(), opts)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	for i := 0; i < 5; i++ {
		repeat, err := engine.Run(context.Background(), tightTrioWithOutliers(), opts)
		if err != nil {
			t.Fatalf("repeat Run: %v", err)
		}
		if !reflect.DeepEqual(first, repeat) {
			t.Fatalf("run %d diverged: %+v vs %+v", i, first, repeat)
		}
	}
}

func TestRun_RejectsMixedDimensions(t *testing.T) {
	t.Parallel()

	engine := testEngine(t)
	_, err := engine.Run(context.Background(), [][]float64{{1, 2}, {1, 2, 3}}, Options{
		MinPoints:   2,
		ThresholdLo: 0.1,
		ThresholdHi: 1.0,
		Samples:     5,
	})
	if err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestDBSCAN_FixedThresholdDeterminism(t *testing.T) {
	t.Parallel()

	vectors := tightTrioWithOutliers()
	first := dbscan(vectors, 2, 0.2)
	score := silhouetteScore(vectors, first)
	for i := 0; i < 10; i++ {
		labels := dbscan(vectors, 2, 0.2)
		if !reflect.DeepEqual(first, labels) {
			t.Fatalf("labels diverged on repeat %d: %v vs %v", i, first, labels)
		}
		if got := silhouetteScore(vectors, labels); got != score {
			t.Fatalf("score diverged on repeat %d: %g vs %g", i, got, score)
		}
	}

	if !reflect.DeepEqual(first, []int{0, 0, 0, noiseLabel, noiseLabel}) {
		t.Fatalf("unexpected labels: %v", first)
	}
}

func TestSilhouette_PerfectSeparation(t *testing.T) {
	t.Parallel()

	vectors := [][]float64{
		{0.0, 0.0},
		{0.1, 0.0},
		{10.0, 10.0},
		{10.1, 10.0},
	}
	labels := []int{0, 0, 1, 1}

	score := silhouetteScore(vectors, labels)
	if score < 0.98 {
		t.Fatalf("expected near-perfect separation score, got %g", score)
	}
	if score > 1.0 {
		t.Fatalf("silhouette above 1: %g", score)
	}
}

func TestKDTree_MatchesLinearScan(t *testing.T) {
	t.Parallel()

	vectors := [][]float64{
		{2.0, 3.0, 1.0},
		{5.0, 4.0, 2.0},
		{9.0, 6.0, 3.0},
		{4.0, 7.0, 4.0},
		{8.0, 1.0, 5.0},
		{7.0, 2.0, 6.0},
	}
	members := []int{0, 1, 2, 3, 4, 5}
	tree := newKDTree(vectors, members)

	targets := [][]float64{
		{3.0, 3.0, 2.0},
		{8.5, 5.5, 3.1},
		{0.0, 0.0, 0.0},
		{7.5, 1.5, 5.5},
	}
	for _, target := range targets {
		got, ok := tree.nearest(target)
		if !ok {
			t.Fatal("nearest on non-empty tree returned no result")
		}

		want, wantDist := -1, math.Inf(1)
		for _, i := range members {
			if d := euclidean(target, vectors[i]); d < wantDist {
				want, wantDist = i, d
			}
		}
		if got != want {
			t.Fatalf("target %v: kd-tree found %d, linear scan found %d", target, got, want)
		}
	}
}

func TestComputePool_SurfacesPanics(t *testing.T) {
	t.Parallel()

	pool := NewComputePool(1)
	defer pool.Close()

	_, err := runOn(context.Background(), pool, func() int {
		panic("vector length mismatch")
	})
	if err == nil {
		t.Fatal("expected panic to surface as error")
	}

	// The worker must survive the panic and keep serving jobs.
	value, err := runOn(context.Background(), pool, func() int { return 42 })
	if err != nil {
		t.Fatalf("pool stopped working after a panic: %v", err)
	}
	if value != 42 {
		t.Fatalf("unexpected value: %d", value)
	}
}
