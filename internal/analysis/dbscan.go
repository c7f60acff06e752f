package analysis

// Noise is the label assigned to points too sparse to join any cluster.
// It is a valid outcome, not an error.
const Noise = -1

// DBSCAN partitions points into density-based clusters using cosine distance
// (1 - cosine similarity). A point with at least minSamples neighbors within
// eps (itself included) seeds a cluster; density-reachable points join it.
// Remaining points are labeled Noise.
//
// Labels are returned in input order and cluster ids are assigned in order of
// the first seed point, with neighbor scans in input order, so the output is
// deterministic for a fixed input and parameters.
func DBSCAN(points [][]float32, eps float64, minSamples int) []int {
	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = Noise
	}
	if len(points) == 0 || minSamples < 1 {
		return labels
	}

	visited := make([]bool, len(points))
	nextCluster := 0

	for i := range points {
		if visited[i] {
			continue
		}
		visited[i] = true

		neighbors := regionQuery(points, i, eps)
		if len(neighbors) < minSamples {
			continue
		}

		labels[i] = nextCluster
		expandCluster(points, labels, visited, neighbors, nextCluster, eps, minSamples)
		nextCluster++
	}

	return labels
}

// expandCluster grows a cluster from a seed's neighborhood, scanning the
// frontier in insertion order to keep assignments stable.
func expandCluster(points [][]float32, labels []int, visited []bool, frontier []int, cluster int, eps float64, minSamples int) {
	for at := 0; at < len(frontier); at++ {
		j := frontier[at]

		if labels[j] == Noise {
			labels[j] = cluster
		}

		if visited[j] {
			continue
		}
		visited[j] = true

		neighbors := regionQuery(points, j, eps)
		if len(neighbors) >= minSamples {
			frontier = append(frontier, neighbors...)
		}
	}
}

// regionQuery returns the indices of all points within eps of points[i],
// including i itself, in input order.
func regionQuery(points [][]float32, i int, eps float64) []int {
	var neighbors []int
	for j := range points {
		if CosineDistance(points[i], points[j]) <= eps {
			neighbors = append(neighbors, j)
		}
	}
	return neighbors
}
