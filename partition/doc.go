// Package partition shards the store into independent graph indexes.
// Hash routing scatters ids uniformly; semantic routing clusters
// vectors around streaming centroids so reads can probe only nearby
// partitions. Overgrown partitions split along a 2-means boundary.
package partition
