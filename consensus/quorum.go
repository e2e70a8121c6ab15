package consensus

// Quorum returns the number of matching replies required out of n replicas:
// ceil((n+1)/2) for even n and ceil(n/2) for odd n.
func Quorum(n int) int {
	if n%2 == 0 {
		return (n + 2) / 2
	}
	return (n + 1) / 2
}
