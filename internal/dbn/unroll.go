package dbn

// Unroll enumerates (variable, t) for t in [0, T), one slice per time index,
// variables in registration order. It reads neither CPTs nor evidence.
func (n *Network) Unroll(T int) [][]TimeKey {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if T < 0 {
		T = 0
	}
	slices := make([][]TimeKey, 0, T)
	for t := 0; t < T; t++ {
		slice := make([]TimeKey, 0, len(n.variables))
		for _, v := range n.variables {
			slice = append(slice, TimeKey{Variable: v, Time: t})
		}
		slices = append(slices, slice)
	}
	return slices
}
