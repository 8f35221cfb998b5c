// Package decision implements the bidirectional mapping between a period's
// combined actuation index y and the per-pump speed vector x it encodes.
package decision

import "fmt"

// Encode folds a per-pump speed vector x, each entry an index into domain,
// into a single combined index y by treating x as the digits of a base
// len(domain) number with pump 0 as the least-significant digit.
func Encode(x []int, domainSize int) (int, error) {
	if domainSize <= 0 {
		return 0, fmt.Errorf("decision: domain size must be positive, got %d", domainSize)
	}
	y := 0
	for i := len(x) - 1; i >= 0; i-- {
		xi := x[i]
		if xi < 0 || xi >= domainSize {
			return 0, fmt.Errorf("decision: pump factor index %d out of range [0,%d)", xi, domainSize)
		}
		y = y*domainSize + xi
	}
	return y, nil
}

// Decode expands a combined index y back into the per-pump speed vector x
// for pumpCount pumps over a domain of size domainSize, pump 0 first as
// the least-significant digit. It is the exact inverse of Encode.
func Decode(y, pumpCount, domainSize int) ([]int, error) {
	if domainSize <= 0 {
		return nil, fmt.Errorf("decision: domain size must be positive, got %d", domainSize)
	}
	if pumpCount <= 0 {
		return nil, fmt.Errorf("decision: pump count must be positive, got %d", pumpCount)
	}
	maxY := 1
	for i := 0; i < pumpCount; i++ {
		maxY *= domainSize
	}
	if y < 0 || y >= maxY {
		return nil, fmt.Errorf("decision: combined index %d out of range [0,%d)", y, maxY)
	}
	x := make([]int, pumpCount)
	for i := 0; i < pumpCount; i++ {
		x[i] = y % domainSize
		y /= domainSize
	}
	return x, nil
}

// DomainSize returns |D|^pumpCount, the number of distinct combined
// indices for a period.
func DomainSize(pumpCount, domainSize int) int {
	n := 1
	for i := 0; i < pumpCount; i++ {
		n *= domainSize
	}
	return n
}

// Successors enumerates every combined index reachable from the current
// period, i.e. every integer in [0, DomainSize(pumpCount, domainSize)).
func Successors(pumpCount, domainSize int) []int {
	n := DomainSize(pumpCount, domainSize)
	ys := make([]int, n)
	for i := range ys {
		ys[i] = i
	}
	return ys
}
