package coordinator

import "github.com/hydrobb/pumpsched/internal/decision"

// Assignment is the set of root-level branches one rank owns. When the
// root domain is finer-partitioned because there are more ranks than
// root candidates, Restrict additionally names, for each y_0 this rank
// owns, exactly which y_1 values within that subtree belong to it; a
// y_0 absent from Restrict is owned outright (every y_1 under it).
type Assignment struct {
	Roots    []int
	Restrict map[int][]int
}

// Partition assigns the y_0 candidates at the root of the search to rank
// out of ranks ranks by round robin on y_0 mod ranks. If ranks exceeds the
// number of distinct y_0 values (|D|^P), the partition recurses one level
// deeper, assigning by (y_0, y_1) pairs instead, so that every rank still
// gets distinct work whenever ranks <= |D|^(P+1), and no two ranks ever
// explore the same (y_0, y_1) pair.
func Partition(rank, ranks, pumpCount, domainSize int) Assignment {
	rootDomain := decision.DomainSize(pumpCount, domainSize)
	if ranks <= rootDomain {
		return Assignment{Roots: roundRobin(rank, ranks, rootDomain)}
	}
	return deepenPartition(rank, ranks, pumpCount, domainSize)
}

func roundRobin(rank, ranks, domain int) []int {
	var ys []int
	for y := 0; y < domain; y++ {
		if y%ranks == rank {
			ys = append(ys, y)
		}
	}
	return ys
}

// deepenPartition is used when there are more ranks than root candidates:
// it splits each y_0 subtree across ranks by (y_0, y_1) pair instead of
// whole subtree, assigning every fine-grained pair to exactly one rank by
// round robin over the finer index space. A rank that owns only part of a
// y_0 subtree records which y_1 values it owns in Restrict, so the
// engine can be told to explore only that slice instead of the whole
// subtree.
func deepenPartition(rank, ranks, pumpCount, domainSize int) Assignment {
	rootDomain := decision.DomainSize(pumpCount, domainSize)
	fineDomain := rootDomain * domainSize // one extra period of branching
	a := Assignment{Restrict: make(map[int][]int)}
	seenRoot := make(map[int]bool)
	for fine := 0; fine < fineDomain; fine++ {
		if fine%ranks != rank {
			continue
		}
		y0 := fine / domainSize
		y1 := fine % domainSize
		if !seenRoot[y0] {
			seenRoot[y0] = true
			a.Roots = append(a.Roots, y0)
		}
		a.Restrict[y0] = append(a.Restrict[y0], y1)
	}
	return a
}
