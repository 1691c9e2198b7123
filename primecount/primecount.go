// Package primecount provides the deliberately slow prime counter used as
// the default busloop workload.
package primecount

// Count returns the number of primes less than or equal to limit, by trial
// division against every candidate divisor below the square root. No sieve,
// no divisor table: the point is to burn CPU time in proportion to limit,
// not to count primes quickly.
//
// Pure, allocation-free, and safe for any number of concurrent callers.
func Count(limit uint64) uint64 {
	var count uint64
	step := uint64(1)
	for i := uint64(2); i <= limit; {
		prime := true
		for j := uint64(2); ; j++ {
			if i/j < j {
				break
			}
			if i%j == 0 {
				prime = false
				break
			}
		}
		if prime {
			count++
		}
		i += step
		// Past 2, even candidates are never prime; skip them.
		step = 2
	}
	return count
}
