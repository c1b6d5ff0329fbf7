package primes

// IsPrime reports whether n is prime by trial division with 6k±1 candidates.
func IsPrime(n int) bool {
	switch {
	case n < 2:
		return false
	case n < 4:
		return true
	case n%2 == 0, n%3 == 0:
		return false
	}

	for d := 5; d*d <= n; d += 6 {
		if n%d == 0 || n%(d+2) == 0 {
			return false
		}
	}
	return true
}
