// Package primes finds the n-th prime with a growing Sieve of Eratosthenes.
package primes

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
)

// ErrInvalidArgument is returned by NthPrime for a negative index.
var ErrInvalidArgument = errors.New("primes: invalid argument")

// seedBound holds at least the first 6 primes (2..13).
const seedBound = 20

// NthPrime returns the n-th prime, counting from 0 (NthPrime(0) == 2).
func NthPrime(n int) (int, error) {
	if n < 0 {
		return 0, fmt.Errorf("%w: index %d is negative", ErrInvalidArgument, n)
	}

	switch n {
	case 0:
		return 2, nil
	case 1:
		return 3, nil
	case 2:
		return 5, nil
	case 3:
		return 7, nil
	case 4:
		return 11, nil
	}

	return nthFromBound(n, EstimateUpperBound(n)), nil
}

// nthFromBound sieves up to bound and grows it by half until more than n
// primes are found. Prime density below L is about L/ln(L) > 0, so the loop
// ends for every finite n.
func nthFromBound(n, bound int) int {
	l := logger().With(zap.Int("n", n))
	l.Debug("NthPrime: entered", zap.Int("bound", bound))

	for {
		ps := Sieve(bound)
		l.Debug("NthPrime: sieved", zap.Int("bound", bound), zap.Int("found", len(ps)))
		if len(ps) > n {
			l.Debug("NthPrime: exit", zap.Int("result", ps[n]))
			return ps[n]
		}
		bound = grow(bound)
	}
}

// grow returns floor(bound*1.5), but always at least bound+1.
func grow(bound int) int {
	next := bound + bound/2
	if next <= bound {
		next = bound + 1
	}
	return next
}

// EstimateUpperBound returns a sieve limit that should hold the n-th prime.
// It is n*(ln n + ln ln n) with a 20% margin plus 100; NthPrime does not
// rely on it being large enough.
func EstimateUpperBound(n int) int {
	if n < 6 {
		return seedBound
	}
	ln := math.Log(float64(n))
	estimate := float64(n) * (ln + math.Log(ln))
	return int(estimate*1.2) + 100
}

// Sieve returns every prime <= limit in ascending order.
func Sieve(limit int) []int {
	if limit < 2 {
		return []int{}
	}

	isPrime := make([]bool, limit+1)
	for i := 2; i <= limit; i++ {
		isPrime[i] = true
	}

	// Multiples below i*i were already crossed out by a smaller factor.
	for i := 2; i*i <= limit; i++ {
		if !isPrime[i] {
			continue
		}
		for m := i * i; m <= limit; m += i {
			isPrime[m] = false
		}
	}

	var ps []int
	if limit > 10 {
		ps = make([]int, 0, int(float64(limit)/math.Log(float64(limit))*1.3))
	}
	for i := 2; i <= limit; i++ {
		if isPrime[i] {
			ps = append(ps, i)
		}
	}
	return ps
}
