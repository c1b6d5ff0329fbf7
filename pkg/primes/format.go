package primes

import (
	"strconv"
	"strings"
)

// Format renders ps as space-separated numbers, perLine to a line.
// A perLine of zero or less puts everything on one line.
func Format(ps []int, perLine int) string {
	var b strings.Builder
	for i, p := range ps {
		if i > 0 {
			if perLine > 0 && i%perLine == 0 {
				b.WriteByte('\n')
			} else {
				b.WriteByte(' ')
			}
		}
		b.WriteString(strconv.Itoa(p))
	}
	return b.String()
}
