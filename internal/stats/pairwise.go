package stats

import "iter"

// Pair holds two adjacent elements of a sequence.
type Pair[T any] struct {
	First  T
	Second T
}

// Pairwise yields (s0,s1), (s1,s2), ... lazily. Sequences shorter than two
// elements yield nothing. Every range over the result starts from the
// beginning of seq.
func Pairwise[T any](seq []T) iter.Seq2[T, T] {
	return func(yield func(T, T) bool) {
		for i := 0; i+1 < len(seq); i++ {
			if !yield(seq[i], seq[i+1]) {
				return
			}
		}
	}
}

// Pairs materialises Pairwise into a slice.
func Pairs[T any](seq []T) []Pair[T] {
	if len(seq) < 2 {
		return nil
	}
	out := make([]Pair[T], 0, len(seq)-1)
	for a, b := range Pairwise(seq) {
		out = append(out, Pair[T]{First: a, Second: b})
	}
	return out
}
