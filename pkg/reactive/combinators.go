package reactive

// Map derives a computed by applying fn to src. The result delivers on the
// UI goroutine when src does.
//
// Example:
//
//	label := reactive.Map(count, func(n int) string { return strconv.Itoa(n) })
func Map[S, T any](src Readable[S], fn func(S) T, opts ...Option) *Computed[T] {
	return newComputed(infallible(func(f *Frame) T {
		return fn(src.Get(f))
	}), callerPC(1), append(inheritDispatch(src), opts...))
}

// Map2 derives a computed from two sources.
func Map2[A, B, T any](a Readable[A], b Readable[B], fn func(A, B) T, opts ...Option) *Computed[T] {
	return newComputed(infallible(func(f *Frame) T {
		return fn(a.Get(f), b.Get(f))
	}), callerPC(1), append(inheritDispatch(a, b), opts...))
}

// Map3 derives a computed from three sources.
func Map3[A, B, C, T any](a Readable[A], b Readable[B], c Readable[C], fn func(A, B, C) T, opts ...Option) *Computed[T] {
	return newComputed(infallible(func(f *Frame) T {
		return fn(a.Get(f), b.Get(f), c.Get(f))
	}), callerPC(1), append(inheritDispatch(a, b, c), opts...))
}

// Combined is a fixed set of sources a computed depends on regardless of
// what its function reads.
type Combined struct {
	srcs []Source
}

// Combine groups sources for Compute.
func Combine(srcs ...Source) *Combined {
	out := make([]Source, 0, len(srcs))
	for _, s := range srcs {
		if s != nil {
			out = append(out, s)
		}
	}
	return &Combined{srcs: out}
}

// Sources returns the grouped sources.
func (c *Combined) Sources() []Source {
	return c.srcs
}

// Compute derives a computed that depends on every source in comb plus
// whatever fn reads.
func Compute[T any](comb *Combined, fn func(f *Frame) T, opts ...Option) *Computed[T] {
	return newComputed(infallible(func(f *Frame) T {
		for _, s := range comb.srcs {
			if err := f.Track(s); err != nil {
				panic(err)
			}
		}
		return fn(f)
	}), callerPC(1), append(inheritDispatch(comb.srcs...), opts...))
}
