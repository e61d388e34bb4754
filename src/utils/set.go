package utils

// Set is a generic unordered collection of comparable values.
type Set[T comparable] map[T]struct{}

// -----------------------------------------------------------------------------

func NewSet[T comparable]() Set[T] {
	return make(Set[T])
}

// -----------------------------------------------------------------------------

func (s Set[T]) Include(value T) bool {
	_, found := s[value]
	return found
}

// -----------------------------------------------------------------------------

func (s Set[T]) Insert(value T) {
	s[value] = struct{}{}
}

// -----------------------------------------------------------------------------

func (s Set[T]) Slice() []T {
	result := make([]T, 0, len(s))
	for item := range s {
		result = append(result, item)
	}
	return result
}

// -----------------------------------------------------------------------------

// Diff returns the members of s that are not in other.
func (s Set[T]) Diff(other Set[T]) []T {
	var result []T
	for item := range s {
		if !other.Include(item) {
			result = append(result, item)
		}
	}
	return result
}
