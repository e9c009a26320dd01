package utils

// Value dereferences v, returning the zero value for nil. Used for the optional user fields.
func Value[T any](v *T) T {
	if v == nil {
		return *new(T)
	}
	return *v
}

func Ptr[T any](v T) *T {
	return &v
}

// NonZeroPtr returns nil for the zero value, so unset flags stay out of partial updates.
func NonZeroPtr[T comparable](v T) *T {
	var zero T
	if v == zero {
		return nil
	}
	return &v
}
