// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

// Package pointers helps with the optional fields of partial updates
package pointers

// To returns a pointer to a copy of v
func To[T any](v T) *T {
	return &v
}

// Value returns the value from ptr or the zero value if the pointer is nil
func Value[T any](ptr *T) T {
	if ptr != nil {
		return *ptr
	}
	var zero T
	return zero
}

// Convert applies f to the value of ptr. A nil pointer stays nil.
func Convert[T, U any](ptr *T, f func(T) U) *U {
	if ptr == nil {
		return nil
	}
	return To(f(*ptr))
}
