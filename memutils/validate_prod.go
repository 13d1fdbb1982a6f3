//go:build !debug_substrate

package memutils

import "golang.org/x/exp/constraints"

// DebugEnabled is true when substrate is built with the debug_substrate build tag
const DebugEnabled = false

// DebugValidate will call Validate on the provided object and panics if any errors are returned. This
// method no-ops unless the debug_substrate build tag is present
func DebugValidate(validatable Validatable) {
}

// DebugCheckPow2 will verify that the numerical value passed in is a power of two, and panics if it is not.
// This method no-ops unless the debug_substrate build tag is present.
func DebugCheckPow2[T constraints.Integer](value T, name string) {
}
