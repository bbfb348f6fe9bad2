package types

// Void is the zero-size value used as a map value for set-like containers.
type Void = struct{}

// NULL is the single Void value.
var NULL Void

// Callable is a zero-argument, zero-return function, used for cleanup hooks.
type Callable = func()
