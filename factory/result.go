package factory

// Result is the outcome of a build operation: either a Success carrying the
// built message or a Failed wrapping the *Failure that describes why the
// input was rejected.
//
// The message type is part of the method set, so a Result of one message
// type is never assignable to a Result of another.
type Result[T any] interface {
	// Succeeded reports whether the result is a Success.
	Succeeded() bool

	result(T)
}

// Success carries a fully constructed message.
type Success[T any] struct {
	Message T
}

// Succeeded returns true.
func (Success[T]) Succeeded() bool { return true }

func (Success[T]) result(T) {}

// Failed is the rejected variant of Result[T]. It embeds the *Failure, so it
// reads and formats as one.
type Failed[T any] struct {
	*Failure
}

// Succeeded returns false.
func (Failed[T]) Succeeded() bool { return false }

func (Failed[T]) result(T) {}

var (
	_ Result[struct{}] = Success[struct{}]{}
	_ Result[struct{}] = Failed[struct{}]{}
)

func fail[T any](f *Failure) Result[T] {
	return Failed[T]{Failure: f}
}

// Unwrap converts r into the conventional (value, error) pair.
// On failure the returned error is the *Failure and the value is the zero T.
func Unwrap[T any](r Result[T]) (T, error) {
	var zero T
	switch v := r.(type) {
	case Success[T]:
		return v.Message, nil
	case Failed[T]:
		if v.Failure != nil {
			return zero, v.Failure
		}
	}
	return zero, &Failure{Kind: FailureInvalidMessage, Reason: "empty result"}
}

// FailureOf returns the *Failure inside r, or nil when r succeeded.
func FailureOf[T any](r Result[T]) *Failure {
	if f, ok := r.(Failed[T]); ok {
		return f.Failure
	}
	return nil
}
