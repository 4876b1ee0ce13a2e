package optional

import "encoding/json"

// Field tells an absent JSON field apart from one explicitly set, including
// to null.
type Field[T any] struct {
	Defined bool
	Value   T
}

func New[T any](value T) Field[T] {
	return Field[T]{Defined: true, Value: value}
}

func (f *Field[T]) UnmarshalJSON(data []byte) error {
	f.Defined = true
	return json.Unmarshal(data, &f.Value)
}

func (f Field[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Value)
}
