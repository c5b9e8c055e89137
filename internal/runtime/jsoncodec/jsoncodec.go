package jsoncodec

import (
	"io"

	"github.com/bytedance/sonic"
)

// Discovery records cross process boundaries; ConfigStd sorts map keys.
var defaultConfig = sonic.ConfigStd

func Marshal(v any) ([]byte, error) {
	return defaultConfig.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return defaultConfig.Unmarshal(data, v)
}

func Encode(w io.Writer, v any) error {
	return defaultConfig.NewEncoder(w).Encode(v)
}

// DecodeAs unmarshals data into a new T.
func DecodeAs[T any](data []byte) (T, error) {
	var out T
	err := defaultConfig.Unmarshal(data, &out)
	return out, err
}
