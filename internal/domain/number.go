package domain

import (
	"encoding/json"
	"math"

	"github.com/vmihailenco/msgpack/v5"
)

// Number is a float that serialises NaN and ±Inf as null.
// JSON null decodes back to NaN; MessagePack output is write-only and a
// nil decodes to the zero value.
type Number float64

// MarshalJSON implements json.Marshaler.
func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Finite() {
		return []byte("null"), nil
	}
	return json.Marshal(float64(n))
}

// UnmarshalJSON implements json.Unmarshaler. null decodes to NaN.
func (n *Number) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*n = Number(math.NaN())
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*n = Number(f)
	return nil
}

// EncodeMsgpack implements msgpack.CustomEncoder.
func (n Number) EncodeMsgpack(enc *msgpack.Encoder) error {
	if !n.Finite() {
		return enc.EncodeNil()
	}
	return enc.EncodeFloat64(float64(n))
}

// Finite reports whether the value is neither NaN nor infinite.
func (n Number) Finite() bool {
	f := float64(n)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
