package mobile

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the mobile model message.
const (
	fModelVersion       protowire.Number = 1
	fModelInputShape    protowire.Number = 2
	fModelOutputShape   protowire.Number = 3
	fModelPreprocessing protowire.Number = 4
	fModelOperator      protowire.Number = 5
	fModelTensor        protowire.Number = 6
	fModelName          protowire.Number = 7
	fModelGeneratedBy   protowire.Number = 8

	fPreResize    protowire.Number = 1
	fPreColorMode protowire.Number = 2

	fOpName    protowire.Number = 1
	fOpKind    protowire.Number = 2
	fOpSet     protowire.Number = 3
	fOpAttrs   protowire.Number = 4
	fOpTensors protowire.Number = 5

	fTensorName  protowire.Number = 1
	fTensorShape protowire.Number = 2
	fTensorDType protowire.Number = 3
	fTensorScale protowire.Number = 4
	fTensorData  protowire.Number = 5
)

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendFloat(b []byte, num protowire.Number, v float32) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, math.Float32bits(v))
}

// appendPacked writes ints as a packed repeated varint field.
func appendPacked(b []byte, num protowire.Number, vs []int) []byte {
	var inner []byte
	for _, v := range vs {
		inner = protowire.AppendVarint(inner, uint64(v))
	}
	return appendBytes(b, num, inner)
}

// field is one decoded key/value pair. Exactly one of v or raw is set,
// depending on the wire type.
type field struct {
	num protowire.Number
	typ protowire.Type
	v   uint64
	raw []byte
}

// walk calls fn for every field in b.
func walk(b []byte, fn func(field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.v, n = protowire.ConsumeVarint(b)
		case protowire.Fixed32Type:
			var v uint32
			v, n = protowire.ConsumeFixed32(b)
			f.v = uint64(v)
		case protowire.BytesType:
			f.raw, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

func unpackInts(b []byte) ([]int, error) {
	var out []int
	for len(b) > 0 {
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		if v > math.MaxInt32 {
			return nil, fmt.Errorf("dimension %d out of range", v)
		}
		out = append(out, int(v))
		b = b[n:]
	}
	return out, nil
}
