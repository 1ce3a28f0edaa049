package home

import (
	"math"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// A player's homes are stored as one protobuf message:
//
//	message Homes { repeated Home homes = 1; }
//	message Home {
//	  string name = 1; double x = 2; double y = 3; double z = 4;
//	  sint32 dimension = 5; int64 created_at = 6; int64 modified_at = 7;
//	}
//
// timestamps are unix milliseconds.
const (
	fieldHomes protowire.Number = 1

	fieldName       protowire.Number = 1
	fieldX          protowire.Number = 2
	fieldY          protowire.Number = 3
	fieldZ          protowire.Number = 4
	fieldDimension  protowire.Number = 5
	fieldCreatedAt  protowire.Number = 6
	fieldModifiedAt protowire.Number = 7
)

func encodeHomes(homes []Home) []byte {
	var b []byte
	for _, home := range homes {
		b = protowire.AppendTag(b, fieldHomes, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeHome(home))
	}
	return b
}

func encodeHome(home Home) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldName, protowire.BytesType)
	b = protowire.AppendString(b, home.Name)
	b = appendDouble(b, fieldX, home.Position.X)
	b = appendDouble(b, fieldY, home.Position.Y)
	b = appendDouble(b, fieldZ, home.Position.Z)
	b = protowire.AppendTag(b, fieldDimension, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(home.Dimension)))
	b = protowire.AppendTag(b, fieldCreatedAt, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(home.CreatedAt.UnixMilli()))
	b = protowire.AppendTag(b, fieldModifiedAt, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(home.ModifiedAt.UnixMilli()))
	return b
}

func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func decodeHomes(b []byte) ([]Home, error) {
	var homes []Home
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, errors.WithMessage(protowire.ParseError(n), "bad homes tag")
		}
		b = b[n:]
		if num == fieldHomes && typ == protowire.BytesType {
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, errors.WithMessage(protowire.ParseError(n), "bad home message")
			}
			home, err := decodeHome(raw)
			if err != nil {
				return nil, err
			}
			homes = append(homes, home)
			b = b[n:]
			continue
		}
		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return nil, errors.WithMessagef(protowire.ParseError(n), "bad field %d", num)
		}
		b = b[n:]
	}
	return homes, nil
}

func decodeHome(b []byte) (home Home, err error) {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return home, errors.WithMessage(protowire.ParseError(n), "bad home tag")
		}
		b = b[n:]
		switch {
		case num == fieldName && typ == protowire.BytesType:
			home.Name, n = protowire.ConsumeString(b)
		case (num == fieldX || num == fieldY || num == fieldZ) && typ == protowire.Fixed64Type:
			var v uint64
			v, n = protowire.ConsumeFixed64(b)
			switch num {
			case fieldX:
				home.Position.X = math.Float64frombits(v)
			case fieldY:
				home.Position.Y = math.Float64frombits(v)
			default:
				home.Position.Z = math.Float64frombits(v)
			}
		case num == fieldDimension && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(b)
			home.Dimension = int32(protowire.DecodeZigZag(v))
		case (num == fieldCreatedAt || num == fieldModifiedAt) && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(b)
			if num == fieldCreatedAt {
				home.CreatedAt = time.UnixMilli(int64(v))
			} else {
				home.ModifiedAt = time.UnixMilli(int64(v))
			}
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return home, errors.WithMessagef(protowire.ParseError(n), "bad home field %d", num)
		}
		b = b[n:]
	}
	if home.Name == "" {
		return home, errors.New("home without name")
	}
	return home, nil
}
