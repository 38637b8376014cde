package ensemble

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the coordinator protocol messages.
//
//	message ReduceRequest  { bytes member = 1; string restraint = 2; uint64 attempt = 3; repeated double grid = 4; }
//	message ReduceResponse { uint64 round = 1; repeated double grid = 2; string error = 3; }
const (
	requestMemberField    protowire.Number = 1
	requestRestraintField protowire.Number = 2
	requestAttemptField   protowire.Number = 3
	requestGridField      protowire.Number = 4

	responseRoundField protowire.Number = 1
	responseGridField  protowire.Number = 2
	responseErrorField protowire.Number = 3
)

var errMalformed = errors.New("malformed message")

// reduceRequest carries the member's local attempt counter. Members retry
// independently, so attempts differ across members; the coordinator numbers
// rounds itself and reports that number in reduceResponse.
type reduceRequest struct {
	Member    uuid.UUID
	Restraint string
	Attempt   uint64
	Grid      []float64
}

type reduceResponse struct {
	Round uint64
	Grid  []float64
	Error string
}

func appendGrid(b []byte, num protowire.Number, grid []float64) []byte {
	if len(grid) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	b = protowire.AppendVarint(b, uint64(8*len(grid)))
	for _, v := range grid {
		b = protowire.AppendFixed64(b, math.Float64bits(v))
	}
	return b
}

func consumeGrid(b []byte) ([]float64, error) {
	if len(b)%8 != 0 {
		return nil, fmt.Errorf("%w: packed grid of %d bytes", errMalformed, len(b))
	}
	grid := make([]float64, 0, len(b)/8)
	for len(b) > 0 {
		v, n := protowire.ConsumeFixed64(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		grid = append(grid, math.Float64frombits(v))
		b = b[n:]
	}
	return grid, nil
}

func (r *reduceRequest) marshal() []byte {
	b := make([]byte, 0, 48+len(r.Restraint)+8*len(r.Grid))
	b = protowire.AppendTag(b, requestMemberField, protowire.BytesType)
	b = protowire.AppendBytes(b, r.Member[:])
	b = protowire.AppendTag(b, requestRestraintField, protowire.BytesType)
	b = protowire.AppendString(b, r.Restraint)
	b = protowire.AppendTag(b, requestAttemptField, protowire.VarintType)
	b = protowire.AppendVarint(b, r.Attempt)
	return appendGrid(b, requestGridField, r.Grid)
}

func (r *reduceRequest) unmarshal(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case num == requestMemberField && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			id, err := uuid.FromBytes(v)
			if err != nil {
				return fmt.Errorf("%w: member id: %w", errMalformed, err)
			}
			r.Member = id
			b = b[n:]
		case num == requestRestraintField && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			r.Restraint = v
			b = b[n:]
		case num == requestAttemptField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			r.Attempt = v
			b = b[n:]
		case num == requestGridField && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			grid, err := consumeGrid(v)
			if err != nil {
				return err
			}
			r.Grid = grid
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}

func (r *reduceResponse) marshal() []byte {
	b := make([]byte, 0, 16+len(r.Error)+8*len(r.Grid))
	b = protowire.AppendTag(b, responseRoundField, protowire.VarintType)
	b = protowire.AppendVarint(b, r.Round)
	b = appendGrid(b, responseGridField, r.Grid)
	if r.Error != "" {
		b = protowire.AppendTag(b, responseErrorField, protowire.BytesType)
		b = protowire.AppendString(b, r.Error)
	}
	return b
}

func (r *reduceResponse) unmarshal(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case num == responseRoundField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			r.Round = v
			b = b[n:]
		case num == responseGridField && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			grid, err := consumeGrid(v)
			if err != nil {
				return err
			}
			r.Grid = grid
			b = b[n:]
		case num == responseErrorField && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			r.Error = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}
