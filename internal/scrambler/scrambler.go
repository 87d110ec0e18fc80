// Package scrambler turns sequential database ids into short opaque strings
// for use in URLs and on documents, and back again.
package scrambler

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Offsets keep the external ids of different tables apart.
const (
	OrderOffset  = 1000
	TicketOffset = 2000
	RefundOffset = 5000
)

const multiplier uint32 = 0x9E3779B1

var inverse = modInverse(multiplier)

var ErrInvalidID = errors.New("invalid id")

// Scrambler is a bijection between positive ids and base-36 strings.
// It carries no state beyond its offset and is safe for concurrent use.
type Scrambler struct {
	Offset int64
}

var (
	Orders  = Scrambler{Offset: OrderOffset}
	Tickets = Scrambler{Offset: TicketOffset}
	Refunds = Scrambler{Offset: RefundOffset}
)

// Forward maps id to its external form. id+Offset must fit in 32 bits.
func (s Scrambler) Forward(id int64) string {
	x := uint32(id + s.Offset)
	x *= multiplier
	x ^= x >> 16
	return strings.ToUpper(strconv.FormatUint(uint64(x), 36))
}

// Backward inverts Forward. Lower-case input is accepted.
func (s Scrambler) Backward(external string) (int64, error) {
	if external == "" {
		return 0, ErrInvalidID
	}
	v, err := strconv.ParseUint(strings.ToLower(external), 36, 64)
	if err != nil || v > math.MaxUint32 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, external)
	}
	x := uint32(v)
	x ^= x >> 16
	x *= inverse
	id := int64(x) - s.Offset
	if id <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, external)
	}
	return id, nil
}

// modInverse finds the inverse of an odd a modulo 2^32 by Newton iteration.
func modInverse(a uint32) uint32 {
	inv := a
	for i := 0; i < 5; i++ {
		inv *= 2 - a*inv
	}
	return inv
}
