package telem

import (
	"fmt"
	"strconv"

	"github.com/cockroachdb/errors"
)

// Alignment locates a series within a stream of samples independent of wall clock time.
// The upper 32 bits hold the domain index and the lower 32 bits the sample index within
// that domain, so alignments increase monotonically across a channel.
type Alignment uint64

// NewAlignment packs a domain and sample index into an Alignment.
func NewAlignment(domainIdx, sampleIdx uint32) Alignment {
	return Alignment(uint64(domainIdx)<<32 | uint64(sampleIdx))
}

// DomainIndex returns the upper 32 bits.
func (a Alignment) DomainIndex() uint32 { return uint32(a >> 32) }

// SampleIndex returns the lower 32 bits.
func (a Alignment) SampleIndex() uint32 { return uint32(a) }

// AddSamples advances the sample index by n, leaving the domain untouched.
func (a Alignment) AddSamples(n uint32) Alignment {
	return NewAlignment(a.DomainIndex(), a.SampleIndex()+n)
}

func (a Alignment) String() string {
	return fmt.Sprintf("%d-%d", a.DomainIndex(), a.SampleIndex())
}

// MarshalJSON encodes the alignment as a decimal string. JavaScript clients cannot
// represent the full uint64 range as a number.
func (a Alignment) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(strconv.FormatUint(uint64(a), 10))), nil
}

// UnmarshalJSON accepts both the string form and a bare number.
func (a *Alignment) UnmarshalJSON(b []byte) error {
	s := string(b)
	if unq, err := strconv.Unquote(s); err == nil {
		s = unq
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return errors.Wrapf(err, "invalid alignment %s", b)
	}
	*a = Alignment(v)
	return nil
}
