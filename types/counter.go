package types

import (
	"encoding/binary"
	"fmt"
)

// CounterSize is the storage footprint of an encoded Counter.
const CounterSize = 8

// Counter is the replicated value.
type Counter struct {
	Count uint64
}

// MarshalBinary encodes c using the fixed little-endian layout.
func (c *Counter) MarshalBinary() ([]byte, error) {
	b := make([]byte, CounterSize)
	binary.LittleEndian.PutUint64(b, c.Count)
	return b, nil
}

// UnmarshalBinary decodes c. The input must be exactly CounterSize bytes.
func (c *Counter) UnmarshalBinary(data []byte) error {
	if len(data) != CounterSize {
		return fmt.Errorf("%w: counter needs %d bytes, got %d", ErrInvalidAccountData, CounterSize, len(data))
	}
	c.Count = binary.LittleEndian.Uint64(data)
	return nil
}

// ReadCounter decodes the counter stored in a.
func ReadCounter(a *Account) (*Counter, error) {
	c := &Counter{}
	if err := c.UnmarshalBinary(a.Data); err != nil {
		return nil, err
	}
	return c, nil
}

// WriteCounter encodes c into the existing storage of a. Storage is never
// resized here; it must already be CounterSize bytes.
func WriteCounter(a *Account, c *Counter) error {
	if len(a.Data) != CounterSize {
		return fmt.Errorf("%w: counter storage is %d bytes", ErrInvalidAccountData, len(a.Data))
	}
	b, err := c.MarshalBinary()
	if err != nil {
		return err
	}
	copy(a.Data, b)
	return nil
}
