// Package instruction decodes raw instruction bytes into typed commands and
// builds instructions for clients.
package instruction

import (
	"bytes"
	"fmt"

	"github.com/rollkit/ephemeral-counter/codec"
	"github.com/rollkit/ephemeral-counter/types"
)

// DiscriminatorSize is the length of the leading instruction tag.
const DiscriminatorSize = 8

// Discriminator is the fixed-width tag that selects a command.
type Discriminator [DiscriminatorSize]byte

// Discriminators of the counter program commands.
var (
	InitializeCounterDiscriminator   = Discriminator{0}
	IncreaseCounterDiscriminator     = Discriminator{1}
	DelegateDiscriminator            = Discriminator{2}
	CommitAndUndelegateDiscriminator = Discriminator{3}
	CommitDiscriminator              = Discriminator{4}

	// UndelegateDiscriminator is the tag the delegation program uses when it
	// calls back into the owner program to hand an account back.
	UndelegateDiscriminator = Discriminator{196, 28, 41, 206, 48, 37, 51, 167}
)

// Command is one decoded instruction.
type Command interface {
	Discriminator() Discriminator
	Name() string
	payload(w *codec.Writer)
}

// InitializeCounter creates the counter account if needed and sets it to zero.
type InitializeCounter struct{}

// IncreaseCounter adds IncreaseBy to the counter.
type IncreaseCounter struct {
	IncreaseBy uint64
}

// Delegate hands authority over the counter to the rollup.
type Delegate struct{}

// CommitAndUndelegate schedules a commit followed by undelegation.
type CommitAndUndelegate struct{}

// Commit schedules replication of the counter to the base layer.
type Commit struct{}

// Undelegate returns authority over an account to the base layer.
type Undelegate struct {
	PDASeeds [][]byte
}

func (InitializeCounter) Discriminator() Discriminator   { return InitializeCounterDiscriminator }
func (IncreaseCounter) Discriminator() Discriminator     { return IncreaseCounterDiscriminator }
func (Delegate) Discriminator() Discriminator            { return DelegateDiscriminator }
func (CommitAndUndelegate) Discriminator() Discriminator { return CommitAndUndelegateDiscriminator }
func (Commit) Discriminator() Discriminator              { return CommitDiscriminator }
func (Undelegate) Discriminator() Discriminator          { return UndelegateDiscriminator }

func (InitializeCounter) Name() string   { return "InitializeCounter" }
func (IncreaseCounter) Name() string     { return "IncreaseCounter" }
func (Delegate) Name() string            { return "Delegate" }
func (CommitAndUndelegate) Name() string { return "CommitAndUndelegate" }
func (Commit) Name() string              { return "Commit" }
func (Undelegate) Name() string          { return "Undelegate" }

func (InitializeCounter) payload(*codec.Writer)   {}
func (Delegate) payload(*codec.Writer)            {}
func (CommitAndUndelegate) payload(*codec.Writer) {}
func (Commit) payload(*codec.Writer)              {}

func (c IncreaseCounter) payload(w *codec.Writer) {
	w.WriteU64(c.IncreaseBy)
}

func (c Undelegate) payload(w *codec.Writer) {
	w.WriteBytesVec(c.PDASeeds)
}

// Decode parses input into a Command. Any failure is reported as
// types.ErrInvalidInstructionData.
func Decode(input []byte) (Command, error) {
	if len(input) < DiscriminatorSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the discriminator", types.ErrInvalidInstructionData, len(input))
	}
	var tag Discriminator
	copy(tag[:], input[:DiscriminatorSize])
	r := codec.NewReader(input[DiscriminatorSize:])

	switch tag {
	case InitializeCounterDiscriminator:
		return InitializeCounter{}, nil
	case IncreaseCounterDiscriminator:
		by, err := r.ReadU64()
		if err == nil {
			err = r.Finish()
		}
		if err != nil {
			return nil, fmt.Errorf("%w: increase payload: %v", types.ErrInvalidInstructionData, err)
		}
		return IncreaseCounter{IncreaseBy: by}, nil
	case DelegateDiscriminator:
		return Delegate{}, nil
	case CommitAndUndelegateDiscriminator:
		return CommitAndUndelegate{}, nil
	case CommitDiscriminator:
		return Commit{}, nil
	case UndelegateDiscriminator:
		seeds, err := r.ReadBytesVec()
		if err == nil {
			err = r.Finish()
		}
		if err != nil {
			return nil, fmt.Errorf("%w: undelegate payload: %v", types.ErrInvalidInstructionData, err)
		}
		return Undelegate{PDASeeds: seeds}, nil
	default:
		return nil, fmt.Errorf("%w: unknown discriminator %v", types.ErrInvalidInstructionData, tag[:])
	}
}

// Encode returns the wire form of cmd.
func Encode(cmd Command) []byte {
	w := codec.NewWriter(DiscriminatorSize + 8)
	tag := cmd.Discriminator()
	w.WriteFixed(tag[:])
	cmd.payload(w)
	return w.Bytes()
}

// HasDiscriminator reports whether data starts with tag.
func HasDiscriminator(data []byte, tag Discriminator) bool {
	return bytes.HasPrefix(data, tag[:])
}
