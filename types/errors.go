package types

// ProgramError classifies why an instruction was rejected. Values compare
// with errors.Is, so callers may wrap them with context.
type ProgramError uint32

const (
	_ ProgramError = iota
	// ErrInvalidArgument is returned when a supplied account does not match
	// the address derived for the claimed owner.
	ErrInvalidArgument
	// ErrInvalidInstructionData is returned for an unknown discriminator or a
	// payload that does not decode.
	ErrInvalidInstructionData
	// ErrInvalidAccountData is returned when account storage does not hold a
	// well formed record.
	ErrInvalidAccountData
	// ErrInsufficientFunds is returned when a payer cannot fund an account.
	ErrInsufficientFunds
	// ErrNotEnoughAccountKeys is returned when fewer accounts than required are passed.
	ErrNotEnoughAccountKeys
	// ErrMissingRequiredSignature is returned when an actor that must sign did not.
	ErrMissingRequiredSignature
	// ErrAccountAlreadyInUse is returned when creating an account that already exists.
	ErrAccountAlreadyInUse
	// ErrIllegalOwner is returned when an account is not owned by the expected program.
	ErrIllegalOwner
	// ErrArithmeticOverflow is returned when the counter would wrap.
	ErrArithmeticOverflow
	// ErrExternalAccountDataModified is returned when a program changed an account it does not own.
	ErrExternalAccountDataModified
	// ErrAccountNotDelegated is returned when the rollup is asked to write an account it has no authority over.
	ErrAccountNotDelegated
	// ErrInvalidSeeds is returned when seeds do not reproduce the expected address.
	ErrInvalidSeeds
	// ErrUnbalancedInstruction is returned when lamports were created or destroyed.
	ErrUnbalancedInstruction
)

var programErrorText = map[ProgramError]string{
	ErrInvalidArgument:             "invalid argument",
	ErrInvalidInstructionData:      "invalid instruction data",
	ErrInvalidAccountData:          "invalid account data",
	ErrInsufficientFunds:           "insufficient funds",
	ErrNotEnoughAccountKeys:        "not enough account keys",
	ErrMissingRequiredSignature:    "missing required signature",
	ErrAccountAlreadyInUse:         "account already in use",
	ErrIllegalOwner:                "illegal owner",
	ErrArithmeticOverflow:          "arithmetic overflow",
	ErrExternalAccountDataModified: "external account data modified",
	ErrAccountNotDelegated:         "account not delegated",
	ErrInvalidSeeds:                "invalid seeds",
	ErrUnbalancedInstruction:       "sum of account balances changed",
}

func (e ProgramError) Error() string {
	if s, ok := programErrorText[e]; ok {
		return s
	}
	return "unknown program error"
}

// Code returns the numeric classification reported over RPC.
func (e ProgramError) Code() uint32 {
	return uint32(e)
}
