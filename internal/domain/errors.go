package domain

import (
	"errors"
	"fmt"
)

// Error is a coded, terminal domain failure.
// Codes 6000-6009 match the on-chain program's error table.
type Error struct {
	Code    int
	Name    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Name, e.Code, e.Message)
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrProfileDisabled     = &Error{6000, "ProfileDisabled", "profile is disabled"}
	ErrUnauthorizedKeeper  = &Error{6001, "UnauthorizedKeeper", "unauthorized keeper"}
	ErrDailyLimitExceeded  = &Error{6002, "DailyLimitExceeded", "daily execution limit exceeded"}
	ErrInsufficientBalance = &Error{6003, "InsufficientBalance", "insufficient balance"}
	ErrInsufficientFeePool = &Error{6004, "InsufficientFeePool", "insufficient fee pool balance"}
	ErrSlippageExceeded    = &Error{6005, "SlippageExceeded", "slippage exceeded maximum allowed"}
	ErrInvalidSignalType   = &Error{6006, "InvalidSignalType", "invalid signal type"}
	ErrCooldownActive      = &Error{6007, "CooldownActive", "cooldown period is still active"}
	ErrInvalidMint         = &Error{6008, "InvalidMint", "invalid token mint"}
	ErrArithmeticOverflow  = &Error{6009, "ArithmeticOverflow", "arithmetic overflow"}

	ErrNotOwner         = &Error{6100, "NotOwner", "caller is not the profile owner"}
	ErrInvalidParameter = &Error{6101, "InvalidParameter", "invalid parameter"}
	ErrProfileExists    = &Error{6102, "ProfileExists", "profile already initialized"}
)

// AsError extracts the domain error from err, if any.
func AsError(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
