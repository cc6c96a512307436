package keychain

import (
	"errors"
	"fmt"
)

// Kind identifies the class of failure a keychain operation reports. The set
// is exhaustive and closed: callers should switch on Kind rather than match
// error strings.
type Kind int

const (
	InvalidName Kind = iota
	InvalidKeyType
	InvalidKeySize
	InvalidConfig
	InvalidArgument
	WeakPassphrase
	DuplicateKey
	KeyNotFound
	WrongPassword
	InvalidCms
	NoDecryptionKey
	StoreIO
	KeyGenFailed
	CryptoFailure
)

// String renders a Kind for log lines and error messages.
func (k Kind) String() string {
	switch k {
	case InvalidName:
		return "InvalidName"
	case InvalidKeyType:
		return "InvalidKeyType"
	case InvalidKeySize:
		return "InvalidKeySize"
	case InvalidConfig:
		return "InvalidConfig"
	case InvalidArgument:
		return "InvalidArgument"
	case WeakPassphrase:
		return "WeakPassphrase"
	case DuplicateKey:
		return "DuplicateKey"
	case KeyNotFound:
		return "KeyNotFound"
	case WrongPassword:
		return "WrongPassword"
	case InvalidCms:
		return "InvalidCms"
	case NoDecryptionKey:
		return "NoDecryptionKey"
	case StoreIO:
		return "StoreIO"
	case KeyGenFailed:
		return "KeyGenFailed"
	case CryptoFailure:
		return "CryptoFailure"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type every exported keychain and cms operation
// returns. Key names off-limits from logging (the DEK, any passphrase, or
// unwrapped key bytes) must never be placed in Err's message.
type Error struct {
	Kind Kind
	Key  string
	Err  error
}

func (e *Error) Error() string {
	if e.Key == "" {
		if e.Err != nil {
			return fmt.Sprintf("keychain: %s: %v", e.Kind, e.Err)
		}
		return fmt.Sprintf("keychain: %s", e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("keychain: %s %q: %v", e.Kind, e.Key, e.Err)
	}
	return fmt.Sprintf("keychain: %s %q", e.Kind, e.Key)
}

func (e *Error) Unwrap() error { return e.Err }

// newErr builds an *Error, wrapping err when present.
func newErr(kind Kind, key string, err error) *Error {
	return &Error{Kind: kind, Key: key, Err: err}
}

// NewError builds an *Error for use by tightly coupled collaborator packages
// (cms) that must report failures using this package's Kind taxonomy without
// duplicating it.
func NewError(kind Kind, key string, err error) error {
	return newErr(kind, key, err)
}

// KindOf unwraps err looking for the first *Error in its chain and reports
// its Kind. The httpapi package uses this to map failures to HTTP statuses
// without re-deriving them from message text.
func KindOf(err error) (Kind, bool) {
	var ke *Error
	if errors.As(err, &ke) {
		return ke.Kind, true
	}
	return 0, false
}
