package domain

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	dErrors "ccms/pkg/domain-errors"
)

// MaxAccountIDLength bounds account identifiers accepted at trust boundaries.
const MaxAccountIDLength = 128

// AccountID is an opaque account identity. Only equality and use as a map key
// are meaningful.
//
// Usage: construct via ParseAccountID at trust boundaries; direct casting is
// reserved for tests and configuration that was already validated.
type AccountID string

// AssetID identifies a fungible asset.
type AssetID uint64

// TransferID identifies a settled asset transfer receipt.
type TransferID uuid.UUID

// ParseAccountID constructs an AccountID from external input.
//
// Errors: returns CodeInvalidInput when the value is empty, longer than
// MaxAccountIDLength, not valid UTF-8, or contains whitespace or control
// characters.
func ParseAccountID(s string) (AccountID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "account id cannot be empty")
	}
	if len(s) > MaxAccountIDLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "account id too long")
	}
	if !utf8.ValidString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "account id must be valid UTF-8")
	}
	if strings.IndexFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	}) >= 0 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "account id contains whitespace or control characters")
	}
	return AccountID(s), nil
}

// ParseAssetID parses a decimal asset identifier. Zero is rejected.
func ParseAssetID(s string) (AssetID, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "invalid asset id")
	}
	if n == 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "asset id cannot be zero")
	}
	return AssetID(n), nil
}

// ParseTransferID parses a transfer receipt ID.
func ParseTransferID(s string) (TransferID, error) {
	if s == "" {
		return TransferID{}, dErrors.New(dErrors.CodeInvalidInput, "transfer id cannot be empty")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return TransferID{}, dErrors.New(dErrors.CodeInvalidInput, "invalid transfer id")
	}
	if parsed == uuid.Nil {
		return TransferID{}, dErrors.New(dErrors.CodeInvalidInput, "transfer id cannot be nil")
	}
	return TransferID(parsed), nil
}

// NewTransferID returns a random transfer ID.
func NewTransferID() TransferID {
	return TransferID(uuid.New())
}

func (id AccountID) String() string { return string(id) }

// IsZero reports whether the account ID is unset.
func (id AccountID) IsZero() bool { return id == "" }

func (id AssetID) String() string { return strconv.FormatUint(uint64(id), 10) }

func (id TransferID) String() string { return uuid.UUID(id).String() }

// IsNil reports whether the transfer ID is the nil UUID.
func (id TransferID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// MarshalText lets TransferID serialize as its UUID string.
func (id TransferID) MarshalText() ([]byte, error) {
	return uuid.UUID(id).MarshalText()
}

// UnmarshalText parses a UUID string.
func (id *TransferID) UnmarshalText(b []byte) error {
	var u uuid.UUID
	if err := u.UnmarshalText(b); err != nil {
		return err
	}
	*id = TransferID(u)
	return nil
}
