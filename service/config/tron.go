package config

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/base58"
	mrbase58 "github.com/mr-tron/base58"
)

const (
	tronAddressLen    = 25
	tronAddressPrefix = 0x41
)

var (
	ErrEmptyAddress    = errors.New("address is empty")
	ErrAddressEncoding = errors.New("address is not valid base58")
	ErrAddressLength   = errors.New("address has wrong length")
	ErrAddressPrefix   = errors.New("address is not a TRON mainnet address")
	ErrAddressChecksum = errors.New("address checksum mismatch")
)

// ValidateTronAddress checks a base58check TRON address: a 0x41 version byte,
// 20 address bytes and a four byte double-SHA256 checksum.
func ValidateTronAddress(addr string) error {
	if addr == "" {
		return ErrEmptyAddress
	}
	// mr-tron reports bad characters, which btcutil's decoder silently drops.
	raw, err := mrbase58.Decode(addr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAddressEncoding, err)
	}
	if len(raw) != tronAddressLen {
		return fmt.Errorf("%w: %d bytes", ErrAddressLength, len(raw))
	}

	_, version, err := base58.CheckDecode(addr)
	switch {
	case errors.Is(err, base58.ErrChecksum):
		return ErrAddressChecksum
	case err != nil:
		return fmt.Errorf("%w: %v", ErrAddressEncoding, err)
	case version != tronAddressPrefix:
		return ErrAddressPrefix
	}
	return nil
}
