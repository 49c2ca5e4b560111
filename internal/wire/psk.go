package wire

import (
	"encoding/hex"
	"fmt"
)

// PSKSize is the required pre-shared key length in bytes.
const PSKSize = 32

// ErrPSKLength is returned by DecodePSK when the decoded key is not
// exactly PSKSize bytes.
type ErrPSKLength struct{ Got int }

func (e *ErrPSKLength) Error() string {
	return fmt.Sprintf("wire: PSK must be %d bytes, got %d", PSKSize, e.Got)
}

// DecodePSK decodes a 64-hex-character PSK_HEX value into raw key bytes.
// This is a startup-only, fatal-on-error operation (spec §3): a missing or
// malformed PSK must never be treated as an E-STOP cause, it must stop the
// process from starting at all.
func DecodePSK(hexStr string) ([]byte, error) {
	raw, err := hex.DecodeString(hexStr)
	if err != nil {
		return nil, fmt.Errorf("wire: invalid PSK_HEX: %w", err)
	}
	if len(raw) != PSKSize {
		return nil, &ErrPSKLength{Got: len(raw)}
	}
	return raw, nil
}
