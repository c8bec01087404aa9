package lightning

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

// BOLT-11 framing constants: the data part starts with a 35-bit timestamp
// (7 five-bit groups) and ends with a 520-bit signature (104 groups). Tagged
// fields live in between. The payment hash is tag type 1 ('p'), always 52
// groups (256 bits plus 4 zero pad bits).
const (
	timestampGroups   = 7
	signatureGroups   = 104
	paymentHashTag    = 1
	paymentHashGroups = 52
)

// PaymentHash extracts the hex-encoded payment hash from a bolt11 invoice.
// The signature is not verified; the broker only needs the hash as a job key.
func PaymentHash(invoice string) (string, error) {
	invoice = strings.TrimSpace(invoice)
	if invoice == "" {
		return "", errors.New("empty invoice")
	}

	hrp, data, err := bech32.DecodeNoLimit(strings.ToLower(invoice))
	if err != nil {
		return "", fmt.Errorf("decode bolt11: %w", err)
	}
	if !strings.HasPrefix(hrp, "ln") {
		return "", fmt.Errorf("not a lightning invoice: hrp %q", hrp)
	}
	if len(data) < timestampGroups+signatureGroups {
		return "", errors.New("bolt11 data part too short")
	}

	fields := data[timestampGroups : len(data)-signatureGroups]
	for len(fields) >= 3 {
		tag := fields[0]
		size := int(fields[1])*32 + int(fields[2])
		fields = fields[3:]
		if size > len(fields) {
			return "", errors.New("bolt11 tagged field overruns data")
		}

		if tag == paymentHashTag {
			if size != paymentHashGroups {
				return "", fmt.Errorf("payment hash field has %d groups, want %d", size, paymentHashGroups)
			}
			raw, err := bech32.ConvertBits(fields[:size], 5, 8, false)
			if err != nil {
				return "", fmt.Errorf("unpack payment hash: %w", err)
			}
			return hex.EncodeToString(raw), nil
		}
		fields = fields[size:]
	}

	return "", errors.New("bolt11 invoice has no payment hash field")
}
