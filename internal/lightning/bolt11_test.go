package lightning

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encodeTestInvoice builds a checksum-valid bolt11 invoice carrying the given
// tagged fields. The signature is zeroed; PaymentHash never verifies it.
func encodeTestInvoice(t *testing.T, fields []byte) string {
	t.Helper()

	data := make([]byte, 0, timestampGroups+len(fields)+signatureGroups)
	data = append(data, make([]byte, timestampGroups)...)
	data = append(data, fields...)
	data = append(data, make([]byte, signatureGroups)...)

	invoice, err := bech32.Encode("lnbc", data)
	require.NoError(t, err)
	return invoice
}

// paymentHashField encodes a 32-byte hash as a 'p' tagged field.
func paymentHashField(t *testing.T, hash []byte) []byte {
	t.Helper()
	require.Len(t, hash, 32)

	groups, err := bech32.ConvertBits(hash, 8, 5, true)
	require.NoError(t, err)
	require.Len(t, groups, paymentHashGroups)

	field := []byte{paymentHashTag, byte(len(groups) / 32), byte(len(groups) % 32)}
	return append(field, groups...)
}

// makeTestInvoice returns a decodable invoice whose payment hash is hash.
func makeTestInvoice(t *testing.T, hash []byte) string {
	t.Helper()
	return encodeTestInvoice(t, paymentHashField(t, hash))
}

func TestPaymentHashRoundTrip(t *testing.T) {
	hash, err := hex.DecodeString(
		"0001020304050607080900010203040506070809000102030405060708090102")
	require.NoError(t, err)

	invoice := makeTestInvoice(t, hash)

	got, err := PaymentHash(invoice)
	require.NoError(t, err)
	assert.Equal(t,
		"0001020304050607080900010203040506070809000102030405060708090102", got)
}

func TestPaymentHashSkipsLeadingFields(t *testing.T) {
	hash := make([]byte, 32)
	for i := range hash {
		hash[i] = byte(i)
	}

	// A short description field ('d' = 13) precedes the payment hash.
	desc := []byte{13, 0, 4, 1, 2, 3, 4}
	fields := append(desc, paymentHashField(t, hash)...)
	invoice := encodeTestInvoice(t, fields)

	got, err := PaymentHash(invoice)
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(hash), got)
}

func TestPaymentHashUppercaseInvoice(t *testing.T) {
	hash := make([]byte, 32)
	hash[31] = 0xff
	invoice := makeTestInvoice(t, hash)

	got, err := PaymentHash("  " + toUpper(invoice) + " ")
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(hash), got)
}

func toUpper(s string) string {
	out := []byte(s)
	for i, c := range out {
		if c >= 'a' && c <= 'z' {
			out[i] = c - 'a' + 'A'
		}
	}
	return string(out)
}

func TestPaymentHashErrors(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		_, err := PaymentHash("")
		assert.Error(t, err)
	})

	t.Run("not bech32", func(t *testing.T) {
		_, err := PaymentHash("definitely not an invoice")
		assert.Error(t, err)
	})

	t.Run("missing payment hash field", func(t *testing.T) {
		invoice := encodeTestInvoice(t, []byte{13, 0, 2, 1, 2})
		_, err := PaymentHash(invoice)
		assert.Error(t, err)
	})

	t.Run("wrong hrp", func(t *testing.T) {
		data := make([]byte, timestampGroups+signatureGroups)
		bc, err := bech32.Encode("bc", data)
		require.NoError(t, err)
		_, err = PaymentHash(bc)
		assert.Error(t, err)
	})
}
