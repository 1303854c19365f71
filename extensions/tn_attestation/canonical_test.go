package tn_attestation

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trufnetwork/attestation-registry/internal/types"
)

func TestUIDPreimageLayout(t *testing.T) {
	att := types.Attestation{
		Schema:         common.HexToHash("0x01"),
		Recipient:      common.HexToAddress("0x02"),
		Attester:       common.HexToAddress("0x03"),
		Time:           0x0405,
		ExpirationTime: 0x06,
		Revocable:      true,
		RefUID:         common.HexToHash("0x07"),
		Data:           []byte{0xaa, 0xbb},
	}

	raw := uidPreimage(att, 9)
	require.Len(t, raw, 32+20+20+8+8+1+32+2+4)
	assert.Equal(t, att.Schema.Bytes(), raw[:32])
	assert.Equal(t, att.Recipient.Bytes(), raw[32:52])
	assert.Equal(t, att.Attester.Bytes(), raw[52:72])
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0x04, 0x05}, raw[72:80])
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 0x06}, raw[80:88])
	assert.Equal(t, byte(1), raw[88])
	assert.Equal(t, att.RefUID.Bytes(), raw[89:121])
	assert.Equal(t, []byte{0xaa, 0xbb}, raw[121:123])
	assert.Equal(t, []byte{0, 0, 0, 9}, raw[123:])

	assert.Equal(t, crypto.Keccak256Hash(raw), AttestationUID(att, 9))
}

func TestAttestationUIDIgnoresStoredFields(t *testing.T) {
	att := types.Attestation{Schema: common.HexToHash("0x01"), Time: 1}
	base := AttestationUID(att, 0)

	att.UID = common.HexToHash("0xff")
	att.RevocationTime = 5
	assert.Equal(t, base, AttestationUID(att, 0))
	assert.NotEqual(t, base, AttestationUID(att, 1))

	att.Revocable = true
	assert.NotEqual(t, base, AttestationUID(att, 0))
}
