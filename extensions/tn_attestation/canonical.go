package tn_attestation

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/trufnetwork/attestation-registry/internal/types"
)

// uidPreimage returns the packed encoding hashed into an attestation UID. It
// matches Solidity's abi.encodePacked over the same fields.
//
// Layout:
//
//	32 bytes  schema
//	20 bytes  recipient
//	20 bytes  attester
//	8 bytes   time (big-endian)
//	8 bytes   expiration time (big-endian)
//	1 byte    revocable
//	32 bytes  ref UID
//	n bytes   data
//	4 bytes   bump (big-endian)
func uidPreimage(att types.Attestation, bump uint32) []byte {
	buf := make([]byte, 0, 32+20+20+8+8+1+32+len(att.Data)+4)
	buf = append(buf, att.Schema.Bytes()...)
	buf = append(buf, att.Recipient.Bytes()...)
	buf = append(buf, att.Attester.Bytes()...)
	buf = binary.BigEndian.AppendUint64(buf, att.Time)
	buf = binary.BigEndian.AppendUint64(buf, att.ExpirationTime)
	if att.Revocable {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = append(buf, att.RefUID.Bytes()...)
	buf = append(buf, att.Data...)
	buf = binary.BigEndian.AppendUint32(buf, bump)
	return buf
}

// AttestationUID returns the UID att gets for the given bump. The ledger
// starts at bump 0 and increments it until the UID is unused.
func AttestationUID(att types.Attestation, bump uint32) common.Hash {
	return crypto.Keccak256Hash(uidPreimage(att, bump))
}
