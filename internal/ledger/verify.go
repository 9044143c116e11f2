package ledger

import (
	"crypto/ed25519"
	"errors"

	"github.com/davidahmann/parliament/internal/crypto"
)

var (
	ErrRecordDigestMismatch = errors.New("audit record digest mismatch")
	ErrRecordSignature      = errors.New("audit record signature invalid")
)

// VerifyRecord validates digest consistency and signature.
func VerifyRecord(rec StoredRecord, publicKey ed25519.PublicKey) error {
	digestBytes := crypto.DigestBytes(rec.BodyJSON)
	digest := crypto.DigestWithPrefix(rec.BodyJSON)
	if rec.BodyDigest != digest || rec.RecordID != digest {
		return ErrRecordDigestMismatch
	}

	ok, err := crypto.VerifyEd25519(publicKey, digestBytes, rec.Sig)
	if err != nil {
		return err
	}
	if !ok {
		return ErrRecordSignature
	}
	return nil
}
