package ledger

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/davidahmann/parliament/internal/crypto"
	"github.com/davidahmann/parliament/pkg/types"
)

const (
	AuditSchemaV1     = "parliament.audit.v1"
	RedactionSchemaV1 = "parliament.redaction.v1"

	// AuditSchema is the version written by MakeRecord.
	AuditSchema     = AuditSchemaV1
	RedactionSchema = RedactionSchemaV1
)

var ErrUnknownSchema = errors.New("unknown record schema")

// knownSchemas lists every audit schema DecodeRecord can read. Old versions
// stay here for as long as the log may hold them.
var knownSchemas = map[string]struct{}{
	AuditSchemaV1: {},
}

type Signer interface {
	KeyID() string
	SignEd25519(digest []byte) ([]byte, error)
}

// MakeRecord canonicalizes, hashes and signs an audit record body. The
// digest becomes the record id.
func MakeRecord(in types.AuditRecord, signer Signer) (StoredRecord, error) {
	if signer == nil {
		return StoredRecord{}, fmt.Errorf("missing signer")
	}
	if in.Schema == "" {
		in.Schema = AuditSchema
	}
	if in.Schema != AuditSchema {
		return StoredRecord{}, fmt.Errorf("%w: %s", ErrUnknownSchema, in.Schema)
	}
	if in.RequestID == "" || in.CreatedAt == "" {
		return StoredRecord{}, fmt.Errorf("missing required record fields")
	}
	if !in.Aggregate.Direction.Valid() {
		return StoredRecord{}, fmt.Errorf("invalid aggregate direction: %q", in.Aggregate.Direction)
	}
	if in.Votes == nil {
		in.Votes = []types.MindVote{}
	}
	in.RecordID = ""
	in.KeyID = signer.KeyID()

	canonical, err := crypto.CanonicalizeJSON(in)
	if err != nil {
		return StoredRecord{}, err
	}
	digest := crypto.DigestWithPrefix(canonical)
	sig, err := signer.SignEd25519(crypto.DigestBytes(canonical))
	if err != nil {
		return StoredRecord{}, err
	}

	return StoredRecord{
		RecordID:   digest,
		RequestID:  in.RequestID,
		SessionID:  in.SessionID,
		Schema:     in.Schema,
		Direction:  string(in.Aggregate.Direction),
		CreatedAt:  in.CreatedAt,
		BodyJSON:   canonical,
		BodyDigest: digest,
		KeyID:      in.KeyID,
		Sig:        sig,
	}, nil
}

// DecodeRecord parses a stored body of any known schema version and fills in
// the record id.
func DecodeRecord(rec StoredRecord) (types.AuditRecord, error) {
	var head struct {
		Schema string `json:"schema"`
	}
	if err := json.Unmarshal(rec.BodyJSON, &head); err != nil {
		return types.AuditRecord{}, err
	}
	if _, ok := knownSchemas[head.Schema]; !ok {
		return types.AuditRecord{}, fmt.Errorf("%w: %q", ErrUnknownSchema, head.Schema)
	}

	var out types.AuditRecord
	if err := json.Unmarshal(rec.BodyJSON, &out); err != nil {
		return types.AuditRecord{}, err
	}
	out.RecordID = rec.RecordID
	return out, nil
}

// MakeRedaction builds a redaction event referencing an existing record.
func MakeRedaction(in types.RedactionRecord) (StoredRedaction, error) {
	if in.Schema == "" {
		in.Schema = RedactionSchema
	}
	if in.Schema != RedactionSchema {
		return StoredRedaction{}, fmt.Errorf("%w: %s", ErrUnknownSchema, in.Schema)
	}
	if in.RecordID == "" || in.Reason == "" || in.CreatedAt == "" {
		return StoredRedaction{}, fmt.Errorf("missing required redaction fields")
	}
	if in.Fields == nil {
		in.Fields = []string{}
	}
	in.RedactionID = ""

	canonical, err := crypto.CanonicalizeJSON(in)
	if err != nil {
		return StoredRedaction{}, err
	}
	return StoredRedaction{
		RedactionID: crypto.DigestWithPrefix(canonical),
		RecordID:    in.RecordID,
		CreatedAt:   in.CreatedAt,
		BodyJSON:    canonical,
	}, nil
}

func DecodeRedaction(red StoredRedaction) (types.RedactionRecord, error) {
	var out types.RedactionRecord
	if err := json.Unmarshal(red.BodyJSON, &out); err != nil {
		return types.RedactionRecord{}, err
	}
	if out.Schema != RedactionSchemaV1 {
		return types.RedactionRecord{}, fmt.Errorf("%w: %q", ErrUnknownSchema, out.Schema)
	}
	out.RedactionID = red.RedactionID
	return out, nil
}
