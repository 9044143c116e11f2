package pack

import (
	"archive/zip"
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/davidahmann/parliament/internal/crypto"
	"github.com/davidahmann/parliament/internal/grade"
	"github.com/davidahmann/parliament/internal/ledger"
)

const ManifestSchema = "parliament.pack.v1"

// Record is one stored audit record together with its redaction events and
// the verification outcome computed by the exporter.
type Record struct {
	Stored     ledger.StoredRecord
	Redactions []ledger.StoredRedaction
	Valid      bool
	Grade      grade.Result
}

type Input struct {
	SessionID    string
	KeyID        string
	PublicKey    []byte
	RulesVersion string
	RulesHash    string
	Rules        []byte
	Records      []Record
	CreatedAt    string
}

type Manifest struct {
	Schema       string          `json:"schema"`
	SessionID    string          `json:"session_id,omitempty"`
	KeyID        string          `json:"key_id"`
	PublicKey    string          `json:"public_key"`
	RulesVersion string          `json:"rules_version,omitempty"`
	RulesHash    string          `json:"rules_hash,omitempty"`
	CreatedAt    string          `json:"created_at"`
	Records      []ManifestEntry `json:"records"`
	Files        []string        `json:"files"`
}

type ManifestEntry struct {
	RecordID   string       `json:"record_id"`
	RequestID  string       `json:"request_id"`
	Direction  string       `json:"direction"`
	File       string       `json:"file"`
	Redactions int          `json:"redactions"`
	Valid      bool         `json:"valid"`
	Grade      grade.Result `json:"grade"`
	VerifyURL  string       `json:"verify_url,omitempty"`
}

type recordFile struct {
	RecordID   string            `json:"record_id"`
	BodyDigest string            `json:"body_digest"`
	BodyFile   string            `json:"body_file"`
	KeyID      string            `json:"key_id"`
	Sig        string            `json:"sig"`
	Redactions []json.RawMessage `json:"redactions,omitempty"`
}

// BuildFiles lays out the pack contents. Each signed body is written
// verbatim to its own file, so its line in sha256sums.txt equals the hex
// part of the record id.
func BuildFiles(in Input, baseURL string) (map[string][]byte, error) {
	if len(in.PublicKey) == 0 {
		return nil, fmt.Errorf("missing public key")
	}
	if in.CreatedAt == "" {
		in.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}

	files := map[string][]byte{}
	manifest := Manifest{
		Schema:       ManifestSchema,
		SessionID:    in.SessionID,
		KeyID:        in.KeyID,
		PublicKey:    "hex:" + hex.EncodeToString(in.PublicKey),
		RulesVersion: in.RulesVersion,
		RulesHash:    in.RulesHash,
		CreatedAt:    in.CreatedAt,
		Records:      []ManifestEntry{},
	}

	for i, rec := range in.Records {
		name := fmt.Sprintf("records/%04d.json", i+1)
		bodyName := fmt.Sprintf("records/%04d.body.json", i+1)
		out := recordFile{
			RecordID:   rec.Stored.RecordID,
			BodyDigest: rec.Stored.BodyDigest,
			BodyFile:   bodyName,
			KeyID:      rec.Stored.KeyID,
			Sig:        "hex:" + hex.EncodeToString(rec.Stored.Sig),
		}
		for _, red := range rec.Redactions {
			out.Redactions = append(out.Redactions, json.RawMessage(red.BodyJSON))
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return nil, err
		}
		files[name] = data
		files[bodyName] = rec.Stored.BodyJSON

		manifest.Records = append(manifest.Records, ManifestEntry{
			RecordID:   rec.Stored.RecordID,
			RequestID:  rec.Stored.RequestID,
			Direction:  rec.Stored.Direction,
			File:       name,
			Redactions: len(rec.Redactions),
			Valid:      rec.Valid,
			Grade:      rec.Grade,
			VerifyURL:  verifyURL(baseURL, rec.Stored.RecordID),
		})
	}

	if len(in.Rules) > 0 {
		files["rules.yaml"] = in.Rules
	}
	files["public_key.txt"] = []byte(manifest.PublicKey + "\n")

	for name := range files {
		manifest.Files = append(manifest.Files, name)
	}
	sort.Strings(manifest.Files)

	manifestBytes, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, err
	}
	files["manifest.json"] = manifestBytes
	files["sha256sums.txt"] = sha256Sums(files)
	return files, nil
}

// BuildZip returns the pack as a zip archive.
func BuildZip(in Input, baseURL string) ([]byte, error) {
	files, err := BuildFiles(in, baseURL)
	if err != nil {
		return nil, err
	}
	buf := bytes.NewBuffer(nil)
	if err := WriteZip(buf, files); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteZip writes files in name order with a fixed modification time so
// identical inputs produce identical archives.
func WriteZip(w io.Writer, files map[string][]byte) error {
	zw := zip.NewWriter(w)
	for _, name := range sortedNames(files) {
		header := &zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: time.Unix(0, 0).UTC(),
		}
		fw, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}
		if _, err := fw.Write(files[name]); err != nil {
			return err
		}
	}
	return zw.Close()
}

func sha256Sums(files map[string][]byte) []byte {
	var b strings.Builder
	for _, name := range sortedNames(files) {
		if name == "sha256sums.txt" {
			continue
		}
		fmt.Fprintf(&b, "%s  %s\n", crypto.DigestHex(files[name]), name)
	}
	return []byte(b.String())
}

func sortedNames(files map[string][]byte) []string {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func verifyURL(baseURL, recordID string) string {
	if baseURL == "" {
		return ""
	}
	return strings.TrimRight(baseURL, "/") + "/v1/verify/" + url.PathEscape(recordID)
}
