package pack

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidahmann/parliament/internal/crypto"
	"github.com/davidahmann/parliament/internal/grade"
	"github.com/davidahmann/parliament/internal/ledger"
	"github.com/davidahmann/parliament/internal/ledger/ledgertest"
)

func testInput() Input {
	rec := ledgertest.Record("sha256:aa", "s1", 1)
	return Input{
		SessionID:    "s1",
		KeyID:        "k1",
		PublicKey:    bytes.Repeat([]byte{0x01}, 32),
		RulesVersion: "v1",
		RulesHash:    "sha256:rules",
		Rules:        []byte("version: v1\n"),
		CreatedAt:    "2026-10-01T00:00:00Z",
		Records: []Record{{
			Stored:     rec,
			Redactions: []ledger.StoredRedaction{{RedactionID: "sha256:r1", RecordID: rec.RecordID, BodyJSON: []byte(`{"reason":"pii"}`)}},
			Valid:      true,
			Grade:      grade.Result{Grade: "B", Reasons: []string{"missing_redacted_fields"}},
		}},
	}
}

func readZip(t *testing.T, data []byte) map[string][]byte {
	t.Helper()
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	out := map[string][]byte{}
	for _, f := range reader.File {
		rc, err := f.Open()
		require.NoError(t, err)
		body, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		out[f.Name] = body
	}
	return out
}

func TestBuildZipIncludesArtifacts(t *testing.T) {
	zipBytes, err := BuildZip(testInput(), "http://localhost:8080/")
	require.NoError(t, err)

	files := readZip(t, zipBytes)
	for _, name := range []string{"records/0001.json", "records/0001.body.json", "rules.yaml", "public_key.txt", "manifest.json", "sha256sums.txt"} {
		assert.Contains(t, files, name)
	}

	var manifest Manifest
	require.NoError(t, json.Unmarshal(files["manifest.json"], &manifest))
	assert.Equal(t, ManifestSchema, manifest.Schema)
	require.Len(t, manifest.Records, 1)
	entry := manifest.Records[0]
	assert.Equal(t, "sha256:aa", entry.RecordID)
	assert.Equal(t, 1, entry.Redactions)
	assert.Equal(t, "B", entry.Grade.Grade)
	assert.Equal(t, "http://localhost:8080/v1/verify/sha256:aa", entry.VerifyURL)

	var rec recordFile
	require.NoError(t, json.Unmarshal(files["records/0001.json"], &rec))
	assert.Equal(t, "records/0001.body.json", rec.BodyFile)
	assert.Equal(t, ledgertest.Record("sha256:aa", "s1", 1).BodyJSON, files[rec.BodyFile])
	assert.Equal(t, "hex:0101", rec.Sig)
	assert.Len(t, rec.Redactions, 1)
}

func TestSha256SumsCoverEveryOtherFile(t *testing.T) {
	files, err := BuildFiles(testInput(), "")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(files["sha256sums.txt"])), "\n")
	assert.Len(t, lines, len(files)-1)
	for _, line := range lines {
		parts := strings.SplitN(line, "  ", 2)
		require.Len(t, parts, 2)
		assert.Equal(t, crypto.DigestHex(files[parts[1]]), parts[0], parts[1])
	}

	var manifest Manifest
	require.NoError(t, json.Unmarshal(files["manifest.json"], &manifest))
	assert.Empty(t, manifest.Records[0].VerifyURL)
}

func TestBuildZipIsDeterministic(t *testing.T) {
	a, err := BuildZip(testInput(), "")
	require.NoError(t, err)
	b, err := BuildZip(testInput(), "")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestBuildFilesRequiresPublicKey(t *testing.T) {
	_, err := BuildFiles(Input{}, "")
	assert.Error(t, err)
}

func TestWriteZip(t *testing.T) {
	files := map[string][]byte{
		"a.txt": []byte("alpha"),
		"b.txt": []byte("bravo"),
	}
	buf := bytes.NewBuffer(nil)
	require.NoError(t, WriteZip(buf, files))
	assert.Equal(t, files, readZip(t, buf.Bytes()))
}
