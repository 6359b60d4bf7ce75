// Package archive exports CPT library snapshots to external audit
// storage. A bundle is a snappy-compressed JSONL document of flattened
// records with a manifest; sinks deliver bundles to the filesystem, S3,
// or Postgres.
package archive

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang/snappy"

	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/cpt"
)

// Manifest describes a bundle's contents, written as the first JSONL
// line before the records.
type Manifest struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Records   int       `json:"records"`
	// Checksum is the hex SHA-256 of the uncompressed record lines.
	Checksum string `json:"checksum"`
}

// Bundle is a decoded archive: manifest plus records.
type Bundle struct {
	Manifest Manifest
	Records  []*cpt.FlatRecord
}

// Encode packs the records into a compressed bundle.
func Encode(name string, records []*cpt.FlatRecord) ([]byte, error) {
	var body bytes.Buffer
	for _, rec := range records {
		line, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("encode archive record %s: %w", rec.ID, err)
		}
		body.Write(line)
		body.WriteByte('\n')
	}

	sum := sha256.Sum256(body.Bytes())
	manifest, err := json.Marshal(Manifest{
		Name:      name,
		CreatedAt: time.Now().UTC(),
		Records:   len(records),
		Checksum:  hex.EncodeToString(sum[:]),
	})
	if err != nil {
		return nil, fmt.Errorf("encode archive manifest: %w", err)
	}

	var doc bytes.Buffer
	doc.Write(manifest)
	doc.WriteByte('\n')
	doc.Write(body.Bytes())

	return snappy.Encode(nil, doc.Bytes()), nil
}

// Decode unpacks a bundle, verifying the record checksum.
func Decode(data []byte) (*Bundle, error) {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("decompress archive bundle: %w", err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	if !scanner.Scan() {
		return nil, fmt.Errorf("archive bundle has no manifest")
	}
	var manifest Manifest
	if err := json.Unmarshal(scanner.Bytes(), &manifest); err != nil {
		return nil, fmt.Errorf("decode archive manifest: %w", err)
	}

	var body bytes.Buffer
	records := make([]*cpt.FlatRecord, 0, manifest.Records)
	for scanner.Scan() {
		line := scanner.Bytes()
		body.Write(line)
		body.WriteByte('\n')

		var rec cpt.FlatRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("decode archive record %d: %w", len(records)+1, err)
		}
		records = append(records, &rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read archive bundle: %w", err)
	}

	sum := sha256.Sum256(body.Bytes())
	if hex.EncodeToString(sum[:]) != manifest.Checksum {
		return nil, fmt.Errorf("archive bundle %q: checksum mismatch", manifest.Name)
	}
	if len(records) != manifest.Records {
		return nil, fmt.Errorf("archive bundle %q: manifest lists %d records, found %d", manifest.Name, manifest.Records, len(records))
	}

	return &Bundle{Manifest: manifest, Records: records}, nil
}
