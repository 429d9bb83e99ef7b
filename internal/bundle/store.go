package bundle

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"botnet-detector/internal/classifier"
	"botnet-detector/internal/features"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

const (
	ModelFile    = "botnet_model.json"
	ScalerFile   = "scaler.json"
	SchemaFile   = "feature_order.json"
	ManifestFile = "manifest.json"
)

// EncoderFile names the artifact holding the encoder of one column.
func EncoderFile(column string) string {
	return column + "_encoder.json"
}

// Save writes every artifact of b into dir, then the manifest. Each file is
// written to a temporary name and renamed into place; the manifest goes last
// so a run that dies midway leaves artifacts that fail verification.
func Save(dir string, b *Bundle) (*Manifest, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create models dir %s: %w", dir, err)
	}

	m := b.Manifest
	if m.RunID == "" {
		m.RunID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	m.Algorithm = b.Model.Algorithm()
	m.NumFeatures = b.Schema.Len()
	m.Model, m.Scaler, m.Schema = ModelFile, ScalerFile, SchemaFile
	m.Encoders = make(map[string]string, b.Encoders.Len())
	m.Checksums = make(map[string]string)

	modelData, err := classifier.Marshal(b.Model)
	if err != nil {
		return nil, err
	}
	if err := writeArtifact(dir, ModelFile, modelData, &m); err != nil {
		return nil, err
	}
	if err := writeJSONArtifact(dir, ScalerFile, b.Scaler, &m); err != nil {
		return nil, err
	}
	if err := writeJSONArtifact(dir, SchemaFile, b.Schema, &m); err != nil {
		return nil, err
	}
	for _, column := range b.Encoders.Features() {
		enc, _ := b.Encoders.Get(column)
		name := EncoderFile(column)
		if err := writeJSONArtifact(dir, name, enc, &m); err != nil {
			return nil, err
		}
		m.Encoders[column] = name
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := writeFileAtomic(dir, ManifestFile, data); err != nil {
		return nil, err
	}

	b.Manifest = m
	b.Checksum = checksum(data)
	return &m, nil
}

// Load reads and verifies the bundle in dir. Any missing file, checksum
// mismatch or dimension mismatch yields a CorruptBundleError.
func Load(dir string) (*Bundle, error) {
	manifestData, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &CorruptBundleError{Reason: "manifest missing, training run incomplete", Err: err}
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(manifestData, &m); err != nil {
		return nil, &CorruptBundleError{Reason: "unreadable manifest", Err: err}
	}
	if m.Model == "" || m.Scaler == "" || m.Schema == "" {
		return nil, corrupt("manifest does not name model, scaler and schema files")
	}

	read := func(name string) ([]byte, error) {
		return readVerified(dir, name, m.Checksums)
	}

	schemaData, err := read(m.Schema)
	if err != nil {
		return nil, err
	}
	var schema features.Schema
	if err := json.Unmarshal(schemaData, &schema); err != nil {
		return nil, &CorruptBundleError{Reason: "unreadable feature schema", Err: err}
	}

	scalerData, err := read(m.Scaler)
	if err != nil {
		return nil, err
	}
	var scaler features.Scaler
	if err := json.Unmarshal(scalerData, &scaler); err != nil {
		return nil, &CorruptBundleError{Reason: "unreadable scaler", Err: err}
	}

	modelData, err := read(m.Model)
	if err != nil {
		return nil, err
	}
	mdl, err := classifier.Unmarshal(modelData)
	if err != nil {
		return nil, &CorruptBundleError{Reason: "unreadable model", Err: err}
	}

	encoders := features.NewRegistry()
	for column, name := range m.Encoders {
		data, err := read(name)
		if err != nil {
			return nil, err
		}
		var enc features.Encoder
		if err := json.Unmarshal(data, &enc); err != nil {
			return nil, &CorruptBundleError{Reason: "unreadable encoder for " + column, Err: err}
		}
		if enc.Feature != column {
			return nil, corrupt("encoder file %s belongs to %q, manifest says %q", name, enc.Feature, column)
		}
		encoders.Add(&enc)
	}

	if m.NumFeatures != schema.Len() {
		return nil, corrupt("manifest records %d features but schema has %d", m.NumFeatures, schema.Len())
	}

	b, err := New(&schema, encoders, &scaler, mdl)
	if err != nil {
		return nil, err
	}
	b.Manifest = m
	b.Checksum = checksum(manifestData)
	return b, nil
}

// ManifestChecksum returns the BLAKE3 digest of the manifest in dir.
func ManifestChecksum(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return "", err
	}
	return checksum(data), nil
}

func readVerified(dir, name string, sums map[string]string) ([]byte, error) {
	want, ok := sums[name]
	if !ok {
		return nil, corrupt("manifest has no checksum for %s", name)
	}
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return nil, &CorruptBundleError{Reason: "artifact " + name + " unreadable", Err: err}
	}
	if got := checksum(data); got != want {
		return nil, corrupt("artifact %s checksum mismatch: manifest %s, file %s", name, want, got)
	}
	return data, nil
}

func writeJSONArtifact(dir, name string, v interface{}, m *Manifest) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}
	return writeArtifact(dir, name, data, m)
}

func writeArtifact(dir, name string, data []byte, m *Manifest) error {
	if err := writeFileAtomic(dir, name, data); err != nil {
		return err
	}
	m.Checksums[name] = checksum(data)
	return nil
}

func writeFileAtomic(dir, name string, data []byte) error {
	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", name, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", name, err)
	}
	return nil
}

func checksum(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
