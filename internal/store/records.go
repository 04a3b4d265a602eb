package store

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"revisiond/internal/fingerprint"
	"revisiond/internal/logging"
)

// Record is the structured import/export form of a target, one record per
// target. Batch operations from the presentation layer use this format.
type Record struct {
	Path            string `json:"path" yaml:"path"`
	RevisionDir     string `json:"revision_dir" yaml:"revision_dir"`
	LastFingerprint string `json:"last_fingerprint,omitempty" yaml:"last_fingerprint,omitempty"`
}

// RecordFormat selects the serialization of a record batch.
type RecordFormat int

const (
	// FormatJSON is a JSON array of records.
	FormatJSON RecordFormat = iota
	// FormatYAML is a YAML sequence of records.
	FormatYAML
)

// DetectRecordFormat picks a format from a file name. JSON is the default.
func DetectRecordFormat(name string) RecordFormat {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// recordsSchema constrains a record batch: every record needs a path and a
// revision_dir, and fingerprints are 64 hex digits when present.
const recordsSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["path", "revision_dir"],
    "properties": {
      "path": {"type": "string", "minLength": 1},
      "revision_dir": {"type": "string", "minLength": 1},
      "last_fingerprint": {"type": "string", "pattern": "^([0-9a-f]{64})?$"}
    },
    "additionalProperties": false
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func recordSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource("records.json", strings.NewReader(recordsSchema)); err != nil {
			schemaErr = err
			return
		}
		compiledSchema, schemaErr = c.Compile("records.json")
	})
	return compiledSchema, schemaErr
}

// ParseRecords decodes and validates a record batch.
func ParseRecords(data []byte, f RecordFormat) ([]Record, error) {
	jsonData := data
	if f == FormatYAML {
		var raw any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode YAML records: %w", err)
		}
		var err error
		jsonData, err = json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("convert YAML records: %w", err)
		}
	}

	var generic any
	if err := json.Unmarshal(jsonData, &generic); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}

	sch, err := recordSchema()
	if err != nil {
		return nil, fmt.Errorf("compile record schema: %w", err)
	}
	if err := sch.Validate(generic); err != nil {
		return nil, fmt.Errorf("validate records: %w", err)
	}

	var records []Record
	if err := json.Unmarshal(jsonData, &records); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return records, nil
}

// EncodeRecords serializes a record batch.
func EncodeRecords(records []Record, f RecordFormat) ([]byte, error) {
	switch f {
	case FormatYAML:
		return yaml.Marshal(records)
	default:
		return json.MarshalIndent(records, "", "  ")
	}
}

// Import applies a record batch to the store. Records failing target
// validation are skipped with a warning, mirroring the malformed-row rule
// on load. Returns the number of records applied and skipped.
func (s *Store) Import(records []Record) (applied, skipped int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prevTargets := make([]Target, len(s.targets))
	copy(prevTargets, s.targets)
	prevIndex := make(map[string]int, len(s.index))
	for k, v := range s.index {
		prevIndex[k] = v
	}

	for _, r := range records {
		t := Target{Path: r.Path, RevisionDir: r.RevisionDir}
		if r.LastFingerprint != "" {
			fp, perr := fingerprint.Parse(r.LastFingerprint)
			if perr != nil {
				logging.Warn("skipping import record", "path", r.Path, "error", perr)
				skipped++
				continue
			}
			t.LastFingerprint = &fp
		}
		if verr := t.Validate(); verr != nil {
			logging.Warn("skipping import record", "path", r.Path, "error", verr)
			skipped++
			continue
		}

		if i, ok := s.index[t.Path]; ok {
			prev := s.targets[i]
			prev.RevisionDir = t.RevisionDir
			if t.LastFingerprint != nil {
				prev.LastFingerprint = t.LastFingerprint
			}
			s.targets[i] = prev
		} else {
			s.index[t.Path] = len(s.targets)
			s.targets = append(s.targets, t)
		}
		applied++
	}

	if applied > 0 {
		if err := s.persistLocked(); err != nil {
			s.targets = prevTargets
			s.index = prevIndex
			return 0, skipped, err
		}
	}
	return applied, skipped, nil
}

// Export returns the target set as a record batch, in store order.
func (s *Store) Export() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]Record, 0, len(s.targets))
	for _, t := range s.targets {
		r := Record{Path: t.Path, RevisionDir: t.RevisionDir}
		if t.LastFingerprint != nil {
			r.LastFingerprint = t.LastFingerprint.String()
		}
		records = append(records, r)
	}
	return records
}
