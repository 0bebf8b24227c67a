package backup

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// ManifestFile is the snapshot manifest name.
const ManifestFile = "manifest.json"

// Entry is one backed-up path.
type Entry struct {
	// OriginalPath is the absolute path that was backed up.
	OriginalPath string `json:"originalPath"`

	// StoredPath is the copy's path relative to the snapshot directory.
	// Directories only record their permission bits and leave it empty.
	StoredPath string `json:"storedPath"`

	PermissionBits fs.FileMode `json:"permissionBits"`
	IsDir          bool        `json:"isDir,omitempty"`
	SHA256         string      `json:"sha256,omitempty"`
}

const manifestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["originalPath", "storedPath", "permissionBits"],
    "additionalProperties": false,
    "properties": {
      "originalPath": {"type": "string", "minLength": 1},
      "storedPath": {"type": "string"},
      "permissionBits": {"type": "integer", "minimum": 0, "maximum": 4095},
      "isDir": {"type": "boolean"},
      "sha256": {"type": "string", "pattern": "^[0-9a-f]{64}$"}
    },
    "if": {"properties": {"isDir": {"const": true}}, "required": ["isDir"]},
    "then": {"properties": {"storedPath": {"const": ""}}},
    "else": {"required": ["sha256"], "properties": {"storedPath": {"minLength": 1}}}
  }
}`

var compiledSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(manifestSchema))
})

// decodeManifest validates data against the manifest schema and decodes it.
func decodeManifest(data []byte) ([]Entry, error) {
	schema, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("compile manifest schema: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestCorrupt, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrManifestCorrupt, strings.Join(msgs, "; "))
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestCorrupt, err)
	}
	return entries, nil
}

func encodeManifest(entries []Entry) ([]byte, error) {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
