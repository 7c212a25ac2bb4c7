package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/setcode/internal/ir"
)

// marshalObject converts an Object to canonical JSON TEXT for storage.
// Canonical form keeps stored state byte-identical across runs.
func marshalObject(obj ir.Object) (string, error) {
	if obj == nil {
		obj = ir.Object{}
	}
	data, err := ir.MarshalCanonical(obj)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// unmarshalObject parses stored JSON TEXT to an Object.
func unmarshalObject(data string) (ir.Object, error) {
	return ir.ParseObject([]byte(data))
}

// marshalCaller converts a Caller to JSON TEXT. Permissions are never null.
func marshalCaller(c ir.Caller) (string, error) {
	if c.Permissions == nil {
		c.Permissions = []string{}
	}
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal caller: %w", err)
	}
	return string(data), nil
}

func unmarshalCaller(data string) (ir.Caller, error) {
	var c ir.Caller
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return ir.Caller{}, fmt.Errorf("unmarshal caller: %w", err)
	}
	if c.Permissions == nil {
		c.Permissions = []string{}
	}
	return c, nil
}

func marshalManifest(m ir.Manifest) (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}
	return string(data), nil
}

func unmarshalManifest(data string) (ir.Manifest, error) {
	var m ir.Manifest
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return ir.Manifest{}, fmt.Errorf("unmarshal manifest: %w", err)
	}
	return m, nil
}

// scanHash converts a BLOB column to a CodeHash.
func scanHash(raw []byte) (ir.CodeHash, error) {
	return ir.CodeHashFromRaw(raw)
}
