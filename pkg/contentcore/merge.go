package contentcore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Patch is a partial update keyed by attribute JSON name. Only the keys it
// holds are written; a key holding false, 0, "" or null sets that value.
type Patch map[string]json.RawMessage

// ParsePatch decodes a JSON object into a Patch.
func ParsePatch(raw []byte) (Patch, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, errors.New("patch must be a JSON object")
	}
	var p Patch
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("invalid patch: %w", err)
	}
	return p, nil
}

// NewPatch encodes each value under its key.
func NewPatch(fields map[string]any) (Patch, error) {
	p := make(Patch, len(fields))
	for k, v := range fields {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode patch field %s: %w", k, err)
		}
		p[k] = raw
	}
	return p, nil
}

// Keys lists the attribute names the patch writes.
func (p Patch) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	return keys
}

// MergeAttributes overlays exactly the keys of patch onto current. The
// result is decoded strictly, so unknown keys and values of the wrong type
// fail with ErrInvalidContent. applied is a copy of patch.
func MergeAttributes[T any](current T, patch Patch) (merged T, applied Patch, err error) {
	base, err := toObject(current)
	if err != nil {
		return merged, nil, fmt.Errorf("encode current attributes: %w", err)
	}

	applied = make(Patch, len(patch))
	for k, v := range patch {
		base[k] = v
		applied[k] = v
	}

	data, err := json.Marshal(base)
	if err != nil {
		return merged, nil, fmt.Errorf("encode merged attributes: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&merged); err != nil {
		return merged, nil, fmt.Errorf("%w: %v", ErrInvalidContent, err)
	}
	return merged, applied, nil
}

func toObject(v any) (map[string]json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	obj := make(map[string]json.RawMessage)
	if string(data) == "null" {
		return obj, nil
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("attributes must encode to a JSON object: %w", err)
	}
	return obj, nil
}
