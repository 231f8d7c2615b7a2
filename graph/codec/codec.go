// Package codec implements the typed serializer used to persist channel
// payloads into a checkpoint. It generalizes the ad hoc json.Marshal calls
// scattered through the prior engine's store package into a single
// dumps_typed/loads_typed contract with a stable, explicit type tag, so that
// checkpointer backends never need to guess a Go type from raw JSON bytes.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
)

// ErrUnknownTag is returned by LoadsTyped when no decoder is registered for
// the given type tag. Older payloads must always decode; this error only
// fires for genuinely unrecognized (e.g. corrupted, or from-the-future) tags.
var ErrUnknownTag = errors.New("codec: unknown type tag")

// Known type tags. New tags may be added in future versions; existing tags
// are never repurposed, so a newer encoder never collides with an older
// decoder's expectations.
const (
	TagJSON   = "json"
	TagBytes  = "bytes"
	TagSet    = "set"
	TagMap    = "map"
	TagRegex  = "regex"
	TagError  = "error"
	TagNull   = "null"
)

// stringSet gives the encoder something concrete to recognize for the "set"
// tag; callers can pass one directly or rely on DumpsTyped falling back to
// TagJSON for plain map[string]any/[]any values. No type maps to the "map"
// tag: DumpsTyped never produces TagMap and LoadsTyped does not decode it.
type stringSet = map[string]struct{}

// DumpsTyped serializes v into a (type_tag, bytes) pair. The tag records
// which decoder LoadsTyped must use; the bytes are always valid UTF-8 JSON
// except under TagBytes, where they are the raw byte payload.
func DumpsTyped(v any) (string, []byte, error) {
	switch val := v.(type) {
	case nil:
		return TagNull, nil, nil
	case []byte:
		return TagBytes, val, nil
	case stringSet:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b, err := json.Marshal(keys)
		if err != nil {
			return "", nil, fmt.Errorf("codec: marshal set: %w", err)
		}
		return TagSet, b, nil
	case *regexp.Regexp:
		b, err := json.Marshal(val.String())
		if err != nil {
			return "", nil, fmt.Errorf("codec: marshal regex: %w", err)
		}
		return TagRegex, b, nil
	case error:
		b, err := json.Marshal(errorEnvelope{Message: val.Error()})
		if err != nil {
			return "", nil, fmt.Errorf("codec: marshal error: %w", err)
		}
		return TagError, b, nil
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return "", nil, fmt.Errorf("codec: marshal json: %w", err)
		}
		return TagJSON, b, nil
	}
}

type errorEnvelope struct {
	Message string `json:"message"`
}

// LoadsTyped deserializes bytes previously produced by DumpsTyped, dispatched
// by tag. The returned value's concrete Go type depends on the tag: TagJSON
// yields the json package's generic decode (map[string]any, []any,
// float64, string, bool, nil), TagSet yields a map[string]struct{}, TagRegex
// yields a *regexp.Regexp, TagError yields a plain error, TagBytes yields
// []byte, and TagNull yields nil.
func LoadsTyped(tag string, data []byte) (any, error) {
	switch tag {
	case TagNull:
		return nil, nil
	case TagBytes:
		return data, nil
	case TagSet:
		var keys []string
		if err := json.Unmarshal(data, &keys); err != nil {
			return nil, fmt.Errorf("codec: unmarshal set: %w", err)
		}
		set := make(stringSet, len(keys))
		for _, k := range keys {
			set[k] = struct{}{}
		}
		return set, nil
	case TagRegex:
		var pattern string
		if err := json.Unmarshal(data, &pattern); err != nil {
			return nil, fmt.Errorf("codec: unmarshal regex: %w", err)
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("codec: compile regex: %w", err)
		}
		return re, nil
	case TagError:
		var env errorEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("codec: unmarshal error: %w", err)
		}
		return errors.New(env.Message), nil
	case TagJSON:
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("codec: unmarshal json: %w", err)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTag, tag)
	}
}

// NewStringSet is a convenience constructor so callers don't need to spell
// out the unexported stringSet type when building a value for DumpsTyped.
func NewStringSet(members ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(members))
	for _, m := range members {
		set[m] = struct{}{}
	}
	return set
}
