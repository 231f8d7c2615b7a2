package codec

import (
	"errors"
	"regexp"
	"testing"
)

func TestDumpsLoadsTyped_JSONRoundTrip(t *testing.T) {
	tag, data, err := DumpsTyped(map[string]any{"a": 1.0, "b": "two"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tag != TagJSON {
		t.Fatalf("expected TagJSON, got %s", tag)
	}

	v, err := LoadsTyped(tag, data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m, ok := v.(map[string]any)
	if !ok || m["a"] != 1.0 || m["b"] != "two" {
		t.Fatalf("round-trip mismatch: %#v", v)
	}
}

func TestDumpsLoadsTyped_Bytes(t *testing.T) {
	tag, data, err := DumpsTyped([]byte("payload"))
	if err != nil || tag != TagBytes {
		t.Fatalf("unexpected tag/err: %s, %v", tag, err)
	}
	v, err := LoadsTyped(tag, data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(v.([]byte)) != "payload" {
		t.Fatalf("expected payload, got %v", v)
	}
}

func TestDumpsLoadsTyped_Set(t *testing.T) {
	set := NewStringSet("b", "a", "a")
	tag, data, err := DumpsTyped(set)
	if err != nil || tag != TagSet {
		t.Fatalf("unexpected tag/err: %s, %v", tag, err)
	}
	v, err := LoadsTyped(tag, data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	restored := v.(map[string]struct{})
	if len(restored) != 2 {
		t.Fatalf("expected 2 members, got %d", len(restored))
	}
}

func TestDumpsLoadsTyped_Regex(t *testing.T) {
	re := regexp.MustCompile(`^foo\d+$`)
	tag, data, err := DumpsTyped(re)
	if err != nil || tag != TagRegex {
		t.Fatalf("unexpected tag/err: %s, %v", tag, err)
	}
	v, err := LoadsTyped(tag, data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	restored := v.(*regexp.Regexp)
	if !restored.MatchString("foo123") {
		t.Fatal("expected restored regex to match foo123")
	}
}

func TestDumpsLoadsTyped_Error(t *testing.T) {
	tag, data, err := DumpsTyped(errors.New("boom"))
	if err != nil || tag != TagError {
		t.Fatalf("unexpected tag/err: %s, %v", tag, err)
	}
	v, err := LoadsTyped(tag, data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.(error).Error() != "boom" {
		t.Fatalf("expected boom, got %v", v)
	}
}

func TestDumpsLoadsTyped_Null(t *testing.T) {
	tag, data, err := DumpsTyped(nil)
	if err != nil || tag != TagNull || data != nil {
		t.Fatalf("unexpected result: %s, %v, %v", tag, data, err)
	}
	v, err := LoadsTyped(tag, data)
	if err != nil || v != nil {
		t.Fatalf("expected nil, nil, got %v, %v", v, err)
	}
}

func TestLoadsTyped_UnknownTag(t *testing.T) {
	_, err := LoadsTyped("not-a-real-tag", []byte("{}"))
	if !errors.Is(err, ErrUnknownTag) {
		t.Fatalf("expected ErrUnknownTag, got %v", err)
	}
}
