package jsoncodec

import (
	"bytes"
	"strings"
	"testing"
)

type testRecord struct {
	Key       string `json:"key"`
	TopicName []byte `json:"topic_name"`
}

func TestMarshalAndDecodeAs(t *testing.T) {
	in := testRecord{Key: "01H", TopicName: []byte{0xff, 'A'}}
	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	out, err := DecodeAs[testRecord](data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if out.Key != in.Key || !bytes.Equal(out.TopicName, in.TopicName) {
		t.Fatalf("expected round trip to keep raw bytes, got %#v", out)
	}

	var viaUnmarshal testRecord
	if err := Unmarshal(data, &viaUnmarshal); err != nil || viaUnmarshal.Key != "01H" {
		t.Fatalf("unmarshal failed: %v %#v", err, viaUnmarshal)
	}
}

func TestDecodeAsRejectsGarbage(t *testing.T) {
	if _, err := DecodeAs[testRecord]([]byte("{not json")); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}

func TestEncode(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, map[string]int{"b": 2, "a": 1}); err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != `{"a":1,"b":2}` {
		t.Fatalf("unexpected encoding %s", got)
	}
}
