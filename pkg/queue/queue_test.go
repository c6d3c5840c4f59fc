package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

type samplePayload struct {
	Ticker string `json:"ticker"`
	Days   int    `json:"days"`
}

func TestParsePayload(t *testing.T) {
	typed := samplePayload{Ticker: "ACME", Days: 30}
	tests := []struct {
		name    string
		in      interface{}
		want    samplePayload
		wantErr bool
	}{
		{name: "raw json", in: json.RawMessage(`{"ticker":"ACME","days":30}`), want: typed},
		{name: "bytes", in: []byte(`{"ticker":"ACME","days":30}`), want: typed},
		{name: "map", in: map[string]interface{}{"ticker": "ACME", "days": 30}, want: typed},
		{name: "value", in: typed, want: typed},
		{name: "pointer", in: &typed, want: typed},
		{name: "null", in: json.RawMessage(`null`)},
		{name: "nil", in: nil},
		{name: "bad json", in: json.RawMessage(`{"days":"x"}`), wantErr: true},
		{name: "wrong type", in: 7, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePayload[samplePayload](tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if *got != tt.want {
				t.Fatalf("got %+v want %+v", *got, tt.want)
			}
		})
	}
}

func TestEncodePayloadRoundTripsThroughMessage(t *testing.T) {
	raw, err := encodePayload(samplePayload{Ticker: "ACME", Days: 7})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	b, _ := json.Marshal(Message{ID: "1", Type: "t", Payload: raw})
	var msg Message
	if err := json.Unmarshal(b, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	got, err := ParsePayload[samplePayload](msg.Payload)
	if err != nil || got.Ticker != "ACME" || got.Days != 7 {
		t.Fatalf("got %+v err=%v", got, err)
	}
}

func TestPermanent(t *testing.T) {
	base := errors.New("bad config")
	err := fmt.Errorf("job: %w", Permanent(base))
	if !IsPermanent(err) || !errors.Is(err, base) {
		t.Fatalf("wrapped permanent error lost: %v", err)
	}
	if IsPermanent(base) || Permanent(nil) != nil {
		t.Fatalf("unexpected permanent classification")
	}
}
