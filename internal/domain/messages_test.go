package domain

import (
	"encoding/json"
	"testing"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	req := QuoteRequest{
		RequestID: "r-1",
		TokenIn:   NativeToken.Hex(),
		TokenOut:  "0x3333333333333333333333333333333333333333",
		AmountIn:  "100000000000000000",
		User:      "0x1111111111111111111111111111111111111111",
	}

	env, err := NewEnvelope(MsgQuoteRequest, req)
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}

	raw, _ := json.Marshal(env)

	var decoded Envelope
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if decoded.Type != MsgQuoteRequest {
		t.Errorf("type = %s, want %s", decoded.Type, MsgQuoteRequest)
	}

	var got QuoteRequest
	if err := json.Unmarshal(decoded.Data, &got); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if got != req {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"0", false},
		{"195000000000000000000", false},
		{"-1", true},
		{"1.5", true},
		{"", true},
		{"abc", true},
	}

	for _, tt := range tests {
		_, err := ParseAmount(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseAmount(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
	}
}

func TestParseQuoteID(t *testing.T) {
	var id [32]byte
	id[0] = 0xAB
	id[31] = 0xCD

	parsed, err := ParseQuoteID(FormatQuoteID(id))
	if err != nil {
		t.Fatalf("ParseQuoteID: %v", err)
	}
	if parsed != id {
		t.Error("quote id round trip mismatch")
	}

	if _, err := ParseQuoteID("0x1234"); err == nil {
		t.Error("short id should be rejected")
	}
	if _, err := ParseQuoteID("zz"); err == nil {
		t.Error("non-hex id should be rejected")
	}
}
