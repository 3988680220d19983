package models

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestIsTerminal(t *testing.T) {
	for status, want := range map[string]bool{
		StatusPending:   false,
		StatusQueued:    false,
		StatusCompleted: true,
		StatusFailed:    true,
	} {
		if got := IsTerminal(status); got != want {
			t.Errorf("IsTerminal(%s) = %v, want %v", status, got, want)
		}
	}
}

func TestTopupEventAmountKeepsScaleOnTheWire(t *testing.T) {
	ev := TopupEvent{
		RequestID:   "r1",
		PhoneNumber: "987654321",
		Amount:      decimal.RequireFromString("30.00"),
		Operator:    "MOVISTAR",
	}

	body, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	// Money travels as a decimal string, never a float.
	if !strings.Contains(string(body), `"30.00"`) {
		t.Errorf("payload %s does not carry the amount as the string \"30.00\"", body)
	}

	var decoded TopupEvent
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !decoded.Amount.Equal(ev.Amount) {
		t.Errorf("amount = %s after round trip, want %s", decoded.Amount, ev.Amount)
	}
}
