package store

import (
	"bytes"
	"errors"
	"testing"

	"github.com/tidecore/histedit/plan"
	"github.com/tidecore/histedit/vcs"
)

func id(b byte) vcs.CommitID {
	var out vcs.CommitID
	out[len(out)-1] = b
	return out
}

func sampleState() State {
	return State{
		ParentNode: id(1),
		Topmost:    id(9),
		Keep:       true,
		Plan: plan.Plan{
			{Action: plan.Pick, Target: id(2)},
			{Action: plan.Fold, Target: id(3)},
		},
		Replacements: []Replacement{
			{Precursor: id(2), Successors: []vcs.CommitID{id(20)}},
			{Precursor: id(3), Successors: nil},
		},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	want := sampleState()
	got, err := Decode(Encode(want))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if got.ParentNode != want.ParentNode || got.Topmost != want.Topmost || got.Keep != want.Keep {
		t.Fatalf("scalar fields mismatch: got %+v, want %+v", got, want)
	}
	if len(got.Plan) != len(want.Plan) {
		t.Fatalf("plan length = %d, want %d", len(got.Plan), len(want.Plan))
	}
	for i := range want.Plan {
		if got.Plan[i] != want.Plan[i] {
			t.Errorf("plan[%d] = %+v, want %+v", i, got.Plan[i], want.Plan[i])
		}
	}
	if len(got.Replacements) != len(want.Replacements) {
		t.Fatalf("replacements length = %d, want %d", len(got.Replacements), len(want.Replacements))
	}
}

// TestEncodeIsDeterministic exercises spec §8 property 4: encoding an
// identical State twice must produce bitwise identical bytes.
func TestEncodeIsDeterministic(t *testing.T) {
	s := sampleState()
	a := Encode(s)
	b := Encode(sampleState())
	if !bytes.Equal(a, b) {
		t.Fatalf("Encode is not deterministic: %x != %x", a, b)
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	data := Encode(sampleState())
	data[0] ^= 0xFF
	if _, err := Decode(data); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("Decode() error = %v, want ErrCorrupt", err)
	}
}

func TestDecodeRejectsUnsupportedVersion(t *testing.T) {
	data := Encode(sampleState())
	data[4] = 99
	if _, err := Decode(data); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("Decode() error = %v, want ErrCorrupt", err)
	}
}

func TestDecodeRejectsTruncation(t *testing.T) {
	data := Encode(sampleState())
	if _, err := Decode(data[:len(data)-3]); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("Decode() error = %v, want ErrCorrupt", err)
	}
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	data := append(Encode(sampleState()), 0x00)
	if _, err := Decode(data); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("Decode() error = %v, want ErrCorrupt", err)
	}
}
