package store

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/tidecore/histedit/plan"
	"github.com/tidecore/histedit/vcs"
)

// Format: a 4-byte magic, a 1-byte version, then fixed/length-prefixed
// fields in a fixed order. Every variable-length field is a uint32 count
// followed by that many elements; commit-ids are always their raw 20
// bytes, never hex text, so re-encoding an identical State produces
// identical bytes (spec §8 property 4, bitwise round-trip).
var magic = [4]byte{'h', 'e', 's', 't'}

const version = 1

// Encode serializes s deterministically.
func Encode(s State) []byte {
	var buf bytes.Buffer
	buf.Write(magic[:])
	buf.WriteByte(version)

	buf.Write(s.ParentNode[:])
	buf.Write(s.Topmost[:])
	if s.Keep {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}

	writeUint32(&buf, uint32(len(s.Plan)))
	for _, e := range s.Plan {
		buf.WriteByte(byte(e.Action))
		buf.Write(e.Target[:])
	}

	writeUint32(&buf, uint32(len(s.Replacements)))
	for _, r := range s.Replacements {
		buf.Write(r.Precursor[:])
		writeUint32(&buf, uint32(len(r.Successors)))
		for _, succ := range r.Successors {
			buf.Write(succ[:])
		}
	}

	return buf.Bytes()
}

// Decode parses bytes produced by Encode. It reports a malformed-state
// error on truncation, a bad magic, or an unsupported version.
func Decode(data []byte) (State, error) {
	r := bytes.NewReader(data)

	var gotMagic [4]byte
	if err := readFull(r, gotMagic[:]); err != nil {
		return State{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if gotMagic != magic {
		return State{}, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	verByte, err := r.ReadByte()
	if err != nil {
		return State{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if verByte != version {
		return State{}, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, verByte)
	}

	var s State
	if err := readFull(r, s.ParentNode[:]); err != nil {
		return State{}, fmt.Errorf("%w: parent node: %w", ErrCorrupt, err)
	}
	if err := readFull(r, s.Topmost[:]); err != nil {
		return State{}, fmt.Errorf("%w: topmost: %w", ErrCorrupt, err)
	}
	keepByte, err := r.ReadByte()
	if err != nil {
		return State{}, fmt.Errorf("%w: keep flag: %w", ErrCorrupt, err)
	}
	s.Keep = keepByte != 0

	planLen, err := readUint32(r)
	if err != nil {
		return State{}, fmt.Errorf("%w: plan length: %w", ErrCorrupt, err)
	}
	s.Plan = make(plan.Plan, planLen)
	for i := range s.Plan {
		actionByte, err := r.ReadByte()
		if err != nil {
			return State{}, fmt.Errorf("%w: plan entry %d action: %w", ErrCorrupt, i, err)
		}
		s.Plan[i].Action = plan.Action(actionByte)
		if err := readFull(r, s.Plan[i].Target[:]); err != nil {
			return State{}, fmt.Errorf("%w: plan entry %d target: %w", ErrCorrupt, i, err)
		}
	}

	replLen, err := readUint32(r)
	if err != nil {
		return State{}, fmt.Errorf("%w: replacements length: %w", ErrCorrupt, err)
	}
	s.Replacements = make([]Replacement, replLen)
	for i := range s.Replacements {
		if err := readFull(r, s.Replacements[i].Precursor[:]); err != nil {
			return State{}, fmt.Errorf("%w: replacement %d precursor: %w", ErrCorrupt, i, err)
		}
		succLen, err := readUint32(r)
		if err != nil {
			return State{}, fmt.Errorf("%w: replacement %d successor count: %w", ErrCorrupt, i, err)
		}
		succs := make([]vcs.CommitID, succLen)
		for j := range succs {
			if err := readFull(r, succs[j][:]); err != nil {
				return State{}, fmt.Errorf("%w: replacement %d successor %d: %w", ErrCorrupt, i, j, err)
			}
		}
		s.Replacements[i].Successors = succs
	}

	if r.Len() != 0 {
		return State{}, fmt.Errorf("%w: trailing bytes", ErrCorrupt)
	}
	return s, nil
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readFull(r *bytes.Reader, b []byte) error {
	n, err := r.Read(b)
	if err != nil {
		return err
	}
	if n != len(b) {
		return fmt.Errorf("short read: got %d want %d", n, len(b))
	}
	return nil
}
