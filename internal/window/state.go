package window

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// stateWire has State's fields without its methods, so the CBOR encoder does
// not recurse into MarshalBinary.
type stateWire State

// MarshalBinary encodes the state as CBOR so a walk can be checkpointed.
func (s State) MarshalBinary() ([]byte, error) {
	b, err := cbor.Marshal(stateWire(s))
	if err != nil {
		return nil, fmt.Errorf("encode window state: %w", err)
	}
	return b, nil
}

// UnmarshalBinary restores a state written by MarshalBinary.
func (s *State) UnmarshalBinary(data []byte) error {
	var w stateWire
	if err := cbor.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode window state: %w", err)
	}
	if w.Offset < 0 {
		return fmt.Errorf("decode window state: negative offset %d", w.Offset)
	}
	*s = State(w)
	return nil
}
