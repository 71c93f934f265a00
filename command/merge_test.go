package command

import (
	"testing"

	"github.com/velleman/k8090/relay"
)

func TestMergeRelayOnUnion(t *testing.T) {
	a := New(RelayOn, relay.FromPosition(1), 0, 0)
	b := New(RelayOn, relay.FromPosition(2), 0, 0)
	got := Merge(a, b)
	want := relay.FromPositions([]int{1, 2})
	if got.Mask != want {
		t.Fatalf("Merge(RelayOn, RelayOn).Mask = %v, want %v", got.Mask, want)
	}
}

func TestMergeToggleXor(t *testing.T) {
	a := New(ToggleRelay, relay.FromPositions([]int{1, 2}), 0, 0)
	b := New(ToggleRelay, relay.FromPositions([]int{2, 3}), 0, 0)
	got := Merge(a, b)
	want := relay.FromPositions([]int{1, 3}) // relay 2 toggled twice cancels out
	if got.Mask != want {
		t.Fatalf("Merge(Toggle, Toggle).Mask = %v, want %v", got.Mask, want)
	}
}

func TestMergeRelayOffCancelsRelayOnBits(t *testing.T) {
	a := New(RelayOn, relay.FromPositions([]int{1, 2}), 0, 0)
	b := New(RelayOff, relay.FromPositions([]int{2, 3}), 0, 0)
	got := Merge(a, b)
	if got.Id != RelayOn || got.Mask != relay.FromPosition(1) {
		t.Fatalf("Merge(RelayOn{1,2}, RelayOff{2,3}) = %v %v, want RelayOn {1}", got.Id, got.Mask)
	}
}

func TestMergeSetButtonModeFull(t *testing.T) {
	a := New(SetButtonMode,
		relay.FromPositions([]int{1, 2, 3}),
		byte(relay.FromPositions([]int{4, 5, 6})),
		byte(relay.FromPositions([]int{7, 8})))
	b := New(SetButtonMode,
		relay.FromPositions([]int{4, 7}),
		byte(relay.FromPositions([]int{1, 3, 5})),
		byte(relay.FromPositions([]int{2, 6, 8})))
	got := Merge(a, b)
	if got.Mask != relay.FromPositions([]int{1, 2, 3, 4, 7}) {
		t.Fatalf("momentary = %v, want {1,2,3,4,7}", got.Mask)
	}
	if relay.Set(got.Param1) != relay.FromPositions([]int{5, 6}) {
		t.Fatalf("toggle = %v, want {5,6}", relay.Set(got.Param1))
	}
	if relay.Set(got.Param2) != relay.FromPosition(8) {
		t.Fatalf("timed = %v, want {8}", relay.Set(got.Param2))
	}
}

func TestMergeSetButtonModePrecedence(t *testing.T) {
	// momentary > toggle > timed: relay 1 requested as both momentary and
	// timed (in the first command) ends up momentary-only after the merge.
	a := New(SetButtonMode, relay.FromPosition(1), byte(relay.None), byte(relay.FromPosition(1)))
	b := New(SetButtonMode, relay.None, byte(relay.FromPosition(2)), byte(relay.None))
	got := Merge(a, b)
	if got.Mask != relay.FromPosition(1) {
		t.Fatalf("momentary = %v, want {1}", got.Mask)
	}
	if relay.Set(got.Param1) != relay.FromPosition(2) {
		t.Fatalf("toggle = %v, want {2}", relay.Set(got.Param1))
	}
	if relay.Set(got.Param2) != relay.None {
		t.Fatalf("timed = %v, want {} (relay 1 stays momentary, not timed)", relay.Set(got.Param2))
	}
}

func TestMergePriorityTakesMax(t *testing.T) {
	a := New(RelayOn, relay.FromPosition(1), 0, 0)
	a.Priority = 1
	b := New(RelayOn, relay.FromPosition(2), 0, 0)
	b.Priority = 5
	if got := Merge(a, b).Priority; got != 5 {
		t.Fatalf("Priority = %d, want 5", got)
	}
}

func TestCancelOppositeLeavesEmptyMaskInQueue(t *testing.T) {
	pending := New(RelayOn, relay.FromPosition(1), 0, 0)
	incoming := New(RelayOff, relay.FromPosition(1), 0, 0)
	got := CancelOpposite(pending, incoming)
	if !got.Mask.Empty() {
		t.Fatalf("Mask = %v, want empty", got.Mask)
	}
	if got.Id != RelayOn {
		t.Fatal("CancelOpposite must not change the pending command's id")
	}
}
