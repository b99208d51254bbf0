package orderbook

import (
	"sort"
	"testing"

	"pgregory.net/rapid"
)

func TestRBTreeOrderedTraversal(t *testing.T) {
	tree := NewRBTree()
	prices := []int64{50, 10, 90, 30, 70, 20, 80, 60, 40, 100}
	for _, p := range prices {
		tree.UpsertLevel(p)
	}

	var got []int64
	tree.ForEachAscending(func(lvl *PriceLevel) bool {
		got = append(got, lvl.Price)
		return true
	})
	if !sort.SliceIsSorted(got, func(i, j int) bool { return got[i] < got[j] }) {
		t.Fatalf("ascending traversal not sorted: %v", got)
	}
	if len(got) != len(prices) {
		t.Fatalf("traversal visited %d levels, want %d", len(got), len(prices))
	}
	if tree.MinLevel().Price != 10 || tree.MaxLevel().Price != 100 {
		t.Fatalf("min/max = %d/%d", tree.MinLevel().Price, tree.MaxLevel().Price)
	}
}

func TestRBTreeUpsertReturnsSameLevel(t *testing.T) {
	tree := NewRBTree()
	a := tree.UpsertLevel(42)
	b := tree.UpsertLevel(42)
	if a != b {
		t.Fatal("upsert of an existing price must return the same level")
	}
}

func TestRBTreeDelete(t *testing.T) {
	tree := NewRBTree()
	for _, p := range []int64{5, 3, 8, 1, 4} {
		tree.UpsertLevel(p)
	}
	tree.DeleteLevel(3)
	if tree.FindLevel(3) != nil {
		t.Fatal("deleted level still found")
	}
	if tree.FindLevel(4) == nil || tree.FindLevel(1) == nil {
		t.Fatal("delete disturbed unrelated levels")
	}
}

// Random insert/delete sequences must keep the tree consistent with a plain
// sorted set.
func TestRBTreeMatchesReferenceSet(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tree := NewRBTree()
		ref := map[int64]bool{}

		steps := rapid.IntRange(1, 200).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			price := rapid.Int64Range(1, 50).Draw(t, "price")
			if rapid.Bool().Draw(t, "del") {
				tree.DeleteLevel(price)
				delete(ref, price)
			} else {
				tree.UpsertLevel(price)
				ref[price] = true
			}
		}

		var got []int64
		prev := int64(-1)
		tree.ForEachAscending(func(lvl *PriceLevel) bool {
			if lvl.Price <= prev {
				t.Fatalf("traversal out of order at %d after %d", lvl.Price, prev)
			}
			prev = lvl.Price
			got = append(got, lvl.Price)
			return true
		})
		if len(got) != len(ref) {
			t.Fatalf("tree has %d levels, reference has %d", len(got), len(ref))
		}
		for _, p := range got {
			if !ref[p] {
				t.Fatalf("tree holds %d which the reference does not", p)
			}
		}
	})
}
