package chunk

import (
	"strings"
	"testing"

	"github.com/packlate/packlate/document"
)

func item(id, text string) document.Item {
	return document.Item{ID: id, Original: text}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 1},
		{"abcd", 2},
		{strings.Repeat("x", 400), 101},
	}
	for _, tc := range tests {
		if got := EstimateTokens(tc.in); got != tc.want {
			t.Errorf("EstimateTokens(%d chars) = %d, want %d", len(tc.in), got, tc.want)
		}
	}
}

func TestSplitRespectsBudget(t *testing.T) {
	// Budget after overhead: 600-500 = 100 tokens. Each item below is
	// 200 chars = 51 tokens, so a second item would overflow the batch.
	var items []document.Item
	for i := 0; i < 5; i++ {
		items = append(items, item("T00"+string(rune('1'+i)), strings.Repeat("a", 200)))
	}

	chunks := Split(items, 600)

	if len(chunks) != 5 {
		t.Fatalf("chunks = %d, want 5", len(chunks))
	}
	for i, c := range chunks {
		if len(c) != 1 {
			t.Errorf("chunk %d has %d items, want 1", i, len(c))
		}
	}
}

func TestSplitPacksMultipleItems(t *testing.T) {
	// Budget 3000-500 = 2500; items are 26 tokens each, all fit in one.
	items := []document.Item{
		item("T001", strings.Repeat("a", 100)),
		item("T002", strings.Repeat("b", 100)),
		item("T003", strings.Repeat("c", 100)),
	}

	chunks := Split(items, 3000)

	if len(chunks) != 1 {
		t.Fatalf("chunks = %d, want 1", len(chunks))
	}
	if len(chunks[0]) != 3 {
		t.Fatalf("chunk size = %d, want 3", len(chunks[0]))
	}
}

func TestSplitOversizedItemBecomesSingleton(t *testing.T) {
	items := []document.Item{
		item("T001", "short"),
		item("T002", strings.Repeat("x", 20000)), // far over any budget
		item("T003", "also short"),
	}

	chunks := Split(items, 3000)

	if len(chunks) != 3 {
		t.Fatalf("chunks = %d, want 3: %v", len(chunks), chunks)
	}
	if len(chunks[1]) != 1 || chunks[1][0].ID != "T002" {
		t.Fatalf("oversized item not isolated: %v", chunks[1])
	}
}

func TestSplitPreservesOrder(t *testing.T) {
	items := []document.Item{
		item("T001", "one"), item("T002", "two"), item("T003", "three"),
	}

	chunks := Split(items, 3000)

	var ids []string
	for _, c := range chunks {
		for _, it := range c {
			ids = append(ids, it.ID)
		}
	}
	want := []string{"T001", "T002", "T003"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("order = %v, want %v", ids, want)
		}
	}
}

func TestSplitEmptyInput(t *testing.T) {
	if chunks := Split(nil, 3000); len(chunks) != 0 {
		t.Fatalf("chunks = %d, want 0", len(chunks))
	}
}
