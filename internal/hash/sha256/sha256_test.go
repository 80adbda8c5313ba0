package sha256

import "testing"

func TestHasherHashDeterministic(t *testing.T) {
	t.Parallel()

	h := New()
	got := h.Hash([]byte("hello world"))
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
	if again := h.Hash([]byte("hello world")); again != got {
		t.Fatalf("expected deterministic hash, got %s vs %s", got, again)
	}
	if other := h.Hash([]byte("hello world!")); other == got {
		t.Fatal("different inputs should not collide")
	}
}
