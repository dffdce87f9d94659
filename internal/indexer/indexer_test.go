package indexer

import "testing"

func TestBuildLowercasesSearchableText(t *testing.T) {
	idx := Build("ocr-1", "Agent SMITH met Client Jones")
	if idx.SearchableText != "agent smith met client jones" {
		t.Fatalf("expected lowercased searchable text, got %q", idx.SearchableText)
	}
}

func TestBuildTokenizesConsistentlyWithSearchableText(t *testing.T) {
	idx := Build("ocr-1", "Case No. 07-80151-CR")
	want := []string{"case", "no", "07", "80151", "cr"}
	if len(idx.Tokens) != len(want) {
		t.Fatalf("expected %d tokens, got %+v", len(want), idx.Tokens)
	}
	for i := range want {
		if idx.Tokens[i] != want[i] {
			t.Fatalf("token %d: got %q want %q", i, idx.Tokens[i], want[i])
		}
	}
}

func TestBuildAssignsDistinctIndexIDsPerCall(t *testing.T) {
	a := Build("ocr-1", "text")
	b := Build("ocr-1", "text")
	if a.IndexID == b.IndexID {
		t.Fatalf("expected distinct index ids across calls, got the same %q twice", a.IndexID)
	}
}

func TestBuildCarriesOCRIDThrough(t *testing.T) {
	idx := Build("ocr-42", "some text")
	if idx.OCRID != "ocr-42" {
		t.Fatalf("expected ocr id carried through, got %q", idx.OCRID)
	}
}
