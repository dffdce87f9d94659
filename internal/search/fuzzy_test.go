package search

import "testing"

func TestTrigramSetShortStringIsWholeString(t *testing.T) {
	set := TrigramSet("ab")
	if _, ok := set["ab"]; !ok || len(set) != 1 {
		t.Fatalf("expected single-entry set for a short string, got %+v", set)
	}
}

func TestTrigramSetSlidesThroughLongerStrings(t *testing.T) {
	set := TrigramSet("abcd")
	want := []string{"abc", "bcd"}
	for _, tg := range want {
		if _, ok := set[tg]; !ok {
			t.Fatalf("expected trigram %q in set %+v", tg, set)
		}
	}
}

func TestTrigramJaccardIdenticalSetsIsOne(t *testing.T) {
	a := TrigramSet("epstein")
	if j := TrigramJaccard(a, a); j != 1 {
		t.Fatalf("expected jaccard 1 for identical sets, got %v", j)
	}
}

func TestTrigramJaccardDisjointSetsIsZero(t *testing.T) {
	a := TrigramSet("abc")
	b := TrigramSet("xyz")
	if j := TrigramJaccard(a, b); j != 0 {
		t.Fatalf("expected jaccard 0 for disjoint sets, got %v", j)
	}
}

func TestTrigramJaccardEmptySetIsZero(t *testing.T) {
	if j := TrigramJaccard(map[string]struct{}{}, TrigramSet("abc")); j != 0 {
		t.Fatalf("expected jaccard 0 when one set is empty, got %v", j)
	}
}

func TestBestTokenTrigramJaccardPicksClosestToken(t *testing.T) {
	best := BestTokenTrigramJaccard("epstein", []string{"the", "epsten", "case"})
	unrelated := BestTokenTrigramJaccard("epstein", []string{"the"})
	if best <= unrelated {
		t.Fatalf("expected best token match to beat an unrelated token, got best=%v unrelated=%v", best, unrelated)
	}
}

func TestBestTokenTrigramJaccardExactMatchIsOne(t *testing.T) {
	if best := BestTokenTrigramJaccard("epstein", []string{"filed", "epstein", "case"}); best != 1 {
		t.Fatalf("expected exact token match to score 1, got %v", best)
	}
}

func TestBestTokenTrigramJaccardNoTokensIsZero(t *testing.T) {
	if best := BestTokenTrigramJaccard("epstein", nil); best != 0 {
		t.Fatalf("expected 0 for an empty token list, got %v", best)
	}
}
