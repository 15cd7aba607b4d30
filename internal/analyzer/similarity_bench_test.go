package analyzer

import (
	"fmt"
	"testing"
)

func benchCandidates(n int) [][2]string {
	out := make([][2]string, n)
	for i := range out {
		out[i] = [2]string{
			fmt.Sprintf("acme-industries-%d", i),
			fmt.Sprintf("Acme Industries %d | LinkedIn", i),
		}
	}
	return out
}

func BenchmarkSimilarity_PerCall(b *testing.B) {
	cands := benchCandidates(10)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, c := range cands {
			_ = Similarity("Acme Industries International", c[0], c[1])
		}
	}
}

func BenchmarkSimilarity_Profile(b *testing.B) {
	cands := benchCandidates(10)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p := NewNameProfile("Acme Industries International")
		for _, c := range cands {
			_ = p.Score(c[0], c[1])
		}
	}
}

func BenchmarkLevenshtein(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = Levenshtein("acmeindustriesinternational", "acme-industries-intl")
	}
}
