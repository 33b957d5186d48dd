// Package external implements the External-Change Tracker (spec.md 4.6):
// detecting a foreign modification of a session's source file, computing
// a logical, ID-independent diff against the live tree, and folding the
// result into the session's timeline as a synthetic history entry.
package external

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/doxsess/docx-session-engine/internal/doctree"
)

// ChangeKind classifies one entry in a Diff result.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeRemoved  ChangeKind = "removed"
	ChangeModified ChangeKind = "modified"
	ChangeMoved    ChangeKind = "moved"
)

// Change is one logical difference between the old and new top-level body
// content (paragraphs and tables only, per spec.md 4.6 step 1).
type Change struct {
	Kind     ChangeKind
	OldIndex int // -1 for an addition
	NewIndex int // -1 for a removal
	OldID    string
	NewID    string
}

// Summary tallies a Diff result's change kinds, spec.md 6's
// {added,removed,modified,moved} shape.
type Summary struct {
	Added    int
	Removed  int
	Modified int
	Moved    int
}

// similarityThreshold is the minimum blended similarity a fuzzy pairing
// must clear to count as "the same element, modified" rather than an
// unrelated removal+addition pair (spec.md 4.6 step 4 default).
const similarityThreshold = 0.6

// indexPair links one old-side index to the new-side index it matched,
// either exactly (step 3) or fuzzily (step 4).
type indexPair struct{ oi, ni int }

// topLevelContent returns the arena indices of tree's top-level
// paragraph/heading/table content, in document order — the only kinds
// spec.md 4.6 step 1 diffs ("Snapshot all top-level body content
// (paragraphs and tables)").
func topLevelContent(tree *doctree.Tree) []int {
	root := tree.Node(tree.Root())
	var out []int
	for _, c := range root.Children() {
		n := tree.Node(c)
		if n == nil {
			continue
		}
		switch n.Kind {
		case doctree.KindParagraph, doctree.KindHeading, doctree.KindTable:
			out = append(out, c)
		}
	}
	return out
}

// fingerprint hashes an element's inner text plus a structural signature
// with ID-ish attributes stripped (spec.md 4.6 step 2) — stable IDs never
// enter the signature at all, since doctree.Node carries them in a
// separate field this walk never reads.
func fingerprint(tree *doctree.Tree, idx int) string {
	var b strings.Builder
	var walk func(int)
	walk = func(i int) {
		n := tree.Node(i)
		if n == nil {
			return
		}
		fmt.Fprintf(&b, "<%s:%d>", n.Kind, n.Level)
		if n.Kind == doctree.KindRun {
			b.WriteString(n.Text)
		}
		for _, c := range n.Children() {
			walk(c)
		}
		fmt.Fprintf(&b, "</%s>", n.Kind)
	}
	walk(idx)
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Diff compares oldTree's and newTree's top-level body content and
// returns the logical change list, sorted by origin index, plus its
// tallied summary (spec.md 4.6).
func Diff(oldTree, newTree *doctree.Tree) (Summary, []Change) {
	oldIdx := topLevelContent(oldTree)
	newIdx := topLevelContent(newTree)

	oldFP := make([]string, len(oldIdx))
	for i, idx := range oldIdx {
		oldFP[i] = fingerprint(oldTree, idx)
	}
	newFP := make([]string, len(newIdx))
	for i, idx := range newIdx {
		newFP[i] = fingerprint(newTree, idx)
	}

	oldMatched := make([]bool, len(oldIdx))
	newMatched := make([]bool, len(newIdx))

	// Step 3: position-aware exact-fingerprint grouping, first-occurrence
	// to first-occurrence in document order.
	var exact []indexPair
	newByFP := make(map[string][]int)
	for i, fp := range newFP {
		newByFP[fp] = append(newByFP[fp], i)
	}
	for oi, fp := range oldFP {
		cands := newByFP[fp]
		for k, ni := range cands {
			if !newMatched[ni] {
				exact = append(exact, indexPair{oi, ni})
				oldMatched[oi] = true
				newMatched[ni] = true
				newByFP[fp] = append(cands[:k:k], cands[k+1:]...)
				break
			}
		}
	}

	// Step 4: similarity matrix over remaining elements, greedy highest
	// first, pairs clearing similarityThreshold become modifications.
	var remOld, remNew []int
	for oi := range oldIdx {
		if !oldMatched[oi] {
			remOld = append(remOld, oi)
		}
	}
	for ni := range newIdx {
		if !newMatched[ni] {
			remNew = append(remNew, ni)
		}
	}

	type scoredPair struct {
		oi, ni int
		score  float64
	}
	var candidates []scoredPair
	for _, oi := range remOld {
		oText := oldTree.InnerText(oldIdx[oi])
		for _, ni := range remNew {
			nText := newTree.InnerText(newIdx[ni])
			score := textSimilarity(oText, nText)
			if score >= similarityThreshold {
				candidates = append(candidates, scoredPair{oi, ni, score})
			}
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	var fuzzy []indexPair
	for _, c := range candidates {
		if oldMatched[c.oi] || newMatched[c.ni] {
			continue
		}
		oldMatched[c.oi] = true
		newMatched[c.ni] = true
		fuzzy = append(fuzzy, indexPair{c.oi, c.ni})
	}

	// Step 6: move detection via LIS over the new-indices of exact
	// matches taken in old-index order. Matches inside the LIS merely
	// shifted because of neighboring edits; matches outside it moved.
	sort.Slice(exact, func(i, j int) bool { return exact[i].oi < exact[j].oi })
	lisSet := longestIncreasingSubsequence(exact)

	var changes []Change
	for _, p := range exact {
		if !lisSet[p.oi] {
			changes = append(changes, Change{
				Kind:     ChangeMoved,
				OldIndex: p.oi,
				NewIndex: p.ni,
				OldID:    oldTree.Node(oldIdx[p.oi]).ID,
				NewID:    newTree.Node(newIdx[p.ni]).ID,
			})
		}
	}
	for _, p := range fuzzy {
		changes = append(changes, Change{
			Kind:     ChangeModified,
			OldIndex: p.oi,
			NewIndex: p.ni,
			OldID:    oldTree.Node(oldIdx[p.oi]).ID,
			NewID:    newTree.Node(newIdx[p.ni]).ID,
		})
	}
	for oi := range oldIdx {
		if !oldMatched[oi] {
			changes = append(changes, Change{Kind: ChangeRemoved, OldIndex: oi, NewIndex: -1, OldID: oldTree.Node(oldIdx[oi]).ID})
		}
	}
	for ni := range newIdx {
		if !newMatched[ni] {
			changes = append(changes, Change{Kind: ChangeAdded, OldIndex: -1, NewIndex: ni, NewID: newTree.Node(newIdx[ni]).ID})
		}
	}

	// Step 7: sort by origin index; additions (no origin index) sort by
	// their new-document position, placed after every originally-present
	// element so they read in the order they'd be encountered top to
	// bottom of the new document.
	sort.SliceStable(changes, func(i, j int) bool {
		return originKey(changes[i], len(oldIdx)) < originKey(changes[j], len(oldIdx))
	})

	summary := Summary{}
	for _, c := range changes {
		switch c.Kind {
		case ChangeAdded:
			summary.Added++
		case ChangeRemoved:
			summary.Removed++
		case ChangeModified:
			summary.Modified++
		case ChangeMoved:
			summary.Moved++
		}
	}
	return summary, changes
}

func originKey(c Change, oldCount int) int {
	if c.OldIndex >= 0 {
		return c.OldIndex
	}
	return oldCount + c.NewIndex
}

// longestIncreasingSubsequence returns the set of old-indices (from pairs,
// already sorted by oi) whose new-index participates in the longest
// strictly increasing subsequence of new-indices.
func longestIncreasingSubsequence(pairs []indexPair) map[int]bool {
	n := len(pairs)
	if n == 0 {
		return map[int]bool{}
	}
	tails := make([]int, 0, n)     // tails[k] = index into pairs of the smallest tail of an increasing run of length k+1
	prev := make([]int, n)         // predecessor chain for reconstruction
	tailVals := make([]int, 0, n)

	for i, p := range pairs {
		prev[i] = -1
		lo, hi := 0, len(tailVals)
		for lo < hi {
			mid := (lo + hi) / 2
			if tailVals[mid] < p.ni {
				lo = mid + 1
			} else {
				hi = mid
			}
		}
		if lo > 0 {
			prev[i] = tails[lo-1]
		}
		if lo == len(tailVals) {
			tailVals = append(tailVals, p.ni)
			tails = append(tails, i)
		} else {
			tailVals[lo] = p.ni
			tails[lo] = i
		}
	}

	set := make(map[int]bool, len(tails))
	if len(tails) == 0 {
		return set
	}
	for i := tails[len(tails)-1]; i != -1; i = prev[i] {
		set[pairs[i].oi] = true
	}
	return set
}
