package patch

import (
	"strings"

	"github.com/doxsess/docx-session-engine/internal/doctree"
	"github.com/doxsess/docx-session-engine/internal/docxerr"
	"github.com/doxsess/docx-session-engine/internal/path"
)

// doReplaceText finds find within the plain-text runs under op.Path (the
// whole body if omitted) and substitutes replace, splicing across run
// boundaries while preserving each overlapped run's own formatting: the
// first run touched by a match keeps the replacement text, later runs
// touched by the same match lose only the overlapping slice. Tab and line
// break runs are not part of the searchable text and never split a match.
func doReplaceText(tree *doctree.Tree, op Op, dryRun bool, res *OpResult) error {
	if op.Find == "" {
		return docxerr.New(docxerr.PatchShape, "replace_text requires find")
	}
	countOnly := op.MaxCount != nil && *op.MaxCount == 0
	if op.Replace == "" && !countOnly {
		return docxerr.New(docxerr.PatchSemantic, "replace_text requires a non-empty replace (use remove to delete text, or max_count=0 to only count matches)")
	}

	roots := []int{tree.Root()}
	if op.Path != "" {
		p, err := path.Parse(op.Path)
		if err != nil {
			return err
		}
		frontier, err := path.Resolve(tree, p)
		if err != nil {
			return err
		}
		if len(frontier) == 0 {
			return docxerr.WithPath(docxerr.PathResolution, p.String(), "no element matched replace_text target")
		}
		roots = frontier
	}

	// spec.md 4.3/6: max_count defaults to 1 when omitted; 0 means
	// count-only, a positive value caps the replacements, and a negative
	// value is unbounded.
	maxCount := 1
	if op.MaxCount != nil {
		maxCount = *op.MaxCount
	}

	matchesFound := 0
	for _, root := range roots {
		matchesFound += countMatches(tree, root, op.Find)
	}
	res.MatchesFound = matchesFound

	if !dryRun {
		applied := 0
		for _, root := range roots {
			for maxCount < 0 || applied < maxCount {
				if !replaceOnce(tree, root, op.Find, op.Replace) {
					break
				}
				applied++
			}
			if maxCount >= 0 && applied >= maxCount {
				break
			}
		}
		res.ReplacementsMade = applied
	} else {
		res.ReplacementsMade = matchesFound
		if maxCount >= 0 && res.ReplacementsMade > maxCount {
			res.ReplacementsMade = maxCount
		}
	}
	return nil
}

type runSpan struct {
	idx        int
	start, end int
}

// textRuns collects the plain-text runs under root in document order along
// with their offsets into the concatenation of their Text fields.
func textRuns(tree *doctree.Tree, root int) ([]runSpan, string) {
	var spans []runSpan
	var b strings.Builder
	tree.Walk(root, func(i int) {
		n := tree.Node(i)
		if n == nil || n.Kind != doctree.KindRun || n.IsTab || n.Break != "" {
			return
		}
		start := b.Len()
		b.WriteString(n.Text)
		spans = append(spans, runSpan{idx: i, start: start, end: b.Len()})
	})
	return spans, b.String()
}

func countMatches(tree *doctree.Tree, root int, find string) int {
	_, full := textRuns(tree, root)
	if find == "" {
		return 0
	}
	count := 0
	for pos := 0; ; {
		i := strings.Index(full[pos:], find)
		if i < 0 {
			break
		}
		count++
		pos += i + len(find)
	}
	return count
}

// replaceOnce finds and replaces the first remaining match under root,
// returning false if none remain.
func replaceOnce(tree *doctree.Tree, root int, find, replace string) bool {
	spans, full := textRuns(tree, root)
	start := strings.Index(full, find)
	if start < 0 {
		return false
	}
	end := start + len(find)

	var affected []runSpan
	for _, s := range spans {
		if s.end <= start || s.start >= end {
			continue
		}
		affected = append(affected, s)
	}
	if len(affected) == 0 {
		return false
	}

	for i, s := range affected {
		n := tree.Node(s.idx)
		if n == nil {
			continue
		}
		localStart := 0
		if start > s.start {
			localStart = start - s.start
		}
		localEnd := s.end - s.start
		if end < s.end {
			localEnd = end - s.start
		}
		text := n.Text
		if localStart > len(text) {
			localStart = len(text)
		}
		if localEnd > len(text) {
			localEnd = len(text)
		}
		if i == 0 {
			n.Text = text[:localStart] + replace + text[localEnd:]
		} else {
			n.Text = text[:localStart] + text[localEnd:]
		}
	}
	return true
}
