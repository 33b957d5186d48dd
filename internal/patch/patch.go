// Package patch executes structured operation batches against a document
// tree (spec.md 4.3).
package patch

import (
	"github.com/doxsess/docx-session-engine/internal/doctree"
	"github.com/doxsess/docx-session-engine/internal/docxerr"
)

const maxOpsPerBatch = 10

// Op is one structured operation in a patch batch.
type Op struct {
	Op       string         `json:"op"`
	Path     string         `json:"path,omitempty"`
	Value    map[string]any `json:"value,omitempty"`
	From     string         `json:"from,omitempty"`
	Find     string         `json:"find,omitempty"`
	Replace  string         `json:"replace,omitempty"`
	MaxCount *int           `json:"max_count,omitempty"`
	Column   *int           `json:"column,omitempty"`
}

// Status values for an operation result.
const (
	StatusSuccess      = "success"
	StatusWouldSucceed = "would_succeed"
	StatusError        = "error"
	StatusWouldFail    = "would_fail"
)

// OpResult carries the per-operation outcome.
type OpResult struct {
	Op    string `json:"op"`
	Path  string `json:"path,omitempty"`
	From  string `json:"from,omitempty"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`

	CreatedID        string `json:"created_id,omitempty"`
	ReplacedID       string `json:"replaced_id,omitempty"`
	RemovedID        string `json:"removed_id,omitempty"`
	MovedID          string `json:"moved_id,omitempty"`
	SourceID         string `json:"source_id,omitempty"`
	CopyID           string `json:"copy_id,omitempty"`
	MatchesFound     int    `json:"matches_found,omitempty"`
	ReplacementsMade int    `json:"replacements_made,omitempty"`
	ColumnIndex      int    `json:"column_index,omitempty"`
	RowsAffected     int    `json:"rows_affected,omitempty"`
}

// Response is the structured outcome of a batch call.
type Response struct {
	Success    bool       `json:"success"`
	DryRun     bool       `json:"dryRun"`
	Total      int        `json:"total"`
	Applied    int        `json:"applied"`
	WouldApply int        `json:"wouldApply"`
	Operations []OpResult `json:"operations"`
}

// Apply executes ops against tree. With dryRun, paths are resolved and
// inputs validated but tree is never mutated. At most 10 operations are
// accepted per call (spec.md 4.3); exceeding that is a PatchShape error
// that aborts the whole batch before any operation runs.
func Apply(tree *doctree.Tree, ops []Op, dryRun bool) (*Response, error) {
	if len(ops) == 0 {
		return nil, docxerr.New(docxerr.PatchShape, "operation array must not be empty")
	}
	if len(ops) > maxOpsPerBatch {
		return nil, docxerr.Newf(docxerr.PatchShape, "at most %d operations are allowed per call, got %d", maxOpsPerBatch, len(ops))
	}

	resp := &Response{DryRun: dryRun, Total: len(ops)}
	resp.Success = true
	for _, op := range ops {
		res := applyOne(tree, op, dryRun)
		resp.Operations = append(resp.Operations, res)
		switch res.Status {
		case StatusSuccess:
			resp.Applied++
		case StatusWouldSucceed:
			resp.WouldApply++
		case StatusError, StatusWouldFail:
			resp.Success = false
		}
	}
	return resp, nil
}

func applyOne(tree *doctree.Tree, op Op, dryRun bool) OpResult {
	res := OpResult{Op: op.Op, Path: op.Path, From: op.From}
	var err error
	switch op.Op {
	case "add":
		err = doAdd(tree, op, dryRun, &res)
	case "replace":
		err = doReplace(tree, op, dryRun, &res)
	case "remove":
		err = doRemove(tree, op, dryRun, &res)
	case "move":
		err = doMove(tree, op, dryRun, &res)
	case "copy":
		err = doCopy(tree, op, dryRun, &res)
	case "replace_text":
		err = doReplaceText(tree, op, dryRun, &res)
	case "remove_column":
		err = doRemoveColumn(tree, op, dryRun, &res)
	default:
		err = docxerr.Newf(docxerr.PatchShape, "unknown operation %q", op.Op)
	}
	if err != nil {
		res.Error = err.Error()
		if dryRun {
			res.Status = StatusWouldFail
		} else {
			res.Status = StatusError
		}
		return res
	}
	if dryRun {
		res.Status = StatusWouldSucceed
	} else {
		res.Status = StatusSuccess
	}
	return res
}
