package export

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/doxsess/docx-session-engine/internal/doctree"
	"github.com/doxsess/docx-session-engine/internal/docxerr"
	"github.com/doxsess/docx-session-engine/internal/session"
)

// pdfTimeout bounds a single soffice conversion; LibreOffice's headless
// mode occasionally wedges on malformed input and this is the only export
// path that shells out, so it gets its own deadline rather than trusting
// the caller's context.
const pdfTimeout = 30 * time.Second

// PDF renders tree to PDF bytes by encoding it through codec and shelling
// out to a headless LibreOffice conversion (`soffice --headless
// --convert-to pdf`) — Go has no native PDF writer for WordprocessingML in
// the dependency corpus, so this leans on the one real document engine
// that already understands the format, the same way the rest of this
// package leans on docxerr.Wrap around every failure path.
func PDF(ctx context.Context, codec session.Codec, tree *doctree.Tree) ([]byte, error) {
	docxBytes, err := codec.Encode(tree)
	if err != nil {
		return nil, docxerr.Wrap(docxerr.CodecFailure, "encode document for pdf export", err)
	}
	return PDFFromDocx(ctx, docxBytes)
}

// PDFFromDocx shells out to a headless LibreOffice to convert a .docx
// byte stream to PDF bytes, writing the input to a temp file since
// soffice operates on paths, not stdin.
func PDFFromDocx(ctx context.Context, docxBytes []byte) ([]byte, error) {
	dir, err := os.MkdirTemp("", "docx-export-*")
	if err != nil {
		return nil, docxerr.Wrap(docxerr.StorageFailure, "create temp export dir", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "document.docx")
	if err := os.WriteFile(in, docxBytes, 0o644); err != nil {
		return nil, docxerr.Wrap(docxerr.StorageFailure, "write temp docx", err)
	}

	cctx, cancel := context.WithTimeout(ctx, pdfTimeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, "soffice", "--headless", "--convert-to", "pdf", "--outdir", dir, in)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, docxerr.Wrap(docxerr.CodecFailure, "soffice conversion failed: "+string(out), err)
	}

	out, err := os.ReadFile(filepath.Join(dir, "document.pdf"))
	if err != nil {
		return nil, docxerr.Wrap(docxerr.StorageFailure, "read converted pdf", err)
	}
	return out, nil
}
