// Package wordxml implements the bytes<->tree codec spec.md 1 treats as
// externally provided: "given bytes, produce an in-memory document tree;
// given a tree, produce bytes." Per the arena+index design note, Go has
// no mature mutable-DOM OOXML library in the dependency corpus, so this
// codec builds a WordprocessingML-shaped zip package directly over
// archive/zip and encoding/xml rather than wrapping one.
//
// Every element's formatting and scalar fields (the ones standard
// WordprocessingML would normally spread across many child elements and
// attributes) round-trip through a single JSON blob held in one
// private-namespace attribute, the same mechanism spec.md's design notes
// specify for stable IDs, generalized to the rest of a Node's fields.
// This keeps the codec's surface small while still producing a real zip
// package with the conventional OOXML part names and namespace.
package wordxml

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"encoding/xml"
	"io"

	"github.com/doxsess/docx-session-engine/internal/doctree"
	"github.com/doxsess/docx-session-engine/internal/docxerr"
)

const (
	nsW   = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	nsExt = "https://github.com/doxsess/docx-session-engine/xml/ext"

	documentPart = "word/document.xml"
)

// Codec implements session.Codec.
type Codec struct{}

// tagForKind names the WordprocessingML-style element each node kind
// serializes as. KindHeading shares w:p with KindParagraph (distinguished
// on read by meta.Level being nonzero); KindStyle never appears here —
// it is a properties block carried inline on its owner, not its own node.
var tagForKind = map[doctree.Kind]string{
	doctree.KindBody:      "w:body",
	doctree.KindParagraph: "w:p",
	doctree.KindHeading:   "w:p",
	doctree.KindRun:       "w:r",
	doctree.KindTable:     "w:tbl",
	doctree.KindRow:       "w:tr",
	doctree.KindCell:      "w:tc",
	doctree.KindHyperlink: "w:hyperlink",
	doctree.KindDrawing:   "w:drawing",
	doctree.KindSection:   "w:sectPr",
	doctree.KindHeader:    "w:hdr",
	doctree.KindFooter:    "w:ftr",
	doctree.KindBookmark:  "w:bookmarkStart",
	doctree.KindComment:   "w:comment",
	doctree.KindFootnote:  "w:footnote",
}

// kindForLocal inverts tagForKind keyed by the *unprefixed* local name —
// encoding/xml's decoder resolves the "w:" prefix via the declared
// xmlns:w attribute and hands StartElement.Name.Local back without it,
// so decode must match on "p", "tbl", "hdr", ... rather than "w:p".
// "w:p" is intentionally absent here; its kind depends on meta.Level and
// is resolved specially in unmarshalDocument.
var kindForLocal = func() map[string]doctree.Kind {
	m := make(map[string]doctree.Kind, len(tagForKind))
	for k, v := range tagForKind {
		if k == doctree.KindParagraph || k == doctree.KindHeading {
			continue
		}
		m[stripPrefix(v)] = k
	}
	return m
}()

func stripPrefix(tag string) string {
	for i := 0; i < len(tag); i++ {
		if tag[i] == ':' {
			return tag[i+1:]
		}
	}
	return tag
}

// meta is the JSON payload held in every element's ext:meta attribute.
type meta struct {
	ID               string `json:"id"`
	Level            int    `json:"level,omitempty"`
	Text             string `json:"text,omitempty"`
	IsTab            bool   `json:"isTab,omitempty"`
	Break            string `json:"break,omitempty"`
	URL              string `json:"url,omitempty"`
	ImagePath        string `json:"imagePath,omitempty"`
	ImageAlt         string `json:"imageAlt,omitempty"`
	WidthEMU         int    `json:"widthEMU,omitempty"`
	HeightEMU        int    `json:"heightEMU,omitempty"`
	StyleName        string `json:"styleName,omitempty"`
	SectionBreakType string `json:"sectionBreakType,omitempty"`

	ParagraphProps *doctree.ParagraphProps `json:"paragraphProps,omitempty"`
	RunProps       *doctree.RunProps       `json:"runProps,omitempty"`
	TableProps     *doctree.TableProps     `json:"tableProps,omitempty"`
	CellProps      *doctree.CellProps      `json:"cellProps,omitempty"`
}

func metaFor(n *doctree.Node) meta {
	return meta{
		ID:               n.ID,
		Level:            n.Level,
		Text:             n.Text,
		IsTab:            n.IsTab,
		Break:            n.Break,
		URL:              n.URL,
		ImagePath:        n.ImagePath,
		ImageAlt:         n.ImageAlt,
		WidthEMU:         n.WidthEMU,
		HeightEMU:        n.HeightEMU,
		StyleName:        n.StyleName,
		SectionBreakType: n.SectionBreakType,
		ParagraphProps:   n.ParagraphProps,
		RunProps:         n.RunProps,
		TableProps:       n.TableProps,
		CellProps:        n.CellProps,
	}
}

// Encode serializes tree into a minimal OOXML-shaped .docx package.
func (Codec) Encode(tree *doctree.Tree) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	if err := writePart(zw, "[Content_Types].xml", contentTypesXML); err != nil {
		return nil, err
	}
	if err := writePart(zw, "_rels/.rels", rootRelsXML); err != nil {
		return nil, err
	}

	docXML, err := marshalDocument(tree)
	if err != nil {
		return nil, err
	}
	if err := writePart(zw, documentPart, docXML); err != nil {
		return nil, err
	}
	if err := writePart(zw, "word/_rels/document.xml.rels", documentRelsXML); err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, docxerr.Wrap(docxerr.CodecFailure, "close zip package", err)
	}
	return buf.Bytes(), nil
}

func writePart(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return docxerr.Wrap(docxerr.CodecFailure, "create zip part "+name, err)
	}
	if _, err := w.Write(data); err != nil {
		return docxerr.Wrap(docxerr.CodecFailure, "write zip part "+name, err)
	}
	return nil
}

func marshalDocument(tree *doctree.Tree) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)

	docStart := xml.StartElement{
		Name: xml.Name{Local: "w:document"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "xmlns:w"}, Value: nsW},
			{Name: xml.Name{Local: "xmlns:ext"}, Value: nsExt},
		},
	}
	if err := enc.EncodeToken(docStart); err != nil {
		return nil, docxerr.Wrap(docxerr.CodecFailure, "encode w:document", err)
	}
	if err := encodeNode(enc, tree, tree.Root()); err != nil {
		return nil, err
	}
	if err := enc.EncodeToken(docStart.End()); err != nil {
		return nil, docxerr.Wrap(docxerr.CodecFailure, "encode w:document end", err)
	}
	if err := enc.Flush(); err != nil {
		return nil, docxerr.Wrap(docxerr.CodecFailure, "flush document.xml", err)
	}
	return buf.Bytes(), nil
}

func encodeNode(enc *xml.Encoder, tree *doctree.Tree, idx int) error {
	n := tree.Node(idx)
	if n == nil {
		return nil
	}
	tag, ok := tagForKind[n.Kind]
	if !ok {
		return docxerr.Newf(docxerr.CodecFailure, "no XML tag registered for node kind %q", n.Kind)
	}

	m := metaFor(n)
	payload, err := json.Marshal(m)
	if err != nil {
		return docxerr.Wrap(docxerr.CodecFailure, "marshal node metadata", err)
	}

	start := xml.StartElement{
		Name: xml.Name{Local: tag},
		Attr: []xml.Attr{{Name: xml.Name{Local: "ext:meta"}, Value: string(payload)}},
	}
	if err := enc.EncodeToken(start); err != nil {
		return docxerr.Wrap(docxerr.CodecFailure, "encode "+tag, err)
	}
	for _, c := range n.Children() {
		if err := encodeNode(enc, tree, c); err != nil {
			return err
		}
	}
	if err := enc.EncodeToken(start.End()); err != nil {
		return docxerr.Wrap(docxerr.CodecFailure, "encode "+tag+" end", err)
	}
	return nil
}

// Decode parses a .docx-shaped zip package back into a document tree.
func (Codec) Decode(data []byte) (*doctree.Tree, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, docxerr.Wrap(docxerr.CodecFailure, "open zip package", err)
	}
	var docFile *zip.File
	for _, f := range zr.File {
		if f.Name == documentPart {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return nil, docxerr.New(docxerr.CodecFailure, "zip package is missing word/document.xml")
	}
	rc, err := docFile.Open()
	if err != nil {
		return nil, docxerr.Wrap(docxerr.CodecFailure, "open word/document.xml", err)
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, docxerr.Wrap(docxerr.CodecFailure, "read word/document.xml", err)
	}
	return unmarshalDocument(raw)
}

func unmarshalDocument(raw []byte) (*doctree.Tree, error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	tree := doctree.New()

	type frame struct {
		idx int
	}
	var stack []frame
	rootSeen := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, docxerr.Wrap(docxerr.CodecFailure, "parse document.xml", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			local := stripPrefix(t.Name.Local)
			if local == "document" {
				continue
			}

			var m meta
			for _, a := range t.Attr {
				if stripPrefix(a.Name.Local) == "meta" {
					if err := json.Unmarshal([]byte(a.Value), &m); err != nil {
						return nil, docxerr.Wrap(docxerr.CodecFailure, "parse element metadata", err)
					}
				}
			}

			// "p" is shared by paragraph and heading; meta.Level (only
			// ever set on headings) is the real discriminator.
			var kind doctree.Kind
			switch {
			case local == "p" && m.Level > 0:
				kind = doctree.KindHeading
			case local == "p":
				kind = doctree.KindParagraph
			default:
				k, ok := kindForLocal[local]
				if !ok {
					return nil, docxerr.Newf(docxerr.CodecFailure, "unrecognized element %q in document.xml", t.Name.Local)
				}
				kind = k
			}

			if kind == doctree.KindBody && !rootSeen {
				rootSeen = true
				if m.ID != "" {
					tree.SetRootID(m.ID)
				}
				stack = append(stack, frame{idx: tree.Root()})
				continue
			}

			n := nodeFromMeta(kind, m)
			idx := tree.Alloc(n)
			if len(stack) > 0 {
				tree.AppendChild(stack[len(stack)-1].idx, idx)
			}
			stack = append(stack, frame{idx: idx})
		case xml.EndElement:
			if stripPrefix(t.Name.Local) == "document" {
				continue
			}
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	return tree, nil
}

func nodeFromMeta(kind doctree.Kind, m meta) doctree.Node {
	return doctree.Node{
		ID:               m.ID,
		Kind:             kind,
		Level:            m.Level,
		Text:             m.Text,
		IsTab:            m.IsTab,
		Break:            m.Break,
		URL:              m.URL,
		ImagePath:        m.ImagePath,
		ImageAlt:         m.ImageAlt,
		WidthEMU:         m.WidthEMU,
		HeightEMU:        m.HeightEMU,
		StyleName:        m.StyleName,
		SectionBreakType: m.SectionBreakType,
		ParagraphProps:   m.ParagraphProps,
		RunProps:         m.RunProps,
		TableProps:       m.TableProps,
		CellProps:        m.CellProps,
	}
}
