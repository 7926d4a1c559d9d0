// Package extract locates the best available content representation in
// a MinerU result archive and flattens it into a single text blob.
package extract

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

// ErrNoContent indicates the archive holds none of the recognized
// content representations.
var ErrNoContent = errors.New("archive contains no recognized content representation")

// Block is one semantic unit extracted from the parsed document.
type Block struct {
	Type      string `json:"type"`
	Text      string `json:"text"`
	TableBody string `json:"table_body,omitempty"`
	PageIdx   int    `json:"page_idx"`
}

// Block type tags as they appear in MinerU content listings.
const (
	BlockTitle      = "title"
	BlockText       = "text"
	BlockTable      = "table"
	BlockPageFooter = "page_footer"
)

// Result is a flattened document: the representation it came from, the
// ordered blocks, and the newline-joined text.
type Result struct {
	Representation string
	Blocks         []Block
	Text           string
}

// representation pairs a presence check with its parser. The list is
// ordered by fidelity: the v2 content listing preserves every block type
// including page footers, the v1 listing is a looser equivalent, and the
// markdown rendering is a last resort known to drop footer-positioned
// blocks (which carry fields like the issuing institution name).
type representation struct {
	name  string
	match func(name string) bool
	parse func(data []byte) ([]Block, error)
}

var representations = []representation{
	{
		name:  "content_list_v2",
		match: func(n string) bool { return strings.HasSuffix(n, "content_list_v2.json") },
		parse: parseContentList,
	},
	{
		name:  "content_list",
		match: func(n string) bool { return strings.HasSuffix(n, "content_list.json") },
		parse: parseContentList,
	},
	{
		name:  "markdown",
		match: func(n string) bool { return strings.HasSuffix(n, ".md") },
		parse: parseMarkdown,
	},
}

// Extract opens a result archive and returns the flattened document from
// the highest-fidelity representation present. Selection stops at the
// first representation found.
func Extract(archive []byte) (*Result, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("opening result archive: %w", err)
	}

	for _, rep := range representations {
		f := findFile(zr, rep.match)
		if f == nil {
			continue
		}
		data, err := readFile(f)
		if err != nil {
			return nil, fmt.Errorf("reading %s from archive: %w", f.Name, err)
		}
		blocks, err := rep.parse(data)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", f.Name, err)
		}
		return &Result{
			Representation: rep.name,
			Blocks:         blocks,
			Text:           Flatten(blocks),
		}, nil
	}

	return nil, ErrNoContent
}

// findFile returns the first matching archive entry in name order, so
// selection is reproducible for identical input bytes.
func findFile(zr *zip.Reader, match func(string) bool) *zip.File {
	var names []string
	byName := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		if match(f.Name) {
			names = append(names, f.Name)
			byName[f.Name] = f
		}
	}
	if len(names) == 0 {
		return nil
	}
	sort.Strings(names)
	return byName[names[0]]
}

func readFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}

// parseContentList decodes a MinerU content listing: a JSON array of
// blocks, each carrying its own page index. Blocks are ordered by
// (page index, list position); the in-page order from the source is
// preserved.
func parseContentList(data []byte) ([]Block, error) {
	var blocks []Block
	if err := json.Unmarshal(data, &blocks); err != nil {
		return nil, err
	}
	sort.SliceStable(blocks, func(i, j int) bool {
		return blocks[i].PageIdx < blocks[j].PageIdx
	})
	return blocks, nil
}

// parseMarkdown wraps the whole rendering in a single text block.
func parseMarkdown(data []byte) ([]Block, error) {
	return []Block{{Type: BlockText, Text: string(data)}}, nil
}

// Flatten emits each block's text payload on its own line, in page order
// then block order. Block types are used only for selection decisions,
// never included in the output. Table blocks without a text payload fall
// back to their table body so tabular amounts are not lost.
func Flatten(blocks []Block) string {
	var b strings.Builder
	for _, blk := range blocks {
		line := blk.Text
		if line == "" && blk.Type == BlockTable {
			line = blk.TableBody
		}
		if line == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
	}
	return b.String()
}
