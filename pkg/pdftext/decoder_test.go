package pdftext

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pdfchat-go/internal/config"
	"pdfchat-go/internal/pipeline"
)

// buildPDF 生成一个最小的多页 PDF：每页一个内容流，空字符串表示空白页。
func buildPDF(pages ...string) []byte {
	var objects []string
	kids := make([]string, len(pages))
	// 1: Catalog, 2: Pages, 3: Font, 之后每页占两个对象（Page + Contents）
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	objects = append(objects,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	)
	for i, text := range pages {
		content := "q Q"
		if text != "" {
			content = fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		}
		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestPages_ExtractsTextInPageOrder(t *testing.T) {
	data := buildPDF("Alpha page one", "Bravo page two", "Charlie page three")

	pages, err := NewDecoder().Pages(context.Background(), data, "three.pdf")
	require.NoError(t, err)
	require.Len(t, pages, 3)
	assert.Equal(t, "Alpha page one", strings.TrimSpace(pages[0]))
	assert.Equal(t, "Bravo page two", strings.TrimSpace(pages[1]))
	assert.Equal(t, "Charlie page three", strings.TrimSpace(pages[2]))
}

func TestPages_BlankPageKeepsItsSlot(t *testing.T) {
	data := buildPDF("Cover", "", "Appendix")

	pages, err := NewDecoder().Pages(context.Background(), data, "gap.pdf")
	require.NoError(t, err)
	require.Len(t, pages, 3)
	assert.Equal(t, "Cover", strings.TrimSpace(pages[0]))
	assert.Empty(t, strings.TrimSpace(pages[1]))
	assert.Equal(t, "Appendix", strings.TrimSpace(pages[2]))
}

func TestPages_FeedsSegmentPageNumbers(t *testing.T) {
	data := buildPDF("Cover", "", "Appendix")
	p := pipeline.NewProcessor(NewDecoder(), config.ChunkingConfig{ChunkSize: 100, ChunkOverlap: 10})

	segs, err := p.Process(context.Background(), "doc", "gap.pdf", data)
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, 1, segs[0].Page)
	assert.Equal(t, 3, segs[1].Page)
}

func TestPages_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewDecoder().Pages(ctx, buildPDF("a", "b"), "x.pdf")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPages_RejectsGarbage(t *testing.T) {
	pages, err := NewDecoder().Pages(context.Background(), []byte("definitely not a pdf"), "bad.pdf")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidPDF))
	assert.True(t, errors.Is(err, pipeline.ErrUndecodable))
	assert.Nil(t, pages)
}

func TestPages_RejectsEmpty(t *testing.T) {
	_, err := NewDecoder().Pages(context.Background(), nil, "empty.pdf")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidPDF))
}
