package pipeline

import (
	"strings"
	"unicode/utf8"
)

// defaultSeparators 按优先级排列：段落 > 行 > 句子 > 单词。
var defaultSeparators = []string{"\n\n", "\n", ". ", " "}

// Chunker 把文本切成带重叠的分块，长度按 rune 计。
// 优先在自然边界切分，找不到边界时退化为按长度硬切。
type Chunker struct {
	size       int
	overlap    int
	separators []string
}

// NewChunker 创建 Chunker；overlap 不合法时按 0 处理。
func NewChunker(size, overlap int) *Chunker {
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return &Chunker{size: size, overlap: overlap, separators: defaultSeparators}
}

// Split 返回去除首尾空白后的非空分块，每块不超过 size 个 rune。
func (c *Chunker) Split(text string) []string {
	return c.split(text, c.separators)
}

func (c *Chunker) split(text string, separators []string) []string {
	sep, rest := "", []string(nil)
	for i, s := range separators {
		if strings.Contains(text, s) {
			sep, rest = s, separators[i+1:]
			break
		}
	}
	if sep == "" {
		return c.hardSplit(text)
	}

	var chunks, pending []string
	for _, piece := range splitKeepSeparator(text, sep) {
		if utf8.RuneCountInString(piece) <= c.size {
			pending = append(pending, piece)
			continue
		}
		// 单个片段超长，先落地已累积的部分，再用下一级分隔符递归
		if len(pending) > 0 {
			chunks = append(chunks, c.merge(pending)...)
			pending = nil
		}
		chunks = append(chunks, c.split(piece, rest)...)
	}
	if len(pending) > 0 {
		chunks = append(chunks, c.merge(pending)...)
	}
	return chunks
}

// merge 把小片段拼成不超过 size 的块，相邻块之间保留至多 overlap 个 rune 的尾部片段。
func (c *Chunker) merge(pieces []string) []string {
	var chunks, window []string
	total := 0
	for _, piece := range pieces {
		n := utf8.RuneCountInString(piece)
		if total+n > c.size && len(window) > 0 {
			chunks = appendChunk(chunks, strings.Join(window, ""))
			for total > c.overlap || (total+n > c.size && total > 0) {
				total -= utf8.RuneCountInString(window[0])
				window = window[1:]
			}
		}
		window = append(window, piece)
		total += n
	}
	return appendChunk(chunks, strings.Join(window, ""))
}

// hardSplit 按固定窗口切分，步长为 size-overlap。
func (c *Chunker) hardSplit(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	var chunks []string
	step := c.size - c.overlap
	for i := 0; i < len(runes); i += step {
		end := i + c.size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = appendChunk(chunks, string(runes[i:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// splitKeepSeparator 切分文本并把分隔符保留在前一个片段末尾。
func splitKeepSeparator(text, sep string) []string {
	parts := strings.Split(text, sep)
	pieces := make([]string, 0, len(parts))
	for i, part := range parts {
		if i < len(parts)-1 {
			part += sep
		}
		if part != "" {
			pieces = append(pieces, part)
		}
	}
	return pieces
}

func appendChunk(chunks []string, chunk string) []string {
	if chunk = strings.TrimSpace(chunk); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}
