package layout

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ByLCY/galley/typeset"
)

// 该文件把文本内容编译为横排节点流，交给最优断行器求解，再把断点
// 结果物化为带字词坐标的行记录。段落之间相互独立，可并行求解。

// paraShaper 绑定一次文本块排版所需的全部依赖。
type paraShaper struct {
	metrics Metrics
	lig     Ligaturer // 可为 nil
	hyph    Hyphenator
	font    FontResource
	size    float64 // 字号（mm）
	params  typeset.Params
}

func newParaShaper(m Metrics, hy Hyphenator, font FontResource, size float64, p typeset.Params) *paraShaper {
	ps := &paraShaper{metrics: m, hyph: hy, font: font, size: size, params: p}
	if lg, ok := m.(Ligaturer); ok {
		ps.lig = lg
	}
	return ps
}

// splitParagraphs 按空行拆分段落；段内的单个换行视作普通空格。
func splitParagraphs(content string) []string {
	normalized := strings.ReplaceAll(content, "\r\n", "\n")
	var paras []string
	for _, block := range strings.Split(normalized, "\n\n") {
		block = strings.TrimSpace(block)
		if block != "" {
			paras = append(paras, block)
		}
	}
	return paras
}

// interwordGlue 返回词间胶：自然宽为空格前进宽，伸长取其 1/2、
// 收缩取其 1/3。
func (ps *paraShaper) interwordGlue() *typeset.GlueSpec {
	w := ps.metrics.Advance(ps.font, ps.size, ' ')
	return &typeset.GlueSpec{Natural: w, Stretch: w / 2, Shrink: w / 3}
}

// buildStream 把一个段落编译为横排节点流。
func (ps *paraShaper) buildStream(para string) *typeset.Stream {
	s := &typeset.Stream{}
	space := ps.interwordGlue()
	for i, word := range strings.Fields(para) {
		if i > 0 {
			s.AppendGlue(space)
		}
		ps.appendWord(s, []rune(word))
	}
	return s
}

// appendWord 逐字符追加一个词：插入字体 kern、连字替换与断词机会。
func (ps *paraShaper) appendWord(s *typeset.Stream, word []rune) {
	var hyphenAt map[int]bool
	if ps.hyph != nil && len(word) >= 4 {
		hyphenAt = make(map[int]bool)
		for _, pos := range ps.hyph.Hyphenate(word) {
			if pos > 0 && pos < len(word) {
				hyphenAt[pos] = true
			}
		}
	}

	for i := 0; i < len(word); i++ {
		r := word[i]
		if i > 0 {
			if hyphenAt[i] {
				hw := ps.metrics.Advance(ps.font, ps.size, '-')
				s.AppendDisc([]typeset.Node{{Kind: typeset.KindChar, Glyph: '-', Width: hw}}, nil, nil)
			} else if k := ps.metrics.Kern(ps.font, ps.size, word[i-1], r); k != 0 {
				s.AppendKern(k, true)
			}
		}
		if ps.lig != nil && i+1 < len(word) && !hyphenAt[i+1] {
			if lg, w, ok := ps.lig.Ligature(ps.font, ps.size, r, word[i+1]); ok {
				s.AppendLig(lg, []rune{r, word[i+1]}, w, 0, 0)
				i++
				continue
			}
		}
		s.AppendChar(r, ps.metrics.Advance(ps.font, ps.size, r), 0, 0)
	}
}

// materializeLine 把一条断行结果物化为行记录：glue 按该行的填充比例
// 定值，字词坐标随之确定。行首断点残留的可丢弃节点在此跳过。
func materializeLine(nodes []typeset.Node, ln typeset.Line, height float64) TextLine {
	i := ln.Start
	for i < ln.End {
		k := nodes[i].Kind
		if k != typeset.KindGlue && k != typeset.KindKern && k != typeset.KindPenalty {
			break
		}
		i++
	}

	var (
		words  []Word
		sb     strings.Builder
		x      float64
		wordX  float64
		inWord bool
	)
	flush := func() {
		if !inWord {
			return
		}
		words = append(words, Word{Text: sb.String(), X: wordX, Width: x - wordX})
		sb.Reset()
		inWord = false
	}
	putGlyph := func(r rune, w float64) {
		if !inWord {
			wordX = x
			inWord = true
		}
		sb.WriteRune(r)
		x += w
	}

	for ; i < ln.End; i++ {
		n := &nodes[i]
		switch n.Kind {
		case typeset.KindChar, typeset.KindLig:
			putGlyph(n.Glyph, n.Width)
		case typeset.KindKern:
			x += n.Width
		case typeset.KindGlue:
			flush()
			x += n.Glue.ValueAt(ln.Ratio, ln.Order)
		case typeset.KindDisc:
			if i == ln.End-1 {
				// 断点落在此处：以 pre 材料（连字符）收尾
				for j := range n.Pre {
					p := &n.Pre[j]
					putGlyph(p.Glyph, p.Width)
				}
			} else {
				for j := range n.NoBreak {
					p := &n.NoBreak[j]
					putGlyph(p.Glyph, p.Width)
				}
			}
		case typeset.KindBox, typeset.KindRule:
			flush()
			x += n.Width
		}
	}
	flush()

	texts := make([]string, len(words))
	for i, w := range words {
		texts[i] = w.Text
	}
	return TextLine{
		Content: strings.Join(texts, " "),
		Words:   words,
		Width:   ln.Width,
		Natural: x,
		Height:  height,
		Ratio:   ln.Ratio,
		Fitness: ln.Fitness.String(),
	}
}

// lineExtent 返回单行内容高度（上升部 + 下降部），度量异常时退回字号。
func (ps *paraShaper) lineExtent() float64 {
	asc, desc := ps.metrics.LineMetrics(ps.font, ps.size)
	if h := asc + desc; h > 0 {
		return h
	}
	return ps.size
}

// breakParagraph 对单个段落做断行并物化全部行。
func (ps *paraShaper) breakParagraph(para string, width float64) ([]TextLine, []typeset.Diag, error) {
	s := ps.buildStream(para)
	breaks, diags, err := typeset.BreakLines(s, typeset.LineParams{Params: ps.params, Width: width})
	if err != nil {
		return nil, nil, err
	}
	extent := ps.lineExtent()
	lines := make([]TextLine, 0, len(breaks))
	for _, ln := range breaks {
		lines = append(lines, materializeLine(s.Nodes, ln, extent))
	}
	return lines, diags, nil
}

// shapedText 是 shapeText 的结果：扁平的行序列加上段落首行下标。
type shapedText struct {
	lines      []TextLine
	paraStarts []int
	diags      []string
}

// shapeText 把整块文本拆成段落并逐段断行；workers > 1 时并行求解。
// 行间距（gapBefore）在拼接时统一写入：段内为行高与内容高的差值
// （不小于 0），段首额外加半行高的段间距。
func shapeText(content string, width float64, ps *paraShaper, lineHeight float64, workers int) (shapedText, error) {
	paras := splitParagraphs(content)
	if len(paras) == 0 {
		return shapedText{}, nil
	}

	type paraResult struct {
		lines []TextLine
		diags []typeset.Diag
		err   error
	}
	results := make([]paraResult, len(paras))
	solve := func(i int) {
		lines, diags, err := ps.breakParagraph(paras[i], width)
		results[i] = paraResult{lines: lines, diags: diags, err: err}
	}

	if workers > 1 && len(paras) > 1 {
		sem := make(chan struct{}, workers)
		var wg sync.WaitGroup
		for i := range paras {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()
				solve(i)
			}(i)
		}
		wg.Wait()
	} else {
		for i := range paras {
			solve(i)
		}
	}

	leading := lineHeight - ps.lineExtent()
	if leading < 0 {
		leading = 0
	}
	out := shapedText{}
	for pi, r := range results {
		if r.err != nil {
			return shapedText{}, fmt.Errorf("第 %d 段断行失败: %w", pi+1, r.err)
		}
		out.paraStarts = append(out.paraStarts, len(out.lines))
		for li, ln := range r.lines {
			switch {
			case pi == 0 && li == 0:
				ln.GapBefore = 0
			case li == 0:
				ln.GapBefore = leading + lineHeight/2
			default:
				ln.GapBefore = leading
			}
			out.lines = append(out.lines, ln)
		}
		for _, d := range r.diags {
			out.diags = append(out.diags, fmt.Sprintf("第 %d 段: %s", pi+1, d))
		}
	}
	return out, nil
}

// naturalWidth 返回整块文本按自然宽度单行排出的最大段宽，供未指定
// 宽度的文本框推断尺寸使用。
func (ps *paraShaper) naturalWidth(content string) float64 {
	space := ps.metrics.Advance(ps.font, ps.size, ' ')
	widest := 0.0
	for _, para := range splitParagraphs(content) {
		w := 0.0
		for i, word := range strings.Fields(para) {
			if i > 0 {
				w += space
			}
			for _, r := range word {
				w += ps.metrics.Advance(ps.font, ps.size, r)
			}
		}
		if w > widest {
			widest = w
		}
	}
	return widest
}
