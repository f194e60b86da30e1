package layout

import (
	"strings"
	"testing"

	"github.com/ByLCY/galley/dsl"
	"github.com/ByLCY/galley/typeset"
)

// fixedMetrics 是测试用的等宽度量：任意字符前进宽 2mm，无 kern。
type fixedMetrics struct{}

func (fixedMetrics) Advance(_ FontResource, _ float64, _ rune) float64 { return 2 }

func (fixedMetrics) Kern(_ FontResource, _ float64, _, _ rune) float64 { return 0 }

func (fixedMetrics) LineMetrics(_ FontResource, size float64) (float64, float64) {
	return size * 0.8, size * 0.2
}

func buildDoc(t *testing.T, dslText string, data any) *Result {
	t.Helper()
	doc, err := dsl.ParseString(dslText)
	if err != nil {
		t.Fatalf("解析 DSL 失败: %v", err)
	}
	res, err := Build(doc, data, BuildOptions{Metrics: fixedMetrics{}})
	if err != nil {
		t.Fatalf("布局计算失败: %v", err)
	}
	return res
}

// TestTextBoxTotalHeightInvariant 断言：TextBox.Height == Σ(line.Height + line.GapBefore)。
func TestTextBoxTotalHeightInvariant(t *testing.T) {
	dslText := `doc T v1 {
  resources {
    style Body { size: 12pt line-height: 1.2x }
  }
  page A4 portrait margin 10mm {
    flow {
      text Body { "long long long long long long long long long long long long long" }
    }
  }
}`
	res := buildDoc(t, dslText, nil)
	if len(res.Pages) == 0 {
		t.Fatalf("无页面输出")
	}
	found := false
	for _, tb := range res.Pages[0].Texts {
		if len(tb.Lines) == 0 {
			continue
		}
		total := 0.0
		for _, ln := range tb.Lines {
			total += ln.GapBefore + ln.Height
		}
		if diff := abs(total - tb.Height); diff > 1e-6 {
			t.Fatalf("TextBox.Height 不变式不成立: got=%g want=%g diff=%g", tb.Height, total, diff)
		}
		found = true
	}
	if !found {
		t.Fatalf("未找到文本框进行校验")
	}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// TestResolveMarginVariants 验证 margin 参数支持 1、2、3、4+ 个值的语义。
func TestResolveMarginVariants(t *testing.T) {
	get := func(spec string) Margin {
		dslText := "doc T v1 { page " + spec + " { flow { text { \"x\" } } } }"
		res := buildDoc(t, dslText, nil)
		if len(res.Pages) == 0 {
			t.Fatalf("未生成页面")
		}
		return res.Pages[0].Margin
	}

	// 1 个参数：四边相同
	m1 := get("A4 portrait margin 10mm")
	if !(eq(m1.Top, 10) && eq(m1.Right, 10) && eq(m1.Bottom, 10) && eq(m1.Left, 10)) {
		t.Fatalf("1 值语义错误: %+v", m1)
	}

	// 2 个参数：上下，左右
	m2 := get("A4 portrait margin 10mm 5mm")
	if !(eq(m2.Top, 10) && eq(m2.Bottom, 10) && eq(m2.Left, 5) && eq(m2.Right, 5)) {
		t.Fatalf("2 值语义错误: %+v", m2)
	}

	// 3 个参数：上 右 下 左=0
	m3 := get("A4 portrait margin 12mm 8mm 6mm")
	if !(eq(m3.Top, 12) && eq(m3.Right, 8) && eq(m3.Bottom, 6) && eq(m3.Left, 0)) {
		t.Fatalf("3 值语义错误: %+v", m3)
	}

	// 4 个参数：上 右 下 左（允许混合单位）
	m4 := get("A4 portrait margin 1cm 5mm 2cm 3mm")
	if !(eq(m4.Top, 10) && eq(m4.Right, 5) && eq(m4.Bottom, 20) && eq(m4.Left, 3)) {
		t.Fatalf("4 值语义错误: %+v", m4)
	}

	// >4 个参数：只取前四个
	m5 := get("A4 portrait margin 1mm 2mm 3mm 4mm 999mm 888mm")
	if !(eq(m5.Top, 1) && eq(m5.Right, 2) && eq(m5.Bottom, 3) && eq(m5.Left, 4)) {
		t.Fatalf(">4 值应忽略多余: %+v", m5)
	}
}

func eq(a, b float64) bool { return abs(a-b) < 1e-6 }

// TestTextAlignExplicit 验证显式声明 align 生效。
func TestTextAlignExplicit(t *testing.T) {
	dslText := `doc T v1 {
  page A4 portrait margin 10mm {
    flow {
      text Body align right { "Hello" }
    }
  }
}`
	res := buildDoc(t, dslText, nil)
	if len(res.Pages) == 0 || len(res.Pages[0].Texts) == 0 {
		t.Fatalf("未生成文本")
	}
	if tb := res.Pages[0].Texts[0]; tb.Align != "right" {
		t.Fatalf("显式 align 未生效: got=%q want=\"right\"", tb.Align)
	}
}

// TestTextAlignInheritFlow 验证未显式声明时从父 flow 继承对齐。
func TestTextAlignInheritFlow(t *testing.T) {
	dslText := `doc T v1 {
  page A4 portrait margin 10mm {
    flow align center {
      text { "Hello" }
    }
  }
}`
	res := buildDoc(t, dslText, nil)
	if len(res.Pages) == 0 || len(res.Pages[0].Texts) == 0 {
		t.Fatalf("未生成文本")
	}
	if tb := res.Pages[0].Texts[0]; tb.Align != "center" {
		t.Fatalf("flow 继承对齐未生效: got=%q want=\"center\"", tb.Align)
	}
}

// TestTextAlignAliases 验证 start/end 别名映射。
func TestTextAlignAliases(t *testing.T) {
	dslText := `doc T v1 {
  page A4 portrait margin 10mm {
    flow {
      text Body align end { "Hello" }
    }
  }
}`
	res := buildDoc(t, dslText, nil)
	if len(res.Pages) == 0 || len(res.Pages[0].Texts) == 0 {
		t.Fatalf("未生成文本")
	}
	if tb := res.Pages[0].Texts[0]; tb.Align != "right" {
		t.Fatalf("align end 未映射为 right: got=%q want=\"right\"", tb.Align)
	}
}

// TestDataBinding 验证 ${} 插值在布局阶段应用到文本内容。
func TestDataBinding(t *testing.T) {
	dslText := `doc T v1 {
  page A4 portrait margin 10mm {
    flow {
      text { "Hello ${name}" }
    }
  }
}`
	data := map[string]interface{}{"name": "Ada"}
	res := buildDoc(t, dslText, data)
	if len(res.Pages) == 0 || len(res.Pages[0].Texts) == 0 {
		t.Fatalf("未生成文本")
	}
	if tb := res.Pages[0].Texts[0]; !strings.Contains(tb.Content, "Ada") {
		t.Fatalf("插值未生效: %q", tb.Content)
	}
}

// TestForcedPageBreakCommand 验证 pagebreak 命令立即翻页。
func TestForcedPageBreakCommand(t *testing.T) {
	dslText := `doc T v1 {
  page A4 portrait margin 10mm {
    text { "first" }
    pagebreak
    text { "second" }
  }
}`
	res := buildDoc(t, dslText, nil)
	if len(res.Pages) != 2 {
		t.Fatalf("pagebreak 应产生 2 页，实际 %d", len(res.Pages))
	}
	if len(res.Pages[0].Texts) != 1 || len(res.Pages[1].Texts) != 1 {
		t.Fatalf("每页应各有 1 个文本块: %d/%d", len(res.Pages[0].Texts), len(res.Pages[1].Texts))
	}
	if !strings.Contains(res.Pages[1].Texts[0].Content, "second") {
		t.Fatalf("第二页内容错误: %q", res.Pages[1].Texts[0].Content)
	}
}

// TestVSpaceCommand 验证 vspace 下移排版游标。
func TestVSpaceCommand(t *testing.T) {
	dslText := `doc T v1 {
  page A4 portrait margin 10mm {
    text { "a" }
    vspace 30mm
    text { "b" }
  }
}`
	res := buildDoc(t, dslText, nil)
	if len(res.Pages) != 1 || len(res.Pages[0].Texts) != 2 {
		t.Fatalf("应为单页 2 个文本块")
	}
	first := res.Pages[0].Texts[0]
	second := res.Pages[0].Texts[1]
	if gap := second.Y - (first.Y + first.Height); gap < 30 {
		t.Fatalf("vspace 间距不足: %g < 30", gap)
	}
}

// TestCollectParamsOverride 验证 params 段落覆盖断点参数。
func TestCollectParamsOverride(t *testing.T) {
	doc, err := dsl.ParseString(`doc T v1 {
  params {
    tolerance: 300
    second-tolerance: 900
    emergency-stretch: 6mm
    widow-penalty: 600
  }
  page A4 portrait { text { "x" } }
}`)
	if err != nil {
		t.Fatalf("解析 DSL 失败: %v", err)
	}
	p := collectParams(doc, typeset.DefaultParams())
	if p.Tolerance != 300 {
		t.Fatalf("tolerance 未覆盖: %g", p.Tolerance)
	}
	if p.SecondTolerance != 900 {
		t.Fatalf("second-tolerance 未覆盖: %g", p.SecondTolerance)
	}
	if !eq(p.EmergencyStretch, 6) {
		t.Fatalf("emergency-stretch 未覆盖: %g", p.EmergencyStretch)
	}
	if p.WidowPenalty != 600 {
		t.Fatalf("widow-penalty 未覆盖: %g", p.WidowPenalty)
	}
	// 未出现的键保持默认
	if p.LinePenalty != typeset.DefaultParams().LinePenalty {
		t.Fatalf("line-penalty 不应被修改: %g", p.LinePenalty)
	}
}

// TestPlaceTextSplitsAcrossPages 验证超出单页的文本块按行跨页拆分：
// 行盒 5mm、行间胶 1±(0.5/0.25)，内容高 40mm 的页面每页最多排 7 行
// （收缩后恰好 40mm），20 行应拆成 7/7/6 三页。
func TestPlaceTextSplitsAcrossPages(t *testing.T) {
	collector := newPageCollector(100, 60, Margin{Top: 10, Right: 10, Bottom: 10, Left: 10})
	ctx := &flowContext{
		baseX:          10,
		baseY:          collector.contentTop(),
		width:          80,
		cursorY:        collector.contentTop(),
		deps:           shapeDeps{metrics: fixedMetrics{}, params: typeset.DefaultParams()},
		collector:      collector,
		margin:         Margin{Top: 10, Right: 10, Bottom: 10, Left: 10},
		allowPageBreak: true,
	}

	tb := TextBox{Font: "Body", Width: 80, Paragraphs: []int{0}}
	for i := 0; i < 20; i++ {
		gap := 1.0
		if i == 0 {
			gap = 0
		}
		tb.Lines = append(tb.Lines, TextLine{Content: "line", Height: 5, GapBefore: gap})
		tb.Height += gap + 5
	}

	if err := ctx.placeText(tb, tb.Height); err != nil {
		t.Fatalf("placeText 失败: %v", err)
	}

	pages := collector.pages()
	if len(pages) != 3 {
		t.Fatalf("应拆成 3 页，实际 %d", len(pages))
	}
	wantLines := []int{7, 7, 6}
	total := 0
	for i, pg := range pages {
		if len(pg.Texts) != 1 {
			t.Fatalf("第 %d 页应有 1 个文本块，实际 %d", i+1, len(pg.Texts))
		}
		part := pg.Texts[0]
		if len(part.Lines) != wantLines[i] {
			t.Fatalf("第 %d 页行数错误: got=%d want=%d", i+1, len(part.Lines), wantLines[i])
		}
		if part.Lines[0].GapBefore != 0 {
			t.Fatalf("第 %d 页首行 GapBefore 应为 0，实际 %g", i+1, part.Lines[0].GapBefore)
		}
		if !eq(part.Y, 10) {
			t.Fatalf("第 %d 页文本块 Y 应为 10，实际 %g", i+1, part.Y)
		}
		total += len(part.Lines)
	}
	if total != 20 {
		t.Fatalf("行数应守恒: %d", total)
	}
	// 前两页收缩后恰好填满 40mm；末页按自然间距 35mm
	if !eq(pages[0].Texts[0].Height, 40) || !eq(pages[1].Texts[0].Height, 40) {
		t.Fatalf("前两页高度应为 40: %g / %g", pages[0].Texts[0].Height, pages[1].Texts[0].Height)
	}
	if !eq(pages[2].Texts[0].Height, 35) {
		t.Fatalf("末页高度应为 35: %g", pages[2].Texts[0].Height)
	}
}

// TestHeaderFooterReduceContent 验证页眉/页脚高度会压缩内容区域。
func TestHeaderFooterReduceContent(t *testing.T) {
	dslText := `doc T v1 {
  page A4 portrait margin 10mm {
    header height 30mm {
      text { "Report" }
    }
    footer height 25mm {
      text { "Page" }
    }
    text { "body" }
  }
}`
	res := buildDoc(t, dslText, nil)
	if len(res.Pages) == 0 {
		t.Fatalf("无页面输出")
	}
	pg := res.Pages[0]
	if !eq(pg.Header.Height, 30) || !eq(pg.Footer.Height, 25) {
		t.Fatalf("页眉/页脚高度错误: %g / %g", pg.Header.Height, pg.Footer.Height)
	}
	if len(pg.Texts) == 0 {
		t.Fatalf("正文缺失")
	}
	if pg.Texts[0].Y < 30 {
		t.Fatalf("正文应从页眉之下开始: Y=%g", pg.Texts[0].Y)
	}
	if len(pg.Header.Texts) == 0 || pg.Header.Texts[0].Align != "center" {
		t.Fatalf("页眉文本应默认居中")
	}
}
