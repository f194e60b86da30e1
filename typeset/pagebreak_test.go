package typeset

import "testing"

// lineBox 构造一个代表整行的盒节点（竖直流只关心高与深）。
func lineBox(h, d float64) Node {
	return Node{Kind: KindBox, Height: h, Depth: d}
}

// paraStream 把 n 个单位高的行盒拼成竖直流，行间插入给定的行间胶。
func paraStream(n int, g *GlueSpec, p *Params) *Stream {
	boxes := make([]Node, n)
	for i := range boxes {
		boxes[i] = lineBox(1, 0)
	}
	v := &Stream{}
	AppendParagraph(v, boxes, g, p)
	return v
}

func pageRanges(pages []PageRun) [][2]int {
	out := make([][2]int, len(pages))
	for i, pg := range pages {
		out[i] = [2]int{pg.Start, pg.End}
	}
	return out
}

// TestAppendParagraphPenalties 验证行间断点的罚分布置：首行之后附加
// club 罚分，末行之前附加 widow 罚分，中间为普通行间罚分。
func TestAppendParagraphPenalties(t *testing.T) {
	p := DefaultParams()
	p.InterlinePenalty = 5
	g := &GlueSpec{Natural: 0.5, Stretch: 0.25, Shrink: 0.1}
	v := paraStream(4, g, &p)

	// 期望布局：盒 罚 胶 盒 罚 胶 盒 罚 胶 盒。
	if v.Len() != 10 {
		t.Fatalf("节点数错误: got=%d want=10", v.Len())
	}
	wantPen := []float64{
		p.InterlinePenalty + p.ClubPenalty,
		p.InterlinePenalty,
		p.InterlinePenalty + p.WidowPenalty,
	}
	for k, want := range wantPen {
		pen := &v.Nodes[1+3*k]
		if pen.Kind != KindPenalty || pen.Penalty != want {
			t.Fatalf("第 %d 个行间罚分错误: kind=%d penalty=%g want=%g", k+1, pen.Kind, pen.Penalty, want)
		}
		glue := &v.Nodes[2+3*k]
		if glue.Kind != KindGlue || glue.Glue != g {
			t.Fatalf("第 %d 个行间胶错误: kind=%d", k+1, glue.Kind)
		}
	}
}

// TestWidowControl 验证孤行控制：widow 罚分足够大时，求解器宁可让首页
// 多伸一些，也不把段落末行单独留到下一页。
func TestWidowControl(t *testing.T) {
	g := &GlueSpec{Stretch: 0.5, Shrink: 0.1}

	solve := func(widow float64) [][2]int {
		p := DefaultParams()
		p.FitnessDemerits = 0 // 隔离孤行罚分的影响
		p.WidowPenalty = widow
		v := paraStream(6, g, &p)
		pages, diags, err := BreakPages(v, PageParams{Params: p, Height: 4.9})
		if err != nil {
			t.Fatalf("断页失败: %v", err)
		}
		if len(diags) != 0 {
			t.Fatalf("不应产生诊断: %v", diags)
		}
		for i, pg := range pages {
			if pg.Next != pg.End {
				t.Fatalf("第 %d 页 Next 不等于 End: %d vs %d", i+1, pg.Next, pg.End)
			}
		}
		return pageRanges(pages)
	}

	// 不设 widow 罚分：五行收缩进首页最省（badness 1.56 对 21.6），
	// 末行独居次页。
	got := solve(0)
	want := [][2]int{{0, 14}, {14, 16}}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("无孤行罚分时页划分错误: got=%v want=%v", got, want)
	}

	// widow 罚分 150：末行断点代价 150² 压倒 badness 差距，
	// 断点前移一行，末两行同页。
	got = solve(150)
	want = [][2]int{{0, 11}, {11, 16}}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("孤行罚分未生效: got=%v want=%v", got, want)
	}
}

// TestForcedPageBreak 验证强制换页：强制罚分处必然成为页边界，
// 即便当页远未填满。
func TestForcedPageBreak(t *testing.T) {
	fil := &GlueSpec{Stretch: 1, StretchOrder: OrderFil}
	v := &Stream{}
	v.Append(lineBox(1, 0))
	v.AppendGlue(fil)
	v.Append(lineBox(1, 0))
	forced := v.AppendPenalty(-InfPenalty)
	v.AppendGlue(fil)
	v.Append(lineBox(1, 0))

	pages, _, err := BreakPages(v, PageParams{Params: DefaultParams(), Height: 10})
	if err != nil {
		t.Fatalf("断页失败: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("应断成两页: got=%v", pageRanges(pages))
	}
	if pages[0].End != forced+1 {
		t.Fatalf("首页应终于强制罚分: got=%d want=%d", pages[0].End, forced+1)
	}
	if pages[1].Start != forced+1 || pages[1].End != v.Len() {
		t.Fatalf("次页范围错误: got=%v", pageRanges(pages))
	}
}

// TestPageHeightsOverride 验证逐页高度表：首页更矮时断点相应前移。
func TestPageHeightsOverride(t *testing.T) {
	g := &GlueSpec{Stretch: 0.5, Shrink: 0.1}
	p := DefaultParams()
	v := paraStream(6, g, &p)

	pp := PageParams{Params: p, Heights: func(page int) float64 {
		if page == 1 {
			return 1.9
		}
		return 4.9
	}}
	pages, _, err := BreakPages(v, pp)
	if err != nil {
		t.Fatalf("断页失败: %v", err)
	}
	if len(pages) == 0 || pages[0].End != 5 {
		t.Fatalf("首页应只容两行: got=%v", pageRanges(pages))
	}
	next := 0
	for _, pg := range pages {
		if pg.Start != next {
			t.Fatalf("页范围不连续: %v", pageRanges(pages))
		}
		next = pg.End
	}
	if next != v.Len() {
		t.Fatalf("页范围未覆盖全流: 终点=%d 流长=%d", next, v.Len())
	}
}

// TestBadHeightRejected 验证非法页高立即致命。
func TestBadHeightRejected(t *testing.T) {
	g := &GlueSpec{Stretch: 0.5}
	p := DefaultParams()
	v := paraStream(2, g, &p)
	if _, _, err := BreakPages(v, PageParams{Params: p, Height: 0}); err == nil {
		t.Fatalf("零页高应报错")
	}
	pp := PageParams{Params: p, Heights: func(int) float64 { return -1 }}
	if _, _, err := BreakPages(v, pp); err == nil {
		t.Fatalf("高度表返回非正值应报错")
	}
}
