package typeset

import (
	"math"
	"reflect"
	"testing"
)

// wordStream 构造 n 个等宽词、词间以同一 glue spec 相隔的横排流，
// 用作断行测试的标准输入。
func wordStream(t *testing.T, n int, w float64, g *GlueSpec) *Stream {
	t.Helper()
	s := &Stream{}
	for i := 0; i < n; i++ {
		if i > 0 {
			s.AppendGlue(g)
		}
		s.AppendChar(rune('a'+i), w, w*0.7, w*0.2)
	}
	return s
}

func lineRanges(lines []Line) [][2]int {
	out := make([][2]int, len(lines))
	for i, ln := range lines {
		out[i] = [2]int{ln.Start, ln.End}
	}
	return out
}

// TestScenarioEqualWords 覆盖基准场景：五个等宽词，行宽 2.2w，期望
// {1,2} {3,4} {5} 三行，末行比例以无穷填充胶计算而非词间胶。
func TestScenarioEqualWords(t *testing.T) {
	const w = 10.0
	g := &GlueSpec{Natural: 0.25 * w, Stretch: 0.15 * w, Shrink: 0.08 * w}
	s := wordStream(t, 5, w, g)

	lp := LineParams{Params: DefaultParams(), Width: 2.2 * w}
	lp.Tolerance = 100
	lp.SecondTolerance = 400
	lines, diags, err := BreakLines(s, lp)
	if err != nil {
		t.Fatalf("断行失败: %v", err)
	}
	if len(diags) != 0 {
		t.Fatalf("不应产生诊断: %v", diags)
	}
	want := [][2]int{{0, 4}, {4, 8}, {8, 9}}
	if got := lineRanges(lines); !reflect.DeepEqual(got, want) {
		t.Fatalf("行划分错误: got=%v want=%v", got, want)
	}
	// 前两行按词间胶收缩：(22 - 22.5) / 0.8w·0.08... = -0.625。
	for i := 0; i < 2; i++ {
		if math.Abs(lines[i].Ratio+0.625) > 1e-9 || lines[i].Order != OrderNormal {
			t.Fatalf("第 %d 行比例错误: ratio=%g order=%d", i+1, lines[i].Ratio, lines[i].Order)
		}
		if lines[i].Fitness != FitTight {
			t.Fatalf("第 %d 行档位应为 tight: got=%v", i+1, lines[i].Fitness)
		}
	}
	last := lines[2]
	if last.Order == OrderNormal {
		t.Fatalf("末行应以无穷填充胶伸长: order=%d", last.Order)
	}
	if last.Fitness != FitVeryLoose {
		t.Fatalf("末行档位应为 very-loose: got=%v", last.Fitness)
	}
}

// TestScenarioNarrowerThanWord 覆盖降级场景：行宽窄于单词，前两遍必然
// 失败，紧急遍一词一行并对每行产生超限诊断。
func TestScenarioNarrowerThanWord(t *testing.T) {
	const w = 10.0
	g := &GlueSpec{Natural: 0.25 * w, Stretch: 0.15 * w, Shrink: 0.08 * w}
	s := wordStream(t, 5, w, g)

	lp := LineParams{Params: DefaultParams(), Width: 0.5 * w}
	lp.Tolerance = 100
	lp.SecondTolerance = 400
	lines, diags, err := BreakLines(s, lp)
	if err != nil {
		t.Fatalf("断行失败: %v", err)
	}
	if len(lines) != 5 {
		t.Fatalf("应一词一行: got=%d 行", len(lines))
	}
	var escal, overfull int
	for _, d := range diags {
		switch d.Kind {
		case DiagSecondPass, DiagEmergencyPass:
			escal++
		case DiagOverfull:
			overfull++
			if d.Overflow <= 0 {
				t.Fatalf("超限诊断缺少溢出量: %+v", d)
			}
		}
	}
	if escal != 2 {
		t.Fatalf("应记录两次放宽: got=%d", escal)
	}
	if overfull != 5 {
		t.Fatalf("每行都应有超限诊断: got=%d", overfull)
	}
}

// TestForcedBreakHonored 覆盖强制断点：罚分哨兵所在处必然成为断点，
// 无论造成多坏的 badness。
func TestForcedBreakHonored(t *testing.T) {
	const w = 10.0
	g := &GlueSpec{Natural: 0.25 * w, Stretch: 0.15 * w, Shrink: 0.08 * w}
	s := &Stream{}
	s.AppendChar('a', w, 7, 2)
	s.AppendGlue(g)
	s.AppendChar('b', w, 7, 2)
	forced := s.AppendPenalty(-InfPenalty)
	s.AppendGlue(g)
	s.AppendChar('c', w, 7, 2)

	lp := LineParams{Params: DefaultParams(), Width: 5 * w}
	lines, _, err := BreakLines(s, lp)
	if err != nil {
		t.Fatalf("断行失败: %v", err)
	}
	found := false
	for _, ln := range lines {
		if ln.End == forced+1 {
			found = true
		}
	}
	if !found {
		t.Fatalf("强制断点未被采纳: lines=%v", lineRanges(lines))
	}
}

// TestCoverage 验证覆盖性：行范围严格递增、无缝无叠地划分输入流。
func TestCoverage(t *testing.T) {
	const w = 8.0
	g := &GlueSpec{Natural: 3, Stretch: 1.5, Shrink: 1}
	s := wordStream(t, 12, w, g)
	lp := LineParams{Params: DefaultParams(), Width: 30}
	lines, _, err := BreakLines(s, lp)
	if err != nil {
		t.Fatalf("断行失败: %v", err)
	}
	next := 0
	for i, ln := range lines {
		if ln.Start != next {
			t.Fatalf("第 %d 行起点错位: got=%d want=%d", i+1, ln.Start, next)
		}
		if ln.End <= ln.Start {
			t.Fatalf("第 %d 行范围非递增: [%d,%d)", i+1, ln.Start, ln.End)
		}
		next = ln.End
	}
	if next != s.Len() {
		t.Fatalf("行范围未覆盖全流: 终点=%d 流长=%d", next, s.Len())
	}
}

// TestDeterminism 验证确定性：同一输入与参数重复求解，断点序列逐位一致。
func TestDeterminism(t *testing.T) {
	const w = 7.3
	g := &GlueSpec{Natural: 2.5, Stretch: 1.2, Shrink: 0.9}
	lp := LineParams{Params: DefaultParams(), Width: 41}

	var first [][2]int
	for run := 0; run < 5; run++ {
		s := wordStream(t, 20, w, g)
		lines, _, err := BreakLines(s, lp)
		if err != nil {
			t.Fatalf("断行失败: %v", err)
		}
		got := lineRanges(lines)
		if run == 0 {
			first = got
			continue
		}
		if !reflect.DeepEqual(got, first) {
			t.Fatalf("第 %d 次求解结果不一致: got=%v want=%v", run+1, got, first)
		}
	}
}

// TestFeasibilityMonotonic 验证放宽容忍度不会得到更差的结果：
// 严格遍成功时，更宽的容忍度给出的总 demerits 不高于严格遍。
func TestFeasibilityMonotonic(t *testing.T) {
	const w = 9.0
	g := &GlueSpec{Natural: 3, Stretch: 1.8, Shrink: 1}
	build := func() *Stream { return wordStream(t, 15, w, g) }

	strict := LineParams{Params: DefaultParams(), Width: 38}
	strict.Tolerance = 200
	work1, _ := finishStream(build(), false)
	sol1, err := Solve(work1, false, strict.targetAt, strict.Params)
	if err != nil {
		t.Fatalf("严格求解失败: %v", err)
	}

	loose := strict
	loose.Tolerance = 5000
	loose.SecondTolerance = 5000
	work2, _ := finishStream(build(), false)
	sol2, err := Solve(work2, false, loose.targetAt, loose.Params)
	if err != nil {
		t.Fatalf("放宽求解失败: %v", err)
	}
	if sol2.Demerits > sol1.Demerits {
		t.Fatalf("放宽后结果更差: strict=%g loose=%g", sol1.Demerits, sol2.Demerits)
	}
}

// TestResolveStable 验证稳定性：对已产出的单行内容以其自身目标宽度
// 重新求解，不会再出现新的内部断点。
func TestResolveStable(t *testing.T) {
	const w = 10.0
	g := &GlueSpec{Natural: 0.25 * w, Stretch: 0.15 * w, Shrink: 0.08 * w}
	s := wordStream(t, 5, w, g)
	lp := LineParams{Params: DefaultParams(), Width: 2.2 * w}
	lp.Tolerance = 100
	lines, _, err := BreakLines(s, lp)
	if err != nil {
		t.Fatalf("断行失败: %v", err)
	}
	for i, ln := range lines {
		sub := &Stream{Nodes: append([]Node(nil), s.Nodes[ln.Start:ln.End]...)}
		relp := LineParams{Params: lp.Params, Width: ln.Width}
		relines, _, err := BreakLines(sub, relp)
		if err != nil {
			t.Fatalf("第 %d 行重排失败: %v", i+1, err)
		}
		if len(relines) != 1 {
			t.Fatalf("第 %d 行重排后应保持单行: got=%d", i+1, len(relines))
		}
	}
}

// TestShapeTable 验证形状表：首行更窄（缩进）时断点随之前移。
func TestShapeTable(t *testing.T) {
	const w = 10.0
	g := &GlueSpec{Natural: 2.5, Stretch: 1.5, Shrink: 0.8}
	s := wordStream(t, 8, w, g)

	lp := LineParams{Params: DefaultParams(), Shape: []float64{2.2 * w, 3.45 * w}}
	lp.Tolerance = 400
	lp.SecondTolerance = 800
	lines, _, err := BreakLines(s, lp)
	if err != nil {
		t.Fatalf("断行失败: %v", err)
	}
	if len(lines) < 2 {
		t.Fatalf("形状表场景至少应产生两行: got=%d", len(lines))
	}
	if lines[0].Width != 2.2*w {
		t.Fatalf("首行目标宽度应取形状表首项: got=%g", lines[0].Width)
	}
	if lines[1].Width != 3.45*w {
		t.Fatalf("次行目标宽度应取形状表次项: got=%g", lines[1].Width)
	}
	if lines[0].End >= lines[1].End {
		t.Fatalf("行范围应严格递增: %v", lineRanges(lines))
	}
}

// TestDiscretionaryBreak 验证词内自由断点：窄行宽下在 disc 处断开，
// 断行侧计入 pre 材料（连字符）的宽度。
func TestDiscretionaryBreak(t *testing.T) {
	const cw = 5.0
	s := &Stream{}
	// "abc-def"：abc 与 def 之间有一个 pre 为连字符的自由断点。
	for _, r := range "abc" {
		s.AppendChar(r, cw, 3.5, 1)
	}
	hyphen := []Node{{Kind: KindChar, Glyph: '-', Width: cw / 2, Height: 3.5, Depth: 1}}
	disc := s.AppendDisc(hyphen, nil, nil)
	for _, r := range "def" {
		s.AppendChar(r, cw, 3.5, 1)
	}

	lp := LineParams{Params: DefaultParams(), Width: 3.5 * cw}
	lp.Tolerance = InfBad
	lp.SecondTolerance = InfBad
	lines, _, err := BreakLines(s, lp)
	if err != nil {
		t.Fatalf("断行失败: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("应在词内断点断成两行: got=%d %v", len(lines), lineRanges(lines))
	}
	if lines[0].End != disc+1 {
		t.Fatalf("首行应终于自由断点: got=%d want=%d", lines[0].End, disc+1)
	}
}

// TestBadWidthRejected 验证非法配置立即致命且不产生部分结果。
func TestBadWidthRejected(t *testing.T) {
	s := wordStream(t, 3, 10, &GlueSpec{Natural: 2, Stretch: 1, Shrink: 1})
	if _, _, err := BreakLines(s, LineParams{Params: DefaultParams(), Width: 0}); err == nil {
		t.Fatalf("零行宽应报错")
	}
	bad := &Stream{}
	bad.AppendChar('a', 10, 7, 2)
	bad.AppendGlue(&GlueSpec{Natural: 2, Stretch: -1})
	bad.AppendChar('b', 10, 7, 2)
	if _, _, err := BreakLines(bad, LineParams{Params: DefaultParams(), Width: 30}); err == nil {
		t.Fatalf("负伸缩量应报错")
	}
}
