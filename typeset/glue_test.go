package typeset

import (
	"math"
	"testing"
)

// TestGlueValueAt 验证按比例伸缩的取值：正比例走伸长量，负比例走收缩量，
// 有限收缩钳制在 -1（空白不能收缩到负）。
func TestGlueValueAt(t *testing.T) {
	g := GlueSpec{Natural: 10, Stretch: 4, Shrink: 2}
	if got := g.ValueAt(0.5, OrderNormal); math.Abs(got-12) > 1e-9 {
		t.Fatalf("伸长取值错误: got=%g want=12", got)
	}
	if got := g.ValueAt(-0.5, OrderNormal); math.Abs(got-9) > 1e-9 {
		t.Fatalf("收缩取值错误: got=%g want=9", got)
	}
	if got := g.ValueAt(-3, OrderNormal); math.Abs(got-8) > 1e-9 {
		t.Fatalf("收缩比例未钳制到 -1: got=%g want=8", got)
	}
	// 阶不匹配时不参与伸缩。
	fil := GlueSpec{Natural: 5, Stretch: 1, StretchOrder: OrderFil}
	if got := fil.ValueAt(2, OrderNormal); got != 5 {
		t.Fatalf("低阶比例不应作用于高阶胶: got=%g want=5", got)
	}
	if got := fil.ValueAt(2, OrderFil); math.Abs(got-7) > 1e-9 {
		t.Fatalf("fil 阶取值错误: got=%g want=7", got)
	}
}

// TestDominantOrder 验证主导阶规则：出现任何高阶伸长量后低阶被忽略。
func TestDominantOrder(t *testing.T) {
	var acc GlueAcc
	acc.AddGlue(GlueSpec{Natural: 1, Stretch: 3})
	if got := acc.DominantStretchOrder(); got != OrderNormal {
		t.Fatalf("仅有限伸长时主导阶应为 0: got=%d", got)
	}
	acc.AddGlue(GlueSpec{Stretch: 1, StretchOrder: OrderFill})
	if got := acc.DominantStretchOrder(); got != OrderFill {
		t.Fatalf("主导阶应为 fill: got=%d", got)
	}
	// 比例只按主导阶的量计算。
	ratio, order, ok := acc.Ratio(11)
	if !ok || order != OrderFill {
		t.Fatalf("比例应以 fill 阶计算: ratio=%g order=%d ok=%v", ratio, order, ok)
	}
	if math.Abs(ratio-10) > 1e-9 {
		t.Fatalf("fill 阶比例错误: got=%g want=10", ratio)
	}
}

// TestRatioOverfull 验证有限收缩不足时报告超限。
func TestRatioOverfull(t *testing.T) {
	var acc GlueAcc
	acc.AddNatural(20)
	acc.AddGlue(GlueSpec{Natural: 2, Shrink: 1})
	if _, _, ok := acc.Ratio(20); ok {
		t.Fatalf("收缩量不足时应判定超限")
	}
	ratio, _, ok := acc.Ratio(21.5)
	if !ok || math.Abs(ratio+0.5) > 1e-9 {
		t.Fatalf("收缩比例错误: ratio=%g ok=%v", ratio, ok)
	}
}

// TestBadness 验证 badness 公式与无穷阶贴合。
func TestBadness(t *testing.T) {
	if got := Badness(0, OrderNormal); got != 0 {
		t.Fatalf("精确贴合 badness 应为 0: got=%g", got)
	}
	if got := Badness(1, OrderNormal); math.Abs(got-100) > 1e-9 {
		t.Fatalf("ratio=1 badness 应为 100: got=%g", got)
	}
	if got := Badness(-0.5, OrderNormal); math.Abs(got-12.5) > 1e-9 {
		t.Fatalf("ratio=-0.5 badness 应为 12.5: got=%g", got)
	}
	if got := Badness(10, OrderNormal); got != InfBad {
		t.Fatalf("badness 应封顶 InfBad: got=%g", got)
	}
	if got := Badness(99, OrderFil); got != 0 {
		t.Fatalf("无穷阶伸长 badness 应为 0: got=%g", got)
	}
	if got := Badness(-2, OrderNormal); got != awfulBad {
		t.Fatalf("超限 badness 应为哨兵值: got=%g", got)
	}
}

// TestFitnessOf 验证松紧档位边界。
func TestFitnessOf(t *testing.T) {
	cases := []struct {
		ratio float64
		order Order
		want  Fitness
	}{
		{-1, OrderNormal, FitTight},
		{-0.5, OrderNormal, FitTight},
		{-0.49, OrderNormal, FitNormal},
		{0, OrderNormal, FitNormal},
		{0.49, OrderNormal, FitNormal},
		{0.5, OrderNormal, FitLoose},
		{3, OrderNormal, FitLoose},
		{0.1, OrderFil, FitVeryLoose},
	}
	for _, c := range cases {
		if got := FitnessOf(c.ratio, c.order); got != c.want {
			t.Fatalf("FitnessOf(%g, %d)=%v want=%v", c.ratio, c.order, got, c.want)
		}
	}
}
