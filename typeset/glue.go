// Package typeset 实现最优断点排版核心：节点流、badness/demerits 评分
// 与逐级放宽的断行/断页求解器。包内所有尺寸均以毫米（mm）为单位。
package typeset

import "math"

// Order 表示伸缩量所属的“无穷阶”。阶 0 为有限伸缩；阶 1–3 为无穷伸缩，
// 高阶绝对压制低阶：一段内容中只要出现更高阶的伸缩量，低阶在比例计算中即被忽略。
type Order int

const (
	OrderNormal Order = iota // 有限伸缩
	OrderFil                 // 一阶无穷
	OrderFill                // 二阶无穷
	OrderFilll               // 三阶无穷

	numOrders = 4
)

// GlueSpec 描述一段可伸缩空白：自然尺寸加上独立定阶的伸长量与收缩量。
// GlueSpec 是不可变值，多个节点可共享同一个 spec。
type GlueSpec struct {
	Natural      float64
	Stretch      float64
	StretchOrder Order
	Shrink       float64
	ShrinkOrder  Order
}

// ValueAt 返回按比例 ratio（其生效阶为 order）伸缩后的实际尺寸。
// ratio ≥ 0 时按伸长量计算，否则按收缩量；有限收缩的比例被钳制到 -1，
// 空白不能收缩到自然尺寸之下超过其收缩量。
func (g GlueSpec) ValueAt(ratio float64, order Order) float64 {
	if ratio >= 0 {
		if g.StretchOrder != order {
			return g.Natural
		}
		return g.Natural + ratio*g.Stretch
	}
	if g.ShrinkOrder != order {
		return g.Natural
	}
	if order == OrderNormal && ratio < -1 {
		ratio = -1
	}
	return g.Natural + ratio*g.Shrink
}

// GlueAcc 累加一段候选内容的自然尺寸与各阶伸缩量。
type GlueAcc struct {
	Natural float64
	Stretch [numOrders]float64
	Shrink  [numOrders]float64
}

// AddNatural 累加不可伸缩的固定尺寸（字符、盒、kern 等）。
func (a *GlueAcc) AddNatural(w float64) { a.Natural += w }

// AddGlue 累加一个 glue 的贡献。
func (a *GlueAcc) AddGlue(g GlueSpec) {
	a.Natural += g.Natural
	a.Stretch[g.StretchOrder] += g.Stretch
	a.Shrink[g.ShrinkOrder] += g.Shrink
}

// Sub 返回 a - b，用于由前缀和求任意区段的累计量。
func (a GlueAcc) Sub(b GlueAcc) GlueAcc {
	out := GlueAcc{Natural: a.Natural - b.Natural}
	for o := 0; o < numOrders; o++ {
		out.Stretch[o] = a.Stretch[o] - b.Stretch[o]
		out.Shrink[o] = a.Shrink[o] - b.Shrink[o]
	}
	return out
}

// DominantStretchOrder 返回伸长量的主导阶：非零伸长量中最高的那一阶。
func (a GlueAcc) DominantStretchOrder() Order {
	for o := OrderFilll; o > OrderNormal; o-- {
		if a.Stretch[o] != 0 {
			return o
		}
	}
	return OrderNormal
}

// DominantShrinkOrder 返回收缩量的主导阶。
func (a GlueAcc) DominantShrinkOrder() Order {
	for o := OrderFilll; o > OrderNormal; o-- {
		if a.Shrink[o] != 0 {
			return o
		}
	}
	return OrderNormal
}

// Ratio 计算把累计内容撑/压到 target 所需的填充比例及其生效阶。
// 返回值 ok 为 false 表示区段已超出目标且收缩量不足（overfull）。
func (a GlueAcc) Ratio(target float64) (ratio float64, order Order, ok bool) {
	diff := target - a.Natural
	switch {
	case diff == 0:
		return 0, OrderNormal, true
	case diff > 0:
		order = a.DominantStretchOrder()
		if a.Stretch[order] <= 0 {
			// 没有任何伸长量：比例记为 0，由 badness 判定为不可接受的欠满。
			return 0, OrderNormal, true
		}
		return diff / a.Stretch[order], order, true
	default:
		order = a.DominantShrinkOrder()
		if a.Shrink[order] <= 0 {
			return -1, OrderNormal, false
		}
		ratio = diff / a.Shrink[order]
		if order == OrderNormal && ratio < -1 {
			return ratio, order, false
		}
		return ratio, order, true
	}
}

// badness 评分常数。InfBad 是“无限糟糕”的封顶值；awfulBad 是超限（overfull）
// 哨兵，比任何可配置容忍度都大。
const (
	InfBad   = 10000.0
	awfulBad = 1e22
)

// Badness 返回 100·|ratio|³（封顶 InfBad）。无穷阶伸长视为完美贴合（0）；
// 有限收缩超过 -1 视为 awfulBad。
func Badness(ratio float64, order Order) float64 {
	if order != OrderNormal {
		return 0
	}
	if ratio < -1 {
		return awfulBad
	}
	b := 100 * math.Abs(ratio) * ratio * ratio
	if b < 0 {
		b = -b
	}
	if b > InfBad {
		return InfBad
	}
	return b
}

// Fitness 把填充比例粗分为四档，用于惩罚相邻行/页之间视觉上突兀的松紧跳变。
type Fitness int

const (
	FitTight     Fitness = iota // ratio ≤ -0.5
	FitNormal                   // 正常区间
	FitLoose                    // ratio ≥ 0.5 且有限
	FitVeryLoose                // 无穷阶伸长
)

// String 返回档位名，供调试 JSON 与诊断输出使用。
func (f Fitness) String() string {
	switch f {
	case FitTight:
		return "tight"
	case FitNormal:
		return "normal"
	case FitLoose:
		return "loose"
	case FitVeryLoose:
		return "very-loose"
	default:
		return "unknown"
	}
}

// FitnessOf 按比例与生效阶给出档位。
func FitnessOf(ratio float64, order Order) Fitness {
	if order != OrderNormal {
		return FitVeryLoose
	}
	switch {
	case ratio <= -0.5:
		return FitTight
	case ratio >= 0.5:
		return FitLoose
	default:
		return FitNormal
	}
}

// fitnessJump 返回两档之间的距离。超过一步的跳变会追加 FitnessDemerits。
func fitnessJump(a, b Fitness) int {
	d := int(a) - int(b)
	if d < 0 {
		d = -d
	}
	return d
}
