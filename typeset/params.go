package typeset

import "fmt"

// Params 是一次求解消费的不可变断点参数。并行求解多个段落时共享同一份
// 只读配置即可；求解开始后不得修改。
type Params struct {
	// Tolerance 是首遍可接受的最大 badness；SecondTolerance 用于放宽重试。
	Tolerance       float64
	SecondTolerance float64

	// EmergencyStretch 仅在最后一搏时均匀附加到每段的有限伸长量上。
	EmergencyStretch float64

	// LinePenalty 参与每个断点的基础 demerits：(LinePenalty + badness)²。
	LinePenalty float64

	// HyphenPenalty 是在自由断点（词内）断开的罚分。
	HyphenPenalty float64

	// DoubleBreakDemerits 在连续两个词内断点（视觉双连字符）时追加。
	DoubleBreakDemerits float64

	// FitnessDemerits 在相邻段松紧档位跳变超过一步时追加。
	FitnessDemerits float64

	// ClubPenalty/WidowPenalty 分别阻止段落首行/末行被单独留在页上。
	// 取大而有限的值：极端约束下求解器仍可选择在此断开。
	ClubPenalty  float64
	WidowPenalty float64

	// InterlinePenalty 附加在每个行间断点上。
	InterlinePenalty float64
}

// DefaultParams 返回 Knuth–Plass 传统常数的缺省值。这些是策略缺省，不是铁律。
func DefaultParams() Params {
	return Params{
		Tolerance:           200,
		SecondTolerance:     800,
		EmergencyStretch:    0,
		LinePenalty:         10,
		HyphenPenalty:       50,
		DoubleBreakDemerits: 3000,
		FitnessDemerits:     10000,
		ClubPenalty:         150,
		WidowPenalty:        150,
		InterlinePenalty:    0,
	}
}

// validate 检查配置是否可用于一次求解；非法配置立即致命，不产生部分结果。
func (p Params) validate() error {
	if p.Tolerance <= 0 {
		return fmt.Errorf("typeset: tolerance 必须为正值，实际 %g", p.Tolerance)
	}
	if p.SecondTolerance < p.Tolerance {
		return fmt.Errorf("typeset: 二遍容忍度 %g 不能低于首遍 %g", p.SecondTolerance, p.Tolerance)
	}
	if p.EmergencyStretch < 0 {
		return fmt.Errorf("typeset: 紧急伸长量不能为负，实际 %g", p.EmergencyStretch)
	}
	return nil
}

// validateStream 拒绝带有负伸缩量的 glue（非法输入，立即致命）。
func validateStream(s *Stream) error {
	for i := range s.Nodes {
		n := &s.Nodes[i]
		if n.Kind != KindGlue {
			continue
		}
		if n.Glue == nil {
			return fmt.Errorf("typeset: 节点 %d 的 glue spec 为空", i)
		}
		if n.Glue.Stretch < 0 || n.Glue.Shrink < 0 {
			return fmt.Errorf("typeset: 节点 %d 的 glue 伸缩量为负（stretch=%g shrink=%g）", i, n.Glue.Stretch, n.Glue.Shrink)
		}
	}
	return nil
}
