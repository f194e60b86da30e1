package typeset

import "fmt"

// 该文件把通用求解器实例化为段落断行：合法断点为紧跟实体的词间胶、
// 罚分节点与词内自由断点；行宽可按行号查形状表；末行尾胶替换为无穷
// 伸长的填充胶，短末行不会产生高 badness。

// FillGlue 返回末行/末页使用的无穷伸长填充胶。
func FillGlue() *GlueSpec {
	return &GlueSpec{Stretch: 1, StretchOrder: OrderFil}
}

// LineParams 配置一次断行求解。
type LineParams struct {
	Params

	// Width 是固定行宽。
	Width float64

	// Shape 按行号给出行宽（首行取 Shape[0]，超出部分沿用最后一项），
	// 支持缩进、悬挂缩进等非矩形段落；为空时一律使用 Width。
	Shape []float64
}

// targetAt 返回第 n 行（从 1 计）的目标行宽。
func (lp LineParams) targetAt(n int) float64 {
	if len(lp.Shape) > 0 {
		if n > len(lp.Shape) {
			n = len(lp.Shape)
		}
		return lp.Shape[n-1]
	}
	return lp.Width
}

// Line 是断行输出：内容范围切片、填充比例与松紧档位（供断页的
// 孤行逻辑消费）。范围索引指向输入流。
type Line struct {
	Start   int
	End     int
	Ratio   float64
	Order   Order
	Fitness Fitness
	Width   float64 // 本行目标行宽
}

// BreakLines 对横排节点流做最优断行。输入流只读；收尾序列（禁断罚分 +
// 填充胶 + 强制罚分）追加在内部工作副本上。返回行序列与告知性诊断。
func BreakLines(s *Stream, lp LineParams) ([]Line, []Diag, error) {
	if lp.Width <= 0 && len(lp.Shape) == 0 {
		return nil, nil, fmt.Errorf("typeset: 行宽必须为正值，实际 %g", lp.Width)
	}
	for i, w := range lp.Shape {
		if w <= 0 {
			return nil, nil, fmt.Errorf("typeset: 形状表第 %d 项行宽非正（%g）", i+1, w)
		}
	}
	if s.Len() == 0 {
		return nil, nil, nil
	}

	work, origLen := finishStream(s, false)
	sol, err := Solve(work, false, lp.targetAt, lp.Params)
	if err != nil {
		return nil, nil, err
	}

	lines := make([]Line, 0, len(sol.Segments))
	for i, seg := range sol.Segments {
		end := seg.End
		if end > origLen {
			end = origLen
		}
		lines = append(lines, Line{
			Start:   seg.Start,
			End:     end,
			Ratio:   seg.Ratio,
			Order:   seg.Order,
			Fitness: seg.Fitness,
			Width:   lp.targetAt(i + 1),
		})
	}
	return lines, sol.Diags, nil
}

// finishStream 构造求解用工作副本：剥去尾部 glue，追加禁断罚分、填充胶
// 与强制罚分。若流本身已以强制罚分结尾则原样复用。返回副本与原始内容
// 长度（行范围需裁剪回原流）。
func finishStream(s *Stream, vertical bool) (*Stream, int) {
	n := len(s.Nodes)
	if n > 0 {
		last := &s.Nodes[n-1]
		if last.Kind == KindPenalty && last.Penalty <= -InfPenalty {
			return s, n
		}
	}
	end := n
	for end > 0 && discardable(s.Nodes[end-1].Kind) {
		end--
	}
	work := &Stream{Nodes: make([]Node, 0, end+3)}
	work.Nodes = append(work.Nodes, s.Nodes[:end]...)
	work.AppendPenalty(InfPenalty)
	work.AppendGlue(FillGlue())
	work.AppendPenalty(-InfPenalty)
	return work, end
}
