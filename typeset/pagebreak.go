package typeset

import "fmt"

// 该文件把通用求解器实例化为断页：输入是由断好的行盒与行间胶拼成的
// 竖直流。孤行控制（club/widow）以大而有限的罚分实现——极端约束下
// 求解器仍可在此断开，而不是硬性禁止。

// PageParams 配置一次断页求解。
type PageParams struct {
	Params

	// Height 是页面内容高度（页眉/页脚等已占用的部分由上游在此扣除）。
	Height float64

	// Heights 可选地按页号给出目标高度（如首页更矮），覆盖 Height。
	Heights func(page int) float64
}

func (pp PageParams) targetAt(n int) float64 {
	if pp.Heights != nil {
		return pp.Heights(n)
	}
	return pp.Height
}

// PageRun 是断页输出：内容范围、填充比例与下一页首个未排节点的索引。
// Next 恒等于 End：无缝无叠。
type PageRun struct {
	Start   int
	End     int
	Next    int
	Ratio   float64
	Order   Order
	Fitness Fitness
}

// BreakPages 对竖直节点流做最优断页。与断行一样在工作副本上收尾
// （末页经填充胶结束，短末页不受罚）。
func BreakPages(s *Stream, pp PageParams) ([]PageRun, []Diag, error) {
	if pp.Heights == nil && pp.Height <= 0 {
		return nil, nil, fmt.Errorf("typeset: 页高必须为正值，实际 %g", pp.Height)
	}
	if s.Len() == 0 {
		return nil, nil, nil
	}

	work, origLen := finishStream(s, true)
	sol, err := Solve(work, true, pp.targetAt, pp.Params)
	if err != nil {
		return nil, nil, err
	}

	pages := make([]PageRun, 0, len(sol.Segments))
	for _, seg := range sol.Segments {
		end := seg.End
		if end > origLen {
			end = origLen
		}
		pages = append(pages, PageRun{
			Start:   seg.Start,
			End:     end,
			Next:    end,
			Ratio:   seg.Ratio,
			Order:   seg.Order,
			Fitness: seg.Fitness,
		})
	}
	return pages, sol.Diags, nil
}

// AppendParagraph 把一个段落的行盒追加到竖直流：行与行之间插入行间
// 罚分与行间胶。首行之后的断点附加 ClubPenalty，末行之前的断点附加
// WidowPenalty，阻止段落的首行/末行被单独留在页上。
func AppendParagraph(v *Stream, lineBoxes []Node, interline *GlueSpec, p *Params) {
	for i, box := range lineBoxes {
		v.Append(box)
		if i == len(lineBoxes)-1 {
			break
		}
		pen := p.InterlinePenalty
		if i == 0 {
			pen += p.ClubPenalty
		}
		if i == len(lineBoxes)-2 {
			pen += p.WidowPenalty
		}
		v.AppendPenalty(pen)
		if interline != nil {
			v.AppendGlue(interline)
		}
	}
}
