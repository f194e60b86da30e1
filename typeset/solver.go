package typeset

import (
	"errors"
	"fmt"
)

// 该文件实现通用的最优断点搜索：在候选断点图上最小化累计 demerits，
// 逐级放宽（常规 → 放宽容忍度 → 紧急伸长）直到得到可行路径。
// 行断与页断是它的两个实例化（见 linebreak.go / pagebreak.go）。

// Segment 是求解结果中的一段：内容范围、填充比例与松紧档位。
// 所有段的 [Start, End) 恰好无缝无叠地划分输入流。
type Segment struct {
	Start   int
	End     int
	Ratio   float64
	Order   Order
	Fitness Fitness
}

// Solution 是一次求解的完整结果。Active/Passive 簿记是本次调用的局部
// 草稿状态，取出断点序列后即被整体丢弃。
type Solution struct {
	Segments []Segment
	Diags    []Diag
	Pass     int
	Demerits float64
}

// errPassFailed 表示当前遍没有任何路径抵达流尾，需要放宽后重试。
var errPassFailed = errors.New("typeset: 本遍无可行断点路径")

// active 是活动候选：终于某断点的一条存活路径。同一断点可按不同松紧
// 档位并存多条；一旦从该断点起始的段必然超限，条目即被移除。
type active struct {
	pos         int     // 断点节点索引；-1 表示流起点
	start       int     // 下一段内容的统计起点（已跳过断点后的可丢弃节点）
	postNatural float64 // 词内断点 post 材料的自然尺寸
	line        int     // 已形成的段数
	fit         Fitness
	demerits    float64
	passive     int // passive arena 索引；-1 表示无前驱
	discBreak   bool
}

// passive 是永久的只追加断点记录，依靠前驱索引回走重建最终断点序列。
// 该链必须无环并终止于流起点。
type passive struct {
	pos   int
	prev  int
	line  int
	fit   Fitness
	ratio float64
	order Order
}

type passConfig struct {
	pass      int
	tolerance float64
	emergency float64
	final     bool
}

type solver struct {
	stream   *Stream
	params   Params
	target   func(int) float64
	vertical bool
	cum      []GlueAcc

	// 本遍状态
	tolerance float64
	emergency float64
	final     bool

	actives  []active
	passives []passive
}

// Solve 在节点流上运行最优断点搜索。target 给出第 n 段（从 1 计）的目标
// 尺寸；vertical 为 true 时按竖直方向（高+深）度量。流必须以强制罚分结尾
// （BreakLines/BreakPages 会自动补齐收尾序列）。
func Solve(s *Stream, vertical bool, target func(int) float64, p Params) (*Solution, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if err := validateStream(s); err != nil {
		return nil, err
	}
	if s.Len() == 0 {
		return &Solution{Pass: 1}, nil
	}
	last := &s.Nodes[s.Len()-1]
	if last.Kind != KindPenalty || last.Penalty > -InfPenalty {
		return nil, fmt.Errorf("typeset: 节点流必须以强制罚分结尾（实际末节点 kind=%d）", last.Kind)
	}

	sv := &solver{
		stream:   s,
		params:   p,
		target:   target,
		vertical: vertical,
		cum:      prefixAcc(s, vertical),
	}

	passes := []passConfig{
		{pass: 1, tolerance: p.Tolerance},
		{pass: 2, tolerance: p.SecondTolerance},
		{pass: 3, tolerance: InfBad, emergency: p.EmergencyStretch, final: true},
	}

	var diags []Diag
	for _, pc := range passes {
		sol, err := sv.run(pc)
		if errors.Is(err, errPassFailed) {
			switch pc.pass {
			case 1:
				diags = append(diags, Diag{Kind: DiagSecondPass, Pass: 1})
			case 2:
				diags = append(diags, Diag{Kind: DiagEmergencyPass, Pass: 2})
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		sol.Diags = append(diags, sol.Diags...)
		return sol, nil
	}
	// 最后一搏带有强制兜底断点，除配置错误外不会走到这里。
	return nil, fmt.Errorf("typeset: 紧急遍仍未找到路径（内部不变式被破坏）")
}

// prefixAcc 构建前缀和：cum[i] 为 nodes[0..i) 的累计量，任意区段的
// 累计即两个前缀之差。自由断点按其不断（NoBreak）材料计入。
func prefixAcc(s *Stream, vertical bool) []GlueAcc {
	cum := make([]GlueAcc, s.Len()+1)
	var acc GlueAcc
	for i := range s.Nodes {
		n := &s.Nodes[i]
		switch n.Kind {
		case KindGlue:
			acc.AddGlue(*n.Glue)
		case KindDisc:
			acc.AddNatural(naturalSize(n.NoBreak, vertical))
		default:
			acc.AddNatural(advance(n, vertical))
		}
		cum[i+1] = acc
	}
	return cum
}

type breakInfo struct {
	legal   bool
	penalty float64
	forced  bool
	disc    bool
}

// breakAt 判定索引 i 是否为合法断点：紧跟在不可丢弃节点之后的 glue、
// 罚分值低于禁止哨兵的 penalty，或（横排时）自由断点。
func (sv *solver) breakAt(i int) breakInfo {
	n := &sv.stream.Nodes[i]
	switch n.Kind {
	case KindGlue:
		if i > 0 && breakAllowedBefore(sv.stream.Nodes[i-1].Kind) {
			return breakInfo{legal: true}
		}
	case KindPenalty:
		if n.Penalty < InfPenalty {
			return breakInfo{legal: true, penalty: n.Penalty, forced: n.Penalty <= -InfPenalty}
		}
	case KindDisc:
		if !sv.vertical {
			return breakInfo{legal: true, penalty: sv.params.HyphenPenalty, disc: true}
		}
	}
	return breakInfo{}
}

// segStart 返回在 i 处断开后，下一段的统计起点：跳过紧随其后的可丢弃
// 节点。词内断点停止丢弃，post 材料经 postNatural 单独计入。
func (sv *solver) segStart(i int) int {
	if sv.stream.Nodes[i].Kind == KindDisc {
		return i + 1
	}
	j := i + 1
	for j < sv.stream.Len() && discardable(sv.stream.Nodes[j].Kind) {
		j++
	}
	return j
}

// segAcc 计算活动条目 a 到断点 i 之间候选段的累计量。
func (sv *solver) segAcc(a *active, i int, disc bool) GlueAcc {
	acc := sv.cum[i].Sub(sv.cum[a.start])
	acc.Natural += a.postNatural
	if disc {
		acc.Natural += naturalSize(sv.stream.Nodes[i].Pre, sv.vertical)
	}
	acc.Stretch[OrderNormal] += sv.emergency
	return acc
}

// segBadness 求一段的填充比例与 badness。没有任何伸长量的欠满段
// 在精确贴合之外一律视为无限糟糕（比例记 0，badness 记 InfBad）。
func segBadness(acc GlueAcc, target float64) (ratio float64, order Order, b float64, fits bool) {
	ratio, order, fits = acc.Ratio(target)
	if !fits {
		return ratio, order, awfulBad, false
	}
	b = Badness(ratio, order)
	if b == 0 && ratio == 0 && acc.Natural != target {
		b = InfBad
	}
	return ratio, order, b, true
}

// breakDemerits 计算单个断点的 demerits：(LinePenalty+badness)² 加罚分项。
// 强制断点不计罚分项。
func (sv *solver) breakDemerits(b, pen float64, forced bool) float64 {
	d := sv.params.LinePenalty + b
	d = d * d
	switch {
	case forced:
	case pen > 0:
		d += pen * pen
	case pen < 0:
		d -= pen * pen
	}
	if d < 0 {
		d = 0
	}
	return d
}

// run 执行一遍搜索。失败时返回 errPassFailed 供上层逐级放宽。
func (sv *solver) run(pc passConfig) (*Solution, error) {
	sv.tolerance = pc.tolerance
	sv.emergency = pc.emergency
	sv.final = pc.final
	sv.actives = []active{{pos: -1, start: 0, fit: FitNormal, passive: -1}}
	sv.passives = sv.passives[:0]

	for i := range sv.stream.Nodes {
		bi := sv.breakAt(i)
		if !bi.legal {
			continue
		}
		if err := sv.tryBreak(i, bi); err != nil {
			return nil, err
		}
	}

	// 流以强制罚分结尾，此时所有存活条目都终于最后一个节点。
	lastPos := sv.stream.Len() - 1
	bestIdx := -1
	for idx := range sv.actives {
		a := &sv.actives[idx]
		if a.pos != lastPos {
			continue
		}
		if bestIdx == -1 {
			bestIdx = idx
			continue
		}
		b := &sv.actives[bestIdx]
		// 平局规则：demerits 相同则段数更少者胜。
		if a.demerits < b.demerits || (a.demerits == b.demerits && a.line < b.line) {
			bestIdx = idx
		}
	}
	if bestIdx == -1 {
		return nil, errPassFailed
	}
	return sv.extract(sv.actives[bestIdx], pc.pass)
}

// tryBreak 让每个活动条目尝试在 i 处断开：可行者按松紧档位竞争产生新
// 条目，段已超限者被移除。最后一搏中若活动集即将清空，则以 demerits
// 最小的被移除路径为前驱强制断开，产生一个超限段并留待事后诊断。
func (sv *solver) tryBreak(i int, bi breakInfo) error {
	type candidate struct {
		ok       bool
		demerits float64
		line     int
		prev     int
		ratio    float64
		order    Order
	}
	var best [4]candidate

	var lastResort struct {
		ok    bool
		entry active
		ratio float64
		order Order
	}

	remaining := sv.actives[:0]
	for idx := range sv.actives {
		a := sv.actives[idx]
		target := sv.target(a.line + 1)
		if target <= 0 {
			return fmt.Errorf("typeset: 第 %d 段目标尺寸非正（%g）", a.line+1, target)
		}
		acc := sv.segAcc(&a, i, bi.disc)
		ratio, order, b, fits := segBadness(acc, target)
		overfull := !fits

		if b <= sv.tolerance {
			d := a.demerits + sv.breakDemerits(b, bi.penalty, bi.forced)
			if bi.disc && a.discBreak {
				d += sv.params.DoubleBreakDemerits
			}
			f := FitnessOf(ratio, order)
			if fitnessJump(f, a.fit) > 1 {
				d += sv.params.FitnessDemerits
			}
			line := a.line + 1
			c := &best[f]
			if !c.ok || d < c.demerits || (d == c.demerits && line < c.line) {
				*c = candidate{ok: true, demerits: d, line: line, prev: a.passive, ratio: ratio, order: order}
			}
		}

		if overfull || bi.forced {
			// 被移除：从本条目起始的段已无法修复（或强制断点令其失效）。
			if !lastResort.ok || a.demerits < lastResort.entry.demerits {
				lastResort.ok = true
				lastResort.entry = a
				lastResort.ratio = ratio
				lastResort.order = order
			}
			continue
		}
		remaining = append(remaining, a)
	}
	sv.actives = remaining

	created := false
	for f := Fitness(0); f < 4; f++ {
		c := &best[f]
		if !c.ok {
			continue
		}
		sv.spawn(i, bi, c.line, f, c.demerits, c.prev, c.ratio, c.order)
		created = true
	}

	if len(sv.actives) == 0 && !created {
		if !sv.final || !lastResort.ok {
			// 本遍就此失败；留空活动集让 run 返回 errPassFailed。
			return nil
		}
		a := lastResort.entry
		sv.spawn(i, bi, a.line+1, FitTight, a.demerits, a.passive, lastResort.ratio, lastResort.order)
	}
	return nil
}

// spawn 追加 passive 记录并创建对应的活动条目。
func (sv *solver) spawn(i int, bi breakInfo, line int, f Fitness, demerits float64, prev int, ratio float64, order Order) {
	sv.passives = append(sv.passives, passive{pos: i, prev: prev, line: line, fit: f, ratio: ratio, order: order})
	post := 0.0
	if bi.disc {
		post = naturalSize(sv.stream.Nodes[i].Post, sv.vertical)
	}
	sv.actives = append(sv.actives, active{
		pos:         i,
		start:       sv.segStart(i),
		postNatural: post,
		line:        line,
		fit:         f,
		demerits:    demerits,
		passive:     len(sv.passives) - 1,
		discBreak:   bi.disc,
	})
}

// extract 沿 passive 链回走，重建段序列并生成事后诊断。
// 链出现环说明内部不变式已被破坏，终止本次求解。
func (sv *solver) extract(winner active, pass int) (*Solution, error) {
	chain := make([]int, 0, winner.line)
	for idx, steps := winner.passive, 0; idx != -1; idx = sv.passives[idx].prev {
		steps++
		if steps > len(sv.passives) {
			return nil, fmt.Errorf("typeset: passive 记录链成环（%d 条记录）", len(sv.passives))
		}
		chain = append(chain, idx)
	}
	// 反转为正序。
	for l, r := 0, len(chain)-1; l < r; l, r = l+1, r-1 {
		chain[l], chain[r] = chain[r], chain[l]
	}

	sol := &Solution{Pass: pass, Demerits: winner.demerits}
	prevPos := -1
	prevEntry := active{pos: -1, start: 0, passive: -1}
	for segNo, idx := range chain {
		p := sv.passives[idx]
		seg := Segment{
			Start:   prevPos + 1,
			End:     p.pos + 1,
			Ratio:   p.ratio,
			Order:   p.order,
			Fitness: p.fit,
		}
		sol.Segments = append(sol.Segments, seg)
		sv.diagnose(sol, segNo+1, &prevEntry, p.pos, pass)

		prevPos = p.pos
		bi := sv.breakAt(p.pos)
		post := 0.0
		if bi.disc {
			post = naturalSize(sv.stream.Nodes[p.pos].Post, sv.vertical)
		}
		prevEntry = active{pos: p.pos, start: sv.segStart(p.pos), postNatural: post, line: p.line, discBreak: bi.disc}
	}
	return sol, nil
}

// diagnose 对已选定的段做事后体检：超限段记录溢出量，badness 超过首遍
// 容忍度的段记录欠满告知。诊断不参与任何决策。
func (sv *solver) diagnose(sol *Solution, segNo int, prev *active, pos int, pass int) {
	bi := sv.breakAt(pos)
	acc := sv.segAcc(prev, pos, bi.disc)
	target := sv.target(segNo)
	_, _, b, fits := segBadness(acc, target)
	seg := sol.Segments[len(sol.Segments)-1]
	if !fits {
		overflow := acc.Natural - acc.Shrink[OrderNormal] - target
		sol.Diags = append(sol.Diags, Diag{
			Kind: DiagOverfull, Pass: pass, Segment: segNo,
			Start: seg.Start, End: seg.End, Overflow: overflow, Badness: awfulBad,
		})
		return
	}
	if b > sv.params.Tolerance {
		sol.Diags = append(sol.Diags, Diag{
			Kind: DiagUnderfull, Pass: pass, Segment: segNo,
			Start: seg.Start, End: seg.End, Badness: b,
		})
	}
}
