package typeset

import "math"

// 该文件定义节点流数据模型：封闭的标签联合 + 单一 arena 的有序切片。
// 交叉引用一律使用索引而非指针，求解器的大量回溯不会产生悬垂引用。

// Kind 标记节点类型。
type Kind uint8

const (
	KindChar    Kind = iota // 字符字形
	KindLig                 // 连字（记录被替换的原字符，便于回溯）
	KindKern                // 固定附加间距
	KindGlue                // 可伸缩空白
	KindPenalty             // 断点罚分
	KindDisc                // 自由断点（如连字符断词机会）
	KindBox                 // 外尺寸固定的嵌套子流
	KindRule                // 实心矩形
)

// 罚分哨兵：+InfPenalty 禁止断点，-InfPenalty（及更小）强制断点。
const InfPenalty = 10000.0

// Running 表示 Rule 的“随动”尺寸：由外层上下文决定，随包含盒的尺寸伸展。
var Running = math.Inf(-1)

// Node 是封闭和类型：每个节点只填充与其 Kind 对应的字段。
// 以平铺结构体置于 arena 中，遍历用 Kind switch 保持穷尽。
type Node struct {
	Kind Kind

	// Char / Lig / Kern / Box / Rule 共用的几何量。
	// Kern 只用 Width；竖直方向上 Box/Rule 的占位为 Height+Depth。
	Glyph  rune
	Width  float64
	Height float64
	Depth  float64

	// Lig：被连字替换的原字符序列。
	Orig []rune

	// Kern：true 表示来自字体（连字/字距），绝不构成断点；false 为显式间距。
	FromFont bool

	// Glue：共享的不可变 spec。
	Glue *GlueSpec

	// Penalty：断点代价；±InfPenalty 为禁止/强制哨兵。
	Penalty float64

	// Disc：断点实现时取 Pre 结束本段、Post 开始下一段；不断则取 NoBreak。
	Pre, Post, NoBreak []Node

	// Box：嵌套子流与放置位移。
	Content  []Node
	Shift    float64
	Vertical bool
}

// Stream 是节点流：有序、按索引寻址，arena 即流本身。
type Stream struct {
	Nodes []Node
}

// Len 返回节点数。
func (s *Stream) Len() int { return len(s.Nodes) }

// Append 追加节点并返回其索引。
func (s *Stream) Append(n Node) int {
	s.Nodes = append(s.Nodes, n)
	return len(s.Nodes) - 1
}

// AppendChar 追加一个字符节点。
func (s *Stream) AppendChar(r rune, w, h, d float64) int {
	return s.Append(Node{Kind: KindChar, Glyph: r, Width: w, Height: h, Depth: d})
}

// AppendLig 追加一个连字节点。
func (s *Stream) AppendLig(r rune, orig []rune, w, h, d float64) int {
	return s.Append(Node{Kind: KindLig, Glyph: r, Orig: orig, Width: w, Height: h, Depth: d})
}

// AppendKern 追加一个 kern；fromFont 标记其来源。
func (s *Stream) AppendKern(amount float64, fromFont bool) int {
	return s.Append(Node{Kind: KindKern, Width: amount, FromFont: fromFont})
}

// AppendGlue 追加一个引用共享 spec 的 glue 节点。
func (s *Stream) AppendGlue(g *GlueSpec) int {
	return s.Append(Node{Kind: KindGlue, Glue: g})
}

// AppendPenalty 追加一个罚分节点。
func (s *Stream) AppendPenalty(p float64) int {
	return s.Append(Node{Kind: KindPenalty, Penalty: p})
}

// AppendDisc 追加一个自由断点。
func (s *Stream) AppendDisc(pre, post, noBreak []Node) int {
	return s.Append(Node{Kind: KindDisc, Pre: pre, Post: post, NoBreak: noBreak})
}

// AppendBox 追加一个外尺寸固定的盒节点。
func (s *Stream) AppendBox(content []Node, w, h, d, shift float64, vertical bool) int {
	return s.Append(Node{Kind: KindBox, Content: content, Width: w, Height: h, Depth: d, Shift: shift, Vertical: vertical})
}

// AppendRule 追加一个矩形；传 Running 表示该维随动。
func (s *Stream) AppendRule(w, h, d float64) int {
	return s.Append(Node{Kind: KindRule, Width: w, Height: h, Depth: d})
}

// advance 返回节点在断行方向上的自然占位。随动尺寸不计入（由包含盒决定）。
func advance(n *Node, vertical bool) float64 {
	switch n.Kind {
	case KindChar, KindLig, KindKern:
		return n.Width
	case KindBox, KindRule:
		if vertical {
			return runningZero(n.Height) + runningZero(n.Depth)
		}
		return runningZero(n.Width)
	default:
		return 0
	}
}

func runningZero(v float64) float64 {
	if v == Running {
		return 0
	}
	return v
}

// naturalSize 返回一段子流（disc 的备选材料等）的自然尺寸；内部 glue 只取自然值。
func naturalSize(nodes []Node, vertical bool) float64 {
	total := 0.0
	for i := range nodes {
		n := &nodes[i]
		if n.Kind == KindGlue {
			total += n.Glue.Natural
			continue
		}
		total += advance(n, vertical)
	}
	return total
}

// discardable 报告断点之后、下一段开头前会被丢弃的节点类型。
func discardable(k Kind) bool {
	return k == KindGlue || k == KindKern || k == KindPenalty
}

// breakAllowedBefore 报告 glue 断点的前置条件：前驱必须是不可丢弃的实体
// （字符、连字、盒或矩形——不能是另一个 glue/kern）。
func breakAllowedBefore(k Kind) bool {
	return k == KindChar || k == KindLig || k == KindBox || k == KindRule
}
