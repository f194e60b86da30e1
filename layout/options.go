package layout

import "github.com/ByLCY/galley/typeset"

// Metrics 提供布局所需的字体度量。实现方（通常是渲染器）负责按
// 字体资源与字号（mm）给出字符前进宽、字距与行度量，单位均为 mm。
type Metrics interface {
	// Advance 返回单个字符的前进宽度。
	Advance(font FontResource, size float64, r rune) float64
	// Kern 返回 prev 与 next 之间的字距修正，无修正时返回 0。
	Kern(font FontResource, size float64, prev, next rune) float64
	// LineMetrics 返回上伸与下沉高度。
	LineMetrics(font FontResource, size float64) (ascent, descent float64)
}

// Ligaturer 是 Metrics 的可选扩展：若实现，布局会在成对字符可连字时
// 用单个连字字形替换。
type Ligaturer interface {
	Ligature(font FontResource, size float64, a, b rune) (lig rune, width float64, ok bool)
}

// Hyphenator 返回一个单词（rune 序列）内允许断字的位置下标。
// 返回空切片表示该词不可断。
type Hyphenator interface {
	Hyphenate(word []rune) []int
}

// BuildOptions 控制布局构建行为。
type BuildOptions struct {
	// Metrics 不可为空。
	Metrics Metrics
	// Hyphenator 为空时不做词内断字。
	Hyphenator Hyphenator
	// Params 为零值时使用 typeset.DefaultParams()；文档内的 params
	// 段落可在此基础上继续覆盖。
	Params typeset.Params
	// Workers 限制并行求解段落的 goroutine 数，<=0 表示逐段串行。
	Workers int
}
