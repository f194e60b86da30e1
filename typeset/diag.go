package typeset

import "fmt"

// 该文件定义求解过程的告知性诊断。诊断只供日志/报告消费，
// 绝不反过来影响断点决策。

// DiagKind 区分诊断类别。
type DiagKind int

const (
	// DiagSecondPass：首遍无可行路径，已放宽容忍度重试。
	DiagSecondPass DiagKind = iota
	// DiagEmergencyPass：前两遍均失败，已附加紧急伸长量做最后一搏。
	DiagEmergencyPass
	// DiagOverfull：某段超出目标且收缩量不足，已在最佳可用断点强制断开。
	DiagOverfull
	// DiagUnderfull：某段 badness 超过容忍度仍被采纳（仅放宽遍会出现）。
	DiagUnderfull
)

// Diag 是一条告知性诊断记录。
type Diag struct {
	Kind     DiagKind
	Pass     int     // 产生诊断的遍数（1/2/3）
	Segment  int     // 第几段（从 1 计；对整次求解的诊断为 0）
	Start    int     // 问题段的内容范围 [Start, End)
	End      int
	Overflow float64 // Overfull 时超出目标的量（mm）
	Badness  float64 // 该段的 badness
}

// String 供日志输出。
func (d Diag) String() string {
	switch d.Kind {
	case DiagSecondPass:
		return "第 1 遍无可行断点，已放宽容忍度重试"
	case DiagEmergencyPass:
		return "第 2 遍仍无可行断点，已附加紧急伸长量"
	case DiagOverfull:
		return fmt.Sprintf("第 %d 段 [%d,%d) 超出目标 %.3fmm，已强制断开", d.Segment, d.Start, d.End, d.Overflow)
	case DiagUnderfull:
		return fmt.Sprintf("第 %d 段 [%d,%d) badness=%.0f 超过容忍度", d.Segment, d.Start, d.End, d.Badness)
	default:
		return fmt.Sprintf("未知诊断（kind=%d）", int(d.Kind))
	}
}
