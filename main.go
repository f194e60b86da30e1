package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/ByLCY/galley/dsl"
	"github.com/ByLCY/galley/fonts"
	"github.com/ByLCY/galley/layout"
	"github.com/ByLCY/galley/renderer"
	canvasrenderer "github.com/ByLCY/galley/renderer/canvas"
)

// fontList 收集可重复的 -font name=path 参数。
type fontList []string

func (f *fontList) String() string { return strings.Join(*f, ",") }

func (f *fontList) Set(v string) error {
	*f = append(*f, v)
	return nil
}

func main() {
	input := flag.String("in", "examples/demo.galley", "DSL 文件路径")
	output := flag.String("out", "output/demo.pdf", "PDF 输出路径")
	debug := flag.String("debug", "", "布局调试 JSON 输出路径")
	dataJSON := flag.String("data", "", "绑定到 DSL 的 JSON 数据")
	workers := flag.Int("workers", 0, "并行断行的工作协程数，0 表示串行")
	var fontArgs fontList
	flag.Var(&fontArgs, "font", "登记字体，格式 name=path，可重复")
	flag.Parse()

	for _, arg := range fontArgs {
		name, path, ok := strings.Cut(arg, "=")
		if !ok || name == "" || path == "" {
			log.Fatalf("无效的 -font 参数 %q（应为 name=path）", arg)
		}
		fonts.Register(name, path)
	}

	var inputData any
	if *dataJSON != "" {
		if err := json.Unmarshal([]byte(*dataJSON), &inputData); err != nil {
			log.Fatalf("解析 data JSON 失败: %v", err)
		}
	}

	cr := canvasrenderer.NewRenderer(filepath.Dir(*input))
	if err := run(*input, *output, *debug, inputData, *workers, cr, cr); err != nil {
		log.Fatalf("生成 PDF 失败: %v", err)
	}
	fmt.Printf("已生成 PDF：%s\n", *output)
}

// run 串联解析、布局与渲染。渲染器同时充当布局阶段的字体度量来源。
func run(inputPath, outputPath, debugPath string, data any, workers int, m layout.Metrics, r renderer.Renderer) error {
	if m == nil || r == nil {
		return fmt.Errorf("metrics 与 renderer 不能为空")
	}
	file, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("无法打开 DSL 文件 %s: %w", inputPath, err)
	}
	defer file.Close()

	doc, err := dsl.Parse(file)
	if err != nil {
		return fmt.Errorf("解析 DSL 失败: %w", err)
	}

	result, err := layout.Build(doc, data, layout.BuildOptions{
		Metrics:    m,
		Hyphenator: layout.BasicHyphenator{},
		Workers:    workers,
	})
	if err != nil {
		return fmt.Errorf("布局计算失败: %w", err)
	}
	for _, d := range result.Diags {
		log.Printf("排版诊断: %s", d)
	}

	if debugPath != "" {
		if err := writeDebug(result, debugPath); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}

	pdfBytes, err := r.Render(result)
	if err != nil {
		return fmt.Errorf("渲染 PDF 失败: %w", err)
	}
	if err := os.WriteFile(outputPath, pdfBytes, 0o644); err != nil {
		return fmt.Errorf("写入 PDF 文件失败: %w", err)
	}

	return nil
}

func writeDebug(result *layout.Result, debugPath string) error {
	if err := os.MkdirAll(filepath.Dir(debugPath), 0o755); err != nil {
		return fmt.Errorf("创建调试目录失败: %w", err)
	}
	if err := layout.WriteDebugJSON(result, debugPath); err != nil {
		return fmt.Errorf("输出调试 JSON 失败: %w", err)
	}
	return nil
}
