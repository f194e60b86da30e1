package canvasrenderer

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/pdf"

	"github.com/ByLCY/galley/fonts"
	"github.com/ByLCY/galley/layout"
	"github.com/ByLCY/galley/renderer"
)

const tableBorderWidth = 0.2

// Renderer draws layout results via github.com/tdewolff/canvas.
// 同时实现 layout.Metrics，为断行求解提供真实的字体度量。
type Renderer struct {
	baseDir string

	// injected resources
	fontBlobs  map[string][]byte // by unique name
	imageBlobs map[string][]byte // by unique name

	fontMu         sync.Mutex
	fontFamilies   map[string]*fontFamilyEntry
	fontFaces      map[string]*canvas.FontFace
	fallbackFamily *canvas.FontFamily
}

var (
	_ renderer.Renderer = (*Renderer)(nil)
	_ layout.Metrics    = (*Renderer)(nil)
)

type fontFamilyEntry struct {
	family *canvas.FontFamily
	style  canvas.FontStyle
}

// Options configures the canvas renderer.
type Options struct {
	BaseDir string
	Fonts   map[string]Resource // built-in fonts accessible via built-in:<name>
	Images  map[string]Resource // built-in images accessible via built-in:<name>
}

// Resource can be provided either by Bytes or by Path.
type Resource struct {
	Bytes []byte
	Path  string
}

// NewRenderer creates a canvas-based renderer rooted at baseDir for resolving assets.
func NewRenderer(baseDir string) *Renderer { return NewRendererWithOptions(Options{BaseDir: baseDir}) }

// NewRendererWithOptions creates a renderer with injected resources and optional baseDir.
func NewRendererWithOptions(opts Options) *Renderer {
	r := &Renderer{
		baseDir:        opts.BaseDir,
		fontBlobs:      map[string][]byte{},
		imageBlobs:     map[string][]byte{},
		fontFamilies:   map[string]*fontFamilyEntry{},
		fontFaces:      map[string]*canvas.FontFace{},
		fallbackFamily: nil,
	}
	// ingest fonts
	for name, res := range opts.Fonts {
		if name == "" {
			continue
		}
		if len(res.Bytes) > 0 {
			r.fontBlobs[name] = res.Bytes
			continue
		}
		if res.Path != "" {
			data, _ := os.ReadFile(res.Path) // ignore error here; will be caught when actually used
			if len(data) > 0 {
				r.fontBlobs[name] = data
			}
		}
	}
	// ingest images
	for name, res := range opts.Images {
		if name == "" {
			continue
		}
		if len(res.Bytes) > 0 {
			r.imageBlobs[name] = res.Bytes
			continue
		}
		if res.Path != "" {
			data, _ := os.ReadFile(res.Path)
			if len(data) > 0 {
				r.imageBlobs[name] = data
			}
		}
	}
	return r
}

// Render renders the result into a PDF byte slice.
func (r *Renderer) Render(result *layout.Result) ([]byte, error) {
	if result == nil {
		return nil, fmt.Errorf("渲染结果为空")
	}
	if len(result.Pages) == 0 {
		return nil, fmt.Errorf("缺少可渲染的页面")
	}

	var buf bytes.Buffer
	writer := pdf.New(&buf, result.Pages[0].Width, result.Pages[0].Height, nil)
	r.applyMeta(writer, result.Meta)
	for i, page := range result.Pages {
		if i > 0 {
			writer.NewPage(page.Width, page.Height)
		}
		c := canvas.New(page.Width, page.Height)
		ctx := canvas.NewContext(c)
		ctx.SetCoordSystem(canvas.CartesianIV) // 使坐标与布局保持左上角为原点

		if err := r.drawPage(ctx, page, result.Resources); err != nil {
			return nil, err
		}
		c.RenderTo(writer)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("写入 PDF 失败: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) applyMeta(writer *pdf.PDF, meta layout.DocumentMeta) {
	if writer == nil {
		return
	}
	keywords := strings.Join(meta.Keywords, ", ")
	writer.SetInfo(meta.Title, meta.Subject, keywords, meta.Author, meta.Creator)
}

// Advance 实现 layout.Metrics。入参字号为 mm，返回字符前进宽度（mm）。
func (r *Renderer) Advance(font layout.FontResource, size float64, ch rune) float64 {
	face, err := r.metricsFace(font, size)
	if err != nil {
		// 字体不可用时退回粗略估计，布局仍可继续，渲染阶段会报告真实错误
		return size * 0.5
	}
	return face.TextWidth(string(ch))
}

// Kern 返回 prev/next 之间的字距调整量（mm），无调整返回 0。
func (r *Renderer) Kern(font layout.FontResource, size float64, prev, next rune) float64 {
	face, err := r.metricsFace(font, size)
	if err != nil {
		return 0
	}
	pair := face.TextWidth(string([]rune{prev, next}))
	k := pair - face.TextWidth(string(prev)) - face.TextWidth(string(next))
	if k > -1e-6 && k < 1e-6 {
		return 0
	}
	return k
}

// LineMetrics 返回给定字号下的上升部与下降部（mm）。
func (r *Renderer) LineMetrics(font layout.FontResource, size float64) (float64, float64) {
	face, err := r.metricsFace(font, size)
	if err != nil {
		return size * 0.8, size * 0.2
	}
	m := face.Metrics()
	return m.Ascent, m.Descent
}

// metricsFace 返回用于度量的字体面。度量与颜色无关，统一用黑色创建并按 (字体,字号) 缓存。
func (r *Renderer) metricsFace(font layout.FontResource, size float64) (*canvas.FontFace, error) {
	key := fmt.Sprintf("%s|%.4f", fontCacheKey(font), size)
	r.fontMu.Lock()
	if face, ok := r.fontFaces[key]; ok {
		r.fontMu.Unlock()
		return face, nil
	}
	r.fontMu.Unlock()

	face, err := r.fontFace(font, toPt(size), layout.Color{})
	if err != nil {
		return nil, err
	}
	r.fontMu.Lock()
	r.fontFaces[key] = face
	r.fontMu.Unlock()
	return face, nil
}

func (r *Renderer) drawPage(ctx *canvas.Context, page layout.Page, resources layout.ResourceSet) error {
	// 先绘制页眉（先形状作为背景，再文本/图片）
	if err := r.drawLines(ctx, page.Header.Lines); err != nil {
		return err
	}
	if err := r.drawRects(ctx, page.Header.Rects); err != nil {
		return err
	}
	if err := r.drawCircles(ctx, page.Header.Circles); err != nil {
		return err
	}
	for _, tb := range page.Header.Texts {
		fontRes := resolveFontResource(tb.Font, resources.Fonts)
		if err := r.drawTextBox(ctx, tb, fontRes); err != nil {
			return err
		}
	}
	if err := r.drawImages(ctx, page.Header.Images); err != nil {
		return err
	}

	// 背景形状（线、矩形、圆）在主体内容之前绘制
	if err := r.drawLines(ctx, page.Lines); err != nil {
		return err
	}
	if err := r.drawRects(ctx, page.Rects); err != nil {
		return err
	}
	if err := r.drawCircles(ctx, page.Circles); err != nil {
		return err
	}

	// 绘制主体内容
	for _, textBox := range page.Texts {
		fontRes := resolveFontResource(textBox.Font, resources.Fonts)
		if err := r.drawTextBox(ctx, textBox, fontRes); err != nil {
			return err
		}
	}
	if err := r.drawImages(ctx, page.Images); err != nil {
		return err
	}
	if err := r.drawTables(ctx, page.Tables, resources.Fonts); err != nil {
		return err
	}

	// 最后绘制页脚（先形状作为背景，再文本与图片）
	if err := r.drawLines(ctx, page.Footer.Lines); err != nil {
		return err
	}
	if err := r.drawRects(ctx, page.Footer.Rects); err != nil {
		return err
	}
	if err := r.drawCircles(ctx, page.Footer.Circles); err != nil {
		return err
	}
	for _, tb := range page.Footer.Texts {
		fontRes := resolveFontResource(tb.Font, resources.Fonts)
		if err := r.drawTextBox(ctx, tb, fontRes); err != nil {
			return err
		}
	}
	if err := r.drawImages(ctx, page.Footer.Images); err != nil {
		return err
	}
	return nil
}

func (r *Renderer) drawTextBox(ctx *canvas.Context, tb layout.TextBox, fontRes layout.FontResource) error {
	// TextBox 的坐标/字号/行高均为 mm；创建字体面需要 pt，这里做一次 mm→pt。
	face, err := r.fontFace(fontRes, toPt(tb.FontSize), tb.Color)
	if err != nil {
		return err
	}

	lines := tb.Lines
	if len(lines) == 0 {
		lines = []layout.TextLine{
			{
				Content: tb.Content,
				Width:   tb.Width,
				Height:  tb.LineHeight,
			},
		}
	}

	align := strings.ToLower(tb.Align)
	metrics := face.Metrics()

	cursorY := tb.Y
	for _, line := range lines {
		cursorY += line.GapBefore

		lineHeight := line.Height
		if lineHeight <= 0 {
			if tb.FontSize > 0 {
				lineHeight = tb.FontSize
			} else {
				lineHeight = tb.LineHeight
			}
		}

		// 基线位置：以行顶部（cursorY，mm）加上字体上升部（Ascent）
		baseline := cursorY + metrics.Ascent

		if len(line.Words) > 0 {
			// 断行求解已经给出词内偏移；居中/右对齐只需平移未充满的行
			offset := 0.0
			if slack := line.Width - line.Natural; slack > 0 {
				switch align {
				case "center":
					offset = slack / 2
				case "right", "end":
					offset = slack
				}
			}
			for _, w := range line.Words {
				textLine := canvas.NewTextLine(face, w.Text, canvas.Left)
				ctx.DrawText(tb.X+offset+w.X, baseline, textLine)
			}
		} else if line.Content != "" {
			var textAlign canvas.TextAlign
			var anchorX float64
			switch align {
			case "center":
				textAlign = canvas.Center
				anchorX = tb.X + tb.Width/2
			case "right", "end":
				textAlign = canvas.Right
				anchorX = tb.X + tb.Width
			default:
				textAlign = canvas.Left
				anchorX = tb.X
			}
			textLine := canvas.NewTextLine(face, line.Content, textAlign)
			ctx.DrawText(anchorX, baseline, textLine)
		}
		cursorY += lineHeight
	}
	return nil
}

func (r *Renderer) drawImages(ctx *canvas.Context, images []layout.ImageBox) error {
	for _, img := range images {
		if img.Path == "" {
			continue
		}
		orig := img.Path
		var (
			imgData image.Image
			err     error
		)
		// built-in resources take precedence
		if strings.HasPrefix(orig, "built-in:") || strings.HasPrefix(orig, "builtin:") {
			name := strings.TrimPrefix(strings.TrimPrefix(orig, "built-in:"), "builtin:")
			blob, ok := r.imageBlobs[name]
			if !ok {
				return fmt.Errorf("找不到内置图片资源 built-in:%s", name)
			}
			imgData, _, err = image.Decode(bytes.NewReader(blob))
			if err != nil {
				return fmt.Errorf("解码内置图片 built-in:%s 失败: %w", name, err)
			}
		} else {
			// path based
			if r.baseDir == "" && !filepath.IsAbs(orig) {
				return fmt.Errorf("未指定资源目录时不允许直接使用路径：%s（请改用 built-in:）", orig)
			}
			path := orig
			if !filepath.IsAbs(path) {
				path = filepath.Join(r.baseDir, path)
			}
			file, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("读取图片 %s 失败: %w", orig, err)
			}
			imgData, _, err = image.Decode(file)
			file.Close()
			if err != nil {
				return fmt.Errorf("解码图片 %s 失败: %w", orig, err)
			}
		}

		width := img.Width
		if width <= 0 {
			if imgData.Bounds().Dx() > 0 {
				width = float64(imgData.Bounds().Dx()) / 4.0
			} else {
				width = 40.0
			}
		}
		dpmm := float64(imgData.Bounds().Dx()) / width
		if dpmm <= 0 {
			dpmm = 1
		}
		ctx.DrawImage(img.X, img.Y, imgData, canvas.DPMM(dpmm))
	}
	return nil
}

func (r *Renderer) drawTables(ctx *canvas.Context, tables []layout.TableBox, fonts map[string]layout.FontResource) error {
	for _, table := range tables {
		if len(table.ColumnWidths) == 0 {
			continue
		}
		for _, row := range table.Rows {
			x := table.X
			for idx, cell := range row.Cells {
				colIdx := idx
				if colIdx >= len(table.ColumnWidths) {
					colIdx = len(table.ColumnWidths) - 1
				}
				colWidth := table.ColumnWidths[colIdx]
				fill := canvas.White
				if row.IsHeader {
					fill = canvas.Hex("#f8f8f8")
				}
				ctx.SetFillColor(fill)
				ctx.SetStrokeColor(colorFromLayout(table.BorderColor))
				ctx.SetStrokeWidth(tableBorderWidth)
				ctx.DrawPath(x, row.Y, canvas.Rectangle(colWidth, row.Height))

				fontRes := resolveFontResource(cell.Text.Font, fonts)
				textBox := cell.Text
				textBox.X += tableBorderWidth
				textBox.Y += tableBorderWidth
				if err := r.drawTextBox(ctx, textBox, fontRes); err != nil {
					return err
				}
				x += colWidth
			}
		}
	}
	return nil
}

// drawLines 绘制直线列表（毫米单位）
func (r *Renderer) drawLines(ctx *canvas.Context, lines []layout.Line) error {
	for _, ln := range lines {
		w := ln.Width
		if w <= 0 {
			w = tableBorderWidth
		}
		ctx.SetStrokeColor(colorFromLayout(ln.Color))
		ctx.SetStrokeWidth(w)
		p := &canvas.Path{}
		p.MoveTo(0, 0)
		p.LineTo(ln.X2-ln.X1, ln.Y2-ln.Y1)
		ctx.DrawPath(ln.X1, ln.Y1, p)
	}
	return nil
}

// drawRects 绘制矩形
func (r *Renderer) drawRects(ctx *canvas.Context, rects []layout.Rect) error {
	for _, rc := range rects {
		w := rc.StrokeWidth
		if w <= 0 {
			w = tableBorderWidth
		}
		if rc.FillColor != nil {
			ctx.SetFillColor(colorFromLayout(*rc.FillColor))
		} else {
			ctx.SetFillColor(color.RGBA{0, 0, 0, 0})
		}
		ctx.SetStrokeColor(colorFromLayout(rc.StrokeColor))
		ctx.SetStrokeWidth(w)
		ctx.DrawPath(rc.X, rc.Y, canvas.Rectangle(rc.Width, rc.Height))
	}
	return nil
}

// drawCircles 绘制圆形
func (r *Renderer) drawCircles(ctx *canvas.Context, circles []layout.Circle) error {
	for _, c := range circles {
		w := c.StrokeWidth
		if w <= 0 {
			w = tableBorderWidth
		}
		if c.FillColor != nil {
			ctx.SetFillColor(colorFromLayout(*c.FillColor))
		} else {
			ctx.SetFillColor(color.RGBA{0, 0, 0, 0})
		}
		ctx.SetStrokeColor(colorFromLayout(c.StrokeColor))
		ctx.SetStrokeWidth(w)
		ctx.DrawPath(c.CX-c.R, c.CY-c.R, canvas.Circle(c.R))
	}
	return nil
}

func (r *Renderer) fontFace(font layout.FontResource, size float64, col layout.Color) (*canvas.FontFace, error) {
	family, style, err := r.ensureFontFamily(font)
	if err != nil {
		return nil, err
	}
	return family.Face(size, colorFromLayout(col), style, canvas.FontNormal), nil
}

func (r *Renderer) ensureFontFamily(font layout.FontResource) (*canvas.FontFamily, canvas.FontStyle, error) {
	key := fontCacheKey(font)
	r.fontMu.Lock()
	defer r.fontMu.Unlock()

	if entry, ok := r.fontFamilies[key]; ok {
		return entry.family, entry.style, nil
	}

	style := parseFontStyle(font.Style)
	familyName := font.Family
	if familyName == "" {
		familyName = font.Name
	}
	if familyName == "" {
		familyName = "Body"
	}
	family := canvas.NewFontFamily(familyName)

	if err := r.loadFontIntoFamily(family, font, style); err != nil {
		fallback, fbStyle, fbErr := r.fallback()
		if fbErr != nil {
			return nil, canvas.FontRegular, err
		}
		r.fontFamilies[key] = &fontFamilyEntry{family: fallback, style: fbStyle}
		return fallback, fbStyle, nil
	}

	entry := &fontFamilyEntry{family: family, style: style}
	r.fontFamilies[key] = entry
	return family, style, nil
}

func (r *Renderer) loadFontIntoFamily(family *canvas.FontFamily, font layout.FontResource, style canvas.FontStyle) error {
	data, err := r.loadFontBytes(font)
	if err != nil {
		return err
	}
	return family.LoadFont(data, 0, style)
}

func (r *Renderer) loadFontBytes(font layout.FontResource) ([]byte, error) {
	if font.Src == "" {
		return nil, fmt.Errorf("字体 %s 缺少 src", font.Name)
	}
	src := font.Src
	if strings.HasPrefix(src, "built-in:") || strings.HasPrefix(src, "builtin:") {
		name := strings.TrimPrefix(strings.TrimPrefix(src, "built-in:"), "builtin:")
		if blob, ok := r.fontBlobs[name]; ok {
			return blob, nil
		}
		// 其次查全局字体注册表
		if font.Base != "" {
			name = font.Base
		}
		data, err := fonts.Load(name)
		if err != nil {
			return nil, fmt.Errorf("找不到内置字体资源 built-in:%s: %w", name, err)
		}
		return data, nil
	}
	// Path based
	path := src
	if r.baseDir == "" && !filepath.IsAbs(path) {
		return nil, fmt.Errorf("未指定资源目录时不允许直接使用字体路径：%s（请改用 built-in:）", src)
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(r.baseDir, path)
	}
	return os.ReadFile(path)
}

func (r *Renderer) fallback() (*canvas.FontFamily, canvas.FontStyle, error) {
	if r.fallbackFamily != nil {
		return r.fallbackFamily, canvas.FontRegular, nil
	}
	// 任选注册表中第一个可加载的字体作为兜底
	var data []byte
	var err error
	for _, name := range fonts.Names() {
		if data, err = fonts.Load(name); err == nil {
			break
		}
	}
	if len(data) == 0 {
		if err == nil {
			err = fmt.Errorf("字体注册表为空，无可用兜底字体")
		}
		return nil, canvas.FontRegular, err
	}
	family := canvas.NewFontFamily("galley-fallback")
	if err := family.LoadFont(data, 0, canvas.FontRegular); err != nil {
		return nil, canvas.FontRegular, err
	}
	r.fallbackFamily = family
	return family, canvas.FontRegular, nil
}

func resolveFontResource(name string, fonts map[string]layout.FontResource) layout.FontResource {
	if font, ok := fonts[name]; ok {
		return font
	}
	if font, ok := fonts["Body"]; ok {
		return font
	}
	for _, font := range fonts {
		return font
	}
	return layout.FontResource{}
}

func parseFontStyle(style string) canvas.FontStyle {
	if style == "" {
		return canvas.FontRegular
	}
	s := strings.ToLower(style)
	result := canvas.FontRegular
	switch {
	case strings.Contains(s, "black"):
		result = canvas.FontBlack
	case strings.Contains(s, "extrabold"):
		result = canvas.FontExtraBold
	case strings.Contains(s, "bold"):
		result = canvas.FontBold
	case strings.Contains(s, "semibold"), strings.Contains(s, "demibold"):
		result = canvas.FontSemiBold
	case strings.Contains(s, "medium"):
		result = canvas.FontMedium
	case strings.Contains(s, "light"):
		result = canvas.FontLight
	default:
		result = canvas.FontRegular
	}
	if strings.Contains(s, "italic") || strings.Contains(s, "oblique") || strings.Contains(style, "I") {
		result |= canvas.FontItalic
	}
	if strings.Contains(style, "B") && !strings.Contains(s, "bold") {
		result = canvas.FontBold | (result & canvas.FontItalic)
	}
	return result
}

func fontCacheKey(font layout.FontResource) string {
	return fmt.Sprintf("%s|%s|%s", font.Name, font.Src, font.Style)
}

func colorFromLayout(c layout.Color) color.Color {
	return canvas.RGBA(float64(c.R)/255.0, float64(c.G)/255.0, float64(c.B)/255.0, 1.0)
}

// toPt 将毫米(mm)转换为点(pt)。
func toPt(mm float64) float64 { return mm * layout.MmToPt }

// toMm 将点(pt)转换为毫米(mm)。
func toMm(pt float64) float64 { return pt * layout.PtToMm }
