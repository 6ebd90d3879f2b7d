package report

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"

	"greenly-backend/internal/config"
	"greenly-backend/internal/model"
	"greenly-backend/pkg/logger"
)

// A4 纵向，单位 mm
const (
	pageMargin   = 15.0
	footerHeight = 15.0
	pageWidth    = 210.0
	pageHeight   = 297.0
	usableWidth  = pageWidth - 2*pageMargin
	usableHeight = pageHeight - 2*pageMargin - footerHeight

	imageBlockHeight    = 110.0 // 图片加说明文字的固定块高
	lineHeight          = 5.0
	sectionHeaderHeight = 12.0 // 节标题及其下方间距
	contentBottom       = pageHeight - pageMargin - footerHeight
)

// Meta 一次生成的产物信息
type Meta struct {
	Filename       string
	EstimatedPages int
	ActualPages    int
	Degraded       bool
}

// Input 报告生成的全部输入，调用方保证定价行项已经重算过
type Input struct {
	ResourceName        string
	ResourceDescription string
	SelectedItems       []model.SelectedItem
	Elements            []model.GreeningElement
	GrandTotal          string
	SimplePricing       string
}

// Generator 绿化报告的 PDF 渲染器
type Generator struct {
	cfg      config.ReportConfig
	resolver *imageResolver
}

func NewGenerator(cfg config.ReportConfig) *Generator {
	return &Generator{
		cfg:      cfg,
		resolver: newImageResolver(cfg.ImageTimeout),
	}
}

// Filename 报告文件名，按生成日期命名
func Filename(t time.Time) string {
	return fmt.Sprintf("greening-report-%s.pdf", t.Format("20060102"))
}

// Generate 渲染完整报告：概览页、图片页、消息页、定价页。
// 页脚的总页数以实际渲染结果为准。整体渲染失败时退化为
// 单页纯文本报告，调用方总能拿到一份可下载的文件
func (g *Generator) Generate(ctx context.Context, in Input) ([]byte, Meta, error) {
	images, messages := splitItems(in.SelectedItems)

	meta := Meta{
		Filename:       Filename(time.Now()),
		EstimatedPages: EstimatePages(len(images), len(messages), g.cfg.ImagesPerPage, g.cfg.MessagesPerPage),
	}

	data, pages, err := g.render(ctx, in, images, messages)
	if err != nil {
		logger.Errorf("Report render failed, falling back to text-only: %v", err)
		data, pages, err = g.renderDegraded(in, len(images), messages)
		if err != nil {
			return nil, meta, fmt.Errorf("render degraded report: %w", err)
		}
		meta.Degraded = true
	}

	meta.ActualPages = pages
	return data, meta, nil
}

func (g *Generator) render(ctx context.Context, in Input, images, messages []model.SelectedItem) (data []byte, pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("render panic: %v", r)
		}
	}()

	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(false, pageMargin+footerHeight)
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-footerHeight)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d of {nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	g.overviewPage(pdf, tr, in, len(images), len(messages))
	g.imagePages(ctx, pdf, tr, images)
	g.messagePages(pdf, tr, messages)
	g.pricingPage(pdf, tr, in)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, 0, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), pdf.PageCount(), nil
}

func (g *Generator) overviewPage(pdf *gofpdf.Fpdf, tr func(string) string, in Input, imageCount, messageCount int) {
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 24)
	pdf.SetTextColor(34, 102, 51)
	pdf.CellFormat(0, 14, tr("Greening Report"), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 14)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 8, tr(in.ResourceName), "", 1, "L", false, 0, "")

	if in.ResourceDescription != "" {
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(usableWidth, lineHeight, tr(in.ResourceDescription), "", "L", false)
	}
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(80, 80, 80)
	pdf.CellFormat(0, 6, "Generated: "+time.Now().Format("January 2, 2006"), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Selected images: %d", imageCount), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Selected messages: %d", messageCount), "", 1, "L", false, 0, "")
}

func (g *Generator) imagePages(ctx context.Context, pdf *gofpdf.Fpdf, tr func(string) string, images []model.SelectedItem) {
	if len(images) == 0 {
		return
	}

	blocks := make([]Block, len(images))
	for i, item := range images {
		blocks[i] = Block{Height: imageBlockHeight, Payload: item}
	}

	for _, page := range Paginate(blocks, usableHeight-sectionHeaderHeight) {
		pdf.AddPage()
		g.sectionHeader(pdf, "Selected Images")

		for _, b := range page.Blocks {
			item := b.Payload.(model.SelectedItem)
			g.drawImageBlock(ctx, pdf, tr, item)
		}
	}
}

func (g *Generator) drawImageBlock(ctx context.Context, pdf *gofpdf.Fpdf, tr func(string) string, item model.SelectedItem) {
	img := g.resolver.Resolve(ctx, item.Image)

	// 等比缩放到可用宽度内，上限为块高减去说明文字
	maxW, maxH := usableWidth, imageBlockHeight-14
	w, h := fitInto(float64(img.Width), float64(img.Height), maxW, maxH)

	name := fmt.Sprintf("img-%s-%d", item.ID, pdf.PageNo())
	pdf.RegisterImageOptionsReader(name, gofpdf.ImageOptions{ImageType: "JPEG"}, bytes.NewReader(img.Data))

	x := pageMargin + (usableWidth-w)/2
	pdf.ImageOptions(name, x, pdf.GetY(), w, h, false, gofpdf.ImageOptions{ImageType: "JPEG"}, 0, "")
	pdf.SetY(pdf.GetY() + h + 2)

	pdf.SetFont("Helvetica", "I", 9)
	pdf.SetTextColor(100, 100, 100)
	caption := item.Content
	if img.Placeholder {
		caption = "Image unavailable"
	}
	pdf.CellFormat(0, 5, tr(caption), "", 1, "C", false, 0, "")
	pdf.Ln(5)
}

func (g *Generator) messagePages(pdf *gofpdf.Fpdf, tr func(string) string, messages []model.SelectedItem) {
	if len(messages) == 0 {
		return
	}

	pdf.SetFont("Helvetica", "", 10)
	blocks := make([]Block, len(messages))
	for i, item := range messages {
		lines := pdf.SplitText(tr(item.Content), usableWidth-4)
		height := 7 + float64(len(lines))*lineHeight + 5
		blocks[i] = Block{Height: height, Payload: item}
	}

	for _, page := range Paginate(blocks, usableHeight-sectionHeaderHeight) {
		pdf.AddPage()
		g.sectionHeader(pdf, "Conversation Highlights")

		for _, b := range page.Blocks {
			item := b.Payload.(model.SelectedItem)

			pdf.SetFont("Helvetica", "B", 9)
			pdf.SetTextColor(34, 102, 51)
			label := item.Timestamp.Format("Jan 2, 15:04")
			pdf.CellFormat(0, 6, label, "", 1, "L", false, 0, "")

			pdf.SetFont("Helvetica", "", 10)
			pdf.SetTextColor(0, 0, 0)
			pdf.MultiCell(usableWidth-4, lineHeight, tr(item.Content), "", "L", false)
			pdf.Ln(4)
		}
	}
}

func (g *Generator) pricingPage(pdf *gofpdf.Fpdf, tr func(string) string, in Input) {
	colName, colQty, colUnit, colPrice, colTotal := 55.0, 25.0, 30.0, 35.0, 35.0

	// 自定义元素让行数没有上限，每一行落笔前都检查剩余空间，
	// 放不下就换页续排，节标题和表头跟着重画
	tableHeader := func() {
		pdf.AddPage()
		g.sectionHeader(pdf, "Pricing Breakdown")
		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetFillColor(232, 245, 233)
		pdf.CellFormat(colName, 8, "Element", "1", 0, "L", true, 0, "")
		pdf.CellFormat(colQty, 8, "Qty", "1", 0, "R", true, 0, "")
		pdf.CellFormat(colUnit, 8, "Unit", "1", 0, "L", true, 0, "")
		pdf.CellFormat(colPrice, 8, "Unit Price", "1", 0, "R", true, 0, "")
		pdf.CellFormat(colTotal, 8, "Total", "1", 1, "R", true, 0, "")
	}

	tableHeader()

	pdf.SetFont("Helvetica", "", 10)
	for _, el := range in.Elements {
		if !el.Quantity.IsPositive() {
			continue
		}
		if pdf.GetY()+7 > contentBottom {
			tableHeader()
			pdf.SetFont("Helvetica", "", 10)
		}
		pdf.CellFormat(colName, 7, tr(el.Name), "1", 0, "L", false, 0, "")
		pdf.CellFormat(colQty, 7, el.Quantity.String(), "1", 0, "R", false, 0, "")
		pdf.CellFormat(colUnit, 7, tr(el.Unit), "1", 0, "L", false, 0, "")
		pdf.CellFormat(colPrice, 7, "$"+el.PricePerUnit.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(colTotal, 7, "$"+el.Total.StringFixed(2), "1", 1, "R", false, 0, "")
	}

	if pdf.GetY()+8 > contentBottom {
		tableHeader()
	}
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(colName+colQty+colUnit+colPrice, 8, "Grand Total", "1", 0, "R", true, 0, "")
	pdf.CellFormat(colTotal, 8, "$"+in.GrandTotal, "1", 1, "R", true, 0, "")

	if in.SimplePricing != "" {
		pdf.SetFont("Helvetica", "I", 9)
		note := tr("Reference: " + in.SimplePricing)
		lines := pdf.SplitText(note, usableWidth)
		if pdf.GetY()+8+float64(len(lines))*lineHeight > contentBottom {
			pdf.AddPage()
			g.sectionHeader(pdf, "Pricing Breakdown")
		} else {
			pdf.Ln(8)
		}
		pdf.SetTextColor(100, 100, 100)
		pdf.MultiCell(usableWidth, lineHeight, note, "", "L", false)
	}
}

func (g *Generator) sectionHeader(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 16)
	pdf.SetTextColor(34, 102, 51)
	pdf.CellFormat(0, 10, title, "", 1, "L", false, 0, "")
	pdf.Ln(2)
}

// renderDegraded 单页纯文本兜底，不嵌任何图片
func (g *Generator) renderDegraded(in Input, imageCount int, messages []model.SelectedItem) ([]byte, int, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, tr("Greening Report: "+in.ResourceName), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "", 10)
	pdf.MultiCell(usableWidth, lineHeight, tr(in.ResourceDescription), "", "L", false)
	pdf.CellFormat(0, 6, fmt.Sprintf("Selected images: %d", imageCount), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Selected messages: %d", len(messages)), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	for _, item := range messages {
		pdf.MultiCell(usableWidth, lineHeight, tr(item.Content), "", "L", false)
		pdf.Ln(2)
	}

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, 8, "Grand Total: $"+in.GrandTotal, "", 1, "L", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, 0, fmt.Errorf("write degraded pdf: %w", err)
	}
	return buf.Bytes(), pdf.PageCount(), nil
}

// splitItems 按类型拆分选择项，图片在前、消息在后，各自保持选择顺序
func splitItems(items []model.SelectedItem) (images, messages []model.SelectedItem) {
	for _, item := range items {
		if item.Type == model.ItemTypeImage && item.Image != "" {
			images = append(images, item)
		} else {
			messages = append(messages, item)
		}
	}
	return images, messages
}

// fitInto 等比缩放，源尺寸未知时按 4:3 处理
func fitInto(srcW, srcH, maxW, maxH float64) (float64, float64) {
	if srcW <= 0 || srcH <= 0 {
		srcW, srcH = 4, 3
	}

	scale := maxW / srcW
	if srcH*scale > maxH {
		scale = maxH / srcH
	}
	return srcW * scale, srcH * scale
}
