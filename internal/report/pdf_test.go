package report

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"greenly-backend/internal/config"
	"greenly-backend/internal/model"
)

func testGenerator() *Generator {
	return NewGenerator(config.ReportConfig{
		ImagesPerPage:   2,
		MessagesPerPage: 8,
		ImageTimeout:    2 * time.Second,
	})
}

func pngDataURI(t *testing.T) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	for y := 0; y < 6; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: 40, G: 160, B: 60, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func messageItem(id, content string) model.SelectedItem {
	return model.SelectedItem{
		ID:        id,
		Type:      model.ItemTypeMessage,
		Content:   content,
		Timestamp: time.Date(2026, 8, 15, 10, 30, 0, 0, time.UTC),
	}
}

func TestGenerateProducesPDF(t *testing.T) {
	g := testGenerator()

	input := Input{
		ResourceName:        "Backyard",
		ResourceDescription: "A small suburban backyard with potential.",
		SelectedItems: []model.SelectedItem{
			{ID: "img1", Type: model.ItemTypeImage, Content: "Greened view", Image: pngDataURI(t)},
			messageItem("m1", "What plants work in shade?"),
			messageItem("m2", "Consider ferns and hostas along the north fence."),
		},
		Elements: []model.GreeningElement{
			{ID: "grass", Name: "Grass", Unit: "sq ft",
				Quantity: decimal.NewFromInt(100), PricePerUnit: decimal.NewFromFloat(2.5),
				Total: decimal.NewFromInt(250)},
		},
		GrandTotal:    "250.00",
		SimplePricing: "Comparable projects run $200-$400",
	}

	data, meta, err := g.Generate(context.Background(), input)
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
	assert.False(t, meta.Degraded)
	// 概览 + 图片 + 消息 + 定价
	assert.Equal(t, 4, meta.ActualPages)
	assert.Equal(t, 4, meta.EstimatedPages)
	assert.Regexp(t, `^greening-report-\d{8}\.pdf$`, meta.Filename)
}

func TestGenerateBadImageFallsBackToPlaceholder(t *testing.T) {
	g := testGenerator()

	input := Input{
		ResourceName: "Rooftop",
		SelectedItems: []model.SelectedItem{
			{ID: "img1", Type: model.ItemTypeImage, Content: "broken", Image: "not-a-valid-source"},
		},
		GrandTotal: "0.00",
	}

	data, meta, err := g.Generate(context.Background(), input)
	require.NoError(t, err)

	// 坏图换占位图，整份报告照常生成
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
	assert.False(t, meta.Degraded)
	assert.Equal(t, 3, meta.ActualPages)
}

func TestGenerateEmptySelection(t *testing.T) {
	g := testGenerator()

	data, meta, err := g.Generate(context.Background(), Input{
		ResourceName: "Empty lot",
		GrandTotal:   "0.00",
	})
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
	assert.Equal(t, 2, meta.ActualPages)
}

func TestPricingTableFlowsAcrossPages(t *testing.T) {
	g := testGenerator()

	// 60 行远超一页正文能容纳的 33 行，表格必须换页续排
	elements := make([]model.GreeningElement, 60)
	for i := range elements {
		elements[i] = model.GreeningElement{
			ID:           fmt.Sprintf("custom-%d", i),
			Name:         fmt.Sprintf("Custom element %d", i),
			Unit:         "unit",
			Quantity:     decimal.NewFromInt(1),
			PricePerUnit: decimal.NewFromInt(10),
			Total:        decimal.NewFromInt(10),
			IsCustom:     true,
		}
	}

	data, meta, err := g.Generate(context.Background(), Input{
		ResourceName: "Park strip",
		Elements:     elements,
		GrandTotal:   "600.00",
	})
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
	assert.False(t, meta.Degraded)
	// 概览 + 两页定价
	assert.Equal(t, 3, meta.ActualPages)
}

func TestMessagePagesReserveHeaderSpace(t *testing.T) {
	g := testGenerator()

	// 每条两行共 22mm，去掉节标题后一页正文放 10 条，第 11 条必须换页
	items := make([]model.SelectedItem, 11)
	for i := range items {
		items[i] = messageItem(fmt.Sprintf("m%d", i),
			fmt.Sprintf("Question %d about shade\nFerns along the north fence", i))
	}

	_, meta, err := g.Generate(context.Background(), Input{
		ResourceName:  "Courtyard",
		SelectedItems: items,
		GrandTotal:    "0.00",
	})
	require.NoError(t, err)

	// 概览 + 两页消息 + 定价
	assert.Equal(t, 4, meta.ActualPages)
}

func TestRenderDegradedIncludesCounts(t *testing.T) {
	g := testGenerator()

	messages := []model.SelectedItem{
		messageItem("m1", "Plant natives."),
		messageItem("m2", "Add a rain garden."),
	}

	data, pages, err := g.renderDegraded(Input{
		ResourceName:        "Backyard",
		ResourceDescription: "Shaded corner lot.",
		GrandTotal:          "120.00",
	}, 3, messages)
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
	assert.Equal(t, 1, pages)
}

func TestFilename(t *testing.T) {
	ts := time.Date(2026, 9, 1, 14, 30, 0, 0, time.UTC)
	assert.Equal(t, "greening-report-20260901.pdf", Filename(ts))
}

func TestResolveDataURI(t *testing.T) {
	r := newImageResolver(time.Second)

	img := r.Resolve(context.Background(), pngDataURI(t))

	assert.False(t, img.Placeholder)
	assert.Equal(t, 8, img.Width)
	assert.Equal(t, 6, img.Height)
	assert.NotEmpty(t, img.Data)
}

func TestResolveBadSourceReturnsPlaceholder(t *testing.T) {
	r := newImageResolver(time.Second)

	for _, src := range []string{"", "ftp://example.com/a.png", "data:image/png;base64,!!!!"} {
		img := r.Resolve(context.Background(), src)
		assert.True(t, img.Placeholder, "source %q should yield placeholder", src)
		assert.NotEmpty(t, img.Data)
	}
}

func TestSplitItems(t *testing.T) {
	items := []model.SelectedItem{
		messageItem("m1", "one"),
		{ID: "i1", Type: model.ItemTypeImage, Image: "data:..."},
		messageItem("m2", "two"),
		{ID: "i2", Type: model.ItemTypeImage}, // 没有图片数据的按消息处理
	}

	images, messages := splitItems(items)
	require.Len(t, images, 1)
	require.Len(t, messages, 3)
	assert.Equal(t, "i1", images[0].ID)
}
