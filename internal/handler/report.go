package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"greenly-backend/internal/model"
	"greenly-backend/internal/report"
	"greenly-backend/internal/service"
)

type ReportHandler struct {
	selection *service.SelectionService
	pricing   *service.PricingService
	assistant *service.AssistantService
	generator *report.Generator
}

func NewReportHandler(selection *service.SelectionService, pricing *service.PricingService, assistant *service.AssistantService, generator *report.Generator) *ReportHandler {
	return &ReportHandler{
		selection: selection,
		pricing:   pricing,
		assistant: assistant,
		generator: generator,
	}
}

// ToggleSelection 对称差：已选则移除，未选则追加
func (h *ReportHandler) ToggleSelection(c *gin.Context) {
	var req model.ToggleSelectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Item.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "item id is required"})
		return
	}

	items := h.selection.Toggle(userKey(c), req.Item)
	c.JSON(http.StatusOK, model.SelectionResponse{
		Items: items,
		Count: len(items),
	})
}

// GetSelection 当前选择集
func (h *ReportHandler) GetSelection(c *gin.Context) {
	items := h.selection.Items(userKey(c))
	c.JSON(http.StatusOK, model.SelectionResponse{
		Items: items,
		Count: len(items),
	})
}

// ClearSelection 清空选择集
func (h *ReportHandler) ClearSelection(c *gin.Context) {
	h.selection.Clear(userKey(c))
	c.JSON(http.StatusOK, gin.H{"message": "Selection cleared successfully"})
}

// GetElements 定价目录，数量全部为零
func (h *ReportHandler) GetElements(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"elements": service.DefaultElements()})
}

// Calculate 重算行项总价与总计
func (h *ReportHandler) Calculate(c *gin.Context) {
	var req model.CalculateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, h.pricing.Calculate(req.Elements))
}

// GeneratePricingSchema 调用模型生成定价方案，失败走静态兜底
func (h *ReportHandler) GeneratePricingSchema(c *gin.Context) {
	var req model.PricingSchemaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp := h.assistant.GeneratePricingSchema(c.Request.Context(), req.ResourceName, req.ResourceDescription)
	c.JSON(http.StatusOK, resp)
}

// GenerateReport 生成 PDF 报告并作为附件返回。
// 选择项缺省时用服务端的当前选择集，定价行项在这里重算最后一遍。
// 生成成功后清空选择集
func (h *ReportHandler) GenerateReport(c *gin.Context) {
	var req model.GenerateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	items := req.SelectedItems
	if len(items) == 0 {
		items = h.selection.Items(userKey(c))
	}

	calc := h.pricing.Recompute(req.Elements)

	input := report.Input{
		ResourceName:        req.ResourceName,
		ResourceDescription: req.ResourceDescription,
		SelectedItems:       items,
		Elements:            service.ActiveElements(calc.Elements),
		GrandTotal:          calc.GrandTotal.StringFixed(2),
		SimplePricing:       req.SimplePricing,
	}

	data, meta, err := h.generator.Generate(c.Request.Context(), input)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.selection.Clear(userKey(c))

	c.Header("Content-Disposition", `attachment; filename="`+meta.Filename+`"`)
	c.Header("X-Report-Estimated-Pages", strconv.Itoa(meta.EstimatedPages))
	c.Header("X-Report-Actual-Pages", strconv.Itoa(meta.ActualPages))
	c.Header("X-Report-Degraded", strconv.FormatBool(meta.Degraded))
	c.Data(http.StatusOK, "application/pdf", data)
}

// EstimateReport 生成前的页数预估，只做进度展示
func (h *ReportHandler) EstimateReport(c *gin.Context) {
	items := h.selection.Items(userKey(c))

	images, messages := 0, 0
	for _, item := range items {
		if item.Type == model.ItemTypeImage && item.Image != "" {
			images++
		} else {
			messages++
		}
	}

	c.JSON(http.StatusOK, model.ReportMetaResponse{
		Filename:       report.Filename(time.Now()),
		EstimatedPages: report.EstimatePages(images, messages, 0, 0),
	})
}
