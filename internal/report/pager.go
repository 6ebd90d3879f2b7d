package report

// Block 分页器眼中的一个不可分割单元：一张图或一条消息。
// Height 是内容在页面上的估算高度（mm）
type Block struct {
	Height  float64
	Payload interface{}
}

// Page 一页上按顺序排列的块
type Page struct {
	Blocks []Block
}

// Paginate 顺序装箱：块依次放入当前页，放不下就开新页。
// 块永远不跨页，高于整页可用高度的块独占一页。
// 输入顺序决定输出顺序，不做任何重排
func Paginate(blocks []Block, usableHeight float64) []Page {
	if len(blocks) == 0 {
		return nil
	}

	pages := make([]Page, 0)
	current := Page{}
	remaining := usableHeight

	for _, b := range blocks {
		if len(current.Blocks) > 0 && b.Height > remaining {
			pages = append(pages, current)
			current = Page{}
			remaining = usableHeight
		}
		current.Blocks = append(current.Blocks, b)
		remaining -= b.Height
	}

	if len(current.Blocks) > 0 {
		pages = append(pages, current)
	}

	return pages
}

// EstimatePages 生成前的页数预估：概览页 + 图片页 + 消息页 + 定价页。
// 密度假设来自配置，预估只用于进度展示，页脚以实际渲染页数为准
func EstimatePages(imageCount, messageCount, imagesPerPage, messagesPerPage int) int {
	if imagesPerPage <= 0 {
		imagesPerPage = 2
	}
	if messagesPerPage <= 0 {
		messagesPerPage = 8
	}

	pages := 1 // 概览页
	pages += ceilDiv(imageCount, imagesPerPage)
	pages += ceilDiv(messageCount, messagesPerPage)
	pages++ // 定价页
	return pages
}

func ceilDiv(a, b int) int {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
