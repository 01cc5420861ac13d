package httpdto

type InitiateChatRequest struct {
	ProductID uint `json:"productId" binding:"required,min=1"`
	UserBID   uint `json:"userBId" binding:"required,min=1"`
}

type SendMessageRequest struct {
	ChatID  uint   `json:"chatId" binding:"required,min=1"`
	Content string `json:"content" binding:"required,max=5000"`
}

type MarkReadRequest struct {
	ChatID uint `json:"chatId" binding:"required,min=1"`
}

// PageQuery is shared by every paginated listing. Zero values fall back to
// the listing's defaults.
type PageQuery struct {
	Page  int `form:"page" binding:"omitempty,min=1"`
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}

type ChatUnreadCountResponse struct {
	Count int64 `json:"count"`
}
