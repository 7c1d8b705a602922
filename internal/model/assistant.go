package model

// QueryRequest 是助教问答接口的请求体。K 为可选上限，0 表示不限制。
type QueryRequest struct {
	CourseID uint   `json:"course_id" binding:"required"`
	Question string `json:"question" binding:"required"`
	K        int    `json:"k"`
}

// Citation 是答案引用的来源，按 (资料标题, 页码) 去重。
type Citation struct {
	MaterialTitle string `json:"material_title"`
	Page          int    `json:"page"`
	MaterialID    uint   `json:"material_id"`
}

// QueryResponse 是助教问答接口的响应体。
type QueryResponse struct {
	Answer       string     `json:"answer"`
	Sources      []Citation `json:"sources"`
	UsedEntities []string   `json:"used_entities"`
}

// PassageDTO 描述一条被选中的检索片段及其得分，供检索调试接口返回。
type PassageDTO struct {
	ID            string   `json:"id"`
	MaterialID    uint     `json:"materialId"`
	MaterialTitle string   `json:"materialTitle"`
	Page          int      `json:"page"`
	Text          string   `json:"text"`
	Entities      []string `json:"entities"`
	BaseScore     float64  `json:"baseScore"`
	Score         float64  `json:"score"`
	Overlap       int      `json:"overlap"`
}

// RetrieveResponse 是检索调试接口的响应体。
type RetrieveResponse struct {
	Passages     []PassageDTO `json:"passages"`
	UsedEntities []string     `json:"used_entities"`
	Scored       bool         `json:"scored"`
}
