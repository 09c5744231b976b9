package models

// ArticleStatus is the publication state of a post.
type ArticleStatus string

const (
	ArticlePublished ArticleStatus = "published"
	ArticleDraft     ArticleStatus = "draft"
	ArticleArchived  ArticleStatus = "archived"
)

// Article is a post record from the blog data model.
type Article struct {
	ID           string        `json:"_id"`
	Title        string        `json:"title"`
	Content      string        `json:"content,omitempty"`
	Excerpt      string        `json:"excerpt,omitempty"`
	CoverImage   string        `json:"coverImage,omitempty"`
	Tags         []string      `json:"tags,omitempty"`
	Category     string        `json:"category,omitempty"`
	Author       string        `json:"author,omitempty"`
	PublishTime  string        `json:"publishTime,omitempty"`
	UpdateTime   string        `json:"updateTime,omitempty"`
	Status       ArticleStatus `json:"status,omitempty"`
	ReadCount    int           `json:"readCount,omitempty"`
	LikeCount    int           `json:"likeCount,omitempty"`
	CommentCount int           `json:"commentCount,omitempty"`
}

// ArticleListRequest filters the article list.
type ArticleListRequest struct {
	PageSize   int    `form:"pageSize" json:"pageSize" validate:"omitempty,min=1,max=100"`
	PageNumber int    `form:"pageNumber" json:"pageNumber" validate:"omitempty,min=1"`
	Category   string `form:"category" json:"category,omitempty"`
	Tag        string `form:"tag" json:"tag,omitempty"`
	Keyword    string `form:"keyword" json:"keyword,omitempty"`
	Status     string `form:"status" json:"status,omitempty" validate:"omitempty,oneof=published draft archived"`
}

// ArticlePage is the data section of a list response.
type ArticlePage struct {
	Records    []Article `json:"records"`
	Total      int       `json:"total"`
	PageSize   int       `json:"pageSize"`
	PageNumber int       `json:"pageNumber"`

	// FromCache is set when the page was served from the list cache.
	FromCache bool `json:"-"`
}

// ArticleSummary is the card shape rendered by the front-end.
type ArticleSummary struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Excerpt    string   `json:"excerpt"`
	Date       string   `json:"date"`
	ReadTime   int      `json:"readTime"`
	Tags       []string `json:"tags"`
	CoverImage string   `json:"coverImage,omitempty"`
	Author     string   `json:"author"`
}

// ArticleSummaryPage is a transformed list page.
type ArticleSummaryPage struct {
	Items      []ArticleSummary `json:"items"`
	Total      int              `json:"total"`
	PageSize   int              `json:"pageSize"`
	PageNumber int              `json:"pageNumber"`
	FromCache  bool             `json:"-"`
}
