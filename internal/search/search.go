package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultCategory ResultType = "category"
	ResultTopic    ResultType = "topic"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type       ResultType `json:"type"`
	ID         int64      `json:"id"`
	Title      string     `json:"title"`
	Snippet    string     `json:"snippet"`
	CategoryID int64      `json:"categoryId"`
	IsPrivate  bool       `json:"-"`
}

// Query describes a search request. AccessibleCategoryIDs lists the private
// categories the viewer holds a grant for; results from other private
// categories are dropped unless IsAdmin is set.
type Query struct {
	Text                   string
	FilterType             ResultType // empty = all types
	FilterCategoryID       int64      // 0 = all categories
	Limit                  int
	Offset                 int
	IsAdmin                bool
	AccessibleCategoryIDs  []int64
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexCategory(c CategoryRecord) error
	IndexTopic(t TopicRecord) error
}

// CategoryRecord is the data we index for a category.
type CategoryRecord struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	IsPrivate   bool   `json:"isPrivate"`
}

// TopicRecord is the data we index for a topic.
type TopicRecord struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	Content    string `json:"content"`
	CategoryID int64  `json:"categoryId"`
	IsPrivate  bool   `json:"isPrivate"`
}
