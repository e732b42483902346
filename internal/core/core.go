package core

// Product is a single record returned by a product source. The generation
// layer only reads these fields to build prompts; it never mutates them.
type Product struct {
	ASIN     string   `json:"asin"`
	Title    string   `json:"title"`
	Price    string   `json:"price"`
	Brand    string   `json:"brand"`
	URL      string   `json:"url"`
	ImageURL string   `json:"image_url"`
	Features []string `json:"features"`
}

// Review is the generated review for one product.
type Review struct {
	Description string   `json:"description"`
	Pros        []string `json:"pros"`
	Cons        []string `json:"cons"`
}

// BadgeSet is the validated result of the badge-assignment task: a short
// label per ASIN plus the single top recommendation.
type BadgeSet struct {
	TopPick string
	Badges  map[string]string
}

// GuideSection is one heading with its bullet list inside a buying guide.
type GuideSection struct {
	Heading string   `json:"heading"`
	Bullets []string `json:"bullets"`
}

// BuyingGuide is the validated buying-guide payload.
type BuyingGuide struct {
	Title    string         `json:"title"`
	Sections []GuideSection `json:"sections"`
}

// FAQ is a single question/answer pair.
type FAQ struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// KeywordType classifies what kind of article (if any) a keyword deserves.
type KeywordType string

const (
	KeywordReview KeywordType = "review"
	KeywordInfo   KeywordType = "info"
	KeywordSkip   KeywordType = "skip"
)

// GenerationRequest carries one prompt to a text-generation backend.
// Instances are immutable and constructed per call.
type GenerationRequest struct {
	Prompt       string
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
	ModelHint    string
	Stream       bool
}

// ArticleContent is the full set of generated sections handed to the
// HTML renderer. Takeaways is only populated for info articles.
type ArticleContent struct {
	Intro     string
	Badges    BadgeSet
	Guide     BuyingGuide
	FAQs      []FAQ
	Reviews   map[string]Review
	Takeaways []string
}

// PostResult is what the publishing sink returns for a created post.
type PostResult struct {
	ID     int
	URL    string
	Status string
}
