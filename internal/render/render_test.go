package render

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"postforge/internal/core"
)

func parseHTML(t *testing.T, markup string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		t.Fatalf("parsing rendered HTML: %v", err)
	}
	return doc
}

func testProducts() []core.Product {
	return []core.Product{
		{
			ASIN:     "B000000A1",
			Title:    "Oakline Garden Dining Set, 6-Seater with Parasol Hole",
			Price:    "$349.00",
			Brand:    "Oakline",
			URL:      "https://example.com/a1",
			ImageURL: "https://example.com/a1.jpg",
			Features: []string{"Weatherproof teak", "Seats six"},
		},
		{
			ASIN:  "B000000A2",
			Title: "Ferro Bistro Set",
			Price: "$129.00",
			URL:   "https://example.com/a2",
		},
	}
}

func testBadges() core.BadgeSet {
	return core.BadgeSet{
		TopPick: "B000000A1",
		Badges: map[string]string{
			"B000000A1": "Best Overall",
			"B000000A2": "Best Value",
		},
	}
}

func TestIntroConvertsBoldAndEscapes(t *testing.T) {
	got := Intro("The best **garden dining set** for < $500")
	if !strings.Contains(got, "<strong>garden dining set</strong>") {
		t.Errorf("bold span not converted: %q", got)
	}
	if !strings.Contains(got, "&lt; $500") {
		t.Errorf("angle bracket not escaped: %q", got)
	}
	if strings.Contains(got, "**") {
		t.Errorf("markdown leaked through: %q", got)
	}
}

func TestEditorsChoice(t *testing.T) {
	doc := parseHTML(t, EditorsChoice(testProducts(), testBadges()))

	if doc.Find(".acap-picks").Length() != 1 {
		t.Error("missing picks wrapper")
	}
	ec := doc.Find(".acap-ec-title")
	if ec.Length() != 1 {
		t.Fatal("missing editor's choice title link")
	}
	// Listing titles get clipped at the first comma.
	if got := ec.Text(); got != "Oakline Garden Dining Set" {
		t.Errorf("editor's choice title = %q", got)
	}

	items := doc.Find(".acap-list li")
	if items.Length() != 2 {
		t.Fatalf("best-for items = %d, want 2", items.Length())
	}
	if first := items.First().Find("strong").Text(); first != "Best for best overall:" {
		t.Errorf("best-for label = %q", first)
	}
}

func TestEditorsChoiceNoTopPickMatch(t *testing.T) {
	badges := testBadges()
	badges.TopPick = "B0UNKNOWN"
	doc := parseHTML(t, EditorsChoice(testProducts(), badges))

	if doc.Find(".acap-ec").Length() != 0 {
		t.Error("editor's choice box rendered without a matching product")
	}
	if doc.Find(".acap-list li").Length() != 2 {
		t.Error("best-for list should still render")
	}
}

func TestProductCards(t *testing.T) {
	products := testProducts()
	reviews := map[string]core.Review{
		"B000000A1": {
			Description: "A sturdy six-seater that shrugs off rain.",
			Pros:        []string{"Solid teak", "Parasol hole"},
			Cons:        []string{"Heavy"},
		},
	}
	doc := parseHTML(t, ProductCards("garden dining set", products, testBadges(), reviews))

	if got := doc.Find("h2").Text(); got != "Product Comparison: Garden Dining Set" {
		t.Errorf("heading = %q", got)
	}
	if n := doc.Find(".acap-box").Length(); n != 2 {
		t.Errorf("cards = %d, want 2", n)
	}
	if n := doc.Find(".acap-review").Length(); n != 1 {
		t.Errorf("review paragraphs = %d, want 1", n)
	}
	if n := doc.Find(".acap-pros li").Length(); n != 2 {
		t.Errorf("pros = %d, want 2", n)
	}
	if n := doc.Find(".acap-cons li").Length(); n != 1 {
		t.Errorf("cons = %d, want 1", n)
	}
	if n := doc.Find(".acap-btn").Length(); n != 2 {
		t.Errorf("price buttons = %d, want 2", n)
	}
	doc.Find(".acap-btn").Each(func(_ int, s *goquery.Selection) {
		if rel, _ := s.Attr("rel"); !strings.Contains(rel, "nofollow") {
			t.Errorf("affiliate link missing nofollow: %q", rel)
		}
	})
	// Second product has no brand; the card shows a placeholder.
	if got := doc.Find(".acap-brand").Last().Text(); got != "—" {
		t.Errorf("missing-brand placeholder = %q", got)
	}
}

func TestGuide(t *testing.T) {
	guide := core.BuyingGuide{
		Title: "Buying Guide: Garden Dining Set",
		Sections: []core.GuideSection{
			{Heading: "Materials", Bullets: []string{"Teak lasts longest", "Check frame welds"}},
			{Heading: "Size", Bullets: []string{"Measure your patio"}},
		},
	}
	doc := parseHTML(t, Guide(guide))

	if got := doc.Find("h3").Text(); got != "Buying Guide: Garden Dining Set" {
		t.Errorf("title = %q", got)
	}
	if n := doc.Find("h4").Length(); n != 2 {
		t.Errorf("section headings = %d, want 2", n)
	}
	if n := doc.Find(".acap-buying-guide li").Length(); n != 3 {
		t.Errorf("bullets = %d, want 3", n)
	}
}

func TestFAQsRenderAsDetails(t *testing.T) {
	faqs := []core.FAQ{
		{Question: "Is teak worth it?", Answer: "Usually, yes."},
		{Question: "What about <script> tags?", Answer: "They get escaped."},
	}
	markup := FAQs(faqs)
	doc := parseHTML(t, markup)

	if n := doc.Find("details").Length(); n != 2 {
		t.Errorf("details = %d, want 2", n)
	}
	if got := doc.Find("summary").First().Text(); got != "Is teak worth it?" {
		t.Errorf("summary = %q", got)
	}
	if strings.Contains(markup, "<script>") {
		t.Error("question content not escaped")
	}
}

func TestFullPostAssemblesEverySection(t *testing.T) {
	content := core.ArticleContent{
		Intro:  "The best **garden dining set** money can buy.",
		Badges: testBadges(),
		Guide: core.BuyingGuide{
			Title:    "Buying Guide: Garden Dining Set",
			Sections: []core.GuideSection{{Heading: "Materials", Bullets: []string{"Teak"}}},
		},
		FAQs: []core.FAQ{{Question: "Q?", Answer: "A."}},
		Reviews: map[string]core.Review{
			"B000000A1": {Description: "Solid.", Pros: []string{"Good"}, Cons: []string{"Pricey"}},
		},
	}
	doc := parseHTML(t, FullPost("garden dining set", testProducts(), content))

	if doc.Find("p strong").First().Text() != "garden dining set" {
		t.Error("intro keyword not bolded")
	}
	for _, sel := range []string{".acap-picks", ".acap-compare-wrap", ".acap-buying-guide", ".acap-faqs"} {
		if doc.Find(sel).Length() != 1 {
			t.Errorf("missing section %s", sel)
		}
	}
}

func TestInfoArticle(t *testing.T) {
	content := core.ArticleContent{
		Intro:     "Everything about **compost bins** in one place.",
		Takeaways: []string{"Turn it weekly", "Keep it damp"},
		FAQs:      []core.FAQ{{Question: "How long?", Answer: "Months."}},
	}
	doc := parseHTML(t, InfoArticle(content))

	if n := doc.Find(".acap-takeaways li").Length(); n != 2 {
		t.Errorf("takeaways = %d, want 2", n)
	}
	if doc.Find("details").Length() != 1 {
		t.Error("missing FAQ")
	}
	if doc.Find(".acap-compare-wrap").Length() != 0 {
		t.Error("info article must not include product cards")
	}
}

func TestTitleBeforeComma(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Oakline Set, 6-Seater", "Oakline Set"},
		{"No comma here", "No comma here"},
		{"Trailing , spaces", "Trailing"},
	}
	for _, tt := range tests {
		if got := titleBeforeComma(tt.in); got != tt.want {
			t.Errorf("titleBeforeComma(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
