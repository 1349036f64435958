// Package injector places suggested links into post bodies.
//
// Placement works on a parsed DOM: keywords are searched in text nodes only,
// never inside existing anchors or excluded tags, and each suggestion wraps at
// most its first eligible occurrence. Running the same request twice is a no-op
// the second time because already-present anchors are detected by href and text.
package injector

import (
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/jonesrussell/north-cloud/linksync/internal/config"
	"github.com/jonesrussell/north-cloud/linksync/internal/domain"
	"github.com/jonesrussell/north-cloud/linksync/internal/htmldoc"
	"github.com/jonesrussell/north-cloud/linksync/internal/observability"
)

// Outcome is what happened to one suggestion.
type Outcome string

const (
	OutcomeInjected       Outcome = "injected"
	OutcomeAlreadyPresent Outcome = "already_present"
	OutcomeNoMatch        Outcome = "no_match"
	OutcomeSkipped        Outcome = "skipped"
	OutcomeCapped         Outcome = "capped"
)

// Placement applies when a commerce item links to an article: only the last
// part of the text is eligible.
const commerceToArticleStart = 0.7

// Suggestion is one link to place.
type Suggestion struct {
	ID         int64
	Keyword    string
	TargetURL  string
	TargetKind domain.ContentKind
	Priority   domain.Priority
}

// Request is one source item and the suggestions to place in it.
type Request struct {
	SourceID    string
	SourceKind  domain.ContentKind
	SourceURL   string
	Body        string
	Suggestions []Suggestion
}

// Options shape the generated anchors.
type Options struct {
	Nofollow            bool
	NewTab              bool
	DensityPer1000Words float64
	PreventSelfLinks    bool
	ExcludedTags        []string
	// BaseURL resolves relative hrefs when comparing existing anchors.
	BaseURL string
}

// OptionsFromConfig maps the links and site sections of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Nofollow:            cfg.Links.Nofollow,
		NewTab:              cfg.Links.NewTab,
		DensityPer1000Words: cfg.Links.DensityPer1000Words,
		PreventSelfLinks:    cfg.Links.SelfLinksPrevented(),
		ExcludedTags:        cfg.Links.ExcludedTags,
		BaseURL:             cfg.Site.URL,
	}
}

// LinkOutcome reports the fate of one suggestion.
type LinkOutcome struct {
	SuggestionID int64   `json:"suggestion_id"`
	Keyword      string  `json:"keyword"`
	TargetURL    string  `json:"target_url"`
	Outcome      Outcome `json:"outcome"`
	Reason       string  `json:"reason,omitempty"`
}

// Result is the injector output. Content equals the input body unless Changed.
type Result struct {
	Changed  bool          `json:"changed"`
	Content  string        `json:"content"`
	Outcomes []LinkOutcome `json:"outcomes"`
}

// Injector places links. It holds no per-request state and is safe for concurrent use.
type Injector struct {
	parser  htmldoc.Parser
	opts    Options
	metrics *observability.Metrics
}

// New creates an injector.
func New(parser htmldoc.Parser, opts Options, metrics *observability.Metrics) *Injector {
	return &Injector{parser: parser, opts: opts, metrics: metrics}
}

// Inject places req's suggestions in priority order.
func (inj *Injector) Inject(req Request) Result {
	unchanged := Result{Content: req.Body}

	doc, err := inj.parser.Parse(req.Body)
	if err != nil {
		for _, s := range req.Suggestions {
			unchanged.Outcomes = append(unchanged.Outcomes, outcome(s, OutcomeSkipped, "body could not be parsed"))
		}
		return unchanged
	}

	suggestions := SortByPriority(req.SourceKind, req.Suggestions)

	present := make(map[string]bool)
	generated := 0
	for _, a := range doc.Anchors() {
		present[anchorKey(inj.normalize(a.Href), a.Text)] = true
		if a.Generated {
			generated++
		}
	}

	limit := densityLimit(len(strings.Fields(doc.PlainText())), inj.opts.DensityPer1000Words)
	sourceURL := inj.normalize(req.SourceURL)

	var result Result
	for _, s := range suggestions {
		o := inj.place(doc, req, s, sourceURL, present, &generated, limit)
		if o.Outcome == OutcomeInjected {
			result.Changed = true
		}
		inj.metrics.RecordInjection(string(o.Outcome))
		result.Outcomes = append(result.Outcomes, o)
	}

	if !result.Changed {
		result.Content = req.Body
		return result
	}

	rendered, err := doc.Render()
	if err != nil {
		unchanged.Outcomes = result.Outcomes
		for i := range unchanged.Outcomes {
			if unchanged.Outcomes[i].Outcome == OutcomeInjected {
				unchanged.Outcomes[i].Outcome = OutcomeSkipped
				unchanged.Outcomes[i].Reason = "body could not be rendered"
			}
		}
		return unchanged
	}
	result.Content = rendered
	return result
}

func (inj *Injector) place(
	doc htmldoc.Document, req Request, s Suggestion, sourceURL string,
	present map[string]bool, generated *int, limit int,
) LinkOutcome {
	keyword := strings.TrimSpace(s.Keyword)
	target := strings.TrimSpace(s.TargetURL)
	if keyword == "" || target == "" {
		return outcome(s, OutcomeSkipped, "empty keyword or target")
	}

	normTarget := inj.normalize(target)
	if inj.opts.PreventSelfLinks && sourceURL != "" && normTarget == sourceURL {
		return outcome(s, OutcomeSkipped, "target is the source item")
	}

	key := anchorKey(normTarget, keyword)
	if present[key] {
		return outcome(s, OutcomeAlreadyPresent, "")
	}

	if limit > 0 && *generated >= limit {
		return outcome(s, OutcomeCapped, "")
	}

	minOffset := 0
	if req.SourceKind == domain.KindCommerceItem && s.TargetKind == domain.KindArticle {
		minOffset = int(math.Ceil(float64(doc.TextLength()) * commerceToArticleStart))
	}

	for _, node := range doc.TextNodes(inj.opts.ExcludedTags) {
		start := findWord(node.Text, keyword, max(0, minOffset-node.Offset))
		if start < 0 {
			continue
		}
		if err := doc.WrapText(node, start, start+len(keyword), inj.anchorAttrs(target)); err != nil {
			return outcome(s, OutcomeSkipped, err.Error())
		}
		present[key] = true
		*generated++
		return outcome(s, OutcomeInjected, "")
	}

	return outcome(s, OutcomeNoMatch, "")
}

func (inj *Injector) anchorAttrs(target string) []html.Attribute {
	attrs := []html.Attribute{
		{Key: "href", Val: target},
		{Key: htmldoc.GeneratedAttr, Val: "1"},
	}

	var rel []string
	if inj.opts.Nofollow {
		rel = append(rel, "nofollow")
	}
	if inj.opts.NewTab {
		attrs = append(attrs, html.Attribute{Key: "target", Val: "_blank"})
		rel = append(rel, "noopener")
	}
	if len(rel) > 0 {
		attrs = append(attrs, html.Attribute{Key: "rel", Val: strings.Join(rel, " ")})
	}
	return attrs
}

func (inj *Injector) normalize(href string) string {
	return NormalizeURL(href, inj.opts.BaseURL)
}

// TypeScore ranks a source/target kind pair: product links from content and
// between products matter most, product-to-article links least.
func TypeScore(source, target domain.ContentKind) int {
	switch {
	case target == domain.KindCommerceItem && (source == domain.KindCommerceItem || source == domain.KindArticle):
		return 3
	case source == domain.KindCommerceItem && target == domain.KindArticle:
		return 1
	default:
		return 2
	}
}

// SortByPriority returns suggestions ordered by type score × 10 + priority
// weight, highest first. Equal scores keep their input order.
func SortByPriority(source domain.ContentKind, suggestions []Suggestion) []Suggestion {
	sorted := make([]Suggestion, len(suggestions))
	copy(sorted, suggestions)
	score := func(s Suggestion) int {
		return TypeScore(source, s.TargetKind)*10 + s.Priority.Weight()
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return score(sorted[i]) > score(sorted[j])
	})
	return sorted
}

// densityLimit is the max number of generated anchors for a body; 0 means unlimited.
func densityLimit(words int, per1000 float64) int {
	if per1000 <= 0 {
		return 0
	}
	return max(1, int(math.Floor(float64(words)*per1000/1000)))
}

// findWord returns the first case-insensitive occurrence of word in s at or
// after from that is not part of a longer word, or -1. Matching whole words
// keeps "widget" from linking inside "widgets" or "gadgetwidget"; letters,
// digits and underscore count as word characters in any script.
func findWord(s, word string, from int) int {
	for i := htmldoc.IndexFold(s, word, from); i >= 0; i = htmldoc.IndexFold(s, word, i+1) {
		if boundaryBefore(s, i) && boundaryAfter(s, i+len(word)) {
			return i
		}
	}
	return -1
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !isWordRune(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func anchorKey(href, text string) string {
	return href + "\x00" + strings.ToLower(strings.Join(strings.Fields(text), " "))
}

func outcome(s Suggestion, o Outcome, reason string) LinkOutcome {
	return LinkOutcome{SuggestionID: s.ID, Keyword: s.Keyword, TargetURL: s.TargetURL, Outcome: o, Reason: reason}
}
