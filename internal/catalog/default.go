package catalog

import "github.com/JakeFAU/realtime-post-scraper/internal/scrape"

var (
	imageAttrs     = []string{"src", "data-src"}
	linkAttrs      = []string{"href"}
	timestampAttrs = []string{"datetime", "content", Text}
	metricAttrs    = []string{Text, "aria-label"}
)

func q(query string) Rule { return Rule{Query: query} }

func img(query string) Rule { return Rule{Query: query, Attrs: imageAttrs} }

func author(query string) Rule { return Rule{Query: query, MinLen: 1, MaxLen: 100} }

// Default returns the built-in rule table.
func Default() *Catalog {
	return &Catalog{
		version: Version,
		fields: map[Field]map[scrape.PageType][]Rule{
			// Primary text is always looked up with social-post rules.
			FieldMainText: {
				scrape.PageTypeSocialPost: {
					q(`[data-testid="tweetText"]`),
					{Query: `div[data-testid="tweetText"]`, MinLen: 10},
					{Query: `article div[lang]`, MinLen: 10},
					{Query: `div[lang]`, MinLen: 10},
				},
			},
			FieldParagraphs: {
				scrape.PageTypeSocialPost: {
					q(`[data-testid="tweetText"]`),
					q(`article div[lang]`),
				},
				scrape.PageTypeNewsArticle: {
					q(`.article-page-content p`),
					q(`[itemprop="articleBody"] p`),
					q(`.article-content p`),
					q(`.article-body p`),
					q(`.story-content p`),
					q(`.news-content p`),
					q(`.post-content p`),
					q(`.entry-content p`),
					q(`article p`),
					q(`.content p`),
				},
				scrape.PageTypeGeneric: {
					q(`main p`),
					q(`article p`),
					q(`.content p`),
					q(`.main-content p`),
					q(`body p`),
				},
				scrape.PageTypeUnknown: {
					q(`article p`),
					q(`.article-content p`),
					q(`.content p`),
					q(`main p`),
					q(`.story-content p`),
					q(`.post-content p`),
					q(`.entry-content p`),
					q(`.article-body p`),
					q(`.news-content p`),
					q(`.text-content p`),
				},
			},
			FieldImages: {
				scrape.PageTypeSocialPost: {
					img(`div[data-testid="tweetPhoto"] img`),
					img(`img[src*="pbs.twimg.com"]`),
					img(`img[src*="twimg"]`),
					img(`img[alt*="Image"]`),
					img(`article img`),
				},
				scrape.PageTypeNewsArticle: {
					img(`.article-page-content img`),
					img(`[itemprop="articleBody"] img`),
					img(`.article-content img`),
					img(`figure img`),
					img(`article img`),
					img(`.content img`),
					img(`main img`),
				},
				scrape.PageTypeGeneric: {
					img(`main img`),
					img(`article img`),
					img(`.content img`),
					img(`figure img`),
				},
				scrape.PageTypeUnknown: {
					img(`img[src*="pbs.twimg.com"]`),
					img(`img[src*="media"]`),
					img(`img[alt*="Image"]`),
					img(`article img`),
					img(`div[data-testid="tweetPhoto"] img`),
					img(`img[src*="twimg"]`),
					img(`.article-content img`),
					img(`.content img`),
					img(`main img`),
					img(`figure img`),
				},
			},
			FieldLinks: {
				scrape.PageTypeUnknown: {
					{Query: `a[href]`, Attrs: linkAttrs},
				},
			},
			FieldAuthor: {
				scrape.PageTypeSocialPost: {
					author(`[data-testid="User-Name"]`),
					author(`[data-testid="UserName"]`),
					author(`h1[data-testid="UserName"]`),
					author(`div[data-testid="UserName"]`),
				},
				scrape.PageTypeNewsArticle: {
					author(`.author-name`),
					author(`.byline`),
					author(`[itemprop="author"]`),
					author(`.article-author`),
					author(`.post-author`),
					author(`.story-author`),
					author(`.author`),
					author(`.writer`),
					author(`.byline-author`),
				},
				scrape.PageTypeUnknown: {
					author(`[data-testid="User-Name"]`),
					author(`[data-testid="UserName"]`),
					author(`h1[data-testid="UserName"]`),
					author(`div[data-testid="UserName"]`),
					author(`.author`),
					author(`.byline`),
					author(`.article-author`),
					author(`.story-author`),
					author(`.post-author`),
					author(`.writer`),
					author(`.author-name`),
					author(`.byline-author`),
				},
			},
			FieldAuthorMeta: {
				scrape.PageTypeUnknown: {
					{Query: `meta[name="author"]`, Attrs: []string{"content"}},
					{Query: `meta[property="article:author"]`, Attrs: []string{"content"}},
				},
			},
			FieldTimestamp: {
				scrape.PageTypeUnknown: {
					{Query: `time`, Attrs: timestampAttrs},
					{Query: `time[datetime]`, Attrs: timestampAttrs},
					{Query: `.timestamp`, Attrs: timestampAttrs},
					{Query: `.publish-date`, Attrs: timestampAttrs},
					{Query: `.article-date`, Attrs: timestampAttrs},
					{Query: `.story-date`, Attrs: timestampAttrs},
					{Query: `.post-date`, Attrs: timestampAttrs},
					{Query: `.date`, Attrs: timestampAttrs},
					{Query: `meta[property="article:published_time"]`, Attrs: timestampAttrs},
					{Query: `meta[name="date"]`, Attrs: timestampAttrs},
				},
			},
		},
		metrics: []MetricRule{
			{Name: "retweets", Rule: Rule{Query: `[data-testid="retweet"]`, Attrs: metricAttrs}},
			{Name: "likes", Rule: Rule{Query: `[data-testid="like"]`, Attrs: metricAttrs}},
			{Name: "replies", Rule: Rule{Query: `[data-testid="reply"]`, Attrs: metricAttrs}},
		},
	}
}
