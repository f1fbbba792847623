package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"

	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/config"
	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/logging"
	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/router"
)

const (
	newsAPIURL      = "https://newsapi.org/v2/top-headlines"
	worldFeedURL    = "https://news.google.com/rss?hl=en-US&gl=US&ceid=US:en"
	nationalFeedFmt = "https://news.google.com/rss/headlines/section/geo/%s?hl=en-US&gl=US&ceid=US:en"

	newsBullets    = 7
	maxPromptChars = 12000
	newsTimeout    = 15 * time.Second

	// NoNewsResponse is returned when no source produced headlines.
	NoNewsResponse = "Couldn't fetch news right now."
)

// NewsFetcher gathers headlines from NewsAPI and Google News RSS and has the
// model condense them.
type NewsFetcher struct {
	cfg        config.NewsConfig
	summarizer router.Answerer
	client     *http.Client
	log        *logging.Logger

	apiURL       string
	worldFeed    string
	nationalFeed string
}

// NewNewsFetcher creates a fetcher. summarizer may be nil, in which case the
// raw headline list is returned.
func NewNewsFetcher(cfg config.NewsConfig, summarizer router.Answerer, log *logging.Logger) *NewsFetcher {
	if log == nil {
		log = logging.Nop()
	}
	return &NewsFetcher{
		cfg:          cfg,
		summarizer:   summarizer,
		client:       &http.Client{Timeout: newsTimeout},
		log:          log.WithComponent("news"),
		apiURL:       newsAPIURL,
		worldFeed:    worldFeedURL,
		nationalFeed: fmt.Sprintf(nationalFeedFmt, strings.ToUpper(cfg.Country)),
	}
}

// Headlines returns a bullet summary for scope.
func (n *NewsFetcher) Headlines(ctx context.Context, scope router.NewsScope) (string, error) {
	country, feed := "us", n.worldFeed
	if scope == router.NewsNational {
		country, feed = n.cfg.Country, n.nationalFeed
	}

	var apiText, rssText string
	var g errgroup.Group
	g.Go(func() error {
		text, err := n.fetchNewsAPI(ctx, country)
		if err != nil {
			n.log.Warn("newsapi: %v", err)
			return nil
		}
		apiText = text
		return nil
	})
	g.Go(func() error {
		text, err := n.fetchRSS(ctx, feed)
		if err != nil {
			n.log.Warn("rss %s: %v", feed, err)
			return nil
		}
		rssText = text
		return nil
	})
	_ = g.Wait()

	text := apiText
	if text == "" {
		text = rssText
	}
	if text == "" {
		return NoNewsResponse, nil
	}
	return n.summarize(ctx, text), nil
}

func (n *NewsFetcher) summarize(ctx context.Context, text string) string {
	if n.summarizer == nil {
		return text
	}
	prompt := fmt.Sprintf("Summarize the following news items into %d concise bullet points:\n\n%s",
		newsBullets, truncate(text, maxPromptChars))
	out, err := n.summarizer.Generate(ctx, prompt)
	if err != nil || strings.TrimSpace(out) == "" {
		if err != nil {
			n.log.Warn("summarize headlines: %v", err)
		}
		return text
	}
	return out
}

type newsAPIResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Articles []struct {
		Title  string `json:"title"`
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
	} `json:"articles"`
}

func (n *NewsFetcher) fetchNewsAPI(ctx context.Context, country string) (string, error) {
	if n.cfg.APIKey == "" {
		return "", nil
	}
	q := url.Values{}
	q.Set("country", strings.ToLower(country))
	q.Set("category", "general")
	q.Set("pageSize", strconv.Itoa(n.cfg.PageSize))
	q.Set("apiKey", n.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.apiURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var body newsAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, body.Message)
	}

	lines := make([]string, 0, len(body.Articles))
	for _, a := range body.Articles {
		title := a.Title
		if title == "" {
			title = "(no title)"
		}
		lines = append(lines, fmt.Sprintf("- %s (%s)", title, a.Source.Name))
	}
	return strings.Join(lines, "\n"), nil
}

func (n *NewsFetcher) fetchRSS(ctx context.Context, feedURL string) (string, error) {
	fp := gofeed.NewParser()
	fp.Client = n.client
	feed, err := fp.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return "", err
	}

	var lines []string
	for _, item := range feed.Items {
		if len(lines) == n.cfg.PageSize {
			break
		}
		if item.Title == "" {
			continue
		}
		lines = append(lines, "- "+item.Title)
	}
	return strings.Join(lines, "\n"), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
