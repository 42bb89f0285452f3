package duckduckgo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mkravchenko/mediarag/internal/core/domain"
)

const defaultBaseURL = "https://api.duckduckgo.com"

// Client queries the keyless DuckDuckGo instant-answer API. Results are
// the abstract plus related topics, mapped onto plain web results.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type instantAnswer struct {
	Heading       string         `json:"Heading"`
	AbstractText  string         `json:"AbstractText"`
	AbstractURL   string         `json:"AbstractURL"`
	RelatedTopics []relatedTopic `json:"RelatedTopics"`
}

type relatedTopic struct {
	Text     string         `json:"Text"`
	FirstURL string         `json:"FirstURL"`
	Topics   []relatedTopic `json:"Topics"`
}

func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]domain.WebResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("search query is required")
	}
	if maxResults <= 0 {
		maxResults = 5
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("no_html", "1")
	params.Set("skip_disambig", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("duckduckgo status: %s", resp.Status)
	}

	var answer instantAnswer
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return nil, fmt.Errorf("decode duckduckgo response: %w", err)
	}
	return collectResults(answer, maxResults), nil
}

func collectResults(answer instantAnswer, maxResults int) []domain.WebResult {
	out := make([]domain.WebResult, 0, maxResults)

	if answer.AbstractText != "" {
		title := answer.Heading
		if title == "" {
			title = answer.AbstractURL
		}
		out = append(out, domain.WebResult{
			Title:   title,
			URL:     answer.AbstractURL,
			Snippet: answer.AbstractText,
		})
	}

	for _, topic := range flattenTopics(answer.RelatedTopics) {
		if len(out) >= maxResults {
			break
		}
		if topic.Text == "" || topic.FirstURL == "" {
			continue
		}
		out = append(out, domain.WebResult{
			Title:   topicTitle(topic.Text),
			URL:     topic.FirstURL,
			Snippet: topic.Text,
		})
	}
	if len(out) > maxResults {
		out = out[:maxResults]
	}
	return out
}

// flattenTopics unwraps one level of category nesting in the related
// topics list.
func flattenTopics(topics []relatedTopic) []relatedTopic {
	out := make([]relatedTopic, 0, len(topics))
	for _, topic := range topics {
		if len(topic.Topics) > 0 {
			out = append(out, topic.Topics...)
			continue
		}
		out = append(out, topic)
	}
	return out
}

// topicTitle takes the leading clause of a related-topic text as its
// title; the API has no separate title field for topics.
func topicTitle(text string) string {
	if i := strings.Index(text, " - "); i > 0 {
		return text[:i]
	}
	if len(text) > 60 {
		return text[:60]
	}
	return text
}
