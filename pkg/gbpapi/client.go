// Package gbpapi is a typed client for the Google Business Profile REST APIs
// (account management, business information, v4 reviews/posts/media, Q&A
// and performance).
package gbpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/tidwall/gjson"

	"gmbdash/server/pkg/googleapi"
)

const maxPages = 20

// Endpoints are the base URLs of the APIs the client talks to.
type Endpoints struct {
	Accounts     string
	BusinessInfo string
	V4           string
	QAndA        string
	Performance  string
	UserInfo     string
}

// DefaultEndpoints are Google's production hosts.
var DefaultEndpoints = Endpoints{
	Accounts:     "https://mybusinessaccountmanagement.googleapis.com/v1",
	BusinessInfo: "https://mybusinessbusinessinformation.googleapis.com/v1",
	V4:           "https://mybusiness.googleapis.com/v4",
	QAndA:        "https://mybusinessqanda.googleapis.com/v1",
	Performance:  "https://businessprofileperformance.googleapis.com/v1",
	UserInfo:     "https://www.googleapis.com/oauth2/v2/userinfo",
}

// SingleHost points every endpoint at base, for tests.
func SingleHost(base string) Endpoints {
	return Endpoints{
		Accounts:     base + "/accounts-api/v1",
		BusinessInfo: base + "/info-api/v1",
		V4:           base + "/v4",
		QAndA:        base + "/qanda-api/v1",
		Performance:  base + "/perf-api/v1",
		UserInfo:     base + "/oauth2/v2/userinfo",
	}
}

// Client is safe for concurrent use; each call carries the caller's token.
type Client struct {
	t  *googleapi.Transport
	ep Endpoints
}

func New(t *googleapi.Transport, ep Endpoints) *Client {
	return &Client{t: t, ep: ep}
}

// listAll follows nextPageToken, decoding the array under key of every page.
func listAll[T any](ctx context.Context, c *Client, token, op, u string, q url.Values, key string) ([]T, error) {
	var out []T
	if q == nil {
		q = url.Values{}
	}
	for page := 0; page < maxPages; page++ {
		body, err := c.t.Raw(ctx, token, googleapi.Call{Operation: op, Method: http.MethodGet, URL: u, Query: q})
		if err != nil {
			return nil, err
		}
		if raw := gjson.GetBytes(body, key); raw.Exists() {
			var items []T
			if err := json.Unmarshal([]byte(raw.Raw), &items); err != nil {
				return nil, errors.Wrapf(err, "decode %s", op)
			}
			out = append(out, items...)
		}
		next := gjson.GetBytes(body, "nextPageToken").String()
		if next == "" {
			return out, nil
		}
		q.Set("pageToken", next)
	}
	return out, nil
}

func (c *Client) ListAccounts(ctx context.Context, token string) ([]Account, error) {
	return listAll[Account](ctx, c, token, "accounts.list", c.ep.Accounts+"/accounts",
		url.Values{"pageSize": {"20"}}, "accounts")
}

// ListLocations lists the locations of account ("accounts/{n}").
func (c *Client) ListLocations(ctx context.Context, token, account string) ([]Location, error) {
	return listAll[Location](ctx, c, token, "locations.list", c.ep.BusinessInfo+"/"+account+"/locations",
		url.Values{"pageSize": {"100"}, "readMask": {LocationReadMask}}, "locations")
}

// ReviewList is every review of a location plus Google's own summary.
type ReviewList struct {
	Reviews          []Review
	AverageRating    float64
	TotalReviewCount int
}

func (c *Client) ListReviews(ctx context.Context, token, account, location string) (*ReviewList, error) {
	u := c.ep.V4 + "/" + v4LocationPath(account, location) + "/reviews"
	q := url.Values{"pageSize": {"50"}}
	list := &ReviewList{}
	for page := 0; page < maxPages; page++ {
		body, err := c.t.Raw(ctx, token, googleapi.Call{Operation: "reviews.list", Method: http.MethodGet, URL: u, Query: q})
		if err != nil {
			return nil, err
		}
		res := gjson.ParseBytes(body)
		if raw := res.Get("reviews"); raw.Exists() {
			var items []Review
			if err := json.Unmarshal([]byte(raw.Raw), &items); err != nil {
				return nil, errors.Wrap(err, "decode reviews")
			}
			list.Reviews = append(list.Reviews, items...)
		}
		if page == 0 {
			list.AverageRating = res.Get("averageRating").Float()
			list.TotalReviewCount = int(res.Get("totalReviewCount").Int())
		}
		next := res.Get("nextPageToken").String()
		if next == "" {
			break
		}
		q.Set("pageToken", next)
	}
	return list, nil
}

// UpdateReply creates or replaces the owner reply of review (its full
// resource name).
func (c *Client) UpdateReply(ctx context.Context, token, review, comment string) (*ReviewReply, error) {
	var out ReviewReply
	err := c.t.Do(ctx, token, googleapi.Call{
		Operation: "reviews.updateReply",
		Method:    http.MethodPut,
		URL:       c.ep.V4 + "/" + review + "/reply",
		Body:      map[string]string{"comment": comment},
		Result:    &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteReply(ctx context.Context, token, review string) error {
	return c.t.Do(ctx, token, googleapi.Call{
		Operation: "reviews.deleteReply",
		Method:    http.MethodDelete,
		URL:       c.ep.V4 + "/" + review + "/reply",
	})
}

func (c *Client) ListLocalPosts(ctx context.Context, token, account, location string) ([]LocalPost, error) {
	return listAll[LocalPost](ctx, c, token, "localPosts.list",
		c.ep.V4+"/"+v4LocationPath(account, location)+"/localPosts",
		url.Values{"pageSize": {"100"}}, "localPosts")
}

func (c *Client) CreateLocalPost(ctx context.Context, token, account, location string, post LocalPost) (*LocalPost, error) {
	var out LocalPost
	err := c.t.Do(ctx, token, googleapi.Call{
		Operation: "localPosts.create",
		Method:    http.MethodPost,
		URL:       c.ep.V4 + "/" + v4LocationPath(account, location) + "/localPosts",
		Body:      post,
		Result:    &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteLocalPost removes a post by its full resource name.
func (c *Client) DeleteLocalPost(ctx context.Context, token, post string) error {
	return c.t.Do(ctx, token, googleapi.Call{
		Operation: "localPosts.delete",
		Method:    http.MethodDelete,
		URL:       c.ep.V4 + "/" + post,
	})
}

func (c *Client) ListMedia(ctx context.Context, token, account, location string) ([]MediaItem, error) {
	return listAll[MediaItem](ctx, c, token, "media.list",
		c.ep.V4+"/"+v4LocationPath(account, location)+"/media",
		url.Values{"pageSize": {"100"}}, "mediaItems")
}

// CreateMedia registers item, whose SourceURL Google fetches itself.
func (c *Client) CreateMedia(ctx context.Context, token, account, location string, item MediaItem) (*MediaItem, error) {
	var out MediaItem
	err := c.t.Do(ctx, token, googleapi.Call{
		Operation: "media.create",
		Method:    http.MethodPost,
		URL:       c.ep.V4 + "/" + v4LocationPath(account, location) + "/media",
		Body:      item,
		Result:    &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListQuestions(ctx context.Context, token, location string) ([]Question, error) {
	return listAll[Question](ctx, c, token, "questions.list",
		c.ep.QAndA+"/locations/"+locationID(location)+"/questions",
		url.Values{"pageSize": {"10"}, "answersPerQuestion": {"10"}}, "questions")
}

// UpsertAnswer sets the owner's answer to question (its full resource name).
func (c *Client) UpsertAnswer(ctx context.Context, token, question, text string) (*Answer, error) {
	var out Answer
	err := c.t.Do(ctx, token, googleapi.Call{
		Operation: "answers.upsert",
		Method:    http.MethodPost,
		URL:       c.ep.QAndA + "/" + question + "/answers:upsert",
		Body:      map[string]any{"answer": map[string]string{"text": text}},
		Result:    &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchDailyMetrics returns one series per requested metric for the
// inclusive day range [from, to].
func (c *Client) FetchDailyMetrics(ctx context.Context, token, location string, metrics []string, from, to time.Time) (map[string][]DatedValue, error) {
	q := url.Values{"dailyMetrics": metrics}
	setDate(q, "dailyRange.start_date", from)
	setDate(q, "dailyRange.end_date", to)

	body, err := c.t.Raw(ctx, token, googleapi.Call{
		Operation: "performance.fetchMultiDailyMetricsTimeSeries",
		Method:    http.MethodGet,
		URL:       c.ep.Performance + "/locations/" + locationID(location) + ":fetchMultiDailyMetricsTimeSeries",
		Query:     q,
	})
	if err != nil {
		return nil, err
	}
	return parseDailyMetrics(body), nil
}

func setDate(q url.Values, prefix string, t time.Time) {
	t = t.UTC()
	q.Set(prefix+".year", strconv.Itoa(t.Year()))
	q.Set(prefix+".month", strconv.Itoa(int(t.Month())))
	q.Set(prefix+".day", strconv.Itoa(t.Day()))
}

// parseDailyMetrics flattens multiDailyMetricTimeSeries. Values arrive as
// int64 strings and are omitted on zero days.
func parseDailyMetrics(body []byte) map[string][]DatedValue {
	out := map[string][]DatedValue{}
	gjson.GetBytes(body, "multiDailyMetricTimeSeries.#.dailyMetricTimeSeries|@flatten").ForEach(func(_, series gjson.Result) bool {
		metric := series.Get("dailyMetric").String()
		values := out[metric]
		series.Get("timeSeries.datedValues").ForEach(func(_, dv gjson.Result) bool {
			d := dv.Get("date")
			values = append(values, DatedValue{
				Date:  time.Date(int(d.Get("year").Int()), time.Month(d.Get("month").Int()), int(d.Get("day").Int()), 0, 0, 0, 0, time.UTC),
				Value: dv.Get("value").Int(),
			})
			return true
		})
		out[metric] = values
		return true
	})
	return out
}

// GetUserInfo returns the Google identity behind token.
func (c *Client) GetUserInfo(ctx context.Context, token string) (*UserInfo, error) {
	var out UserInfo
	if err := c.t.Do(ctx, token, googleapi.Call{
		Operation: "userinfo.get",
		Method:    http.MethodGet,
		URL:       c.ep.UserInfo,
		Result:    &out,
	}); err != nil {
		return nil, err
	}
	return &out, nil
}
