// Package youtubeapi is a typed client for the YouTube Data API v3.
package youtubeapi

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"gmbdash/server/pkg/googleapi"
)

// DefaultBaseURL is the production YouTube Data API.
const DefaultBaseURL = "https://www.googleapis.com/youtube/v3"

// ErrNoChannel is returned when the authorised Google account has no channel.
var ErrNoChannel = errors.New("youtube: account has no channel")

type Thumbnail struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type Channel struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	CustomURL         string    `json:"customUrl"`
	ThumbnailURL      string    `json:"thumbnailUrl"`
	PublishedAt       time.Time `json:"publishedAt"`
	SubscriberCount   int64     `json:"subscriberCount"`
	ViewCount         int64     `json:"viewCount"`
	VideoCount        int64     `json:"videoCount"`
	UploadsPlaylistID string    `json:"uploadsPlaylistId"`
}

type Video struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	ThumbnailURL string    `json:"thumbnailUrl"`
	PublishedAt  time.Time `json:"publishedAt"`
	ViewCount    int64     `json:"viewCount"`
	LikeCount    int64     `json:"likeCount"`
	CommentCount int64     `json:"commentCount"`
}

type Comment struct {
	ID          string    `json:"id"`
	VideoID     string    `json:"videoId"`
	Author      string    `json:"author"`
	AuthorImage string    `json:"authorImage"`
	Text        string    `json:"text"`
	LikeCount   int64     `json:"likeCount"`
	ReplyCount  int64     `json:"replyCount"`
	PublishedAt time.Time `json:"publishedAt"`
}

// statistics arrive as decimal strings.
type channelResource struct {
	ID      string `json:"id"`
	Snippet struct {
		Title       string               `json:"title"`
		Description string               `json:"description"`
		CustomURL   string               `json:"customUrl"`
		PublishedAt time.Time            `json:"publishedAt"`
		Thumbnails  map[string]Thumbnail `json:"thumbnails"`
	} `json:"snippet"`
	Statistics struct {
		ViewCount       int64 `json:"viewCount,string"`
		SubscriberCount int64 `json:"subscriberCount,string"`
		VideoCount      int64 `json:"videoCount,string"`
	} `json:"statistics"`
	ContentDetails struct {
		RelatedPlaylists struct {
			Uploads string `json:"uploads"`
		} `json:"relatedPlaylists"`
	} `json:"contentDetails"`
}

type videoResource struct {
	ID      string `json:"id"`
	Snippet struct {
		Title       string               `json:"title"`
		Description string               `json:"description"`
		PublishedAt time.Time            `json:"publishedAt"`
		Thumbnails  map[string]Thumbnail `json:"thumbnails"`
	} `json:"snippet"`
	Statistics struct {
		ViewCount    int64 `json:"viewCount,string"`
		LikeCount    int64 `json:"likeCount,string"`
		CommentCount int64 `json:"commentCount,string"`
	} `json:"statistics"`
}

type commentThreadResource struct {
	ID      string `json:"id"`
	Snippet struct {
		VideoID         string `json:"videoId"`
		TotalReplyCount int64  `json:"totalReplyCount"`
		TopLevelComment struct {
			Snippet struct {
				AuthorDisplayName     string    `json:"authorDisplayName"`
				AuthorProfileImageURL string    `json:"authorProfileImageUrl"`
				TextOriginal          string    `json:"textOriginal"`
				LikeCount             int64     `json:"likeCount"`
				PublishedAt           time.Time `json:"publishedAt"`
			} `json:"snippet"`
		} `json:"topLevelComment"`
	} `json:"snippet"`
}

// bestThumbnail prefers the larger renditions.
func bestThumbnail(t map[string]Thumbnail) string {
	for _, k := range []string{"high", "medium", "default"} {
		if th, ok := t[k]; ok {
			return th.URL
		}
	}
	return ""
}

type Client struct {
	t    *googleapi.Transport
	base string
}

func New(t *googleapi.Transport, baseURL string) *Client {
	return &Client{t: t, base: strings.TrimRight(baseURL, "/")}
}

// Channel returns the channel owned by the token's account.
func (c *Client) Channel(ctx context.Context, token string) (*Channel, error) {
	var resp struct {
		Items []channelResource `json:"items"`
	}
	err := c.t.Do(ctx, token, googleapi.Call{
		Operation: "channels.list",
		Method:    http.MethodGet,
		URL:       c.base + "/channels",
		Query:     url.Values{"part": {"snippet,statistics,contentDetails"}, "mine": {"true"}},
		Result:    &resp,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 {
		return nil, ErrNoChannel
	}
	r := resp.Items[0]
	return &Channel{
		ID:                r.ID,
		Title:             r.Snippet.Title,
		Description:       r.Snippet.Description,
		CustomURL:         r.Snippet.CustomURL,
		ThumbnailURL:      bestThumbnail(r.Snippet.Thumbnails),
		PublishedAt:       r.Snippet.PublishedAt,
		SubscriberCount:   r.Statistics.SubscriberCount,
		ViewCount:         r.Statistics.ViewCount,
		VideoCount:        r.Statistics.VideoCount,
		UploadsPlaylistID: r.ContentDetails.RelatedPlaylists.Uploads,
	}, nil
}

// Videos returns up to max recent uploads of playlist with their statistics.
func (c *Client) Videos(ctx context.Context, token, playlist string, max int) ([]Video, error) {
	if max <= 0 || max > 50 {
		max = 50
	}
	var items struct {
		Items []struct {
			ContentDetails struct {
				VideoID string `json:"videoId"`
			} `json:"contentDetails"`
		} `json:"items"`
	}
	err := c.t.Do(ctx, token, googleapi.Call{
		Operation: "playlistItems.list",
		Method:    http.MethodGet,
		URL:       c.base + "/playlistItems",
		Query:     url.Values{"part": {"contentDetails"}, "playlistId": {playlist}, "maxResults": {strconv.Itoa(max)}},
		Result:    &items,
	})
	if err != nil {
		return nil, err
	}
	if len(items.Items) == 0 {
		return []Video{}, nil
	}

	ids := make([]string, 0, len(items.Items))
	for _, it := range items.Items {
		ids = append(ids, it.ContentDetails.VideoID)
	}
	var videos struct {
		Items []videoResource `json:"items"`
	}
	err = c.t.Do(ctx, token, googleapi.Call{
		Operation: "videos.list",
		Method:    http.MethodGet,
		URL:       c.base + "/videos",
		Query:     url.Values{"part": {"snippet,statistics"}, "id": {strings.Join(ids, ",")}},
		Result:    &videos,
	})
	if err != nil {
		return nil, err
	}
	out := make([]Video, 0, len(videos.Items))
	for _, v := range videos.Items {
		out = append(out, Video{
			ID:           v.ID,
			Title:        v.Snippet.Title,
			Description:  v.Snippet.Description,
			ThumbnailURL: bestThumbnail(v.Snippet.Thumbnails),
			PublishedAt:  v.Snippet.PublishedAt,
			ViewCount:    v.Statistics.ViewCount,
			LikeCount:    v.Statistics.LikeCount,
			CommentCount: v.Statistics.CommentCount,
		})
	}
	return out, nil
}

// Comments returns recent top-level comments across every video of channel.
func (c *Client) Comments(ctx context.Context, token, channel string, max int) ([]Comment, error) {
	if max <= 0 || max > 100 {
		max = 100
	}
	var resp struct {
		Items []commentThreadResource `json:"items"`
	}
	err := c.t.Do(ctx, token, googleapi.Call{
		Operation: "commentThreads.list",
		Method:    http.MethodGet,
		URL:       c.base + "/commentThreads",
		Query: url.Values{
			"part":                         {"snippet"},
			"allThreadsRelatedToChannelId": {channel},
			"order":                        {"time"},
			"maxResults":                   {strconv.Itoa(max)},
		},
		Result: &resp,
	})
	if err != nil {
		return nil, err
	}
	out := make([]Comment, 0, len(resp.Items))
	for _, th := range resp.Items {
		s := th.Snippet.TopLevelComment.Snippet
		out = append(out, Comment{
			ID:          th.ID,
			VideoID:     th.Snippet.VideoID,
			Author:      s.AuthorDisplayName,
			AuthorImage: s.AuthorProfileImageURL,
			Text:        s.TextOriginal,
			LikeCount:   s.LikeCount,
			ReplyCount:  th.Snippet.TotalReplyCount,
			PublishedAt: s.PublishedAt,
		})
	}
	return out, nil
}
