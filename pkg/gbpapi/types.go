package gbpapi

import (
	"fmt"
	"strings"
	"time"
)

type Account struct {
	Name              string `json:"name"`
	AccountName       string `json:"accountName"`
	Type              string `json:"type"`
	Role              string `json:"role"`
	VerificationState string `json:"verificationState"`
}

type PostalAddress struct {
	RegionCode         string   `json:"regionCode"`
	PostalCode         string   `json:"postalCode"`
	AdministrativeArea string   `json:"administrativeArea"`
	Locality           string   `json:"locality"`
	AddressLines       []string `json:"addressLines"`
}

// Formatted joins the address into one display line.
func (a PostalAddress) Formatted() string {
	parts := append([]string{}, a.AddressLines...)
	for _, p := range []string{a.Locality, a.AdministrativeArea, a.PostalCode, a.RegionCode} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

type Category struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

type Location struct {
	Name              string        `json:"name"`
	Title             string        `json:"title"`
	StorefrontAddress PostalAddress `json:"storefrontAddress"`
	PhoneNumbers      struct {
		PrimaryPhone string `json:"primaryPhone"`
	} `json:"phoneNumbers"`
	WebsiteURI string `json:"websiteUri"`
	Categories struct {
		PrimaryCategory Category `json:"primaryCategory"`
	} `json:"categories"`
	Metadata struct {
		MapsURI      string `json:"mapsUri"`
		PlaceID      string `json:"placeId"`
		NewReviewURI string `json:"newReviewUri"`
	} `json:"metadata"`
}

// LocationReadMask is the field mask sent when listing locations.
const LocationReadMask = "name,title,storefrontAddress,phoneNumbers,websiteUri,categories,metadata"

type Reviewer struct {
	DisplayName     string `json:"displayName"`
	ProfilePhotoURL string `json:"profilePhotoUrl"`
	IsAnonymous     bool   `json:"isAnonymous"`
}

type ReviewReply struct {
	Comment    string    `json:"comment"`
	UpdateTime time.Time `json:"updateTime"`
}

type Review struct {
	Name        string       `json:"name"`
	ReviewID    string       `json:"reviewId"`
	Reviewer    Reviewer     `json:"reviewer"`
	StarRating  string       `json:"starRating"`
	Comment     string       `json:"comment"`
	CreateTime  time.Time    `json:"createTime"`
	UpdateTime  time.Time    `json:"updateTime"`
	ReviewReply *ReviewReply `json:"reviewReply,omitempty"`
}

var starRatings = map[string]int{"ONE": 1, "TWO": 2, "THREE": 3, "FOUR": 4, "FIVE": 5}

// Rating converts the enum star rating to 1–5, or 0 when unspecified.
func (r Review) Rating() int {
	return starRatings[r.StarRating]
}

type CallToAction struct {
	ActionType string `json:"actionType"`
	URL        string `json:"url,omitempty"`
}

type Date struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

type TimeOfDay struct {
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
}

type TimeInterval struct {
	StartDate Date      `json:"startDate"`
	StartTime TimeOfDay `json:"startTime"`
	EndDate   Date      `json:"endDate"`
	EndTime   TimeOfDay `json:"endTime"`
}

// Interval converts a UTC start and end into the API's split date/time shape.
func Interval(start, end time.Time) TimeInterval {
	start, end = start.UTC(), end.UTC()
	return TimeInterval{
		StartDate: Date{start.Year(), int(start.Month()), start.Day()},
		StartTime: TimeOfDay{start.Hour(), start.Minute()},
		EndDate:   Date{end.Year(), int(end.Month()), end.Day()},
		EndTime:   TimeOfDay{end.Hour(), end.Minute()},
	}
}

type LocalPostEvent struct {
	Title    string       `json:"title"`
	Schedule TimeInterval `json:"schedule"`
}

type MediaRef struct {
	MediaFormat string `json:"mediaFormat"`
	SourceURL   string `json:"sourceUrl,omitempty"`
	GoogleURL   string `json:"googleUrl,omitempty"`
}

type LocalPost struct {
	Name         string          `json:"name,omitempty"`
	LanguageCode string          `json:"languageCode,omitempty"`
	Summary      string          `json:"summary"`
	TopicType    string          `json:"topicType"`
	CallToAction *CallToAction   `json:"callToAction,omitempty"`
	Event        *LocalPostEvent `json:"event,omitempty"`
	Media        []MediaRef      `json:"media,omitempty"`
	State        string          `json:"state,omitempty"`
	CreateTime   *time.Time      `json:"createTime,omitempty"`
	UpdateTime   *time.Time      `json:"updateTime,omitempty"`
	SearchURL    string          `json:"searchUrl,omitempty"`
}

type MediaItem struct {
	Name                string `json:"name,omitempty"`
	MediaFormat         string `json:"mediaFormat"`
	LocationAssociation struct {
		Category string `json:"category,omitempty"`
	} `json:"locationAssociation"`
	GoogleURL    string     `json:"googleUrl,omitempty"`
	ThumbnailURL string     `json:"thumbnailUrl,omitempty"`
	SourceURL    string     `json:"sourceUrl,omitempty"`
	CreateTime   *time.Time `json:"createTime,omitempty"`
}

type Author struct {
	DisplayName     string `json:"displayName"`
	ProfilePhotoURI string `json:"profilePhotoUri"`
	Type            string `json:"type"`
}

type Answer struct {
	Name        string    `json:"name"`
	Author      Author    `json:"author"`
	Text        string    `json:"text"`
	UpvoteCount int       `json:"upvoteCount"`
	CreateTime  time.Time `json:"createTime"`
	UpdateTime  time.Time `json:"updateTime"`
}

type Question struct {
	Name             string    `json:"name"`
	Author           Author    `json:"author"`
	Text             string    `json:"text"`
	UpvoteCount      int       `json:"upvoteCount"`
	CreateTime       time.Time `json:"createTime"`
	UpdateTime       time.Time `json:"updateTime"`
	TopAnswers       []Answer  `json:"topAnswers"`
	TotalAnswerCount int       `json:"totalAnswerCount"`
}

// MerchantAnswer returns the newest answer written by the business owner.
func (q Question) MerchantAnswer() *Answer {
	var best *Answer
	for i := range q.TopAnswers {
		a := &q.TopAnswers[i]
		if a.Author.Type != "MERCHANT" {
			continue
		}
		if best == nil || a.UpdateTime.After(best.UpdateTime) {
			best = a
		}
	}
	return best
}

// DatedValue is one day of a performance metric.
type DatedValue struct {
	Date  time.Time `json:"date"`
	Value int64     `json:"value"`
}

// Performance metrics requested for the location dashboard.
var DefaultDailyMetrics = []string{
	"BUSINESS_IMPRESSIONS_DESKTOP_MAPS",
	"BUSINESS_IMPRESSIONS_DESKTOP_SEARCH",
	"BUSINESS_IMPRESSIONS_MOBILE_MAPS",
	"BUSINESS_IMPRESSIONS_MOBILE_SEARCH",
	"CALL_CLICKS",
	"WEBSITE_CLICKS",
	"BUSINESS_DIRECTION_REQUESTS",
}

type UserInfo struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// locationID strips any "accounts/{a}/" prefix and returns "{n}" from "locations/{n}".
func locationID(name string) string {
	if i := strings.LastIndex(name, "locations/"); i >= 0 {
		return name[i+len("locations/"):]
	}
	return name
}

// v4LocationPath builds the v4 resource path accounts/{a}/locations/{l}.
func v4LocationPath(account, location string) string {
	return fmt.Sprintf("%s/locations/%s", account, locationID(location))
}
