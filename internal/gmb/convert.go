package gmb

import (
	"path"
	"time"

	"gmbdash/server/internal/analytics"
	"gmbdash/server/internal/db"
	"gmbdash/server/pkg/gbpapi"
)

func locationFromAPI(userID, accountID string, l gbpapi.Location) *db.GMBLocation {
	return &db.GMBLocation{
		UserID:       userID,
		GMBAccountID: accountID,
		LocationName: l.Name,
		Title:        l.Title,
		Address:      l.StorefrontAddress.Formatted(),
		Phone:        l.PhoneNumbers.PrimaryPhone,
		Website:      l.WebsiteURI,
		Category:     l.Categories.PrimaryCategory.DisplayName,
		MapsURI:      l.Metadata.MapsURI,
		Metadata: db.MustJSONB(map[string]string{
			"place_id":       l.Metadata.PlaceID,
			"new_review_uri": l.Metadata.NewReviewURI,
		}),
	}
}

func reviewFromAPI(userID, locationID string, r gbpapi.Review) db.GMBReview {
	rev := db.GMBReview{
		UserID:           userID,
		LocationID:       locationID,
		ReviewID:         r.ReviewID,
		ReviewerName:     r.Reviewer.DisplayName,
		ReviewerPhotoURL: r.Reviewer.ProfilePhotoURL,
		Rating:           r.Rating(),
		Comment:          r.Comment,
		ReviewTime:       r.CreateTime,
		Sentiment:        analytics.SentimentFor(r.Rating()),
	}
	if rev.ReviewID == "" {
		rev.ReviewID = path.Base(r.Name)
	}
	if r.ReviewReply != nil && r.ReviewReply.Comment != "" {
		text, at := r.ReviewReply.Comment, r.ReviewReply.UpdateTime
		rev.ReplyText, rev.ReplyTime = &text, &at
	}
	return rev
}

func postFromAPI(userID, locationID string, p gbpapi.LocalPost) db.GMBPost {
	name := p.Name
	post := db.GMBPost{
		UserID:      userID,
		LocationID:  locationID,
		PostName:    &name,
		TopicType:   p.TopicType,
		Summary:     p.Summary,
		Status:      db.PostPublished,
		PublishedAt: p.CreateTime,
		SearchURL:   p.SearchURL,
	}
	if post.TopicType == "" {
		post.TopicType = TopicStandard
	}
	if p.CallToAction != nil {
		post.CTAType, post.CTAURL = p.CallToAction.ActionType, p.CallToAction.URL
	}
	if len(p.Media) > 0 {
		post.MediaURL = p.Media[0].GoogleURL
	}
	if p.Event != nil {
		post.EventTitle = p.Event.Title
	}
	return post
}

func questionFromAPI(userID, locationID string, q gbpapi.Question) db.GMBQuestion {
	question := db.GMBQuestion{
		UserID:       userID,
		LocationID:   locationID,
		QuestionName: q.Name,
		Text:         q.Text,
		AuthorName:   q.Author.DisplayName,
		UpvoteCount:  q.UpvoteCount,
		AskedAt:      q.CreateTime,
	}
	if a := q.MerchantAnswer(); a != nil {
		text, at := a.Text, a.UpdateTime
		question.AnswerText, question.AnsweredAt = &text, &at
	}
	return question
}

func mediaFromAPI(userID, locationID string, m gbpapi.MediaItem) db.GMBMedia {
	created := time.Time{}
	if m.CreateTime != nil {
		created = *m.CreateTime
	}
	return db.GMBMedia{
		UserID:       userID,
		LocationID:   locationID,
		MediaName:    m.Name,
		MediaFormat:  m.MediaFormat,
		Category:     m.LocationAssociation.Category,
		GoogleURL:    m.GoogleURL,
		ThumbnailURL: m.ThumbnailURL,
		CreateTime:   created,
	}
}

// reviewName is the v4 resource name of a stored review.
func reviewName(t *target, reviewID string) string {
	return t.account.AccountName + "/locations/" + path.Base(t.location.LocationName) + "/reviews/" + reviewID
}

// localPost builds the API payload for a stored post.
func localPost(p *db.GMBPost) gbpapi.LocalPost {
	lp := gbpapi.LocalPost{
		LanguageCode: "en",
		Summary:      p.Summary,
		TopicType:    p.TopicType,
	}
	if p.CTAType != "" {
		lp.CallToAction = &gbpapi.CallToAction{ActionType: p.CTAType, URL: p.CTAURL}
	}
	if p.MediaURL != "" {
		lp.Media = []gbpapi.MediaRef{{MediaFormat: "PHOTO", SourceURL: p.MediaURL}}
	}
	if p.TopicType != TopicStandard && p.EventStart != nil && p.EventEnd != nil {
		lp.Event = &gbpapi.LocalPostEvent{Title: p.EventTitle, Schedule: gbpapi.Interval(*p.EventStart, *p.EventEnd)}
	}
	return lp
}
