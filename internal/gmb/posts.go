package gmb

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/go-faster/errors"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"

	"gmbdash/server/internal/db"
	"gmbdash/server/pkg/googleapi"
)

// Post topic types accepted by Google.
const (
	TopicStandard = "STANDARD"
	TopicEvent    = "EVENT"
	TopicOffer    = "OFFER"
)

const (
	maxSummaryLength = 1500
	duePostBatch     = 50
)

var ctaTypes = []any{"BOOK", "ORDER", "SHOP", "LEARN_MORE", "SIGN_UP", "CALL"}

// PostInput is a new post. A ScheduledAt in the future queues it; Draft
// keeps it local; otherwise it is published immediately.
type PostInput struct {
	LocationID  string     `json:"location_id"`
	TopicType   string     `json:"topic_type"`
	Summary     string     `json:"summary"`
	MediaURL    string     `json:"media_url"`
	CTAType     string     `json:"cta_type"`
	CTAURL      string     `json:"cta_url"`
	EventTitle  string     `json:"event_title"`
	EventStart  *time.Time `json:"event_start"`
	EventEnd    *time.Time `json:"event_end"`
	ScheduledAt *time.Time `json:"scheduled_at"`
	Draft       bool       `json:"draft"`
}

func (in PostInput) validate(now time.Time) error {
	isEvent := in.TopicType == TopicEvent || in.TopicType == TopicOffer
	return validation.ValidateStruct(&in,
		validation.Field(&in.LocationID, validation.Required, is.UUID),
		validation.Field(&in.TopicType, validation.In(TopicStandard, TopicEvent, TopicOffer)),
		validation.Field(&in.Summary, validation.Required, validation.RuneLength(1, maxSummaryLength)),
		validation.Field(&in.MediaURL, is.URL),
		validation.Field(&in.CTAType, validation.In(ctaTypes...)),
		validation.Field(&in.CTAURL,
			validation.When(in.CTAType != "" && in.CTAType != "CALL", validation.Required, is.URL)),
		validation.Field(&in.EventTitle, validation.When(isEvent, validation.Required, validation.RuneLength(1, 58))),
		validation.Field(&in.EventStart, validation.When(isEvent, validation.Required)),
		validation.Field(&in.EventEnd, validation.When(isEvent, validation.Required),
			validation.By(func(any) error {
				if in.EventStart != nil && in.EventEnd != nil && !in.EventEnd.After(*in.EventStart) {
					return errors.New("must be after event_start")
				}
				return nil
			})),
		validation.Field(&in.ScheduledAt, validation.By(func(any) error {
			if in.ScheduledAt != nil && !in.ScheduledAt.After(now) {
				return errors.New("must be in the future")
			}
			return nil
		})),
	)
}

// CreatePost stores a post and publishes it unless it is a draft or
// scheduled for later.
func (s *Service) CreatePost(ctx context.Context, userID string, in PostInput) (*db.GMBPost, error) {
	if in.TopicType == "" {
		in.TopicType = TopicStandard
	}
	in.Summary = strings.TrimSpace(in.Summary)
	now := s.now()
	if err := in.validate(now); err != nil {
		return nil, err
	}

	t, err := s.resolve(ctx, userID, in.LocationID)
	if err != nil {
		return nil, err
	}

	post := &db.GMBPost{
		ID:          uuid.NewString(),
		UserID:      userID,
		LocationID:  t.location.ID,
		TopicType:   in.TopicType,
		Summary:     in.Summary,
		MediaURL:    in.MediaURL,
		CTAType:     in.CTAType,
		CTAURL:      in.CTAURL,
		EventTitle:  in.EventTitle,
		EventStart:  in.EventStart,
		EventEnd:    in.EventEnd,
		ScheduledAt: in.ScheduledAt,
		Status:      db.PostDraft,
	}
	if in.ScheduledAt != nil {
		post.Status = db.PostScheduled
	}
	if err := s.store.CreatePost(post); err != nil {
		return nil, err
	}

	switch post.Status {
	case db.PostScheduled:
		s.activity(userID, "post_scheduled", "Scheduled a post for "+in.ScheduledAt.UTC().Format(time.RFC1123),
			map[string]any{"post_id": post.ID})
		return post, nil
	case db.PostDraft:
		if in.Draft {
			return post, nil
		}
	}

	if err := s.publish(ctx, t, post); err != nil {
		return post, err
	}
	return post, nil
}

// publish pushes post to Google and records the outcome on the row.
func (s *Service) publish(ctx context.Context, t *target, post *db.GMBPost) error {
	if post.Status == db.PostPublished {
		return ErrPostNotEditable
	}
	remote, err := s.gbp.CreateLocalPost(ctx, t.token, t.account.AccountName, t.location.LocationName, localPost(post))
	now := s.now()
	if err != nil {
		post.Status, post.ErrorMessage = db.PostFailed, err.Error()
		if markErr := s.store.MarkPostFailed(post.ID, err.Error(), now); markErr != nil {
			log.Printf("[gmb] mark post %s failed: %v", post.ID, markErr)
		}
		s.activity(post.UserID, "post_failed", "A post could not be published", map[string]any{"post_id": post.ID, "error": err.Error()})
		return errors.Wrap(err, "publish post")
	}

	if err := s.store.MarkPostPublished(post.ID, remote.Name, remote.SearchURL, now); err != nil {
		return err
	}
	name := remote.Name
	post.PostName, post.SearchURL, post.Status, post.PublishedAt, post.ErrorMessage = &name, remote.SearchURL, db.PostPublished, &now, ""
	s.activity(post.UserID, "post_published", "Published a post on "+t.location.Title, map[string]any{"post_id": post.ID})
	return nil
}

// PublishDuePosts publishes every scheduled post whose time has come.
func (s *Service) PublishDuePosts(ctx context.Context) (published, failed int, err error) {
	posts, err := s.store.DuePosts(s.now(), duePostBatch)
	if err != nil {
		return 0, 0, errors.Wrap(err, "load due posts")
	}
	for i := range posts {
		post := &posts[i]
		t, err := s.resolve(ctx, post.UserID, post.LocationID)
		if err == nil {
			err = s.publish(ctx, t, post)
		} else if markErr := s.store.MarkPostFailed(post.ID, err.Error(), s.now()); markErr != nil {
			log.Printf("[gmb] mark post %s failed: %v", post.ID, markErr)
		}
		if err != nil {
			failed++
			log.Printf("[gmb] scheduled post %s: %v", post.ID, err)
			continue
		}
		published++
	}
	return published, failed, nil
}

// DeletePost removes the post at Google first, then locally. A post already
// gone at Google is still deleted locally.
func (s *Service) DeletePost(ctx context.Context, userID, postID string) error {
	post, err := s.store.GetPost(userID, postID)
	if err != nil {
		return err
	}
	if post.PostName != nil && *post.PostName != "" {
		t, err := s.resolve(ctx, userID, post.LocationID)
		if err != nil {
			return err
		}
		if err := s.gbp.DeleteLocalPost(ctx, t.token, *post.PostName); err != nil && !errors.Is(err, googleapi.ErrNotFound) {
			return errors.Wrap(err, "delete remote post")
		}
	}
	if err := s.store.DeletePost(userID, postID); err != nil {
		return err
	}
	s.activity(userID, "post_deleted", "Deleted a post", map[string]any{"post_id": postID})
	return nil
}
