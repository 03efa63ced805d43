package gmb

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"gmbdash/server/internal/db"
)

// MaxReplyLength is Google's limit for review replies and answers.
const MaxReplyLength = 4096

func validateText(field, text string) error {
	return validation.Errors{
		field: validation.Validate(strings.TrimSpace(text), validation.Required, validation.RuneLength(1, MaxReplyLength)),
	}.Filter()
}

// ReplyToReview publishes an owner reply and mirrors it locally.
func (s *Service) ReplyToReview(ctx context.Context, userID, reviewID, text string) (*db.GMBReview, error) {
	if err := validateText("comment", text); err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)

	rev, err := s.store.GetReview(userID, reviewID)
	if err != nil {
		return nil, err
	}
	t, err := s.resolve(ctx, userID, rev.LocationID)
	if err != nil {
		return nil, err
	}
	reply, err := s.gbp.UpdateReply(ctx, t.token, reviewName(t, rev.ReviewID), text)
	if err != nil {
		return nil, errors.Wrap(err, "update reply")
	}

	at := s.now()
	if !reply.UpdateTime.IsZero() {
		at = reply.UpdateTime
	}
	if err := s.store.SetReviewReply(userID, rev.ID, text, at); err != nil {
		return nil, err
	}
	rev.ReplyText, rev.ReplyTime, rev.Status = &text, &at, db.ReviewReplied

	s.activity(userID, "review_replied", "Replied to a review by "+rev.ReviewerName,
		map[string]any{"review_id": rev.ID, "rating": rev.Rating})
	return rev, nil
}

// DeleteReply removes the owner reply at Google and locally.
func (s *Service) DeleteReply(ctx context.Context, userID, reviewID string) (*db.GMBReview, error) {
	rev, err := s.store.GetReview(userID, reviewID)
	if err != nil {
		return nil, err
	}
	t, err := s.resolve(ctx, userID, rev.LocationID)
	if err != nil {
		return nil, err
	}
	if err := s.gbp.DeleteReply(ctx, t.token, reviewName(t, rev.ReviewID)); err != nil {
		return nil, errors.Wrap(err, "delete reply")
	}
	if err := s.store.ClearReviewReply(userID, rev.ID, s.now()); err != nil {
		return nil, err
	}
	rev.ReplyText, rev.ReplyTime, rev.Status = nil, nil, db.ReviewPending

	s.activity(userID, "review_reply_deleted", "Deleted the reply to a review by "+rev.ReviewerName,
		map[string]any{"review_id": rev.ID})
	return rev, nil
}

// AnswerQuestion posts the owner's answer to a customer question.
func (s *Service) AnswerQuestion(ctx context.Context, userID, questionID, text string) (*db.GMBQuestion, error) {
	if err := validateText("answer", text); err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)

	q, err := s.store.GetQuestion(userID, questionID)
	if err != nil {
		return nil, err
	}
	t, err := s.resolve(ctx, userID, q.LocationID)
	if err != nil {
		return nil, err
	}
	if _, err := s.gbp.UpsertAnswer(ctx, t.token, q.QuestionName, text); err != nil {
		return nil, errors.Wrap(err, "upsert answer")
	}

	at := s.now()
	if err := s.store.SetAnswer(userID, q.ID, text, at); err != nil {
		return nil, err
	}
	q.AnswerText, q.AnsweredAt, q.AnswerStatus = &text, &at, db.AnswerAnswered

	s.activity(userID, "question_answered", "Answered a question on "+t.location.Title,
		map[string]any{"question_id": q.ID})
	return q, nil
}
