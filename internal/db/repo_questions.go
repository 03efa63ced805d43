package db

import (
	"time"

	"gorm.io/gorm/clause"
)

// UpsertQuestions stores synced questions keyed by (user_id, question_name).
func (r *Repository) UpsertQuestions(questions []GMBQuestion) error {
	if len(questions) == 0 {
		return nil
	}
	for i := range questions {
		if questions[i].AnswerText != nil && *questions[i].AnswerText != "" {
			questions[i].AnswerStatus = AnswerAnswered
		} else {
			questions[i].AnswerStatus = AnswerPending
		}
	}
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "question_name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"text", "author_name", "upvote_count", "answer_text", "answer_status",
			"answered_at", "updated_at",
		}),
	}).Create(&questions).Error
}

func (r *Repository) ListQuestions(userID, locationID, status string, page Page) ([]GMBQuestion, error) {
	q := r.db.Where("user_id = ?", userID)
	if locationID != "" {
		q = q.Where("location_id = ?", locationID)
	}
	if status != "" {
		q = q.Where("answer_status = ?", status)
	}
	var questions []GMBQuestion
	err := page.apply(q.Order("asked_at DESC")).Find(&questions).Error
	return questions, err
}

func (r *Repository) GetQuestion(userID, id string) (*GMBQuestion, error) {
	var question GMBQuestion
	if err := r.db.Where("user_id = ? AND id = ?", userID, id).First(&question).Error; err != nil {
		return nil, notFound(err)
	}
	return &question, nil
}

func (r *Repository) SetAnswer(userID, id, text string, at time.Time) error {
	res := r.db.Model(&GMBQuestion{}).Where("user_id = ? AND id = ?", userID, id).Updates(map[string]any{
		"answer_text":   text,
		"answer_status": AnswerAnswered,
		"answered_at":   at,
		"updated_at":    at,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
