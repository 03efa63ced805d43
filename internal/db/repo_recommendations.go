package db

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReplaceWeekTasks swaps the user's pending tasks for the week with tasks.
// Completed and dismissed tasks are kept and not recreated.
func (r *Repository) ReplaceWeekTasks(userID string, week time.Time, tasks []WeeklyTaskRecommendation) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND week_start = ? AND status = ?", userID, week, TaskPending).
			Delete(&WeeklyTaskRecommendation{}).Error; err != nil {
			return err
		}
		if len(tasks) == 0 {
			return nil
		}
		for i := range tasks {
			tasks[i].UserID = userID
			tasks[i].WeekStart = week
			tasks[i].Status = TaskPending
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "location_id"}, {Name: "week_start"}, {Name: "task_type"}},
			DoNothing: true,
		}).Create(&tasks).Error
	})
}

func (r *Repository) ListTasks(userID string, week time.Time) ([]WeeklyTaskRecommendation, error) {
	var tasks []WeeklyTaskRecommendation
	err := r.db.Where("user_id = ? AND week_start = ?", userID, week).
		Order("CASE priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END, created_at").
		Find(&tasks).Error
	return tasks, err
}

func (r *Repository) UpdateTaskStatus(userID, id, status string, at time.Time) (*WeeklyTaskRecommendation, error) {
	fields := map[string]any{"status": status, "updated_at": at, "completed_at": nil}
	if status == TaskCompleted {
		fields["completed_at"] = at
	}
	res := r.db.Model(&WeeklyTaskRecommendation{}).Where("user_id = ? AND id = ?", userID, id).Updates(fields)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	var task WeeklyTaskRecommendation
	if err := r.db.Where("user_id = ? AND id = ?", userID, id).First(&task).Error; err != nil {
		return nil, notFound(err)
	}
	return &task, nil
}
