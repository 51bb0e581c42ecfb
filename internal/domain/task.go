package domain

import "time"

// Difficulty tier of a task.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Task is a goal definition tied to one of the user counters.
// Definitions are seeded outside the app; the service only reads them.
type Task struct {
	ID          string     `bson:"_id" json:"id"`
	Title       string     `bson:"title" json:"title"`
	Description string     `bson:"description,omitempty" json:"description,omitempty"`
	Category    string     `bson:"category" json:"category"` // Counter field key, e.g. "workoutsCompleted"
	Goal        int        `bson:"goal" json:"goal"`
	Points      int        `bson:"points" json:"points"` // Reward
	Difficulty  Difficulty `bson:"difficulty" json:"difficulty"`
}

// IsMetBy reports whether the user's counter for this task reaches the goal.
func (t *Task) IsMetBy(u *User) bool {
	value, err := u.Counter(t.Category)
	if err != nil {
		return false
	}
	return value >= t.Goal
}

// UserTask is one user's progress on a task. Completed flips to true once.
type UserTask struct {
	ID          string     `bson:"_id" json:"id"`
	UserID      string     `bson:"userId" json:"userId"`
	TaskID      string     `bson:"taskId" json:"taskId"`
	Completed   bool       `bson:"completed" json:"completed"`
	CompletedAt *time.Time `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	CreatedAt   time.Time  `bson:"createdAt" json:"createdAt"`
}

// PointsEntry records a score award. The user's Points field is the running total.
type PointsEntry struct {
	ID        string    `bson:"_id" json:"id"`
	UserID    string    `bson:"userId" json:"userId"`
	Amount    int       `bson:"amount" json:"amount"`
	Reason    string    `bson:"reason" json:"reason"`
	TaskID    string    `bson:"taskId,omitempty" json:"taskId,omitempty"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}
