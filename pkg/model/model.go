package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// TaskStatus represents the status of a task
type TaskStatus string

const (
	TaskStatusQueued     TaskStatus = "queued"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusDone       TaskStatus = "done"
	TaskStatusFailed     TaskStatus = "failed"
)

// MaxAttempts is how many times a failed task is handed back to the queue
const MaxAttempts = 3

// JSONB represents a JSONB field for PostgreSQL
type JSONB map[string]interface{}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, j)
}

// Task is one video transcription request
type Task struct {
	ID           string     `json:"id" db:"id"`
	VideoPath    string     `json:"video_path" db:"video_path"`
	AudioPath    string     `json:"audio_path" db:"audio_path"`
	LanguageCode string     `json:"language_code" db:"language_code"`
	ChatID       *int64     `json:"chat_id,omitempty" db:"chat_id"`
	Status       TaskStatus `json:"status" db:"status"`
	OperationID  *string    `json:"operation_id,omitempty" db:"operation_id"`
	Attempts     int        `json:"attempts" db:"attempts"`
	ErrorStage   *string    `json:"error_stage,omitempty" db:"error_stage"`
	ErrorText    *string    `json:"error_text,omitempty" db:"error_text"`
	Meta         JSONB      `json:"meta" db:"meta"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// Transcript represents a transcribed text result. Segments keep the
// recognized lines exactly as delivered, Text is their normalized join.
type Transcript struct {
	ID          string          `json:"id" db:"id"`
	TaskID      string          `json:"task_id" db:"task_id"`
	Text        string          `json:"text" db:"text"`
	Lines       int             `json:"lines" db:"lines"`
	Segments    []string        `json:"segments" db:"segments"`
	Cached      bool            `json:"cached" db:"cached"`
	RawResponse json.RawMessage `json:"raw_response,omitempty" db:"raw_response"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// IsCompleted returns true if the task is in a final state
func (t *Task) IsCompleted() bool {
	return t.Status == TaskStatusDone || t.Status == TaskStatusFailed
}

// CanRetry returns true if the task can be retried
func (t *Task) CanRetry() bool {
	return t.Status == TaskStatusFailed && t.Attempts < MaxAttempts
}

// IncrementAttempts increases the attempt counter
func (t *Task) IncrementAttempts() {
	t.Attempts++
}

// SetError sets the task status to failed with the failing stage and message
func (t *Task) SetError(stage, errorText string) {
	t.Status = TaskStatusFailed
	t.ErrorStage = &stage
	t.ErrorText = &errorText
	t.UpdatedAt = time.Now()
}

// SetCompleted sets the task status to done
func (t *Task) SetCompleted() {
	t.Status = TaskStatusDone
	t.ErrorStage = nil
	t.ErrorText = nil
	t.UpdatedAt = time.Now()
}

// SetInProgress marks the task as started; the operation id is recorded once known
func (t *Task) SetInProgress() {
	t.Status = TaskStatusInProgress
	t.UpdatedAt = time.Now()
}

// SetOperation records the remote operation id
func (t *Task) SetOperation(operationID string) {
	t.OperationID = &operationID
	t.UpdatedAt = time.Now()
}
