package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// VideoTask is the message published for every enqueued transcription
type VideoTask struct {
	TaskID       string    `json:"task_id"`
	VideoPath    string    `json:"video_path"`
	AudioPath    string    `json:"audio_path,omitempty"`
	LanguageCode string    `json:"language_code"`
	ChatID       *int64    `json:"chat_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// DecodeVideoTask parses a message body and checks it names a task
func DecodeVideoTask(body []byte) (*VideoTask, error) {
	var task VideoTask
	if err := json.Unmarshal(body, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	if task.TaskID == "" {
		return nil, fmt.Errorf("task message without task_id")
	}
	return &task, nil
}
