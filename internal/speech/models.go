package speech

import "errors"

// JobHandle identifies one long-running recognition operation.
// The zero value is not a valid handle.
type JobHandle struct {
	name string
}

func NewJobHandle(name string) (JobHandle, error) {
	if name == "" {
		return JobHandle{}, errors.New("operation name is empty")
	}
	return JobHandle{name: name}, nil
}

func (h JobHandle) Name() string { return h.name }

func (h JobHandle) String() string { return h.name }

func (h JobHandle) IsZero() bool { return h.name == "" }

// RecognitionConfig holds per-request recognition parameters
type RecognitionConfig struct {
	LanguageCode string
}

// JobStatus is one snapshot of an operation.
type JobStatus struct {
	Done bool
	// Result is set only on a done operation that carried a response
	Result *TranscriptResult
	// Error is set when the service finished the operation unsuccessfully
	Error *OperationError
	// ProgressPercent as reported in operation metadata, 0 when absent
	ProgressPercent int
}

// TranscriptResult represents final recognition result
type TranscriptResult struct {
	Results []ResultGroup `json:"results"`
}

// ResultGroup is one recognized segment with its ranked alternatives
type ResultGroup struct {
	Alternatives []Alternative `json:"alternatives"`
}

// Alternative represents one recognition variant
type Alternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence,omitempty"`
}

// OperationError represents error in operation
type OperationError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// recognizeRequest is the long-running recognize request body
type recognizeRequest struct {
	Config recognitionSpec `json:"config"`
	Audio  audioContent    `json:"audio"`
}

type recognitionSpec struct {
	Encoding          string `json:"encoding"`
	SampleRateHertz   int    `json:"sampleRateHertz"`
	AudioChannelCount int    `json:"audioChannelCount,omitempty"`
	LanguageCode      string `json:"languageCode"`
}

type audioContent struct {
	Content string `json:"content"`
}

// operationResponse represents a long-running operation as returned by submit and status calls
type operationResponse struct {
	Name     string            `json:"name"`
	Done     bool              `json:"done"`
	Metadata *operationMeta    `json:"metadata,omitempty"`
	Response *TranscriptResult `json:"response,omitempty"`
	Error    *OperationError   `json:"error,omitempty"`
}

type operationMeta struct {
	ProgressPercent int `json:"progressPercent"`
}
