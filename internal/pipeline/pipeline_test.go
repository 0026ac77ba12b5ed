package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"
	"vidscribe/internal/media"
	"vidscribe/internal/poller"
	"vidscribe/internal/speech"
	"vidscribe/pkg/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockExtractor struct {
	mock.Mock
}

func (m *MockExtractor) Extract(ctx context.Context, videoPath, targetPath string, format media.Format) (*media.AudioAsset, error) {
	args := m.Called(ctx, videoPath, targetPath, format)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*media.AudioAsset), args.Error(1)
}

type MockRecognizer struct {
	mock.Mock
}

func (m *MockRecognizer) Submit(ctx context.Context, asset *media.AudioAsset, cfg speech.RecognitionConfig) (speech.JobHandle, error) {
	args := m.Called(ctx, asset, cfg)
	return args.Get(0).(speech.JobHandle), args.Error(1)
}

type MockWaiter struct {
	mock.Mock
}

func (m *MockWaiter) Wait(ctx context.Context, handle speech.JobHandle) (*speech.TranscriptResult, error) {
	args := m.Called(ctx, handle)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*speech.TranscriptResult), args.Error(1)
}

type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, key string, dest interface{}) error {
	args := m.Called(ctx, key, dest)
	return args.Error(0)
}

func (m *MockCache) Set(ctx context.Context, key string, value interface{}) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockCache) SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

func (m *MockCache) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockCache) Close() error {
	args := m.Called()
	return args.Error(0)
}

type recordingObserver struct {
	assets  []*media.AudioAsset
	handles []speech.JobHandle
}

func (o *recordingObserver) Extracted(_ context.Context, asset *media.AudioAsset) {
	o.assets = append(o.assets, asset)
}

func (o *recordingObserver) Submitted(_ context.Context, handle speech.JobHandle) {
	o.handles = append(o.handles, handle)
}

var testJob = Job{VideoPath: "/videos/talk.mp4", AudioPath: "/tmp/talk.wav", LanguageCode: "en-US"}

func TestPipeline_Run(t *testing.T) {
	ex, rec, w := new(MockExtractor), new(MockRecognizer), new(MockWaiter)
	asset := media.NewAudioAsset([]byte("pcm"), media.DefaultFormat(), testJob.AudioPath)
	handle, _ := speech.NewJobHandle("operations/123")
	result := &speech.TranscriptResult{Results: []speech.ResultGroup{
		{Alternatives: []speech.Alternative{{Transcript: "hello"}, {Transcript: "hallo"}}},
		{Alternatives: []speech.Alternative{{Transcript: "world"}}},
	}}

	ex.On("Extract", mock.Anything, testJob.VideoPath, testJob.AudioPath, media.DefaultFormat()).Return(asset, nil)
	rec.On("Submit", mock.Anything, asset, speech.RecognitionConfig{LanguageCode: "en-US"}).Return(handle, nil)
	w.On("Wait", mock.Anything, handle).Return(result, nil)

	obs := &recordingObserver{}
	out, err := New(ex, rec, w, Config{}).Run(context.Background(), testJob, obs)

	require.NoError(t, err)
	assert.Equal(t, []string{"hello", "hallo", "world"}, out.Lines)
	assert.Equal(t, handle, out.Handle)
	assert.Same(t, result, out.Result)
	assert.False(t, out.Cached)
	assert.Equal(t, []*media.AudioAsset{asset}, obs.assets)
	assert.Equal(t, []speech.JobHandle{handle}, obs.handles)
	ex.AssertExpectations(t)
	rec.AssertExpectations(t)
	w.AssertExpectations(t)
}

func TestPipeline_TopOnly(t *testing.T) {
	ex, rec, w := new(MockExtractor), new(MockRecognizer), new(MockWaiter)
	asset := media.NewAudioAsset([]byte("pcm"), media.DefaultFormat(), testJob.AudioPath)
	handle, _ := speech.NewJobHandle("operations/1")
	result := &speech.TranscriptResult{Results: []speech.ResultGroup{
		{Alternatives: []speech.Alternative{{Transcript: "hello"}, {Transcript: "hallo"}}},
	}}

	ex.On("Extract", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(asset, nil)
	rec.On("Submit", mock.Anything, asset, mock.Anything).Return(handle, nil)
	w.On("Wait", mock.Anything, handle).Return(result, nil)

	out, err := New(ex, rec, w, Config{TopOnly: true}).Run(context.Background(), testJob, nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"hello"}, out.Lines)
}

func TestPipeline_ExtractionErrorStopsBeforeNetwork(t *testing.T) {
	ex, rec, w := new(MockExtractor), new(MockRecognizer), new(MockWaiter)
	exErr := &media.ExtractionError{VideoPath: testJob.VideoPath, ExitCode: 2}
	ex.On("Extract", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, exErr)

	out, err := New(ex, rec, w, Config{}).Run(context.Background(), testJob, nil)

	assert.Nil(t, out)
	assert.Same(t, exErr, err)
	assert.Equal(t, StageExtraction, StageOf(err))
	rec.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything)
	w.AssertNotCalled(t, "Wait", mock.Anything, mock.Anything)
}

func TestPipeline_SubmissionErrorStopsBeforePolling(t *testing.T) {
	ex, rec, w := new(MockExtractor), new(MockRecognizer), new(MockWaiter)
	asset := media.NewAudioAsset([]byte("pcm"), media.DefaultFormat(), testJob.AudioPath)
	ex.On("Extract", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(asset, nil)
	rec.On("Submit", mock.Anything, asset, mock.Anything).Return(speech.JobHandle{}, &speech.SubmissionError{StatusCode: 403})

	_, err := New(ex, rec, w, Config{}).Run(context.Background(), testJob, nil)

	assert.Equal(t, StageSubmission, StageOf(err))
	w.AssertNotCalled(t, "Wait", mock.Anything, mock.Anything)
}

func TestPipeline_CacheHitSkipsRecognition(t *testing.T) {
	ex, rec, w, c := new(MockExtractor), new(MockRecognizer), new(MockWaiter), new(MockCache)
	asset := media.NewAudioAsset([]byte("pcm"), media.DefaultFormat(), testJob.AudioPath)
	key := cache.TranscriptCacheKey(cache.AudioDigest([]byte("pcm")), "en-US", false)

	ex.On("Extract", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(asset, nil)
	c.On("Get", mock.Anything, key, mock.AnythingOfType("*[]string")).
		Run(func(args mock.Arguments) {
			*args.Get(2).(*[]string) = []string{"from cache"}
		}).Return(nil)

	out, err := New(ex, rec, w, Config{Cache: c}).Run(context.Background(), testJob, nil)

	require.NoError(t, err)
	assert.True(t, out.Cached)
	assert.Equal(t, []string{"from cache"}, out.Lines)
	assert.True(t, out.Handle.IsZero())
	rec.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything)
}

func TestPipeline_CacheMissStoresLines(t *testing.T) {
	ex, rec, w, c := new(MockExtractor), new(MockRecognizer), new(MockWaiter), new(MockCache)
	asset := media.NewAudioAsset([]byte("pcm"), media.DefaultFormat(), testJob.AudioPath)
	handle, _ := speech.NewJobHandle("operations/5")
	key := cache.TranscriptCacheKey(cache.AudioDigest([]byte("pcm")), "en-US", false)
	result := &speech.TranscriptResult{Results: []speech.ResultGroup{
		{Alternatives: []speech.Alternative{{Transcript: "fresh"}}},
	}}

	ex.On("Extract", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(asset, nil)
	c.On("Get", mock.Anything, key, mock.Anything).Return(fmt.Errorf("%w: %s", cache.ErrNotFound, key))
	rec.On("Submit", mock.Anything, asset, mock.Anything).Return(handle, nil)
	w.On("Wait", mock.Anything, handle).Return(result, nil)
	c.On("Set", mock.Anything, key, []string{"fresh"}).Return(errors.New("redis down"))

	out, err := New(ex, rec, w, Config{Cache: c}).Run(context.Background(), testJob, nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, out.Lines)
	c.AssertExpectations(t)
}

func TestPipeline_RequiresLanguage(t *testing.T) {
	ex := new(MockExtractor)
	job := testJob
	job.LanguageCode = ""

	_, err := New(ex, new(MockRecognizer), new(MockWaiter), Config{}).Run(context.Background(), job, nil)

	assert.Error(t, err)
	ex.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestStageOf(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{err: nil, want: ""},
		{err: &media.ExtractionError{}, want: StageExtraction},
		{err: &speech.SubmissionError{Err: errors.New("x")}, want: StageSubmission},
		{err: &speech.PollError{Err: errors.New("x")}, want: StagePolling},
		{err: &poller.OperationFailedError{Err: &speech.OperationError{}}, want: StagePolling},
		{err: &poller.TimeoutError{}, want: StageTimeout},
		{err: &poller.CancelledError{Err: context.Canceled}, want: StageCancelled},
		{err: &speech.SubmissionError{Err: context.Canceled}, want: StageCancelled},
		{err: fmt.Errorf("wrapped: %w", &speech.PollError{Err: errors.New("x")}), want: StagePolling},
		{err: errors.New("other"), want: StageUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StageOf(tt.err), "%v", tt.err)
	}
}

func TestAudioPathFor(t *testing.T) {
	assert.Equal(t, filepath.Join("/work", "talk_audio_16k.wav"), AudioPathFor("/work", "/videos/talk.mp4"))
}
