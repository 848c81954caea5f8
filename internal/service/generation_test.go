package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anmolmahajan9/photo20-app/internal/ai"
	"github.com/anmolmahajan9/photo20-app/internal/ai/mock"
	"github.com/anmolmahajan9/photo20-app/internal/domain"
	"github.com/anmolmahajan9/photo20-app/internal/quota"
	"github.com/anmolmahajan9/photo20-app/internal/repository"
	"github.com/anmolmahajan9/photo20-app/internal/storage"
)

var testImage = domain.ImagePayload{
	Data:        []byte{0x89, 0x50, 0x4E, 0x47},
	ContentType: "image/png",
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRepo records created generations in memory.
type fakeRepo struct {
	created []repository.CreateGenerationParams
	listErr error
}

func (r *fakeRepo) CreateGeneration(_ context.Context, params repository.CreateGenerationParams) (repository.Generation, error) {
	r.created = append(r.created, params)
	return repository.Generation{
		ID:           params.ID,
		UserID:       params.UserID,
		Kind:         params.Kind,
		Instruction:  params.Instruction,
		URLs:         params.URLs,
		StoragePaths: params.StoragePaths,
		Status:       params.Status,
		CreatedAt:    time.Now(),
	}, nil
}

func (r *fakeRepo) ListGenerationsByUser(_ context.Context, userID string, _ int32) ([]repository.Generation, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	var rows []repository.Generation
	for _, p := range r.created {
		if p.UserID == userID {
			rows = append(rows, repository.Generation{
				ID: p.ID, UserID: p.UserID, Kind: p.Kind,
				Instruction: p.Instruction, Status: p.Status,
			})
		}
	}
	return rows, nil
}

// fakeOutputs keeps stored images in memory.
type fakeOutputs struct {
	stored map[string][]byte
}

func (o *fakeOutputs) PutImage(_ context.Context, key string, image domain.ImagePayload) error {
	if o.stored == nil {
		o.stored = make(map[string][]byte)
	}
	o.stored[key] = image.Data
	return nil
}

func (o *fakeOutputs) PublicURL(_ context.Context, key string) (string, error) {
	return "http://localhost/files/" + key, nil
}

type testEnv struct {
	service  GenerationService
	provider *mock.Provider
	enforcer *quota.Enforcer
	repo     *fakeRepo
	outputs  *fakeOutputs
	enqueued []uuid.UUID
}

func newTestEnv(t *testing.T, limits domain.Limits) *testEnv {
	t.Helper()
	env := &testEnv{
		provider: mock.New(discardLogger()),
		enforcer: quota.NewEnforcer(quota.NewMemoryStore(), discardLogger()),
		repo:     &fakeRepo{},
		outputs:  &fakeOutputs{},
	}
	enqueue := func(_ context.Context, generationID uuid.UUID, _ string) error {
		env.enqueued = append(env.enqueued, generationID)
		return nil
	}
	env.service = NewGenerationService(
		env.provider, env.enforcer, limits, env.repo, env.outputs, enqueue, discardLogger(),
	)
	return env
}

func defaultLimits() domain.Limits {
	return domain.Limits{Default: 10}
}

func alice() domain.Principal {
	return domain.Principal{UID: "uid-alice", Email: "alice@example.com"}
}

func TestGenerateTheme_Success(t *testing.T) {
	env := newTestEnv(t, defaultLimits())
	ctx := context.Background()

	result, err := env.service.GenerateTheme(ctx, alice(), GenerateThemeParams{
		Image:    testImage,
		Template: "Minimalist",
	})
	require.NoError(t, err)
	require.Len(t, result.Images, 1)
	assert.Equal(t, "image/png", result.Images[0].ContentType)

	// The run is persisted and thumbnails are queued.
	require.Len(t, env.repo.created, 1)
	assert.Equal(t, string(domain.GenerationKindTheme), env.repo.created[0].Kind)
	assert.Equal(t, domain.GenerationStatusSuccess, env.repo.created[0].Status)
	// Source photo plus one output land in object storage.
	assert.Len(t, env.outputs.stored, 2)
	sourceKey := storage.SourceKey(alice().UID, result.Generation.ID, testImage.ContentType)
	assert.Contains(t, env.outputs.stored, sourceKey)
	assert.Equal(t, []uuid.UUID{result.Generation.ID}, env.enqueued)

	// One quota unit consumed.
	usage, err := env.service.Usage(ctx, alice())
	require.NoError(t, err)
	assert.Equal(t, 1, usage.Used)
	assert.Equal(t, 9, usage.Remaining)
}

func TestGenerateTheme_IdeaPromptWinsOverTemplate(t *testing.T) {
	env := newTestEnv(t, defaultLimits())

	_, err := env.service.GenerateTheme(context.Background(), alice(), GenerateThemeParams{
		Image:    testImage,
		Template: "Luxury",
		Prompt:   "The product floating in a sunlit koi pond.",
	})
	require.NoError(t, err)
	require.Len(t, env.repo.created, 1)
	assert.Equal(t, "The product floating in a sunlit koi pond.", env.repo.created[0].Instruction)
}

func TestQuotaDenied_ProviderNeverCalled(t *testing.T) {
	env := newTestEnv(t, domain.Limits{Default: 2})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := env.service.Refine(ctx, alice(), RefineParams{Image: testImage, Description: "brighter"})
		require.NoError(t, err)
	}
	callsBefore := env.provider.GenerateImageCalls

	_, err := env.service.Refine(ctx, alice(), RefineParams{Image: testImage, Description: "brighter"})
	require.Error(t, err)
	assert.Equal(t, domain.ELIMIT, domain.ErrorCode(err))
	assert.Contains(t, domain.ErrorMessage(err), "daily generation limit of 2")

	// The model was not invoked for the denied request.
	assert.Equal(t, callsBefore, env.provider.GenerateImageCalls)

	// And the denied request did not mutate the counter.
	usage, err := env.service.Usage(ctx, alice())
	require.NoError(t, err)
	assert.Equal(t, 2, usage.Used)
}

func TestModelFailure_QuotaStaysConsumed(t *testing.T) {
	env := newTestEnv(t, defaultLimits())
	ctx := context.Background()
	env.provider.GenerateImageError = ai.ErrUnavailable

	_, err := env.service.GenerateTheme(ctx, alice(), GenerateThemeParams{
		Image:    testImage,
		Template: "Earthy",
	})
	require.Error(t, err)
	assert.Equal(t, domain.EUNAVAILABLE, domain.ErrorCode(err))

	// The unit consumed before the model call is not refunded.
	usage, err := env.service.Usage(ctx, alice())
	require.NoError(t, err)
	assert.Equal(t, 1, usage.Used)

	// A failed record is kept.
	require.Len(t, env.repo.created, 1)
	assert.Equal(t, domain.GenerationStatusFailed, env.repo.created[0].Status)
	assert.Empty(t, env.enqueued)
}

func TestElevatedLimitApplies(t *testing.T) {
	limits := domain.Limits{
		Default:  1,
		Elevated: map[string]int{"vip@example.com": 3},
	}
	env := newTestEnv(t, limits)
	ctx := context.Background()
	vip := domain.Principal{UID: "uid-vip", Email: "VIP@example.com"}

	for i := 0; i < 3; i++ {
		_, err := env.service.Refine(ctx, vip, RefineParams{Image: testImage, Description: "warmer"})
		require.NoError(t, err, "call %d", i+1)
	}
	_, err := env.service.Refine(ctx, vip, RefineParams{Image: testImage, Description: "warmer"})
	assert.Equal(t, domain.ELIMIT, domain.ErrorCode(err))
}

func TestVariations(t *testing.T) {
	env := newTestEnv(t, defaultLimits())
	ctx := context.Background()

	result, err := env.service.Variations(ctx, alice(), VariationsParams{
		Image:  testImage,
		Angles: []string{"top-down", "side-view", "45-degree"},
	})
	require.NoError(t, err)
	assert.Len(t, result.Images, 3)
	assert.Equal(t, 3, env.provider.GenerateImageCalls)

	// Three angles still consume a single quota unit.
	usage, err := env.service.Usage(ctx, alice())
	require.NoError(t, err)
	assert.Equal(t, 1, usage.Used)
}

func TestVariations_InvalidAngleRejectedBeforeQuota(t *testing.T) {
	env := newTestEnv(t, defaultLimits())
	ctx := context.Background()

	_, err := env.service.Variations(ctx, alice(), VariationsParams{
		Image:  testImage,
		Angles: []string{"upside-down"},
	})
	require.Error(t, err)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))

	// Invalid input never consumes quota.
	usage, err := env.service.Usage(ctx, alice())
	require.NoError(t, err)
	assert.Equal(t, 0, usage.Used)
}

func TestSuggestIdeas(t *testing.T) {
	env := newTestEnv(t, defaultLimits())
	ctx := context.Background()

	ideas, err := env.service.SuggestIdeas(ctx, alice(), SuggestIdeasParams{
		Image:    testImage,
		Template: "Vibrant",
	})
	require.NoError(t, err)
	assert.Len(t, ideas, 3)
	for _, idea := range ideas {
		assert.NotEmpty(t, idea.ShortPhrase)
		assert.NotEmpty(t, idea.DetailedPrompt)
	}

	// Idea suggestions consume quota like any other generation.
	usage, err := env.service.Usage(ctx, alice())
	require.NoError(t, err)
	assert.Equal(t, 1, usage.Used)
}

func TestSuggestIdeas_MissingTemplate(t *testing.T) {
	env := newTestEnv(t, defaultLimits())

	_, err := env.service.SuggestIdeas(context.Background(), alice(), SuggestIdeasParams{Image: testImage})
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
	assert.Equal(t, 0, env.provider.SuggestIdeasCalls)
}

func TestHistory(t *testing.T) {
	env := newTestEnv(t, defaultLimits())
	ctx := context.Background()

	_, err := env.service.GenerateTheme(ctx, alice(), GenerateThemeParams{Image: testImage, Template: "Luxury"})
	require.NoError(t, err)

	history, err := env.service.History(ctx, alice(), 50)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.GenerationKindTheme, history[0].Kind)

	// Other users see nothing.
	other := domain.Principal{UID: "uid-bob", Email: "bob@example.com"}
	history, err = env.service.History(ctx, other, 50)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestHistory_RepoError(t *testing.T) {
	env := newTestEnv(t, defaultLimits())
	env.repo.listErr = errors.New("connection refused")

	_, err := env.service.History(context.Background(), alice(), 50)
	require.Error(t, err)
	assert.Equal(t, domain.EINTERNAL, domain.ErrorCode(err))
}

func TestInvalidImageRejected(t *testing.T) {
	env := newTestEnv(t, defaultLimits())

	_, err := env.service.Refine(context.Background(), alice(), RefineParams{
		Image:       domain.ImagePayload{Data: []byte{1}, ContentType: "text/plain"},
		Description: "brighter",
	})
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
	assert.Equal(t, 0, env.provider.GenerateImageCalls)
}
