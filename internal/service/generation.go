// Package service contains the business logic layer.
//
// This file implements the generation service: it resolves the caller's
// daily limit, consumes quota, invokes the image model, and persists the
// results. Quota is always consumed before the model is invoked, and a
// model failure never refunds the consumed unit.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/anmolmahajan9/photo20-app/internal/ai"
	"github.com/anmolmahajan9/photo20-app/internal/domain"
	"github.com/anmolmahajan9/photo20-app/internal/metrics"
	"github.com/anmolmahajan9/photo20-app/internal/repository"
	"github.com/anmolmahajan9/photo20-app/internal/storage"
)

// =============================================================================
// Interface Definition
// =============================================================================

// GenerationService defines the operations available to signed-in users.
//
// Every generating operation follows the same sequence: validate input,
// consume one unit of daily quota, then invoke the model. A request denied
// by quota never reaches the model; a model failure after the quota was
// consumed does not refund it.
type GenerationService interface {
	// SuggestIdeas proposes three photoshoot ideas for the photo.
	// Returns domain.ELIMIT when the caller's daily quota is exhausted.
	SuggestIdeas(ctx context.Context, principal domain.Principal, params SuggestIdeasParams) ([]domain.Idea, error)

	// GenerateTheme re-renders the photo per a style template or a chosen
	// idea prompt.
	GenerateTheme(ctx context.Context, principal domain.Principal, params GenerateThemeParams) (*GenerationResult, error)

	// Refine re-renders the photo per a free-text instruction.
	Refine(ctx context.Context, principal domain.Principal, params RefineParams) (*GenerationResult, error)

	// Variations renders the photo from the requested camera angles.
	// Returns domain.EINVALID for unsupported angles.
	Variations(ctx context.Context, principal domain.Principal, params VariationsParams) (*GenerationResult, error)

	// History lists the caller's persisted generations, newest first.
	History(ctx context.Context, principal domain.Principal, limit int32) ([]domain.Generation, error)

	// Usage reports the caller's consumption against their daily limit
	// without consuming quota.
	Usage(ctx context.Context, principal domain.Principal) (domain.QuotaUsage, error)

	// UsageFor reports another user's consumption, for the admin surface.
	UsageFor(ctx context.Context, userID string, email string) (domain.QuotaUsage, error)
}

// SuggestIdeasParams is the input for SuggestIdeas.
type SuggestIdeasParams struct {
	Image    domain.ImagePayload
	Template string
}

// GenerateThemeParams is the input for GenerateTheme. Exactly one of
// Template or Prompt should be set; Prompt wins when both are present.
type GenerateThemeParams struct {
	Image    domain.ImagePayload
	Template string
	Prompt   string // Detailed prompt from a previously suggested idea
}

// RefineParams is the input for Refine.
type RefineParams struct {
	Image       domain.ImagePayload
	Description string
}

// VariationsParams is the input for Variations.
type VariationsParams struct {
	Image  domain.ImagePayload
	Angles []string
}

// GenerationResult carries the generated images plus the persisted record.
type GenerationResult struct {
	Generation domain.Generation
	Images     []domain.ImagePayload
}

// =============================================================================
// Collaborator Interfaces
// =============================================================================

// QuotaEnforcer consumes and reads daily quota. Implemented by
// quota.Enforcer.
type QuotaEnforcer interface {
	CheckAndIncrement(ctx context.Context, userID string, limit int) (domain.QuotaRecord, error)
	Usage(ctx context.Context, userID string, limit int) (domain.QuotaUsage, error)
}

// GenerationRepository is the subset of repository.Queries the service
// needs. Narrowed for testability.
type GenerationRepository interface {
	CreateGeneration(ctx context.Context, params repository.CreateGenerationParams) (repository.Generation, error)
	ListGenerationsByUser(ctx context.Context, userID string, limit int32) ([]repository.Generation, error)
}

// OutputStore persists generated images. Implemented by storage.Storage;
// narrowed to what the service uses.
type OutputStore interface {
	PutImage(ctx context.Context, key string, image domain.ImagePayload) error
	PublicURL(ctx context.Context, key string) (string, error)
}

// ThumbnailEnqueuer schedules background thumbnail generation for a
// persisted generation.
type ThumbnailEnqueuer func(ctx context.Context, generationID uuid.UUID, userID string) error

// =============================================================================
// Implementation
// =============================================================================

type generationService struct {
	provider ai.Provider
	quota    QuotaEnforcer
	limits   domain.Limits
	repo     GenerationRepository
	outputs  OutputStore
	enqueue  ThumbnailEnqueuer
	logger   *slog.Logger
}

// NewGenerationService creates a GenerationService. repo, outputs, and
// enqueue may be nil; persistence is then skipped and results are returned
// inline only.
func NewGenerationService(
	provider ai.Provider,
	quota QuotaEnforcer,
	limits domain.Limits,
	repo GenerationRepository,
	outputs OutputStore,
	enqueue ThumbnailEnqueuer,
	logger *slog.Logger,
) GenerationService {
	return &generationService{
		provider: provider,
		quota:    quota,
		limits:   limits,
		repo:     repo,
		outputs:  outputs,
		enqueue:  enqueue,
		logger:   logger,
	}
}

// =============================================================================
// Operations
// =============================================================================

func (s *generationService) SuggestIdeas(ctx context.Context, principal domain.Principal, params SuggestIdeasParams) ([]domain.Idea, error) {
	const op = "generation.suggest_ideas"

	if err := validateImage(op, params.Image); err != nil {
		return nil, err
	}
	if strings.TrimSpace(params.Template) == "" {
		return nil, domain.Invalid(op, "A style template is required.")
	}

	if err := s.consumeQuota(ctx, principal); err != nil {
		return nil, err
	}

	ideas, err := s.provider.SuggestThemeIdeas(ctx, ai.IdeaParams{
		Image:    params.Image,
		Template: params.Template,
		UserID:   principal.UID,
	})
	if err != nil {
		metrics.AIAPICalls.WithLabelValues("error").Inc()
		s.logger.Error("idea suggestion failed", "user_id", principal.UID, "error", err)
		return nil, mapProviderError(op, err)
	}

	metrics.AIAPICalls.WithLabelValues("success").Inc()
	metrics.IdeasSuggested.Add(float64(len(ideas)))
	return ideas, nil
}

func (s *generationService) GenerateTheme(ctx context.Context, principal domain.Principal, params GenerateThemeParams) (*GenerationResult, error) {
	const op = "generation.theme"

	if err := validateImage(op, params.Image); err != nil {
		return nil, err
	}

	instruction := strings.TrimSpace(params.Prompt)
	if instruction == "" {
		if strings.TrimSpace(params.Template) == "" {
			return nil, domain.Invalid(op, "A style template or idea prompt is required.")
		}
		instruction = ai.TemplatePrompt(params.Template)
	}

	return s.generate(ctx, principal, op, domain.GenerationKindTheme, instruction, params.Image, []string{instruction})
}

func (s *generationService) Refine(ctx context.Context, principal domain.Principal, params RefineParams) (*GenerationResult, error) {
	const op = "generation.refine"

	if err := validateImage(op, params.Image); err != nil {
		return nil, err
	}
	description := strings.TrimSpace(params.Description)
	if description == "" {
		return nil, domain.Invalid(op, "A description of the desired change is required.")
	}

	return s.generate(ctx, principal, op, domain.GenerationKindRefine, description, params.Image, []string{description})
}

func (s *generationService) Variations(ctx context.Context, principal domain.Principal, params VariationsParams) (*GenerationResult, error) {
	const op = "generation.variations"

	if err := validateImage(op, params.Image); err != nil {
		return nil, err
	}
	if len(params.Angles) == 0 {
		return nil, domain.Invalid(op, "At least one camera angle is required.")
	}

	prompts := make([]string, 0, len(params.Angles))
	for _, angle := range params.Angles {
		prompt, err := ai.AnglePrompt(angle)
		if err != nil {
			return nil, domain.Invalid(op, fmt.Sprintf("Invalid angle provided: %s", angle))
		}
		prompts = append(prompts, prompt)
	}

	instruction := "variations: " + strings.Join(params.Angles, ", ")
	return s.generate(ctx, principal, op, domain.GenerationKindVariations, instruction, params.Image, prompts)
}

func (s *generationService) History(ctx context.Context, principal domain.Principal, limit int32) ([]domain.Generation, error) {
	const op = "generation.history"

	if s.repo == nil {
		return []domain.Generation{}, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	rows, err := s.repo.ListGenerationsByUser(ctx, principal.UID, limit)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list generations")
	}

	generations := make([]domain.Generation, 0, len(rows))
	for _, row := range rows {
		generations = append(generations, toDomainGeneration(row))
	}
	return generations, nil
}

func (s *generationService) Usage(ctx context.Context, principal domain.Principal) (domain.QuotaUsage, error) {
	return s.quota.Usage(ctx, principal.UID, s.limits.Resolve(principal))
}

func (s *generationService) UsageFor(ctx context.Context, userID string, email string) (domain.QuotaUsage, error) {
	limit := s.limits.Resolve(domain.Principal{UID: userID, Email: email})
	return s.quota.Usage(ctx, userID, limit)
}

// =============================================================================
// Core Pipeline
// =============================================================================

// generate is the shared pipeline: consume quota, invoke the model once per
// prompt, persist best-effort, and return the images.
func (s *generationService) generate(
	ctx context.Context,
	principal domain.Principal,
	op string,
	kind domain.GenerationKind,
	instruction string,
	image domain.ImagePayload,
	prompts []string,
) (*GenerationResult, error) {
	if err := s.consumeQuota(ctx, principal); err != nil {
		return nil, err
	}

	images, err := s.invokeModel(ctx, principal.UID, image, prompts)
	if err != nil {
		metrics.GenerationsTotal.WithLabelValues(string(kind), "failed").Inc()
		s.logger.Error("generation failed",
			"user_id", principal.UID,
			"kind", kind,
			"error", err,
		)
		// The consumed quota unit is deliberately not refunded.
		s.recordFailure(ctx, principal.UID, kind, instruction)
		return nil, mapProviderError(op, err)
	}

	metrics.GenerationsTotal.WithLabelValues(string(kind), "success").Inc()

	generation := s.persist(ctx, principal.UID, kind, instruction, image, images)
	return &GenerationResult{Generation: generation, Images: images}, nil
}

// consumeQuota resolves the caller's limit and consumes one unit.
func (s *generationService) consumeQuota(ctx context.Context, principal domain.Principal) error {
	limit := s.limits.Resolve(principal)

	_, err := s.quota.CheckAndIncrement(ctx, principal.UID, limit)
	if err != nil {
		switch domain.ErrorCode(err) {
		case domain.ELIMIT:
			metrics.QuotaDecisions.WithLabelValues(metrics.QuotaOutcomeRejected).Inc()
		default:
			metrics.QuotaDecisions.WithLabelValues(metrics.QuotaOutcomeError).Inc()
		}
		return err
	}

	metrics.QuotaDecisions.WithLabelValues(metrics.QuotaOutcomeAllowed).Inc()
	return nil
}

// maxConcurrentGenerations bounds parallel model calls for multi-prompt
// requests.
const maxConcurrentGenerations = 3

// invokeModel runs one model call per prompt, in parallel for variations.
// All prompts must succeed; the first error wins and cancels the rest.
func (s *generationService) invokeModel(ctx context.Context, userID string, image domain.ImagePayload, prompts []string) ([]domain.ImagePayload, error) {
	if len(prompts) == 1 {
		result, err := s.provider.GenerateImage(ctx, ai.GenerateImageParams{
			Image:       image,
			Instruction: prompts[0],
			UserID:      userID,
		})
		if err != nil {
			metrics.AIAPICalls.WithLabelValues("error").Inc()
			return nil, err
		}
		metrics.AIAPICalls.WithLabelValues("success").Inc()
		return []domain.ImagePayload{result.Image}, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	images := make([]domain.ImagePayload, len(prompts))
	errs := make([]error, len(prompts))
	sem := make(chan struct{}, maxConcurrentGenerations)
	var wg sync.WaitGroup

	for i, prompt := range prompts {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, prompt string) {
			defer wg.Done()
			defer func() { <-sem }()

			result, err := s.provider.GenerateImage(ctx, ai.GenerateImageParams{
				Image:       image,
				Instruction: prompt,
				UserID:      userID,
			})
			if err != nil {
				metrics.AIAPICalls.WithLabelValues("error").Inc()
				errs[i] = err
				cancel()
				return
			}
			metrics.AIAPICalls.WithLabelValues("success").Inc()
			images[i] = result.Image
		}(i, prompt)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return images, nil
}

// persist stores the source photo, the outputs, and the generation record.
// Failures here are logged, not surfaced: the user already has their images.
func (s *generationService) persist(ctx context.Context, userID string, kind domain.GenerationKind, instruction string, source domain.ImagePayload, images []domain.ImagePayload) domain.Generation {
	generation := domain.Generation{
		ID:          uuid.New(),
		UserID:      userID,
		Kind:        kind,
		Instruction: instruction,
		Status:      domain.GenerationStatusSuccess,
	}

	if s.outputs != nil {
		sourceKey := storage.SourceKey(userID, generation.ID, source.ContentType)
		if err := s.outputs.PutImage(ctx, sourceKey, source); err != nil {
			s.logger.Error("failed to store source image", "user_id", userID, "key", sourceKey, "error", err)
		}

		for i, img := range images {
			key := storage.GenerationKey(userID, generation.ID, i, img.ContentType)
			if err := s.outputs.PutImage(ctx, key, img); err != nil {
				s.logger.Error("failed to store generated image", "user_id", userID, "key", key, "error", err)
				continue
			}
			generation.StoragePaths = append(generation.StoragePaths, key)
			if url, err := s.outputs.PublicURL(ctx, key); err == nil {
				generation.URLs = append(generation.URLs, url)
			}
		}
	}

	if s.repo != nil {
		row, err := s.repo.CreateGeneration(ctx, repository.CreateGenerationParams{
			ID:           generation.ID,
			UserID:       generation.UserID,
			Kind:         string(generation.Kind),
			Instruction:  generation.Instruction,
			URLs:         generation.URLs,
			StoragePaths: generation.StoragePaths,
			Status:       generation.Status,
		})
		if err != nil {
			s.logger.Error("failed to record generation", "user_id", userID, "generation_id", generation.ID, "error", err)
			return generation
		}
		generation.CreatedAt = row.CreatedAt

		if s.enqueue != nil && len(generation.StoragePaths) > 0 {
			if err := s.enqueue(ctx, generation.ID, userID); err != nil {
				s.logger.Error("failed to enqueue thumbnail job", "generation_id", generation.ID, "error", err)
			}
		}
	}

	return generation
}

// recordFailure writes a failed generation record, best-effort.
func (s *generationService) recordFailure(ctx context.Context, userID string, kind domain.GenerationKind, instruction string) {
	if s.repo == nil {
		return
	}
	_, err := s.repo.CreateGeneration(ctx, repository.CreateGenerationParams{
		ID:          uuid.New(),
		UserID:      userID,
		Kind:        string(kind),
		Instruction: instruction,
		Status:      domain.GenerationStatusFailed,
	})
	if err != nil {
		s.logger.Error("failed to record failed generation", "user_id", userID, "error", err)
	}
}

// =============================================================================
// Helpers
// =============================================================================

func validateImage(op string, image domain.ImagePayload) error {
	if err := ai.ValidateImage(image); err != nil {
		return domain.Invalid(op, "Please upload a valid product photo (JPEG, PNG, GIF, or WebP).")
	}
	return nil
}

// mapProviderError converts model provider failures into domain errors.
func mapProviderError(op string, err error) error {
	switch {
	case ai.IsRetryable(err):
		return domain.Unavailable(err, op, "The image service is busy right now. Please try again in a moment.")
	case isInvalidImageErr(err):
		return domain.Invalid(op, "The image could not be processed. Please try a different photo.")
	default:
		return domain.Internal(err, op, "generation failed")
	}
}

func isInvalidImageErr(err error) bool {
	return errors.Is(err, ai.ErrInvalidImage) || errors.Is(err, ai.ErrNoImage)
}

func toDomainGeneration(row repository.Generation) domain.Generation {
	return domain.Generation{
		ID:             row.ID,
		UserID:         row.UserID,
		Kind:           domain.GenerationKind(row.Kind),
		Instruction:    row.Instruction,
		URLs:           row.URLs,
		StoragePaths:   row.StoragePaths,
		ThumbnailPaths: row.ThumbnailPaths,
		Status:         row.Status,
		CreatedAt:      row.CreatedAt,
	}
}
