package ai

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anmolmahajan9/photo20-app/internal/domain"
)

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrRateLimited))
	assert.True(t, IsRetryable(ErrTimeout))
	assert.True(t, IsRetryable(ErrUnavailable))
	assert.True(t, IsRetryable(WrapError("generate", ErrUnavailable)))

	assert.False(t, IsRetryable(ErrInvalidImage))
	assert.False(t, IsRetryable(ErrUnauthorized))
	assert.False(t, IsRetryable(ErrNoImage))
	assert.False(t, IsRetryable(errors.New("something else")))
	assert.False(t, IsRetryable(nil))
}

func TestValidateImage(t *testing.T) {
	valid := domain.ImagePayload{Data: []byte{1, 2, 3}, ContentType: "image/png"}
	assert.NoError(t, ValidateImage(valid))

	tests := []struct {
		name  string
		image domain.ImagePayload
	}{
		{"empty data", domain.ImagePayload{ContentType: "image/png"}},
		{"unsupported type", domain.ImagePayload{Data: []byte{1}, ContentType: "image/tiff"}},
		{"missing type", domain.ImagePayload{Data: []byte{1}}},
		{"too large", domain.ImagePayload{Data: make([]byte, MaxImageSize+1), ContentType: "image/jpeg"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateImage(tt.image)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidImage)
		})
	}
}

func TestTemplatePrompt(t *testing.T) {
	for _, template := range []string{"Minimalist", "Luxury", "Earthy", "Vibrant", "Surprise Me"} {
		assert.NotEmpty(t, templatePrompts[template], template)
		assert.Equal(t, templatePrompts[template], TemplatePrompt(template))
	}

	// Unknown templates get a generic fallback mentioning the template.
	fallback := TemplatePrompt("Steampunk")
	assert.Contains(t, fallback, "Steampunk")
}

func TestAnglePrompt(t *testing.T) {
	for _, angle := range Angles() {
		prompt, err := AnglePrompt(angle)
		require.NoError(t, err)
		assert.NotEmpty(t, prompt)
	}

	_, err := AnglePrompt("upside-down")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidAngle)
}

func TestIdeasPrompt(t *testing.T) {
	prompt := IdeasPrompt("Luxury")
	assert.Contains(t, prompt, `"Luxury"`)
	assert.Contains(t, prompt, "THREE")
	assert.Contains(t, prompt, "shortPhrase")
	assert.Contains(t, prompt, "detailedPrompt")
	assert.False(t, strings.Contains(prompt, "%q"), "format verbs must be fully substituted")
	assert.False(t, strings.Contains(prompt, "%!"), "format verbs must be fully substituted")
}
