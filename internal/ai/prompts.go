package ai

import "fmt"

// templatePrompts maps each style template to the scene description sent to
// the model for a single-image theme generation.
var templatePrompts = map[string]string{
	"Minimalist":  "A sleek, modern shot of the product on a clean, uncluttered surface with soft, diffused lighting, creating a sense of simplicity and focus.",
	"Luxury":      "A dramatic close-up of the product on a polished obsidian surface, with a single, powerful spotlight from above, evoking deep shadows and a high-end, luxurious feel.",
	"Earthy":      "The product nestled in a bed of lush, green moss and ferns, with warm, dappled sunlight filtering through a canopy of leaves, creating a natural, organic scene.",
	"Vibrant":     "An energetic, playful shot of the product against a bold, single-color background, with harsh, direct light creating crisp shadows and making the colors pop.",
	"Surprise Me": "You are an award-winning, avant-garde product photographer. Generate a 1000% creative, unconventional, artistic, and visually stunning image of the product. The user's mind should be blown away. Think abstract, surreal, or completely unexpected. Do not use a plain background.",
}

// anglePrompts maps each supported camera angle to its generation instruction.
var anglePrompts = map[string]string{
	"top-down":  "Generate a new image of the product from a top-down camera angle. Keep the background and style consistent with the original.",
	"side-view": "Generate a new image of the product from a straight-on side view. Keep the background and style consistent with the original.",
	"45-degree": "Generate a new image of the product from a 45-degree angle view. Keep the background and style consistent with the original.",
}

// TemplatePrompt returns the generation instruction for a style template.
// Unknown templates fall back to a generic styled-photo instruction rather
// than failing, so new front-end templates degrade gracefully.
func TemplatePrompt(template string) string {
	if prompt, ok := templatePrompts[template]; ok {
		return prompt
	}
	return fmt.Sprintf("A high-quality product photo of the item, in the style of %s.", template)
}

// AnglePrompt returns the generation instruction for a camera angle, or an
// error for angles the product does not support.
func AnglePrompt(angle string) (string, error) {
	prompt, ok := anglePrompts[angle]
	if !ok {
		return "", fmt.Errorf("%w: invalid angle %q", ErrInvalidAngle, angle)
	}
	return prompt, nil
}

// Angles lists the supported variation angles.
func Angles() []string {
	return []string{"top-down", "side-view", "45-degree"}
}

// IdeasPrompt builds the instruction asking the model for three photoshoot
// ideas aligned with the given style template.
func IdeasPrompt(template string) string {
	return fmt.Sprintf(`You are a professional product photographer and creative director. The user has provided a product photo and selected a style template: %q.

Based on the product and the chosen template, generate THREE creative and distinct product photography ideas.

If the template is "Surprise Me", you must be 1000%% creative. The ideas should be unconventional, artistic, and visually stunning. The user's mind should be blown away. Think abstract, surreal, or completely unexpected.

For each of the three ideas, provide two things:
1. A short, user-friendly phrase (3-5 words) that summarizes the theme (e.g., "Sleek & Modern," "Outdoor Adventure," "Floating in Space"). This phrase must give the user a clear idea of the visual style.
2. A detailed, single-sentence prompt that can be fed directly into an image generation model. This prompt must encapsulate the scene, lighting, and mood (e.g., "A close-up of the product on a polished obsidian surface, with a single, dramatic spotlight from above, creating a sense of deep shadows and luxury.").

Respond with a JSON object of the form {"ideas": [{"shortPhrase": "...", "detailedPrompt": "..."}]} containing exactly three ideas, all strongly aligned with the %q theme.`, template, template)
}
