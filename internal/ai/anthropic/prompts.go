package anthropic

import (
	"fmt"

	"github.com/vozfeed/vozfeed/internal/ai"
)

// buildAnalysisPrompt creates the prompt for analyzing a feedback transcript.
// The depth controls how much is asked of the model; callers have already
// matched the depth to the tenant's plan.
func buildAnalysisPrompt(params ai.AnalyzeParams) string {
	prompt := `You are analyzing a customer feedback message that was left as a voice recording and transcribed to text. The feedback is typically in Brazilian Portuguese, but may be in any language.

Classify the overall sentiment of the feedback as exactly one of:
- "positive" - the customer is satisfied or praising
- "negative" - the customer is dissatisfied or complaining
- "neutral" - mixed, factual, or no clear sentiment

**Guidelines:**
- Judge the message as a whole, not individual sentences
- Sarcasm and irony count toward the underlying sentiment
- A complaint wrapped in polite language is still negative`

	switch params.Depth {
	case ai.DepthAdvanced, ai.DepthCustom:
		prompt += `

Additionally:
- Write a one-paragraph summary of the feedback in the transcript's language
- Extract up to 5 short topics the customer mentions (e.g., "delivery delay", "product quality", "customer support")`
	}

	if params.Depth == ai.DepthCustom && params.Instructions != "" {
		prompt += fmt.Sprintf("\n\n**Additional instructions from the business:**\n%s", params.Instructions)
	}

	prompt += `

**Response Format:**
Return your analysis as a JSON object with this exact structure:

{
  "sentiment": "positive|negative|neutral",
  "summary": "One-paragraph summary (empty string if not requested)",
  "topics": ["topic 1", "topic 2"]
}

**Important:** Return ONLY the JSON object, no additional text or explanation.

**Transcript:**
` + params.Transcript

	return prompt
}
