package scanning

import (
	"fmt"
	"strings"
)

// userInstruction accompanies the image in the user turn
const userInstruction = "Analyze this image and extract data."

// extractionPromptTemplate is the shared system instruction used by all providers.
// The two %s verbs receive the allowed categories and payment methods.
const extractionPromptTemplate = `You are a professional data extraction agent.
Carefully analyze the uploaded image (receipt or payment screenshot).
Extract only factual, visible information. Do not guess or invent data.

Output FORMAT (Strict JSON only):
{
  "amount": "0.00",
  "date": "YYYY-MM-DD",
  "merchant": "Name of store/vendor",
  "category": "One of: %s",
  "payment_method": "One of: %s",
  "confidence_score": 0-100,
  "notes": "Short description of items or context"
}

If a field is not visible, use null or empty string.`

// systemInstruction renders the extraction prompt for a vocabulary
func systemInstruction(v Vocabulary) string {
	return fmt.Sprintf(extractionPromptTemplate,
		strings.Join(v.Categories, ", "),
		strings.Join(v.Methods, ", "),
	)
}
