package scanning

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Gemini", func() {
	var extractor *Gemini

	BeforeEach(func() {
		extractor = NewGemini("", testVocabulary)
	})

	It("should default the model and limit the output", func() {
		Expect(extractor.modelName).To(Equal("gemini-2.5-pro"))
		Expect(extractor.maxTokens).To(Equal(int32(defaultMaxTokens)))
		Expect(extractor.prompt).To(ContainSubstring("Food"))
	})

	When("no API key is given", func() {
		It("returns ErrMissingCredential", func() {
			_, err := extractor.Extract(context.Background(), NewImage(testPNG()), "")
			Expect(err).To(MatchError(ErrMissingCredential))
		})
	})

	When("the image cannot be decoded", func() {
		It("fails before creating a client", func() {
			_, err := extractor.Extract(context.Background(), NewImage([]byte("not an image")), "key")
			var extractionErr *ExtractionError
			Expect(err).To(BeAssignableToTypeOf(extractionErr))
			Expect(err.Error()).To(ContainSubstring("unsupported image format"))
		})
	})

	It("should close without error", func() {
		Expect(extractor.Close()).To(Succeed())
	})
})
