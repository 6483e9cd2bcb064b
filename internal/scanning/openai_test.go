package scanning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

// testPNG returns a tiny valid PNG image
func testPNG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	Expect(png.Encode(&buf, img)).To(Succeed())
	return buf.Bytes()
}

var testVocabulary = Vocabulary{
	Categories: []string{"Food", "Travel", "Shopping", "Health", "Bills", "Others"},
	Methods:    []string{"Cash", "UPI", "Card", "NetBanking"},
}

func chatCompletion(content string) map[string]any {
	return map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
	}
}

var _ = Describe("OpenAI", func() {
	var (
		server    *ghttp.Server
		extractor *OpenAI
		apiKey    string
		img       Image
		result    *ExtractionResult
		err       error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		extractor = NewOpenAI(OpenAIConfig{
			URL:        server.URL() + "/v1/chat/completions",
			Vocabulary: testVocabulary,
		})
		apiKey = "sk-test"
		img = NewImage(testPNG())
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		result, err = extractor.Extract(context.Background(), img, apiKey)
	})

	When("the API key is missing", func() {
		BeforeEach(func() {
			apiKey = ""
		})

		It("returns ErrMissingCredential", func() {
			Expect(err).To(MatchError(ErrMissingCredential))
		})

		It("should not call the endpoint", func() {
			Expect(server.ReceivedRequests()).To(BeEmpty())
		})
	})

	When("the endpoint returns a valid extraction", func() {
		var captured chatRequest

		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest("POST", "/v1/chat/completions"),
				ghttp.VerifyHeaderKV("Authorization", "Bearer sk-test"),
				ghttp.VerifyContentType("application/json"),
				func(w http.ResponseWriter, r *http.Request) {
					body, readErr := io.ReadAll(r.Body)
					Expect(readErr).NotTo(HaveOccurred())
					Expect(json.Unmarshal(body, &captured)).To(Succeed())
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, chatCompletion(
					`{"amount":"45.00","category":"Food","payment_method":"UPI","merchant":"Cafe X","confidence_score":90}`,
				)),
			))
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should return the parsed result", func() {
			Expect(result.Amount.String()).To(Equal("45.00"))
			Expect(result.Merchant.String()).To(Equal("Cafe X"))
			Expect(result.PaymentMethod.String()).To(Equal("UPI"))
		})

		It("should request JSON output with the configured model", func() {
			Expect(captured.Model).To(Equal("gpt-4o-mini"))
			Expect(captured.MaxTokens).To(Equal(500))
			Expect(captured.ResponseFormat.Type).To(Equal("json_object"))
		})

		It("should send the system instruction and the image", func() {
			Expect(captured.Messages).To(HaveLen(2))
			Expect(captured.Messages[0].Role).To(Equal("system"))
			Expect(captured.Messages[0].Content).To(ContainSubstring("One of: Food, Travel, Shopping, Health, Bills, Others"))
			Expect(captured.Messages[0].Content).To(ContainSubstring("One of: Cash, UPI, Card, NetBanking"))

			Expect(captured.Messages[1].Role).To(Equal("user"))
			parts, ok := captured.Messages[1].Content.([]any)
			Expect(ok).To(BeTrue())
			Expect(parts).To(HaveLen(2))
			Expect(parts[0]).To(HaveKeyWithValue("type", "text"))
			Expect(parts[1]).To(HaveKeyWithValue("type", "image_url"))
			url := parts[1].(map[string]any)["image_url"].(map[string]any)["url"].(string)
			Expect(strings.HasPrefix(url, "data:image/png;base64,")).To(BeTrue())
		})
	})

	When("the endpoint returns an error body", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusUnauthorized, map[string]any{
				"error": map[string]any{"message": "Incorrect API key provided"},
			}))
		})

		It("returns an ExtractionError with the endpoint's message", func() {
			var extractionErr *ExtractionError
			Expect(errors.As(err, &extractionErr)).To(BeTrue())
			Expect(extractionErr.Reason).To(Equal("Incorrect API key provided"))
		})
	})

	When("the endpoint fails without an error body", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusBadGateway, "upstream down"))
		})

		It("returns a generic reason", func() {
			var extractionErr *ExtractionError
			Expect(errors.As(err, &extractionErr)).To(BeTrue())
			Expect(extractionErr.Reason).To(Equal("OpenAI API Request Failed"))
		})
	})

	When("the message content is not JSON", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, chatCompletion("I cannot read this receipt")))
		})

		It("returns an ExtractionError", func() {
			var extractionErr *ExtractionError
			Expect(errors.As(err, &extractionErr)).To(BeTrue())
			Expect(result).To(BeNil())
		})
	})

	When("the response body is not JSON", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusOK, "<html>oops</html>"))
		})

		It("returns an ExtractionError", func() {
			var extractionErr *ExtractionError
			Expect(errors.As(err, &extractionErr)).To(BeTrue())
		})
	})

	When("the response has no choices", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{"choices": []any{}}))
		})

		It("returns an ExtractionError", func() {
			var extractionErr *ExtractionError
			Expect(errors.As(err, &extractionErr)).To(BeTrue())
		})
	})

	When("the endpoint is unreachable", func() {
		BeforeEach(func() {
			server.Close()
		})

		It("returns an ExtractionError", func() {
			var extractionErr *ExtractionError
			Expect(errors.As(err, &extractionErr)).To(BeTrue())
			Expect(extractionErr.Unwrap()).To(HaveOccurred())
		})
	})

	When("the image cannot be decoded", func() {
		BeforeEach(func() {
			img = Image{Data: []byte("not an image"), ContentType: "text/plain"}
		})

		It("returns an ExtractionError without calling the endpoint", func() {
			var extractionErr *ExtractionError
			Expect(errors.As(err, &extractionErr)).To(BeTrue())
			Expect(server.ReceivedRequests()).To(BeEmpty())
		})
	})
})
