package ui_test

import (
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/receipt-capture/internal/capture"
	"github.com/zombor/receipt-capture/internal/credential"
	"github.com/zombor/receipt-capture/internal/form"
	"github.com/zombor/receipt-capture/internal/scanning"
	"github.com/zombor/receipt-capture/internal/ui"
)

var _ = Describe("Integration", func() {
	var (
		store      *credential.BoltStore
		visionAPI  *ghttp.Server
		formAPI    *ghttp.Server
		server     *ui.Server
		httpServer *ghttp.Server
	)

	BeforeEach(func() {
		var err error
		store, err = credential.NewBoltStore(filepath.Join(GinkgoT().TempDir(), "settings.db"))
		Expect(err).NotTo(HaveOccurred())

		visionAPI = ghttp.NewServer()
		formAPI = ghttp.NewServer()

		formConfig := form.DefaultConfig()
		formConfig.URL = formAPI.URL() + "/forms/d/e/abc/formResponse"
		formConfig.Fields = form.Fields{Amount: "entry.1", Category: "entry.2", Method: "entry.3", Description: "entry.4"}
		vocab := scanning.Vocabulary{Categories: formConfig.Categories, Methods: formConfig.PaymentMethods}

		extractor := scanning.NewOpenAI(scanning.OpenAIConfig{
			URL:        visionAPI.URL() + "/v1/chat/completions",
			Vocabulary: vocab,
		})
		submitter := form.NewClient(formConfig, 0)

		newFlow := func(onExit func()) *capture.Flow {
			return capture.NewFlow(extractor, store, submitter, capture.NewCommandCamera(""), capture.Config{
				Vocabulary:  vocab,
				ReturnDelay: capture.DefaultReturnDelay,
				OnExit:      onExit,
			})
		}
		server = ui.NewServer(newFlow, store, ui.Settings{Form: formConfig, Version: "test"}, ui.BasicAuth{})

		httpServer = ghttp.NewServer()
	})

	AfterEach(func() {
		server.Close()
		httpServer.Close()
		visionAPI.Close()
		formAPI.Close()
		Expect(store.Close()).To(Succeed())
	})

	It("should save a key, scan an upload and submit the expense", func() {
		httpServer.AppendHandlers(server.ServeHTTP, server.ServeHTTP, server.ServeHTTP)

		content, err := json.Marshal(map[string]string{
			"amount":           "$12.40",
			"date":             "2024-05-02",
			"merchant":         "Metro Cab",
			"category":         "Travel",
			"payment_method":   "UPI",
			"confidence_score": "91",
		})
		Expect(err).NotTo(HaveOccurred())

		visionAPI.AppendHandlers(ghttp.CombineHandlers(
			ghttp.VerifyRequest("POST", "/v1/chat/completions"),
			ghttp.VerifyHeaderKV("Authorization", "Bearer sk-live-5678"),
			ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
				"choices": []map[string]any{
					{"message": map[string]any{"role": "assistant", "content": string(content)}},
				},
			}),
		))
		formAPI.AppendHandlers(ghttp.CombineHandlers(
			ghttp.VerifyRequest("POST", "/forms/d/e/abc/formResponse"),
			ghttp.VerifyForm(url.Values{
				"entry.1": []string{"12.40"},
				"entry.2": []string{"Travel"},
				"entry.3": []string{"UPI"},
				"entry.4": []string{"Metro Cab"},
			}),
			ghttp.RespondWith(http.StatusOK, ""),
		))

		// --- Step 1: save the API key ---
		req, err := http.NewRequest("PUT", httpServer.URL()+"/api/settings/key", bytes.NewBufferString(`{"api_key":"sk-live-5678"}`))
		Expect(err).NotTo(HaveOccurred())
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusNoContent))

		// --- Step 2: upload a photo ---
		var img bytes.Buffer
		Expect(png.Encode(&img, image.NewGray(image.Rect(0, 0, 4, 4)))).To(Succeed())

		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		part, err := writer.CreateFormFile("file", "receipt.png")
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(img.Bytes())
		Expect(err).NotTo(HaveOccurred())
		Expect(writer.Close()).To(Succeed())

		resp, err = http.Post(httpServer.URL()+"/api/session/upload", writer.FormDataContentType(), body)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var session struct {
			Step  string        `json:"step"`
			Draft capture.Draft `json:"draft"`
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		Expect(err).NotTo(HaveOccurred())
		Expect(json.Unmarshal(data, &session)).To(Succeed())
		Expect(session.Step).To(Equal("form"))
		Expect(session.Draft).To(Equal(capture.Draft{Amount: "12.40", Category: "Travel", Method: "UPI", Description: "Metro Cab"}))

		// --- Step 3: submit ---
		resp, err = http.Post(httpServer.URL()+"/api/session/submit", "application/json", nil)
		Expect(err).NotTo(HaveOccurred())
		data, err = io.ReadAll(resp.Body)
		resp.Body.Close()
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(json.Unmarshal(data, &session)).To(Succeed())
		Expect(session.Step).To(Equal("success"))

		Expect(visionAPI.ReceivedRequests()).To(HaveLen(1))
		Expect(formAPI.ReceivedRequests()).To(HaveLen(1))
	})
})
