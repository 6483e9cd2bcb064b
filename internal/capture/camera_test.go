package capture

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("CommandCamera", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	When("no command is configured", func() {
		It("returns ErrNoCamera on open", func() {
			Expect(NewCommandCamera("").Open(ctx)).To(MatchError(ErrNoCamera))
		})
	})

	When("the command does not exist", func() {
		It("returns an error on open", func() {
			Expect(NewCommandCamera("no-such-camera-binary-xyz").Open(ctx)).To(MatchError(ContainSubstring("finding camera command")))
		})
	})

	When("the command writes an image", func() {
		var (
			camera *CommandCamera
			frame  []byte
		)

		BeforeEach(func() {
			frame = []byte("\xff\xd8\xff\xe0 fake jpeg")
			path := filepath.Join(GinkgoT().TempDir(), "frame.jpg")
			Expect(os.WriteFile(path, frame, 0644)).To(Succeed())
			camera = NewCommandCamera("cat " + path)
		})

		It("should return the frame while open", func() {
			Expect(camera.Open(ctx)).To(Succeed())
			img, err := camera.Capture(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(img.Data).To(Equal(frame))
			Expect(img.ContentType).To(Equal("image/jpeg"))
		})

		It("should refuse a second open until closed", func() {
			Expect(camera.Open(ctx)).To(Succeed())
			Expect(camera.Open(ctx)).To(HaveOccurred())
			Expect(camera.Close()).To(Succeed())
			Expect(camera.Open(ctx)).To(Succeed())
		})

		It("should refuse to capture when closed", func() {
			_, err := camera.Capture(ctx)
			Expect(err).To(MatchError(ContainSubstring("not open")))
		})
	})

	When("the command fails", func() {
		It("returns an error on capture", func() {
			camera := NewCommandCamera("false")
			Expect(camera.Open(ctx)).To(Succeed())
			_, err := camera.Capture(ctx)
			Expect(err).To(MatchError(ContainSubstring("running camera command")))
		})
	})
})
