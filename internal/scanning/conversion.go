package scanning

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// passthroughTypes are sent to the vision endpoint unchanged
var passthroughTypes = []string{"image/png", "image/jpeg", "image/gif", "image/webp"}

// NewImage wraps raw bytes and sniffs their content type
func NewImage(data []byte) Image {
	return Image{
		Data:        data,
		ContentType: mimetype.Detect(data).String(),
	}
}

// pdfToImage renders the first page of a PDF as PNG
func pdfToImage(pdfData []byte) ([]byte, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	// Receipts are single page
	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}

	return buf.Bytes(), nil
}

// imageToPNG decodes HEIC or any registered image format and re-encodes it as PNG
func imageToPNG(imageData []byte, heif bool) ([]byte, error) {
	var img image.Image
	var err error

	if heif {
		img, err = heic.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
	} else {
		img, _, err = image.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("unsupported image format. Supported formats: JPEG, PNG, GIF, WEBP, HEIC, HEIF, PDF. Error: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}

	return buf.Bytes(), nil
}

// isHEICFormat checks the ftyp box brand of an ISO media file
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	brand := string(data[8:12])
	return brand == "heic" || brand == "heix" || brand == "heif" || brand == "mif1" || brand == "msf1"
}

// prepareImage makes an image acceptable to a vision endpoint.
// PDFs are rendered to their first page and HEIC photos are converted to PNG.
func prepareImage(img Image) (Image, error) {
	if len(img.Data) == 0 {
		return Image{}, fmt.Errorf("image is empty")
	}

	mt := mimetype.Detect(img.Data)
	declared := strings.ToLower(strings.TrimSpace(img.ContentType))

	switch {
	case mt.Is("application/pdf"):
		pngData, err := pdfToImage(img.Data)
		if err != nil {
			return Image{}, fmt.Errorf("converting PDF to image: %w", err)
		}
		return Image{Data: pngData, ContentType: "image/png"}, nil
	case mt.Is("image/heic") || mt.Is("image/heif") || isHEICFormat(img.Data):
		pngData, err := imageToPNG(img.Data, true)
		if err != nil {
			return Image{}, fmt.Errorf("converting image to PNG: %w", err)
		}
		return Image{Data: pngData, ContentType: "image/png"}, nil
	}

	for _, t := range passthroughTypes {
		if mt.Is(t) {
			return Image{Data: img.Data, ContentType: t}, nil
		}
	}

	pngData, err := imageToPNG(img.Data, false)
	if err != nil {
		if declared != "" {
			return Image{}, fmt.Errorf("converting %s to PNG: %w", declared, err)
		}
		return Image{}, fmt.Errorf("converting image to PNG: %w", err)
	}
	return Image{Data: pngData, ContentType: "image/png"}, nil
}
