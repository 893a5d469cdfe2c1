package extract

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// tesseractOCR runs a local Tesseract client per call. Clients are
// cheap relative to recognition itself and are not safe to share
// across goroutines.
type tesseractOCR struct{}

func (o *tesseractOCR) Recognize(ctx context.Context, image []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("ocr: set image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("ocr: recognize: %w", err)
	}
	return text, nil
}

// Confidences returns Tesseract's per-word confidence values (0-100,
// with -1 for regions holding no recognized text). The caller filters
// the sentinels.
func (o *tesseractOCR) Confidences(ctx context.Context, image []byte) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetImageFromBytes(image); err != nil {
		return nil, fmt.Errorf("ocr: set image: %w", err)
	}
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("ocr: confidence data: %w", err)
	}

	confs := make([]float64, 0, len(boxes))
	for _, box := range boxes {
		confs = append(confs, box.Confidence)
	}
	return confs, nil
}
