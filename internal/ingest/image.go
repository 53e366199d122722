// Package ingest turns uploaded files and base64 strings into validated,
// decoded images.
//
// Validation always runs in the same order: the declared file extension,
// then the byte size, then the image decode. Each failure is reported with
// the matching apperr sentinel so the HTTP layer can map it to a status code.
package ingest

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"aiservices/internal/apperr"
)

// AllowedExtensions lists the accepted file extensions, lower case, without the dot.
var AllowedExtensions = []string{"png", "jpg", "jpeg", "gif", "bmp", "webp"}

// allowedFormats are the decoder names registered with the image package.
var allowedFormats = map[string]bool{
	"png":  true,
	"jpeg": true,
	"gif":  true,
	"bmp":  true,
	"webp": true,
}

// Image is a validated, decoded request image.
type Image struct {
	// Data holds the bytes sent to the model backends. It is the input as
	// received, except for JPEGs carrying EXIF metadata, which are re-encoded
	// upright so Data, Decoded, Width and Height share one pixel frame.
	Data []byte

	// Filename is the client supplied name; empty for base64 input.
	Filename string

	// Extension is the lower case extension of Filename, or the decoded
	// format for base64 input.
	Extension string

	// Format is the decoder that accepted Data (png, jpeg, gif, bmp, webp).
	Format string

	// Width and Height are the upright dimensions of Decoded.
	Width  int
	Height int

	Decoded image.Image

	// Path is the workspace file the upload was spooled to, if any.
	Path string
}

// Bounds returns the pixel bounds of the decoded image.
func (img *Image) Bounds() image.Rectangle {
	return img.Decoded.Bounds()
}

// MIMEType returns the MIME type matching Format.
func (img *Image) MIMEType() string {
	return "image/" + img.Format
}

// Base64 returns Data in standard base64 encoding.
func (img *Image) Base64() string {
	return base64.StdEncoding.EncodeToString(img.Data)
}

// Extension returns the lower case extension of filename without the dot.
func Extension(filename string) string {
	ext := filepath.Ext(filename)
	if len(ext) > 0 {
		return strings.ToLower(ext[1:])
	}
	return ""
}

// IsAllowed reports whether filename carries an accepted image extension.
func IsAllowed(filename string) bool {
	ext := Extension(filename)
	for _, allowed := range AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

func unsupportedFormat(op string) error {
	return apperr.New(op, apperr.ErrUnsupportedFormat,
		fmt.Sprintf("File type not allowed. Supported types: %s", strings.Join(AllowedExtensions, ", ")))
}

func tooLarge(op string, limit int64) error {
	return apperr.New(op, apperr.ErrFileTooLarge,
		fmt.Sprintf("File too large. Maximum size is %dMB", limit/(1024*1024)))
}

// FromUpload validates a multipart upload and spools it into ws.
func FromUpload(ws *Workspace, fh *multipart.FileHeader, limit int64) (*Image, error) {
	const op = "FromUpload"

	if fh == nil || fh.Filename == "" {
		return nil, apperr.New(op, apperr.ErrMissingField, "No image file selected")
	}
	if !IsAllowed(fh.Filename) {
		return nil, unsupportedFormat(op)
	}
	if fh.Size > limit {
		return nil, tooLarge(op, limit)
	}

	src, err := fh.Open()
	if err != nil {
		return nil, apperr.New(op, apperr.ErrInvalidImage, fmt.Sprintf("Failed to read upload: %v", err))
	}
	defer src.Close()

	var buf bytes.Buffer
	path, n, err := ws.Save(Extension(fh.Filename), io.TeeReader(io.LimitReader(src, limit+1), &buf))
	if err != nil {
		return nil, apperr.Wrap(op, err, "Failed to store upload")
	}
	if n > limit {
		return nil, tooLarge(op, limit)
	}

	img, err := decode(op, buf.Bytes())
	if err != nil {
		return nil, err
	}
	img.Filename = fh.Filename
	img.Extension = Extension(fh.Filename)
	img.Path = path
	return img, nil
}

// FromBase64 decodes a base64 image, with or without a data URL prefix.
func FromBase64(s string, limit int64) (*Image, error) {
	const op = "FromBase64"

	s = strings.TrimSpace(s)
	if s == "" {
		return nil, apperr.New(op, apperr.ErrMissingField, "No base64 image data provided")
	}
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			s = s[i+1:]
		}
	}

	// Reject before allocating when the encoded length alone exceeds the limit.
	if int64(base64.StdEncoding.DecodedLen(len(s))) > limit+2 {
		return nil, tooLarge(op, limit)
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		var rawErr error
		data, rawErr = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
		if rawErr != nil {
			return nil, apperr.New(op, apperr.ErrInvalidImage, fmt.Sprintf("Invalid base64 image data: %v", err))
		}
	}
	if int64(len(data)) > limit {
		return nil, tooLarge(op, limit)
	}

	img, err := decode(op, data)
	if err != nil {
		return nil, err
	}
	img.Extension = img.Format
	return img, nil
}

// FromBytes validates in-memory bytes carrying a file name, as read from disk.
func FromBytes(name string, data []byte, limit int64) (*Image, error) {
	const op = "FromBytes"

	if name == "" {
		return nil, apperr.New(op, apperr.ErrMissingField, "No image file provided")
	}
	if !IsAllowed(name) {
		return nil, unsupportedFormat(op)
	}
	if int64(len(data)) > limit {
		return nil, tooLarge(op, limit)
	}

	img, err := decode(op, data)
	if err != nil {
		return nil, err
	}
	img.Filename = filepath.Base(name)
	img.Extension = Extension(name)
	return img, nil
}

func decode(op string, data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, apperr.New(op, apperr.ErrInvalidImage, "Invalid image data: empty file")
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, apperr.New(op, apperr.ErrInvalidImage, fmt.Sprintf("Invalid image data: %v", err))
	}
	if !allowedFormats[format] {
		return nil, unsupportedFormat(op)
	}

	decoded, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, apperr.New(op, apperr.ErrInvalidImage, fmt.Sprintf("Invalid image data: %v", err))
	}

	if format == "jpeg" && hasEXIF(data) {
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, decoded, imaging.JPEG, imaging.JPEGQuality(95)); err != nil {
			return nil, apperr.New(op, apperr.ErrInvalidImage, fmt.Sprintf("Invalid image data: %v", err))
		}
		data = buf.Bytes()
	}

	b := decoded.Bounds()
	return &Image{
		Data:    data,
		Format:  format,
		Width:   b.Dx(),
		Height:  b.Dy(),
		Decoded: decoded,
	}, nil
}

// exifScanLimit bounds the search for the EXIF APP1 header, which sits in
// the first segments of a JPEG.
const exifScanLimit = 64 << 10

var exifHeader = []byte("Exif\x00\x00")

// hasEXIF reports whether a JPEG carries an EXIF segment, which is where an
// orientation tag lives.
func hasEXIF(data []byte) bool {
	return bytes.Contains(data[:min(len(data), exifScanLimit)], exifHeader)
}

// Crop returns the region rect expanded by padding on every side and
// clamped to the image, re-encoded as PNG.
func (img *Image) Crop(rect image.Rectangle, padding int) (*Image, error) {
	const op = "Crop"

	region := image.Rect(
		rect.Min.X-padding, rect.Min.Y-padding,
		rect.Max.X+padding, rect.Max.Y+padding,
	).Intersect(img.Decoded.Bounds())
	if region.Empty() {
		return nil, apperr.Inference(op, fmt.Errorf("crop region %v outside image bounds %v", rect, img.Decoded.Bounds()))
	}

	cropped := imaging.Crop(img.Decoded, region)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, cropped, imaging.PNG); err != nil {
		return nil, apperr.Inference(op, err)
	}

	b := cropped.Bounds()
	return &Image{
		Data:      buf.Bytes(),
		Filename:  img.Filename,
		Extension: "png",
		Format:    "png",
		Width:     b.Dx(),
		Height:    b.Dy(),
		Decoded:   cropped,
	}, nil
}
