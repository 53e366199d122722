package ingest

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"mime/multipart"
	"os"
	"testing"

	"golang.org/x/image/bmp"

	"aiservices/internal/apperr"
)

const testLimit = 1 << 20

func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 10), uint8(y * 10), 128, 255})
		}
	}
	return img
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage(w, h)); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func gifBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := gif.Encode(&buf, testImage(8, 8), nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func bmpBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := bmp.Encode(&buf, testImage(8, 8)); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// uploadHeader builds a real multipart.FileHeader the way net/http parses one.
func uploadHeader(t *testing.T, filename string, data []byte) *multipart.FileHeader {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	form, err := multipart.NewReader(&body, mw.Boundary()).ReadForm(32 << 20)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { form.RemoveAll() })
	return form.File["image"][0]
}

func TestFromBytes(t *testing.T) {
	valid := pngBytes(t, 4, 3)

	tests := []struct {
		name       string
		filename   string
		data       []byte
		limit      int64
		wantErr    error
		wantFormat string
	}{
		{"png", "card.PNG", valid, testLimit, nil, "png"},
		{"gif", "anim.gif", gifBytes(t), testLimit, nil, "gif"},
		{"bmp", "scan.bmp", bmpBytes(t), testLimit, nil, "bmp"},
		{"missing name", "", valid, testLimit, apperr.ErrMissingField, ""},
		{"unsupported extension", "notes.txt", valid, testLimit, apperr.ErrUnsupportedFormat, ""},
		{"extension checked before size", "notes.txt", valid, 1, apperr.ErrUnsupportedFormat, ""},
		{"too large", "card.png", valid, int64(len(valid) - 1), apperr.ErrFileTooLarge, ""},
		{"corrupt", "card.png", []byte("definitely not an image"), testLimit, apperr.ErrInvalidImage, ""},
		{"empty", "card.png", nil, testLimit, apperr.ErrInvalidImage, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := FromBytes(tt.filename, tt.data, tt.limit)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("FromBytes() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("FromBytes() unexpected error = %v", err)
			}
			if img.Format != tt.wantFormat {
				t.Errorf("Format = %q, want %q", img.Format, tt.wantFormat)
			}
			if img.Decoded == nil {
				t.Error("Decoded image is nil")
			}
		})
	}
}

func TestFromBase64(t *testing.T) {
	data := pngBytes(t, 5, 5)
	std := base64.StdEncoding.EncodeToString(data)
	raw := base64.RawStdEncoding.EncodeToString(data)

	tests := []struct {
		name    string
		input   string
		limit   int64
		wantErr error
	}{
		{"standard", std, testLimit, nil},
		{"data url", "data:image/png;base64," + std, testLimit, nil},
		{"unpadded", raw, testLimit, nil},
		{"empty", "  ", testLimit, apperr.ErrMissingField},
		{"bad alphabet", "***not base64***", testLimit, apperr.ErrInvalidImage},
		{"decodes to garbage", base64.StdEncoding.EncodeToString([]byte("hello")), testLimit, apperr.ErrInvalidImage},
		{"too large", std, 16, apperr.ErrFileTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := FromBase64(tt.input, tt.limit)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("FromBase64() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("FromBase64() unexpected error = %v", err)
			}
			if !bytes.Equal(img.Data, data) {
				t.Error("decoded bytes differ from the original")
			}
			if img.Width != 5 || img.Height != 5 {
				t.Errorf("size = %dx%d, want 5x5", img.Width, img.Height)
			}
		})
	}
}

func TestFromUploadSpoolsAndReleases(t *testing.T) {
	dir := t.TempDir()
	ws, err := NewWorkspace(dir)
	if err != nil {
		t.Fatal(err)
	}

	data := pngBytes(t, 6, 4)
	img, err := FromUpload(ws, uploadHeader(t, "id.png", data), testLimit)
	if err != nil {
		t.Fatalf("FromUpload() error = %v", err)
	}
	if img.Filename != "id.png" || img.Extension != "png" {
		t.Errorf("Filename/Extension = %q/%q", img.Filename, img.Extension)
	}
	if _, err := os.Stat(img.Path); err != nil {
		t.Fatalf("spooled file missing: %v", err)
	}

	if err := ws.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	assertEmptyDir(t, dir)
}

func TestFromUploadRejections(t *testing.T) {
	data := pngBytes(t, 6, 4)

	tests := []struct {
		name     string
		filename string
		data     []byte
		limit    int64
		wantErr  error
	}{
		{"unsupported extension", "doc.pdf", data, testLimit, apperr.ErrUnsupportedFormat},
		{"too large", "id.png", data, 10, apperr.ErrFileTooLarge},
		{"corrupt", "id.jpg", []byte("garbage bytes"), testLimit, apperr.ErrInvalidImage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			ws, err := NewWorkspace(dir)
			if err != nil {
				t.Fatal(err)
			}

			_, err = FromUpload(ws, uploadHeader(t, tt.filename, tt.data), tt.limit)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("FromUpload() error = %v, want %v", err, tt.wantErr)
			}

			if err := ws.Release(); err != nil {
				t.Fatalf("Release() error = %v", err)
			}
			assertEmptyDir(t, dir)
		})
	}
}

func TestFromUploadMissingFile(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := FromUpload(ws, nil, testLimit); !errors.Is(err, apperr.ErrMissingField) {
		t.Errorf("FromUpload(nil) error = %v, want ErrMissingField", err)
	}
}

func TestCropPadsAndClamps(t *testing.T) {
	img, err := FromBytes("card.png", pngBytes(t, 20, 10), testLimit)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		rect  image.Rectangle
		pad   int
		wantW int
		wantH int
	}{
		{"inside", image.Rect(5, 2, 10, 6), 1, 7, 6},
		{"clamped", image.Rect(2, 2, 18, 8), 10, 20, 10},
		{"no padding", image.Rect(0, 0, 4, 4), 0, 4, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cropped, err := img.Crop(tt.rect, tt.pad)
			if err != nil {
				t.Fatalf("Crop() error = %v", err)
			}
			if cropped.Width != tt.wantW || cropped.Height != tt.wantH {
				t.Errorf("Crop() size = %dx%d, want %dx%d", cropped.Width, cropped.Height, tt.wantW, tt.wantH)
			}
			if cropped.Format != "png" {
				t.Errorf("Format = %q, want png", cropped.Format)
			}
			if _, err := png.Decode(bytes.NewReader(cropped.Data)); err != nil {
				t.Errorf("cropped data is not a PNG: %v", err)
			}
		})
	}
}

func TestCropOutsideImage(t *testing.T) {
	img, err := FromBytes("card.png", pngBytes(t, 10, 10), testLimit)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := img.Crop(image.Rect(50, 50, 60, 60), 0); !errors.Is(err, apperr.ErrInference) {
		t.Errorf("Crop() error = %v, want ErrInference", err)
	}
}

// jpegBytes encodes a w x h JPEG. A non-zero orientation adds an EXIF
// segment carrying that orientation tag, as phone cameras write it.
func jpegBytes(t *testing.T, w, h int, orientation byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, testImage(w, h), nil); err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()
	if orientation == 0 {
		return data
	}

	tiff := []byte{
		'M', 'M', 0, 42, 0, 0, 0, 8, // big endian header, IFD at offset 8
		0, 1, // one entry
		0x01, 0x12, 0, 3, 0, 0, 0, 1, 0, orientation, 0, 0, // Orientation, SHORT
		0, 0, 0, 0, // no next IFD
	}
	payload := append([]byte("Exif\x00\x00"), tiff...)
	size := len(payload) + 2
	app1 := append([]byte{0xFF, 0xE1, byte(size >> 8), byte(size)}, payload...)

	out := append([]byte{}, data[:2]...)
	out = append(out, app1...)
	return append(out, data[2:]...)
}

func TestFromBytesAppliesEXIFOrientation(t *testing.T) {
	// orientation 6: stored landscape, displayed rotated 90 degrees clockwise
	img, err := FromBytes("phone.jpg", jpegBytes(t, 40, 10, 6), testLimit)
	if err != nil {
		t.Fatalf("FromBytes() error = %v", err)
	}

	if img.Width != 10 || img.Height != 40 {
		t.Errorf("size = %dx%d, want 10x40", img.Width, img.Height)
	}
	if b := img.Decoded.Bounds(); b.Dx() != img.Width || b.Dy() != img.Height {
		t.Errorf("decoded bounds %v disagree with %dx%d", b, img.Width, img.Height)
	}

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(img.Data))
	if err != nil {
		t.Fatalf("Data is not a JPEG: %v", err)
	}
	if cfg.Width != img.Width || cfg.Height != img.Height {
		t.Errorf("Data is %dx%d, want the upright %dx%d", cfg.Width, cfg.Height, img.Width, img.Height)
	}
	if bytes.Contains(img.Data, []byte("Exif")) {
		t.Error("Data still carries the EXIF segment")
	}

	cropped, err := img.Crop(image.Rect(0, 20, 10, 40), 0)
	if err != nil {
		t.Fatalf("Crop() error = %v", err)
	}
	if cropped.Width != 10 || cropped.Height != 20 {
		t.Errorf("Crop() size = %dx%d, want 10x20", cropped.Width, cropped.Height)
	}
}

func TestFromBytesKeepsPlainJPEG(t *testing.T) {
	data := jpegBytes(t, 40, 10, 0)
	img, err := FromBytes("photo.jpeg", data, testLimit)
	if err != nil {
		t.Fatalf("FromBytes() error = %v", err)
	}
	if !bytes.Equal(img.Data, data) {
		t.Error("JPEG without EXIF was re-encoded")
	}
	if img.Width != 40 || img.Height != 10 {
		t.Errorf("size = %dx%d, want 40x10", img.Width, img.Height)
	}
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("workspace left %d files behind", len(entries))
	}
}
