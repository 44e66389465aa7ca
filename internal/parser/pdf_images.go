package parser

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"strconv"
	"strings"

	pdflib "github.com/ledongthuc/pdf"
	"github.com/lucasb-eyer/go-colorful"
)

// pdfImages extracts raster image XObjects. Stream bytes are read straight
// from the file so that filters the pdf library does not decode (DCT, PNG
// predictors) can still be handled.
type pdfImages struct {
	data      []byte
	encrypted bool
}

// page returns the page's images as base64 blobs. JPEG streams pass through
// untouched; everything else is re-encoded as PNG. Images in unsupported
// encodings are counted and skipped.
func (d pdfImages) page(page pdflib.Page) (images []string, skipped int) {
	xobjects := page.Resources().Key("XObject")
	if xobjects.Kind() != pdflib.Dict {
		return nil, 0
	}
	for _, name := range xobjects.Keys() {
		x := xobjects.Key(name)
		if x.Key("Subtype").Name() != "Image" || x.Key("ImageMask").Bool() {
			continue
		}
		encoded, err := d.encode(x)
		if err != nil {
			skipped++
			continue
		}
		images = append(images, encoded)
	}
	return images, skipped
}

func (d pdfImages) encode(x pdflib.Value) (encoded string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("decode image: %v", rec)
		}
	}()

	if d.encrypted {
		// Decryption lives inside the pdf library, so only the filters it
		// decodes itself are available here.
		rd := x.Reader()
		defer rd.Close()
		samples, err := io.ReadAll(rd)
		if err != nil {
			return "", fmt.Errorf("read image stream: %w", err)
		}
		return encodeSamples(x, samples)
	}

	filters, params := streamFilters(x)
	if n := len(filters); n > 0 && filters[n-1] == "DCTDecode" {
		jpeg, err := d.decode(x, filters[:n-1], params[:n-1])
		if err != nil {
			return "", err
		}
		return base64.StdEncoding.EncodeToString(jpeg), nil
	}

	samples, err := d.decode(x, filters, params)
	if err != nil {
		return "", err
	}
	return encodeSamples(x, samples)
}

// decode returns the stream contents with the given filters undone.
func (d pdfImages) decode(x pdflib.Value, filters []string, params []pdflib.Value) ([]byte, error) {
	buf, err := d.rawStream(x)
	if err != nil {
		return nil, err
	}
	for i, f := range filters {
		switch f {
		case "FlateDecode", "Fl":
			buf, err = inflate(buf, params[i])
			if err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("unsupported filter %s", f)
		}
	}
	return buf, nil
}

// rawStream slices the undecoded stream out of the file. The pdf library
// formats a stream value as "<header>@<offset>", where offset is the first
// byte of stream data.
func (d pdfImages) rawStream(x pdflib.Value) ([]byte, error) {
	if x.Kind() != pdflib.Stream {
		return nil, fmt.Errorf("not a stream")
	}
	s := x.String()
	at := strings.LastIndexByte(s, '@')
	if at < 0 {
		return nil, fmt.Errorf("stream offset not found")
	}
	offset, err := strconv.ParseInt(s[at+1:], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("stream offset: %w", err)
	}
	length := x.Key("Length").Int64()
	if offset < 0 || length < 0 || offset+length > int64(len(d.data)) {
		return nil, fmt.Errorf("stream out of range: %d+%d", offset, length)
	}
	return d.data[offset : offset+length], nil
}

// streamFilters lists the stream's filters with their aligned DecodeParms.
func streamFilters(x pdflib.Value) ([]string, []pdflib.Value) {
	filter := x.Key("Filter")
	param := x.Key("DecodeParms")
	switch filter.Kind() {
	case pdflib.Name:
		return []string{filter.Name()}, []pdflib.Value{param}
	case pdflib.Array:
		names := make([]string, filter.Len())
		params := make([]pdflib.Value, filter.Len())
		for i := range names {
			names[i] = filter.Index(i).Name()
			params[i] = param.Index(i)
		}
		return names, params
	}
	return nil, nil
}

func inflate(data []byte, param pdflib.Value) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("inflate: %w", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil && len(out) == 0 {
		return nil, fmt.Errorf("inflate: %w", err)
	}

	predictor := param.Key("Predictor").Int64()
	switch {
	case predictor <= 1:
		return out, nil
	case predictor >= 10 && predictor <= 15:
		colors := intOr(param.Key("Colors"), 1)
		bpc := intOr(param.Key("BitsPerComponent"), 8)
		columns := intOr(param.Key("Columns"), 1)
		return unpredictPNG(out, colors, bpc, columns)
	}
	return nil, fmt.Errorf("unsupported predictor %d", predictor)
}

func intOr(v pdflib.Value, fallback int) int {
	if v.Kind() != pdflib.Integer || v.Int64() <= 0 {
		return fallback
	}
	return int(v.Int64())
}

// unpredictPNG reverses per-row PNG filtering. Each row carries a leading
// filter-type byte.
func unpredictPNG(data []byte, colors, bpc, columns int) ([]byte, error) {
	bpp := max(1, colors*bpc/8)
	rowLen := (colors*bpc*columns + 7) / 8
	stride := rowLen + 1
	if len(data) < stride {
		return nil, fmt.Errorf("short predicted data: %d bytes", len(data))
	}

	rows := len(data) / stride
	out := make([]byte, 0, rows*rowLen)
	prev := make([]byte, rowLen)
	for r := 0; r < rows; r++ {
		ft := data[r*stride]
		cur := make([]byte, rowLen)
		copy(cur, data[r*stride+1:(r+1)*stride])

		for i := range cur {
			var left, upLeft byte
			if i >= bpp {
				left = cur[i-bpp]
				upLeft = prev[i-bpp]
			}
			up := prev[i]
			switch ft {
			case 0:
			case 1:
				cur[i] += left
			case 2:
				cur[i] += up
			case 3:
				cur[i] += byte((int(left) + int(up)) / 2)
			case 4:
				cur[i] += paeth(left, up, upLeft)
			default:
				return nil, fmt.Errorf("unknown png filter type %d", ft)
			}
		}
		out = append(out, cur...)
		prev = cur
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	switch {
	case pa <= pb && pa <= pc:
		return a
	case pb <= pc:
		return b
	}
	return c
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// encodeSamples turns 8-bit gray, RGB or CMYK samples into a base64 PNG.
func encodeSamples(x pdflib.Value, raw []byte) (string, error) {
	width := int(x.Key("Width").Int64())
	height := int(x.Key("Height").Int64())
	if width <= 0 || height <= 0 {
		return "", fmt.Errorf("invalid image size %dx%d", width, height)
	}
	if bpc := x.Key("BitsPerComponent").Int64(); bpc != 8 {
		return "", fmt.Errorf("unsupported bits per component %d", bpc)
	}
	components, err := colorComponents(x.Key("ColorSpace"))
	if err != nil {
		return "", err
	}
	if len(raw) < width*height*components {
		return "", fmt.Errorf("short image data: %d bytes", len(raw))
	}

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for px := 0; px < width; px++ {
			off := (y*width + px) * components
			switch components {
			case 1:
				v := raw[off]
				img.SetNRGBA(px, y, color.NRGBA{R: v, G: v, B: v, A: 255})
			case 3:
				img.SetNRGBA(px, y, color.NRGBA{R: raw[off], G: raw[off+1], B: raw[off+2], A: 255})
			case 4:
				k := float64(raw[off+3]) / 255
				c := colorful.Color{
					R: (1 - float64(raw[off])/255) * (1 - k),
					G: (1 - float64(raw[off+1])/255) * (1 - k),
					B: (1 - float64(raw[off+2])/255) * (1 - k),
				}
				r, g, b := c.Clamped().RGB255()
				img.SetNRGBA(px, y, color.NRGBA{R: r, G: g, B: b, A: 255})
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode png: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func colorComponents(cs pdflib.Value) (int, error) {
	name := cs.Name()
	if cs.Kind() == pdflib.Array && cs.Len() > 0 {
		name = cs.Index(0).Name()
		if name == "ICCBased" && cs.Len() > 1 {
			switch n := cs.Index(1).Key("N").Int64(); n {
			case 1, 3, 4:
				return int(n), nil
			}
		}
	}
	switch name {
	case "DeviceGray", "CalGray":
		return 1, nil
	case "DeviceRGB", "CalRGB":
		return 3, nil
	case "DeviceCMYK":
		return 4, nil
	}
	return 0, fmt.Errorf("unsupported color space %q", name)
}
