// Package artifact renders generation results into downloadable bytes.
// Nothing here touches the store: the renderer consumes generator output and
// produces a payload, full stop.
package artifact

import (
	"bytes"
	"fmt"
	"image/color"
	"time"

	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"

	"github.com/Kopoklesz/Szakdolgozat-sub000/internal/model"
)

const qrImageSize = 256 // pixels, square

// Renderer produces the printable code sheet and the scannable QR image.
type Renderer struct{}

// NewRenderer creates a Renderer.
func NewRenderer() *Renderer {
	return &Renderer{}
}

// CodeSheet renders a plain-text sheet of freshly generated codes for
// download and printing. This is the only place the plaintext batch leaves
// the system.
func (r *Renderer) CodeSheet(shop *model.Shop, codes []string, unitValue decimal.Decimal, expiresOn time.Time) (model.Artifact, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s\n", shop.Name)
	fmt.Fprintf(&buf, "Voucher value: %s %s\n", unitValue.StringFixed(2), shop.Currency)
	fmt.Fprintf(&buf, "Valid through: %s\n\n", expiresOn.Format("2006-01-02"))
	for _, code := range codes {
		fmt.Fprintf(&buf, "%s\n", code)
	}

	return model.Artifact{
		ContentType: "text/plain; charset=utf-8",
		Data:        buf.Bytes(),
	}, nil
}

// QRImage renders the redemption token as a PNG in the shop's accent color.
// Only the token is embedded; value and expiry are looked up server-side
// when the QR is scanned.
func (r *Renderer) QRImage(shop *model.Shop, token string) (model.Artifact, error) {
	qr, err := qrcode.New(token, qrcode.Medium)
	if err != nil {
		return model.Artifact{}, fmt.Errorf("build qr image: %w", err)
	}
	if fg, ok := parseHexColor(shop.AccentColor); ok {
		qr.ForegroundColor = fg
	}

	png, err := qr.PNG(qrImageSize)
	if err != nil {
		return model.Artifact{}, fmt.Errorf("encode qr image: %w", err)
	}

	return model.Artifact{
		ContentType: "image/png",
		Data:        png,
	}, nil
}

// parseHexColor parses "#RRGGBB". Anything else falls back to the default
// black foreground.
func parseHexColor(s string) (color.Color, bool) {
	if len(s) != 7 || s[0] != '#' {
		return nil, false
	}
	var rgb [3]uint8
	for i := 0; i < 3; i++ {
		hi, okHi := hexNibble(s[1+i*2])
		lo, okLo := hexNibble(s[2+i*2])
		if !okHi || !okLo {
			return nil, false
		}
		rgb[i] = hi<<4 | lo
	}
	return color.RGBA{R: rgb[0], G: rgb[1], B: rgb[2], A: 0xff}, true
}

func hexNibble(c byte) (uint8, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
