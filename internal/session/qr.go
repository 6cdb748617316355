package session

import (
	"encoding/base64"
	"fmt"
	"io"

	"github.com/mdp/qrterminal/v3"
	"github.com/skip2/go-qrcode"
)

const dataURLPrefix = "data:image/png;base64,"

// renderDataURL encodes a pairing code as a PNG data URL for browsers.
func renderDataURL(code string, size int) (string, error) {
	if size <= 0 {
		size = 256
	}
	png, err := qrcode.Encode(code, qrcode.Medium, size)
	if err != nil {
		return "", fmt.Errorf("failed to render qr code: %w", err)
	}
	return dataURLPrefix + base64.StdEncoding.EncodeToString(png), nil
}

// printTerminal draws a pairing code with half-block characters so it can
// be scanned straight from the console.
func printTerminal(w io.Writer, code string) {
	fmt.Fprintln(w, "Scan this QR code with WhatsApp > Linked devices:")
	qrterminal.GenerateHalfBlock(code, qrterminal.L, w)
}
