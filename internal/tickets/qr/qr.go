package qr

import "github.com/skip2/go-qrcode"

// PNG renders the literal ticket identifier as a QR code image. There is
// deliberately no existence check: confirmation emails embed this URL, and
// the image must render even while the originating order is still being
// processed.
func PNG(ticketID string) ([]byte, error) {
	return qrcode.Encode(ticketID, qrcode.Medium, 256)
}
