package report

import (
	"net/url"
	"strings"
)

const (
	qrEndpoint    = "https://api.qrserver.com/v1/create-qr-code/"
	proxyEndpoint = "https://wsrv.nl/"
)

// WhatsAppURL returns the wa.me chat link for a phone number, keeping only
// its digits.
func WhatsAppURL(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return "https://wa.me/" + b.String()
}

// QRCodeURL returns an image URL rendering data as a 250x250 QR code.
func QRCodeURL(data string) string {
	q := url.Values{}
	q.Set("size", "250x250")
	q.Set("data", data)
	return qrEndpoint + "?" + q.Encode()
}

// ProxyURL routes an image through a CORS-enabled proxy so it can be
// embedded in an export.
func ProxyURL(src string) string {
	return proxyEndpoint + "?url=" + url.QueryEscape(src)
}

// ShareURL is the public address of the report page for id under base.
func ShareURL(base, id string) string {
	return strings.TrimRight(base, "/") + "/reports/" + url.PathEscape(id)
}
