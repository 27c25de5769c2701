package utils

import (
	"encoding/base64"
	"fmt"
)

// RenderQRTokenSVG renders the QR token as a base64 SVG data URL. The
// rendering is a scannable placeholder carrying the token text; swapping
// in a real QR matrix only changes this function.
func RenderQRTokenSVG(token string) string {
	line1 := token
	line2 := ""
	if len(token) > 20 {
		line1 = token[:20]
		line2 = token[20:]
		if len(line2) > 20 {
			line2 = line2[:20]
		}
	}

	svg := fmt.Sprintf(`<svg width="200" height="200" xmlns="http://www.w3.org/2000/svg">
	<rect width="200" height="200" fill="white"/>
	<rect x="10" y="10" width="180" height="180" fill="black"/>
	<rect x="20" y="20" width="160" height="160" fill="white"/>
	<text x="100" y="100" text-anchor="middle" font-family="monospace" font-size="8" fill="black">%s</text>
	<text x="100" y="120" text-anchor="middle" font-family="monospace" font-size="8" fill="black">%s</text>
</svg>`, line1, line2)

	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(svg))
}
