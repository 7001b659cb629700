package guard

import (
	"net/http"
	"strings"
)

// LoopbackClientID se usa cuando ninguna cabecera identifica al cliente.
const LoopbackClientID = "127.0.0.1"

// ClientID resuelve la identidad del cliente desde X-Forwarded-For, X-Real-IP y CF-Connecting-IP.
// Las cabeceras se aceptan sin lista de proxies de confianza, asi que un cliente puede falsificarlas.
func ClientID(h http.Header) string {
	if fwd := h.Get("X-Forwarded-For"); fwd != "" {
		for _, part := range strings.Split(fwd, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(h.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if ip := strings.TrimSpace(h.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	return LoopbackClientID
}
