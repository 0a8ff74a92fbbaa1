package httpadapter

import (
	"io"
	"log/slog"
	"net/http"

	"meridian/contexts/channel-sync/inbound-gateway-service/application/commands"
	"meridian/internal/shared/soapenv"
)

// maxEnvelopeBytes bounds the inbound request body. HTNG envelopes in this
// engine stay far below it.
const maxEnvelopeBytes = 8 << 20

const soapContentType = "application/soap+xml; charset=utf-8"

// EndpointHandler serves the HTNG endpoint: one POST route that accepts SOAP
// envelopes and answers with the synchronous acknowledgment or fault.
type EndpointHandler struct {
	Gateway commands.GatewayUseCase
	Logger  *slog.Logger
}

func (h EndpointHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.write(w, http.StatusMethodNotAllowed, soapenv.BuildFault(soapenv.FaultClient, "Only POST is accepted"))
		return
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxEnvelopeBytes))
	if err != nil {
		h.write(w, http.StatusBadRequest, soapenv.BuildFault(soapenv.FaultClient, "Unreadable request body"))
		return
	}
	result := h.Gateway.Receive(r.Context(), raw)
	h.write(w, result.Status, result.Body)
}

func (h EndpointHandler) write(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", soapContentType)
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil && h.Logger != nil {
		h.Logger.Warn("inbound response write failed",
			"event", "inbound_response_write_failed",
			"module", "channel-sync/inbound-gateway-service",
			"layer", "transport",
			"error", err,
		)
	}
}
