package commands

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"encoding/xml"
	"log/slog"
	"net/http"
	"time"

	application "meridian/contexts/channel-sync/inbound-gateway-service/application"
	"meridian/contexts/channel-sync/inbound-gateway-service/domain/entities"
	"meridian/contexts/channel-sync/inbound-gateway-service/ports"
	outboundentities "meridian/contexts/channel-sync/outbound-sync-service/domain/entities"
	"meridian/internal/shared/htngerr"
	"meridian/internal/shared/otaxml"
	"meridian/internal/shared/soapenv"
)

// InboundWork is the JSON body of a queued inbound job. The raw OTA payload
// travels with it so the consumer parses exactly what was acknowledged.
type InboundWork struct {
	Kind       string `json:"kind"`
	PropertyID string `json:"property_id"`
	HotelCode  string `json:"hotel_code"`
	ResStatus  string `json:"res_status,omitempty"`
	LogID      string `json:"log_id"`
	Body       []byte `json:"body"`
}

// Result is the HTTP reply the gateway hands back to the channel.
type Result struct {
	Status int
	Body   []byte
}

// GatewayUseCase accepts inbound HTNG envelopes: authenticate, classify,
// deduplicate, persist, enqueue, acknowledge. The acknowledgment is
// synchronous; processing happens on the inbound-work queue.
type GatewayUseCase struct {
	Creds  ports.CredentialSource
	Dedup  ports.DedupStore
	Jobs   ports.JobRepository
	Logs   ports.MessageLogRepository
	Errors ports.ErrorLogRepository
	Clock  ports.Clock
	IDGen  ports.IDGenerator
	Logger *slog.Logger
}

func (uc GatewayUseCase) Receive(ctx context.Context, raw []byte) Result {
	logger := application.ResolveLogger(uc.Logger)
	now := uc.Clock.Now()

	token, ok := soapenv.ExtractToken(raw)
	if !ok {
		return uc.reject(ctx, http.StatusUnauthorized, soapenv.FaultClient, "Authentication failed",
			htngerr.New(htngerr.KindAuthentication, "AUT_NO_TOKEN", "inbound envelope carries no wsse username token"))
	}
	config, err := uc.Creds.ByUsername(ctx, token.Username)
	if err != nil || !credentialsMatch(config.Username, config.Password, token) {
		return uc.reject(ctx, http.StatusUnauthorized, soapenv.FaultClient, "Authentication failed",
			htngerr.New(htngerr.KindAuthentication, "AUT_BAD_CREDENTIALS", "inbound credentials rejected for username "+token.Username))
	}

	body, ok := soapenv.ExtractBody(raw)
	if !ok {
		return uc.reject(ctx, http.StatusBadRequest, soapenv.FaultClient, "Invalid SOAP envelope",
			htngerr.New(htngerr.KindSOAPXML, "SYS_BAD_ENVELOPE", "inbound envelope has no parsable soap body"))
	}
	root, ok := otaxml.RootName(body)
	if !ok {
		return uc.reject(ctx, http.StatusBadRequest, soapenv.FaultClient, "Invalid SOAP envelope",
			htngerr.New(htngerr.KindSOAPXML, "SYS_BAD_PAYLOAD", "inbound soap body carries no xml root"))
	}
	kind, herr := otaxml.ClassifyRoot(root)
	if herr != nil {
		return uc.reject(ctx, http.StatusBadRequest, soapenv.FaultClient, "Unsupported message type", herr)
	}

	echoToken, payloadHotel, resStatus := rootFacts(body)
	if payloadHotel != "" && payloadHotel != config.HotelCode {
		return uc.reject(ctx, http.StatusBadRequest, soapenv.FaultClient, "Hotel code mismatch",
			htngerr.New(htngerr.KindValidation, "VAL_HOTEL_MISMATCH",
				"payload hotel code "+payloadHotel+" does not belong to the authenticated property"))
	}

	fingerprint := Fingerprint(body)
	if prior, found, err := uc.Dedup.Find(ctx, fingerprint); err == nil && found {
		logger.Info("inbound message replayed",
			"event", "inbound_message_replayed",
			"module", "channel-sync/inbound-gateway-service",
			"layer", "application",
			"fingerprint", fingerprint,
			"kind", prior.Kind,
		)
		return Result{Status: http.StatusOK, Body: prior.Ack}
	}

	messageID := otaxml.NewMessageID(kind, now)
	logID, _ := uc.IDGen.NewID(ctx)
	requestBody, requestSize := outboundentities.Truncate(raw)
	logEntry := outboundentities.MessageLog{
		ID:          logID,
		MessageID:   messageID,
		Direction:   outboundentities.DirectionInbound,
		Kind:        string(kind),
		PropertyID:  config.PropertyID,
		HotelCode:   config.HotelCode,
		RequestBody: requestBody,
		RequestSize: requestSize,
		Status:      outboundentities.LogPending,
		StartedAt:   now,
		Metadata:    map[string]string{"root": root},
	}
	if resStatus != "" {
		logEntry.Metadata["res_status"] = resStatus
	}
	if err := uc.Logs.Open(ctx, logEntry); err != nil {
		return uc.reject(ctx, http.StatusInternalServerError, soapenv.FaultServer, "Internal error",
			htngerr.Wrap(htngerr.KindUnknown, "SYS_HISTORY_WRITE", "inbound history write failed", err))
	}

	work, err := json.Marshal(InboundWork{
		Kind:       string(kind),
		PropertyID: config.PropertyID,
		HotelCode:  config.HotelCode,
		ResStatus:  resStatus,
		LogID:      logID,
		Body:       body,
	})
	if err != nil {
		return uc.reject(ctx, http.StatusInternalServerError, soapenv.FaultServer, "Internal error",
			htngerr.Wrap(htngerr.KindUnknown, "SYS_WORK_ENCODE", "inbound work payload encode failed", err))
	}
	jobID, _ := uc.IDGen.NewID(ctx)
	profile := outboundentities.ProfileFor(outboundentities.QueueInboundWork)
	if err := uc.Jobs.Enqueue(ctx, outboundentities.QueueJob{
		ID:          jobID,
		Queue:       outboundentities.QueueInboundWork,
		PropertyID:  config.PropertyID,
		HotelCode:   config.HotelCode,
		Kind:        string(kind),
		Scope:       outboundentities.ScopeDelta,
		Payload:     work,
		Status:      outboundentities.JobPending,
		MaxAttempts: profile.MaxRetries,
		RunAt:       now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}); err != nil {
		return uc.reject(ctx, http.StatusInternalServerError, soapenv.FaultServer, "Internal error",
			htngerr.Wrap(htngerr.KindUnknown, "SYS_ENQUEUE", "inbound work enqueue failed", err))
	}

	ackPayload := otaxml.BuildAckPayload(kind, otaxml.HeaderContext{
		HotelCode: config.HotelCode,
		MessageID: messageID,
		EchoToken: echoToken,
		Timestamp: now,
	}, nil)
	ack := soapenv.BuildAck(ackPayload)

	if err := uc.Dedup.Save(ctx, entities.ProcessedMessage{
		Fingerprint: fingerprint,
		MessageID:   messageID,
		Kind:        string(kind),
		PropertyID:  config.PropertyID,
		HotelCode:   config.HotelCode,
		Ack:         ack,
		LogID:       logID,
		ReceivedAt:  now,
	}); err != nil {
		logger.Warn("inbound dedup save failed",
			"event", "inbound_dedup_save_failed",
			"module", "channel-sync/inbound-gateway-service",
			"layer", "application",
			"fingerprint", fingerprint,
			"error", err,
		)
	}

	logger.Info("inbound message accepted",
		"event", "inbound_message_accepted",
		"module", "channel-sync/inbound-gateway-service",
		"layer", "application",
		"message_id", messageID,
		"kind", string(kind),
		"hotel_code", config.HotelCode,
		"job_id", jobID,
	)
	return Result{Status: http.StatusOK, Body: ack}
}

// reject writes an error-log row and answers with a SOAP fault. Rejected
// envelopes never get a history row.
func (uc GatewayUseCase) reject(ctx context.Context, status int, value soapenv.FaultValue, reason string, cause *htngerr.Error) Result {
	logger := application.ResolveLogger(uc.Logger)
	entry := outboundentities.ErrorLog{
		Kind:              string(cause.Kind),
		Code:              cause.Code,
		Severity:          outboundentities.ErrorSeverity(cause.Severity),
		Message:           cause.Message,
		Source:            "inbound-gateway-service",
		CanRetry:          cause.CanRetry,
		RetryDelaySeconds: int(cause.RetryDelay / time.Second),
		CreatedAt:         uc.Clock.Now(),
	}
	if id, err := uc.IDGen.NewID(ctx); err == nil {
		entry.ID = id
	}
	if err := uc.Errors.Record(ctx, entry); err != nil {
		logger.Warn("inbound error log write failed",
			"event", "inbound_error_log_failed",
			"module", "channel-sync/inbound-gateway-service",
			"layer", "application",
			"error", err,
		)
	}
	logger.Warn("inbound message rejected",
		"event", "inbound_message_rejected",
		"module", "channel-sync/inbound-gateway-service",
		"layer", "application",
		"status", status,
		"error_kind", string(cause.Kind),
		"error_code", cause.Code,
	)
	return Result{Status: status, Body: soapenv.BuildFault(value, reason)}
}

func credentialsMatch(username, password string, token soapenv.InboundToken) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(token.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(token.Password)) == 1
	return userOK && passOK
}

// rootFacts reads the volatile attributes the gateway echoes or records:
// the root EchoToken, the payload hotel code, and the reservation ResStatus.
func rootFacts(body []byte) (echoToken, hotelCode, resStatus string) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	depth := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			return
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		depth++
		for _, attr := range start.Attr {
			switch attr.Name.Local {
			case "EchoToken":
				if depth == 1 && echoToken == "" {
					echoToken = attr.Value
				}
			case "HotelCode":
				if hotelCode == "" {
					hotelCode = attr.Value
				}
			case "ResStatus":
				if resStatus == "" {
					resStatus = attr.Value
				}
			}
		}
		if depth > 6 && echoToken != "" && hotelCode != "" && resStatus != "" {
			return
		}
	}
}
