package handlers

import (
	"encoding/xml"
	"log/slog"
	"net/http"

	twclient "github.com/twilio/twilio-go/client"

	"github.com/kaiwa-labs/kaiwa-relay/pkg/relay/config"
)

// SignatureValidator checks an X-Twilio-Signature against the request URL and
// POST parameters.
type SignatureValidator interface {
	Validate(url string, params map[string]string, signature string) bool
}

// TwiMLHandler answers the voice webhook with a ConversationRelay TwiML
// document pointing the call at the relay WebSocket.
type TwiMLHandler struct {
	Config config.Config
	Logger *slog.Logger

	// Validator overrides the Twilio signature check; nil uses the real one
	// built from the configured auth token.
	Validator SignatureValidator
}

type twimlParameter struct {
	XMLName xml.Name `xml:"Parameter"`
	Name    string   `xml:"name,attr"`
	Value   string   `xml:"value,attr"`
}

type twimlConversationRelay struct {
	XMLName               xml.Name `xml:"ConversationRelay"`
	URL                   string   `xml:"url,attr"`
	Language              string   `xml:"language,attr"`
	TTSProvider           string   `xml:"ttsProvider,attr"`
	Voice                 string   `xml:"voice,attr"`
	WelcomeGreeting       string   `xml:"welcomeGreeting,attr"`
	Interruptible         bool     `xml:"interruptible,attr"`
	TranscriptionProvider string   `xml:"transcriptionProvider,attr"`
	SpeechModel           string   `xml:"speechModel,attr"`
	ProfanityFilter       bool     `xml:"profanityFilter,attr"`
	Parameters            []twimlParameter
}

type twimlConnect struct {
	XMLName xml.Name `xml:"Connect"`
	Relay   twimlConversationRelay
}

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Connect twimlConnect
}

func (h TwiMLHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Twilio webhooks can be configured as either method. For GET the call
	// parameters ride the query string and the POST form is empty.
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if h.Config.ValidateWebhooks {
		if !h.validateSignature(w, r, logger) {
			return
		}
	}

	preset := r.PathValue("preset")
	callSID := r.PostFormValue("CallSid")
	if callSID == "" {
		callSID = "unknown"
	}

	doc := twimlResponse{
		Connect: twimlConnect{
			Relay: twimlConversationRelay{
				URL:                   h.relayURL(r),
				Language:              h.Config.Language,
				TTSProvider:           h.Config.TTSProvider,
				Voice:                 h.Config.Voice,
				WelcomeGreeting:       h.Config.WelcomeGreeting,
				Interruptible:         true,
				TranscriptionProvider: "Google",
				SpeechModel:           "telephony",
				ProfanityFilter:       false,
				Parameters: []twimlParameter{
					{Name: "preset", Value: preset},
					{Name: "callSid", Value: callSID},
				},
			},
		},
	}

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		logger.Error("encode twiml", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	logger.Info("twiml answered", "preset", preset, "call_sid", callSID)

	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(xml.Header))
	_, _ = w.Write(body)
	_, _ = w.Write([]byte("\n"))
}

// validateSignature enforces the X-Twilio-Signature check. The expected URL
// is rebuilt with the wss scheme to match what the platform signs for
// relay-bound webhooks.
func (h TwiMLHandler) validateSignature(w http.ResponseWriter, r *http.Request, logger *slog.Logger) bool {
	if h.Config.TwilioAuthToken == "" && h.Validator == nil {
		logger.Error("webhook validation enabled but no auth token configured")
		http.Error(w, "server misconfiguration", http.StatusInternalServerError)
		return false
	}

	signature := r.Header.Get("X-Twilio-Signature")
	if signature == "" {
		http.Error(w, "missing signature", http.StatusForbidden)
		return false
	}

	params := make(map[string]string, len(r.PostForm))
	for key, values := range r.PostForm {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}

	validator := h.Validator
	if validator == nil {
		rv := twclient.NewRequestValidator(h.Config.TwilioAuthToken)
		validator = &rv
	}

	url := "wss://" + r.Host + r.URL.RequestURI()
	if !validator.Validate(url, params, signature) {
		logger.Warn("webhook signature rejected", "path", r.URL.Path)
		http.Error(w, "invalid signature", http.StatusForbidden)
		return false
	}
	return true
}

// relayURL is the WebSocket URL the call should connect back to.
func (h TwiMLHandler) relayURL(r *http.Request) string {
	if h.Config.PublicWSURL != "" {
		return h.Config.PublicWSURL
	}
	scheme := "ws"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "wss"
	}
	return scheme + "://" + r.Host + h.Config.WSPath
}
