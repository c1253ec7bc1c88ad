package handlers

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"encoding/xml"
	"log"
	"net/http"
	"sort"

	"github.com/walletverify/backend/internal/services"
)

// WebhookHandler terminates the Twilio WhatsApp webhook. It validates
// the request signature when an auth token is configured, delegates to
// the orchestrator and renders the reply as TwiML. The endpoint always
// answers 200 with a message body so the channel relays something to
// the user even on internal failures.
type WebhookHandler struct {
	orchestrator *services.Orchestrator
	authToken    string
	publicURL    string
}

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message"`
}

func NewWebhookHandler(orchestrator *services.Orchestrator, authToken, publicURL string) *WebhookHandler {
	return &WebhookHandler{
		orchestrator: orchestrator,
		authToken:    authToken,
		publicURL:    publicURL,
	}
}

// InboundMessage handles an inbound WhatsApp message
// @Summary WhatsApp inbound webhook
// @Description Receive an inbound chat message and answer with a TwiML reply
// @Tags webhook
// @Accept x-www-form-urlencoded
// @Produce xml
// @Param From formData string true "Sender in channel format, e.g. whatsapp:+5215512345678"
// @Param Body formData string true "Message text"
// @Success 200 {string} string "TwiML response"
// @Failure 403 {string} string "Invalid signature"
// @Router /webhook/whatsapp [post]
func (h *WebhookHandler) InboundMessage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		log.Printf("[WEBHOOK] malformed form body: %v", err)
		h.reply(w, services.ReplyVerifyError)
		return
	}

	if h.authToken != "" && !h.validSignature(r) {
		log.Printf("[WEBHOOK] rejected request with invalid signature from %s", r.RemoteAddr)
		http.Error(w, "Invalid signature", http.StatusForbidden)
		return
	}

	from := r.PostFormValue("From")
	body := r.PostFormValue("Body")

	reply := h.orchestrator.HandleInbound(r.Context(), from, body)
	h.reply(w, reply)
}

// validSignature checks the X-Twilio-Signature header: HMAC-SHA1 over
// the full URL plus the sorted POST parameters, base64 encoded.
func (h *WebhookHandler) validSignature(r *http.Request) bool {
	provided := r.Header.Get("X-Twilio-Signature")
	if provided == "" {
		return false
	}

	url := h.publicURL
	if url == "" {
		scheme := "https"
		if r.TLS == nil {
			scheme = "http"
		}
		url = scheme + "://" + r.Host + r.URL.RequestURI()
	}

	keys := make([]string, 0, len(r.PostForm))
	for k := range r.PostForm {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	mac := hmac.New(sha1.New, []byte(h.authToken))
	mac.Write([]byte(url))
	for _, k := range keys {
		mac.Write([]byte(k))
		mac.Write([]byte(r.PostForm.Get(k)))
	}
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return subtle.ConstantTimeCompare([]byte(expected), []byte(provided)) == 1
}

func (h *WebhookHandler) reply(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)

	out, err := xml.Marshal(twimlResponse{Message: message})
	if err != nil {
		log.Printf("[WEBHOOK] marshaling TwiML reply: %v", err)
		return
	}
	w.Write([]byte(xml.Header))
	w.Write(out)
}
