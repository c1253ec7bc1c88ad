package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"

	"github.com/walletverify/backend/internal/nlu"
)

// VoiceService transcribes voice notes and feeds the transcript through
// the same intent pipeline text messages go through, so "envía cien
// pesos" spoken aloud parses like its typed equivalent.
type VoiceService struct {
	client    *speech.Client
	parser    nlu.Parser
	validator *ValidationHelper
}

type TranscribeRequest struct {
	Audio        string `json:"audio" validate:"required"`
	Encoding     string `json:"encoding"`
	SampleRate   int    `json:"sample_rate"`
	LanguageCode string `json:"language_code"`
}

type TranscribeResponse struct {
	Transcript string      `json:"transcript"`
	Confidence float32     `json:"confidence"`
	Duration   float64     `json:"duration_seconds"`
	Parsed     *nlu.Result `json:"parsed,omitempty"`
}

func NewVoiceService(parser nlu.Parser) *VoiceService {
	ctx := context.Background()
	client, err := speech.NewClient(ctx)
	if err != nil {
		log.Printf("Warning: Failed to initialize speech client: %v", err)
		return &VoiceService{client: nil, parser: parser, validator: NewValidationHelper()}
	}
	return &VoiceService{client: client, parser: parser, validator: NewValidationHelper()}
}

// TranscribeAudio transcribes a voice note and parses the result
// @Summary Transcribe and parse a voice note
// @Description Convert spoken audio to text and extract the banking intent from the transcript
// @Tags voice
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body TranscribeRequest true "Base64 audio and format"
// @Success 200 {object} TranscribeResponse
// @Failure 400 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /voice/transcribe [post]
func (s *VoiceService) TranscribeAudio(w http.ResponseWriter, r *http.Request) {
	maxBytes := 10 * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req TranscribeRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if req.Encoding == "" {
		req.Encoding = "OGG_OPUS"
	}
	if req.SampleRate == 0 {
		req.SampleRate = 16000
	}
	if req.LanguageCode == "" {
		req.LanguageCode = "es-MX"
	}

	startTime := time.Now()
	transcript, confidence, err := s.Transcribe(r.Context(), req)
	duration := time.Since(startTime).Seconds()

	if err != nil {
		log.Printf("[VOICE] Transcription failed: %v", err)
		SendErrorResponse(w, "Failed to transcribe audio", http.StatusInternalServerError, nil)
		return
	}

	resp := TranscribeResponse{
		Transcript: transcript,
		Confidence: confidence,
		Duration:   duration,
	}

	if parsed, err := s.parser.Parse(r.Context(), transcript); err == nil {
		resp.Parsed = parsed
	} else {
		log.Printf("[VOICE] Intent parse failed for transcript: %v", err)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *VoiceService) Transcribe(ctx context.Context, req TranscribeRequest) (string, float32, error) {
	audioBytes, err := base64.StdEncoding.DecodeString(req.Audio)
	if err != nil {
		return "", 0, fmt.Errorf("failed to decode audio: %w", err)
	}
	if len(audioBytes) == 0 {
		return "", 0, errors.New("audio data is empty")
	}

	if s.client == nil {
		return "", 0, errors.New("speech client unavailable")
	}

	encoding, err := parseEncoding(req.Encoding)
	if err != nil {
		return "", 0, err
	}

	speechReq := &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   encoding,
			SampleRateHertz:            int32(req.SampleRate),
			LanguageCode:               req.LanguageCode,
			EnableAutomaticPunctuation: true,
			Model:                      "latest_short",
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{
				Content: audioBytes,
			},
		},
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp, err := s.client.Recognize(timeoutCtx, speechReq)
	if err != nil {
		return "", 0, fmt.Errorf("recognition failed: %w", err)
	}

	if len(resp.Results) == 0 {
		return "", 0, errors.New("no transcription results")
	}

	var transcript strings.Builder
	var totalConfidence float32
	var count int

	for _, result := range resp.Results {
		if len(result.Alternatives) > 0 {
			alternative := result.Alternatives[0]
			transcript.WriteString(alternative.Transcript)
			transcript.WriteString(" ")
			totalConfidence += alternative.Confidence
			count++
		}
	}

	if count == 0 {
		return "", 0, errors.New("no alternatives in results")
	}

	return strings.TrimSpace(transcript.String()), totalConfidence / float32(count), nil
}

func parseEncoding(encoding string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch strings.ToUpper(encoding) {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16, nil
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC, nil
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW, nil
	case "AMR":
		return speechpb.RecognitionConfig_AMR, nil
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB, nil
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS, nil
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}

func (s *VoiceService) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
