package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-post-scraper/internal/handoff/pubsub"
	"github.com/JakeFAU/realtime-post-scraper/internal/logging"
	"github.com/JakeFAU/realtime-post-scraper/internal/metrics"
	"github.com/JakeFAU/realtime-post-scraper/internal/scrape"
)

const maxBodyBytes = 1 << 20

// scrapeEnvelope is the invocation envelope. chatId is accepted as an alias of correlationId.
type scrapeEnvelope struct {
	URL           string `json:"url"`
	CorrelationID string `json:"correlationId"`
	ChatID        string `json:"chatId"`
	Mode          string `json:"mode"`
}

type ackResponse struct {
	scrape.Ack
	ChatID string `json:"chatId,omitempty"`
}

// pushEnvelope is the body of a Pub/Sub push delivery.
type pushEnvelope struct {
	Message struct {
		Data       []byte            `json:"data"`
		Attributes map[string]string `json:"attributes"`
		MessageID  string            `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

func (s *Server) submitScrape(w http.ResponseWriter, r *http.Request) {
	env, req, ok := s.decodeEnvelope(w, r)
	if !ok {
		return
	}
	job, ack, err := s.dispatcher.Accept(req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Ack: ack, ChatID: env.ChatID})
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	route := s.dispatcher.Dispatch(context.WithoutCancel(r.Context()), job)
	logging.FromContext(r.Context(), s.logger).Info("scrape accepted",
		zap.String("job_id", job.ID),
		zap.String("url", req.URL),
		zap.String("route", string(route)),
	)
}

func (s *Server) scrapeSync(w http.ResponseWriter, r *http.Request) {
	_, req, ok := s.decodeEnvelope(w, r)
	if !ok {
		return
	}
	metrics.ObserveRequest("accepted")
	record := s.runner.Run(r.Context(), req, nil)
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) runWorkerJob(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	ctx := r.Context()
	var push pushEnvelope
	if err := json.Unmarshal(body, &push); err == nil && len(push.Message.Data) > 0 {
		body = push.Message.Data
		ctx = otel.GetTextMapPropagator().Extract(ctx, pubsub.NewCarrier(push.Message.Attributes))
	}
	var job scrape.Job
	if err := json.Unmarshal(body, &job); err != nil {
		writeError(w, http.StatusBadRequest, "invalid job JSON")
		return
	}
	if job.Request.URL == "" {
		writeError(w, http.StatusBadRequest, scrape.ErrURLRequired.Error())
		return
	}
	// Ack before running: Pub/Sub redelivers a push that is not acked within the subscription deadline.
	route := s.dispatcher.Detach(context.WithoutCancel(ctx), job)
	logging.FromContext(ctx, s.logger).Info("worker job accepted",
		zap.String("job_id", job.ID),
		zap.String("url", job.Request.URL),
		zap.String("route", string(route)),
	)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) enqueueJob(w http.ResponseWriter, r *http.Request) {
	var job scrape.Job
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&job); err != nil {
		writeError(w, http.StatusBadRequest, "invalid job JSON")
		return
	}
	if job.Request.URL == "" {
		writeError(w, http.StatusBadRequest, scrape.ErrURLRequired.Error())
		return
	}
	if err := s.dispatcher.Enqueue(job); err != nil {
		logging.FromContext(r.Context(), s.logger).Warn("enqueue job failed", zap.String("job_id", job.ID), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"jobId": job.ID})
}

func (s *Server) getResult(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "result store not configured")
		return
	}
	key := chi.URLParam(r, "key")
	record, err := s.store.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, scrape.ErrNotFound) {
			writeError(w, http.StatusNotFound, "result not found")
			return
		}
		logging.FromContext(r.Context(), s.logger).Error("read result failed", zap.String("key", key), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read result")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// decodeEnvelope validates the invocation envelope and writes the 400 response itself when it is invalid. An
// empty body is an envelope without a URL.
func (s *Server) decodeEnvelope(w http.ResponseWriter, r *http.Request) (scrapeEnvelope, scrape.Request, bool) {
	var env scrapeEnvelope
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&env)
	if err != nil && !errors.Is(err, io.EOF) {
		metrics.ObserveRequest("rejected")
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return env, scrape.Request{}, false
	}
	correlationID := env.CorrelationID
	if correlationID == "" {
		correlationID = env.ChatID
	}
	req, err := scrape.NewRequest(env.URL, correlationID, env.Mode)
	if err != nil {
		metrics.ObserveRequest("rejected")
		writeError(w, http.StatusBadRequest, err.Error())
		return env, scrape.Request{}, false
	}
	return env, req, true
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	return raw, nil
}
