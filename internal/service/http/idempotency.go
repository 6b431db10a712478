package httpsvc

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/vladislavdragonenkov/clubtab/internal/domain"
)

// withIdempotency добавляет replay-семантику по заголовку Idempotency-Key.
// Повтор с тем же ключом и телом получает сохранённый ответ; повтор с тем
// же ключом и другим телом — конфликт. Без заголовка запрос идёт как есть.
func (s *Server) withIdempotency(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(HeaderIdempotencyKey)
		if key == "" || s.idempotency == nil {
			next.ServeHTTP(w, r)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, "failed to read request body")
			return
		}
		_ = r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))

		requestHash := hashRequest(r.Method, r.URL.Path, body)
		ttlAt := time.Now().UTC().Add(s.idempotencyTTL)

		record, err := s.idempotency.CreateProcessing(key, requestHash, ttlAt)
		if err != nil {
			if !errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists) {
				s.logger.WithError(err).Warn("idempotency register failed, processing without replay")
				next.ServeHTTP(w, r)
				return
			}

			s.replayIdempotency(w, record, requestHash)
			return
		}

		recorder := newResponseRecorder(w)
		next.ServeHTTP(recorder, r)

		if recorder.status >= 200 && recorder.status < 300 {
			if err := s.idempotency.MarkDone(key, recorder.body.Bytes(), recorder.status); err != nil {
				s.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to cache idempotent response")
			}
			return
		}
		if err := s.idempotency.MarkFailed(key, recorder.body.Bytes(), recorder.status); err != nil {
			s.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to cache idempotent failure")
		}
	})
}

// replayIdempotency отдаёт сохранённый ответ для повторного запроса.
func (s *Server) replayIdempotency(w http.ResponseWriter, record domain.IdempotencyRecord, requestHash string) {
	if record.RequestHash != requestHash {
		writeError(w, http.StatusConflict, codeIdempotencyMismatch, "idempotency key is used by a different request")
		return
	}

	switch record.Status {
	case domain.IdempotencyStatusProcessing:
		// Первый запрос ещё в полёте; клиенту стоит повторить позже.
		writeError(w, http.StatusConflict, codeIdempotencyInFlight, "request with this idempotency key is being processed")
	case domain.IdempotencyStatusDone, domain.IdempotencyStatusFailed:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(record.HTTPStatus)
		_, _ = w.Write(record.ResponseBody)
	default:
		writeError(w, http.StatusInternalServerError, codeInternal, "unknown idempotency record state")
	}
}

func hashRequest(method, path string, body []byte) string {
	h := sha256.New()
	_, _ = io.WriteString(h, method)
	_, _ = io.WriteString(h, " ")
	_, _ = io.WriteString(h, path)
	_, _ = io.WriteString(h, "\n")
	_, _ = h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// responseRecorder буферизует ответ handler-а, чтобы сохранить его для replay.
type responseRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func newResponseRecorder(w http.ResponseWriter) *responseRecorder {
	return &responseRecorder{
		ResponseWriter: w,
		status:         http.StatusOK,
	}
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(data []byte) (int, error) {
	r.body.Write(data)
	return r.ResponseWriter.Write(data)
}
