package gate

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
)

// response of a webhook handler, nil means 200
type response interface {
	Status() int
	Err() error
}

type handler func(r *http.Request) (interface{}, response)

func wrapFunc(h handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			_, _ = io.Copy(io.Discard, r.Body)
			_ = r.Body.Close()
		}()

		object, result := h(r)

		w.Header().Set("Content-Type", "application/json")

		if result == nil {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(result.Status())
			if err := result.Err(); err != nil {
				object = struct {
					Error string `json:"err"`
				}{
					Error: err.Error(),
				}
			}
		}

		if err := json.NewEncoder(w).Encode(object); err != nil {
			log.Error().Err(err).Msg("failed to encode return object")
		}
	}
}

type genericResponse struct {
	status int
	err    error
}

func (r genericResponse) Status() int {
	return r.status
}

func (r genericResponse) Err() error {
	return r.err
}

func genError(err error, code int) response {
	if err == nil {
		err = fmt.Errorf("no message")
	}

	return genericResponse{status: code, err: err}
}

func badRequest(err error) response {
	return genError(err, http.StatusBadRequest)
}

func unauthorized(err error) response {
	return genError(err, http.StatusUnauthorized)
}
