package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/adamdenes/simtrade/internal/exchange"
)

func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Add("Content-Type", "application/json")
	w.WriteHeader(status)

	// []byte slices are not converting correctly, so type switch
	switch data := v.(type) {
	case []byte:
		_, err := w.Write(data)
		return err
	default:
		return json.NewEncoder(w).Encode(data)
	}
}

func (s *Server) serverError(w http.ResponseWriter, err error) {
	trace := fmt.Sprintf("%s\n%s", err.Error(), debug.Stack())
	s.errorLog.Output(2, trace)

	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func (s *Server) clientError(w http.ResponseWriter, status int) {
	http.Error(w, http.StatusText(status), status)
}

func (s *Server) notFound(w http.ResponseWriter) {
	s.clientError(w, http.StatusNotFound)
}

// exchangeError maps domain rejections onto their {code,msg} wire form
// with a 400; anything else is a 500.
func (s *Server) exchangeError(w http.ResponseWriter, err error) {
	var qErr *exchange.InvalidQueryError
	if !errors.As(err, &qErr) {
		s.serverError(w, err)
		return
	}

	if err := WriteJSON(w, http.StatusBadRequest, exchange.APIError(err)); err != nil {
		s.serverError(w, err)
	}
}
