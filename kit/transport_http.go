package kit

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// ErrorStatus maps an endpoint error to an HTTP status. Nil uses 500 for
// every error.
type ErrorStatus func(error) int

// HTTPHandler binds an Endpoint to HTTP. decode builds the request from r;
// the response is written as JSON.
func HTTPHandler(endpoint Endpoint, decode func(*http.Request) (any, error), status ErrorStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decode(r)
		if err != nil {
			WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request: " + err.Error()})
			return
		}
		ctx := WithTransport(r.Context(), "http")
		ctx = WithRemoteAddr(ctx, r.RemoteAddr)
		resp, err := endpoint(ctx, req)
		if err != nil {
			code := http.StatusInternalServerError
			if status != nil {
				code = status(err)
			}
			WriteJSON(w, code, map[string]string{"error": err.Error()})
			return
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

// DecodeBody returns a decode function that unmarshals the JSON body into a
// fresh *T. An empty body decodes to the zero value.
func DecodeBody[T any]() func(*http.Request) (any, error) {
	return func(r *http.Request) (any, error) {
		v := new(T)
		if r.Body == nil {
			return v, nil
		}
		err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		return v, nil
	}
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
