package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/checkin/internal/checkin/service"
	"github.com/BrandonDHaskell/checkin/internal/checkin/types"
)

var errBadBody = errors.New("invalid request body")

// decodeBody fills dst from a JSON body or a protobuf-encoded
// google.protobuf.Struct carrying the same field names.
func decodeBody(r *http.Request, dst any) error {
	if isProtobuf(r) {
		var s structpb.Struct
		if err := readProto(r, &s); err != nil {
			return errBadBody
		}
		if err := types.FromStruct(&s, dst); err != nil {
			return errBadBody
		}
		return nil
	}

	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errBadBody
	}
	return nil
}

// respond writes v as JSON or, when negotiated, as a protobuf Struct.
func respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	if wantsProtobuf(r) {
		s, err := types.ToStruct(v)
		if err != nil {
			http.Error(w, "encode error", http.StatusInternalServerError)
			return
		}
		writeProto(w, status, s)
		return
	}
	writeJSON(w, status, v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	respond(w, r, status, types.ErrorResponse{OK: false, Error: msg})
}

// statusFor maps service errors to HTTP status codes. Anything not
// recognised is a storage failure.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrParticipantNotFound):
		return http.StatusNotFound, "participant not found"
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict, "already completed or not allocated"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// queryInt64 parses an optional integer query parameter. Missing means 0.
func queryInt64(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.New(name + " must be an integer")
	}
	return v, nil
}

func queryInt(r *http.Request, name string) (int, error) {
	v, err := queryInt64(r, name)
	return int(v), err
}
