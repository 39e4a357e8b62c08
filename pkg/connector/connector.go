// Package connector defines the wire envelope shared by owners-backend
// connectors and the classification of envelope statuses into protocol
// errors. Vendor-specific connectors, such as [kiausa], live in
// subpackages.
package connector

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/uvolabs/owner-command/internal/log"
	"github.com/uvolabs/owner-command/pkg/protocol"
)

// MaxResponseLength caps the byte-length of response bodies that connectors
// must support.
const MaxResponseLength = 100000

// DefaultRequestTimeout bounds a single HTTP round trip to the backend.
const DefaultRequestTimeout = 30 * time.Second

// Status is the application-level result embedded in every response envelope.
type Status struct {
	StatusCode   int    `json:"statusCode"`
	ErrorType    int    `json:"errorType"`
	ErrorCode    int    `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// Response is a decoded backend envelope plus the HTTP response headers,
// which carry the session identifier on login and the command handle on
// asynchronous commands.
type Response struct {
	Status  Status          `json:"status"`
	Payload json.RawMessage `json:"payload"`
	Header  http.Header     `json:"-"`
}

// ActionHandle extracts the asynchronous command identifier from the response
// headers, or "" if the response does not carry one.
func (r *Response) ActionHandle() protocol.ActionHandle {
	return protocol.ActionHandle(r.Header.Get("Xid"))
}

// Classify maps a response envelope's status fields onto the protocol error
// taxonomy: status code 0 is success, (1, 1, 1003) is an invalidated session,
// and anything else is an unrecognized application error, which is logged
// with its full context and never retried.
func Classify(rsp *Response) error {
	if rsp.Status.StatusCode == 0 {
		return nil
	}
	err := &protocol.RequestError{
		StatusCode: rsp.Status.StatusCode,
		ErrorType:  rsp.Status.ErrorType,
		ErrorCode:  rsp.Status.ErrorCode,
		Message:    rsp.Status.ErrorMessage,
	}
	if err.SessionInvalid() {
		log.Debug("Session reported invalid by backend")
		return err
	}
	log.Error("Unknown application error: status=%d type=%d code=%d message=%q payload=%s",
		rsp.Status.StatusCode, rsp.Status.ErrorType, rsp.Status.ErrorCode,
		rsp.Status.ErrorMessage, rsp.Payload)
	return err
}

// VehicleKeyed is implemented by request bodies that reference the session's
// vehicle registration key. The session guard rebinds the reference after a
// re-authentication so the retried request carries the refreshed key rather
// than the stale one.
type VehicleKeyed interface {
	BindVehicleKey(key string)
}
