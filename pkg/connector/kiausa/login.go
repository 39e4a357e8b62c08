package kiausa

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/uvolabs/owner-command/internal/log"
	"github.com/uvolabs/owner-command/pkg/connector"
	"github.com/uvolabs/owner-command/pkg/protocol"
	"github.com/uvolabs/owner-command/pkg/session"
)

// sessionTTL is how long a freshly issued session is assumed usable. The
// backend does not advertise an expiry; sessions past the TTL are refreshed
// eagerly instead of waiting for a session-invalid response.
const sessionTTL = time.Hour

type loginRequest struct {
	DeviceKey      string         `json:"deviceKey"`
	DeviceType     int            `json:"deviceType"`
	UserCredential userCredential `json:"userCredential"`
}

type userCredential struct {
	UserID   string `json:"userId"`
	Password string `json:"password"`
}

type vehicleSummary struct {
	Nickname          string `json:"nickName"`
	VehicleIdentifier string `json:"vehicleIdentifier"`
	VIN               string `json:"vin"`
	VehicleKey        string `json:"vehicleKey"`
	ModelName         string `json:"modelName"`
	EnrollmentDate    string `json:"enrollmentDate"`
}

// Login signs in with the account credentials and binds the session to the
// account's first enrolled vehicle. A login that completes without yielding a
// session identifier or a vehicle is a contract violation and fails with
// [protocol.AuthenticationError]; the guard never retries it.
func (c *Connection) Login(ctx context.Context) (*session.Token, error) {
	body := loginRequest{
		DeviceType:     2,
		UserCredential: userCredential{UserID: c.username, Password: c.password},
	}
	response, err := c.send(ctx, http.MethodPost, "prof/authUser", &body, nil)
	if err != nil {
		return nil, err
	}
	sessionID := response.Header.Get("sid")
	if sessionID == "" {
		return nil, &protocol.AuthenticationError{
			Reason: fmt.Sprintf("login returned no session id (status %+v)", response.Status),
		}
	}
	log.Debug("Obtained session id")

	// Vehicle enumeration authenticates with the bare session id; the vinkey
	// header is only available after this call.
	listResponse, err := c.send(ctx, http.MethodGet, "ownr/gvl", nil, &credentials{sessionID: sessionID})
	if err != nil {
		return nil, err
	}
	if err := connector.Classify(listResponse); err != nil {
		return nil, err
	}
	var payload struct {
		VehicleSummary []vehicleSummary `json:"vehicleSummary"`
	}
	if err := json.Unmarshal(listResponse.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decoding vehicle list: %w", err)
	}
	if len(payload.VehicleSummary) == 0 {
		return nil, &protocol.AuthenticationError{Reason: "account has no enrolled vehicles"}
	}
	summary := payload.VehicleSummary[0]
	log.Info("Logged in; selected vehicle %s (%s)", summary.Nickname, summary.ModelName)

	token := session.New()
	token.Populate(session.Snapshot{
		SessionID:  sessionID,
		VehicleKey: summary.VehicleKey,
		VIN:        summary.VIN,
		VehicleID:  summary.VehicleIdentifier,
		Nickname:   summary.Nickname,
		Model:      summary.ModelName,
		EnrolledOn: summary.EnrollmentDate,
		ValidUntil: time.Now().Add(sessionTTL),
	})
	return token, nil
}
