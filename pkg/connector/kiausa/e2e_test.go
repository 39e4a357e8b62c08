package kiausa_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/jarcoal/httpmock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/uvolabs/owner-command/pkg/connector/kiausa"
	"github.com/uvolabs/owner-command/pkg/poll"
	"github.com/uvolabs/owner-command/pkg/vehicle"
)

const apiBase = "https://api.owners.kia.com/apigw/v1/"

func envelope(payload any) (*http.Response, error) {
	return httpmock.NewJsonResponse(http.StatusOK, map[string]any{
		"status":  map[string]any{"statusCode": 0, "errorType": 0, "errorCode": 0, "errorMessage": "Success"},
		"payload": payload,
	})
}

func invalidSession() (*http.Response, error) {
	return httpmock.NewJsonResponse(http.StatusOK, map[string]any{
		"status": map[string]any{"statusCode": 1, "errorType": 1, "errorCode": 1003, "errorMessage": "Session Key is either invalid or expired"},
	})
}

// End-to-end account flows against a mocked backend: sign in, read status,
// and drive an asynchronous command through submission and completion
// polling.
var _ = Describe("Owner account", func() {
	var (
		logins atomic.Int64
		polls  atomic.Int64
	)

	BeforeEach(func() {
		logins.Store(0)
		polls.Store(0)
		httpmock.Activate()
		DeferCleanup(httpmock.DeactivateAndReset)

		httpmock.RegisterResponder(http.MethodPost, apiBase+"prof/authUser", func(r *http.Request) (*http.Response, error) {
			n := logins.Add(1)
			rsp, err := envelope(nil)
			if err != nil {
				return nil, err
			}
			rsp.Header.Set("sid", fmt.Sprintf("sid-%d", n))
			return rsp, nil
		})
		httpmock.RegisterResponder(http.MethodGet, apiBase+"ownr/gvl", func(r *http.Request) (*http.Response, error) {
			return envelope(map[string]any{
				"vehicleSummary": []map[string]any{{
					"nickName":          "Road Trip",
					"vehicleIdentifier": "veh-1",
					"vin":               "KNDC14FA1N7654321",
					"vehicleKey":        "key-for-" + r.Header.Get("sid"),
					"modelName":         "Niro EV",
					"enrollmentDate":    "20230115",
				}},
			})
		})
		httpmock.RegisterResponder(http.MethodGet, apiBase+"rems/door/lock", func(r *http.Request) (*http.Response, error) {
			rsp, err := envelope(nil)
			if err != nil {
				return nil, err
			}
			rsp.Header.Set("Xid", "xid-lock")
			return rsp, nil
		})
		httpmock.RegisterResponder(http.MethodPost, apiBase+"cmm/gts", func(r *http.Request) (*http.Response, error) {
			if polls.Add(1) < 2 {
				return envelope(map[string]int{"doorLock": 1})
			}
			return envelope(map[string]int{"doorLock": 0})
		})
		httpmock.RegisterResponder(http.MethodPost, apiBase+"cmm/gvi", func(r *http.Request) (*http.Response, error) {
			return envelope(json.RawMessage(`{
				"vehicleInfoList": [{
					"vehicleConfig": {"vehicleDetail": {"vehicle": {"mileage": "8421"}}},
					"lastVehicleInfo": {
						"vehicleStatusRpt": {"vehicleStatus": {
							"syncDate": {"utc": "20260829120000"},
							"doorStatus": {"frontLeft": 0, "frontRight": 0, "backLeft": 0, "backRight": 0, "trunk": 0, "hood": 0}
						}}
					}
				}]
			}`))
		})
	})

	newCar := func() *vehicle.Vehicle {
		conn, err := kiausa.NewConnection(kiausa.KiaUSA, "driver@example.com", "hunter2")
		Expect(err).NotTo(HaveOccurred())
		token, err := conn.Login(context.Background())
		Expect(err).NotTo(HaveOccurred())
		return vehicle.New(conn, token, &poll.Awaiter{
			GracePeriod: 60 * time.Millisecond,
			Interval:    40 * time.Millisecond,
			Timeout:     5 * time.Second,
		})
	}

	It("signs in and reads vehicle status", func() {
		car := newCar()
		Expect(car.VIN()).To(Equal("KNDC14FA1N7654321"))

		status, err := car.Status(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(status.Odometer).NotTo(BeNil())
		Expect(status.Odometer.Value).To(Equal(8421.0))
		Expect(status.Doors).NotTo(BeNil())
		Expect(*status.Doors.FrontLeft).To(BeFalse())
		Expect(logins.Load()).To(Equal(int64(1)))
	})

	It("waits out the grace period and polls a command to completion", func() {
		car := newCar()

		start := time.Now()
		Expect(car.Lock(context.Background())).To(Succeed())
		elapsed := time.Since(start)

		// One poll comes back busy, so completion takes the grace period plus
		// two poll intervals.
		Expect(polls.Load()).To(Equal(int64(2)))
		Expect(elapsed).To(BeNumerically(">=", 140*time.Millisecond))
	})

	It("repairs an invalidated session mid-command without a second login", func() {
		car := newCar()

		locks := 0
		httpmock.RegisterResponder(http.MethodGet, apiBase+"rems/door/lock", func(r *http.Request) (*http.Response, error) {
			locks++
			if locks == 1 {
				return invalidSession()
			}
			Expect(r.Header.Get("sid")).To(Equal("sid-2"))
			rsp, err := envelope(nil)
			if err != nil {
				return nil, err
			}
			rsp.Header.Set("Xid", "xid-lock")
			return rsp, nil
		})

		Expect(car.Lock(context.Background())).To(Succeed())
		Expect(locks).To(Equal(2))
		Expect(logins.Load()).To(Equal(int64(2))) // initial sign-in plus one repair
		Expect(car.Token().SessionID()).To(Equal("sid-2"))
	})
})
