package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type apiStateResponse struct {
	State     ProxyState `json:"state"`
	IdleTicks int        `json:"idleTicks"`
	Backend   string     `json:"backend"`
}

type apiActionResponse struct {
	Result string `json:"result"`
	Error  string `json:"error,omitempty"`
}

// NewApiRouter exposes the controller over HTTP. metricsHandler may be nil.
func NewApiRouter(controller *Controller, metricsHandler http.Handler) *mux.Router {
	router := mux.NewRouter()

	router.Path("/state").Methods(http.MethodGet).
		HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			writeJson(writer, http.StatusOK, &apiStateResponse{
				State:     controller.State(),
				IdleTicks: controller.IdleTicks(),
				Backend:   controller.BackendAddress(),
			})
		})

	router.Path("/status").Methods(http.MethodGet).
		HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			status := controller.LastStatus()
			if status == nil {
				writer.WriteHeader(http.StatusNoContent)
				return
			}
			writeJson(writer, http.StatusOK, status)
		})

	router.Path("/start").Methods(http.MethodPost).
		HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			result := controller.RequestStart(request.Context(), nil)
			switch result {
			case StartInitiated:
				writeJson(writer, http.StatusAccepted, &apiActionResponse{Result: result.String()})
			case StartBusy:
				writeJson(writer, http.StatusConflict, &apiActionResponse{
					Result: result.String(),
					Error:  "backend is " + controller.State().String(),
				})
			default:
				writeJson(writer, http.StatusBadGateway, &apiActionResponse{Result: result.String()})
			}
		})

	router.Path("/stop").Methods(http.MethodPost).
		HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			err := controller.RequestStop(request.Context())
			switch {
			case err == nil:
				writeJson(writer, http.StatusAccepted, &apiActionResponse{Result: "stopped"})
			case errors.Is(err, ErrNotProxying):
				writeJson(writer, http.StatusConflict, &apiActionResponse{Result: "busy", Error: err.Error()})
			default:
				writeJson(writer, http.StatusBadGateway, &apiActionResponse{Result: "failed", Error: err.Error()})
			}
		})

	if metricsHandler != nil {
		router.Path("/metrics").Handler(metricsHandler)
	}

	return router
}

func writeJson(writer http.ResponseWriter, status int, body interface{}) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	if err := json.NewEncoder(writer).Encode(body); err != nil {
		logrus.WithError(err).Debug("Failed to write API response")
	}
}

func StartApiServer(apiBinding string, handler http.Handler) {
	logrus.WithField("binding", apiBinding).Info("Serving API requests")
	go func() {
		logrus.WithError(
			http.ListenAndServe(apiBinding, handler)).Error("API server failed")
	}()
}
