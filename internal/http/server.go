package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/Dijital-Vizyon/flowforge-nexus/internal/log"
	"github.com/Dijital-Vizyon/flowforge-nexus/pkg/engine"
	"github.com/Dijital-Vizyon/flowforge-nexus/pkg/models"
)

// Engines bundles the components the handlers call into.
type Engines struct {
	Service     *engine.Service
	Coordinator *engine.Coordinator
	Sagas       *engine.SagaController
}

// NewMux wires all routes onto a fresh ServeMux.
func NewMux(e Engines) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", HealthHandler)
	mux.HandleFunc("/definitions", DefinitionsHandler(e.Service))
	mux.HandleFunc("/definitions/", DefinitionByIDHandler(e))
	mux.HandleFunc("/executions", ExecutionsHandler(e.Coordinator))
	mux.HandleFunc("/executions/", ExecutionByIDHandler(e.Coordinator))
	mux.HandleFunc("/sagas", SagasHandler(e.Service))
	mux.HandleFunc("/sagas/", SagaByIDHandler(e))
	mux.HandleFunc("/saga-executions/", SagaExecutionByIDHandler(e.Sagas))
	return mux
}

// StartServer blocks serving the API on the given port.
func StartServer(port string, e Engines) error {
	log.GetLogger().Infof("Starting FlowForge server on :%s", port)
	return http.ListenAndServe(":"+port, NewMux(e))
}

func HealthHandler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "FlowForge server is running")
}

func DefinitionsHandler(svc *engine.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			onlyActive := r.URL.Query().Get("active") == "true"
			defs, err := svc.ListWorkflowDefinitions(onlyActive)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, defs)
		case http.MethodPost:
			var def models.WorkflowDefinition
			if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
				http.Error(w, fmt.Sprintf("Invalid definition payload: %v", err), http.StatusBadRequest)
				return
			}
			id, err := svc.CreateWorkflowDefinition(def)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"id": id})
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

type executeRequest struct {
	Event   models.Event   `json:"event"`
	Context map[string]any `json:"context,omitempty"`
}

func DefinitionByIDHandler(e Engines) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, action := splitPath(r.URL.Path, "/definitions/")
		if id == "" {
			http.Error(w, "Missing definition id", http.StatusBadRequest)
			return
		}
		switch {
		case action == "" && r.Method == http.MethodGet:
			def, err := e.Service.GetWorkflowDefinition(id)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, def)
		case action == "publish" && r.Method == http.MethodPost:
			if err := e.Service.PublishWorkflowDefinition(id); err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": models.PublishedDefinitionStatus})
		case action == "deprecate" && r.Method == http.MethodPost:
			if err := e.Service.DeprecateWorkflowDefinition(id); err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": models.DeprecatedDefinitionStatus})
		case action == "execute" && r.Method == http.MethodPost:
			var req executeRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, fmt.Sprintf("Invalid execute payload: %v", err), http.StatusBadRequest)
				return
			}
			exec, err := e.Coordinator.Execute(r.Context(), id, req.Event, req.Context)
			if err != nil && exec.ID == "" {
				writeError(w, err)
				return
			}
			// a failed execution still has a record worth returning
			writeJSON(w, http.StatusOK, exec)
		default:
			http.Error(w, "Not found", http.StatusNotFound)
		}
	}
}

func ExecutionsHandler(coord *engine.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, coord.ListExecutions())
	}
}

func ExecutionByIDHandler(coord *engine.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, action := splitPath(r.URL.Path, "/executions/")
		if id == "" {
			http.Error(w, "Missing execution id", http.StatusBadRequest)
			return
		}
		switch {
		case action == "" && r.Method == http.MethodGet:
			exec, ok := coord.GetExecution(id)
			if !ok {
				http.Error(w, fmt.Sprintf("Execution %s not found", id), http.StatusNotFound)
				return
			}
			writeJSON(w, http.StatusOK, exec)
		case action == "cancel" && r.Method == http.MethodPost:
			if err := coord.CancelExecution(id); err != nil {
				writeError(w, err)
				return
			}
			exec, _ := coord.GetExecution(id)
			writeJSON(w, http.StatusOK, exec)
		default:
			http.Error(w, "Not found", http.StatusNotFound)
		}
	}
}

func SagasHandler(svc *engine.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			defs, err := svc.ListSagaDefinitions()
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, defs)
		case http.MethodPost:
			var def models.SagaDefinition
			if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
				http.Error(w, fmt.Sprintf("Invalid saga payload: %v", err), http.StatusBadRequest)
				return
			}
			id, err := svc.CreateSagaDefinition(def)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"id": id})
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

type startSagaRequest struct {
	Data map[string]any `json:"data,omitempty"`
}

func SagaByIDHandler(e Engines) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, action := splitPath(r.URL.Path, "/sagas/")
		if id == "" {
			http.Error(w, "Missing saga id", http.StatusBadRequest)
			return
		}
		switch {
		case action == "" && r.Method == http.MethodGet:
			def, err := e.Service.GetSagaDefinition(id)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, def)
		case action == "start" && r.Method == http.MethodPost:
			def, err := e.Service.GetSagaDefinition(id)
			if err != nil {
				writeError(w, err)
				return
			}
			var req startSagaRequest
			if r.Body != nil && r.ContentLength != 0 {
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					http.Error(w, fmt.Sprintf("Invalid start payload: %v", err), http.StatusBadRequest)
					return
				}
			}
			execID, err := e.Sagas.StartSaga(r.Context(), def, req.Data)
			if execID == "" && err != nil {
				writeError(w, err)
				return
			}
			exec, _ := e.Sagas.GetSagaExecution(execID)
			writeJSON(w, http.StatusOK, exec)
		default:
			http.Error(w, "Not found", http.StatusNotFound)
		}
	}
}

func SagaExecutionByIDHandler(sc *engine.SagaController) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, action := splitPath(r.URL.Path, "/saga-executions/")
		if id == "" {
			http.Error(w, "Missing saga execution id", http.StatusBadRequest)
			return
		}
		switch {
		case action == "" && r.Method == http.MethodGet:
			exec, ok := sc.GetSagaExecution(id)
			if !ok {
				http.Error(w, fmt.Sprintf("Saga execution %s not found", id), http.StatusNotFound)
				return
			}
			writeJSON(w, http.StatusOK, exec)
		case action == "cancel" && r.Method == http.MethodPost:
			if err := sc.CancelSaga(id); err != nil {
				writeError(w, err)
				return
			}
			exec, _ := sc.GetSagaExecution(id)
			writeJSON(w, http.StatusOK, exec)
		default:
			http.Error(w, "Not found", http.StatusNotFound)
		}
	}
}

func splitPath(path, prefix string) (id, action string) {
	rest := strings.TrimPrefix(path, prefix)
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return "", ""
	}
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.GetLogger().Errorf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	var vErr *engine.ValidationError
	switch {
	case errors.Is(err, engine.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &vErr):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, engine.ErrNoMatchingTrigger):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		log.GetLogger().Errorf("Request failed: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// NewEngines is a convenience wiring used by the server binary and tests.
func NewEngines(svc *engine.Service, coord *engine.Coordinator, sagas *engine.SagaController) Engines {
	return Engines{Service: svc, Coordinator: coord, Sagas: sagas}
}
