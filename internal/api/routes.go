package api

import (
	"net/http"

	"github.com/RMahshie/powersweep/internal/api/handlers"
	"github.com/RMahshie/powersweep/internal/repository"
	"github.com/RMahshie/powersweep/internal/storage"
	"github.com/danielgtaylor/huma/v2"
)

// RegisterRoutes sets up all API routes
func RegisterRoutes(api huma.API, repo repository.Reader, archive storage.ArtifactStore) {
	runHandler := handlers.NewRunHandler(repo, archive)

	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns the health status of the service",
	}, handlers.Health)

	huma.Register(api, huma.Operation{
		OperationID: "listRuns",
		Method:      http.MethodGet,
		Path:        "/api/runs",
		Summary:     "List sweep runs",
		Description: "Returns recorded power sweeps, most recent first",
		Tags:        []string{"Runs"},
	}, runHandler.ListRuns)

	huma.Register(api, huma.Operation{
		OperationID: "getRun",
		Method:      http.MethodGet,
		Path:        "/api/runs/{id}",
		Summary:     "Get a sweep run",
		Description: "Returns the parameters and status of one run",
		Tags:        []string{"Runs"},
	}, runHandler.GetRun)

	huma.Register(api, huma.Operation{
		OperationID: "getRunSteps",
		Method:      http.MethodGet,
		Path:        "/api/runs/{id}/steps",
		Summary:     "Get run steps",
		Description: "Returns every power level of a run with its measurements and waveform link",
		Tags:        []string{"Runs"},
	}, runHandler.GetRunSteps)
}
