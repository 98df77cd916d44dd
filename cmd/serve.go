package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leadgrid/prospector/internal/model"
	"github.com/leadgrid/prospector/internal/pipeline"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the privileged trigger API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Server.Token == "" {
			return eris.New("server.token is not configured")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(env.Store, env.Queue, cfg.Server.Token, cfg.Server.AllowedOrigins),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// serverStore is the read surface the trigger API needs.
type serverStore interface {
	GetLead(ctx context.Context, id string) (*model.Lead, error)
	GetBatch(ctx context.Context, id string) (*model.ImportBatch, error)
}

// jobRequest is the body of POST /api/jobs.
type jobRequest struct {
	Action     string `json:"action"`
	DateFrom   string `json:"dateFrom,omitempty"`
	DateTo     string `json:"dateTo,omitempty"`
	ProspectID string `json:"prospectId,omitempty"`
}

func newRouter(st serverStore, enq pipeline.Enqueuer, token string, origins []string) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(requireToken(token))
		r.Post("/api/jobs", handleTrigger(st, enq))
		r.Get("/api/batches/{id}", handleGetBatch(st))
	})

	return r
}

// requireToken guards the privileged routes with a bearer token.
func requireToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			got, ok := strings.CutPrefix(req.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

func handleTrigger(st serverStore, enq pipeline.Enqueuer) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var body jobRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		var (
			jobName string
			payload any
		)
		switch body.Action {
		case "detect":
			if err := validateWindow(body.DateFrom, body.DateTo); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			jobName = pipeline.JobDetect
			payload = pipeline.DetectPayload{DateFrom: body.DateFrom, DateTo: body.DateTo}

		case "score-all":
			jobName = pipeline.JobScore
			payload = pipeline.ScorePayload{All: true}

		case "enrich":
			if body.ProspectID == "" {
				writeError(w, http.StatusBadRequest, "prospectId is required")
				return
			}
			lead, err := st.GetLead(req.Context(), body.ProspectID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "lookup failed")
				return
			}
			if lead == nil {
				writeError(w, http.StatusNotFound, "prospect not found")
				return
			}
			jobName = pipeline.JobEnrich
			payload = pipeline.EnrichPayload{LeadID: body.ProspectID}

		default:
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown action %q", body.Action))
			return
		}

		jobID, err := enq.Enqueue(req.Context(), jobName, payload)
		if err != nil {
			zap.L().Error("trigger enqueue failed",
				zap.String("action", body.Action),
				zap.Error(err),
			)
			writeError(w, http.StatusInternalServerError, "enqueue failed")
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]string{
			"status": "accepted",
			"job_id": jobID,
		})
	}
}

func handleGetBatch(st serverStore) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		batch, err := st.GetBatch(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "lookup failed")
			return
		}
		if batch == nil {
			writeError(w, http.StatusNotFound, "batch not found")
			return
		}
		writeJSON(w, http.StatusOK, batch)
	}
}

// validateWindow rejects malformed or inverted date bounds before the job
// is queued, so the caller gets the error synchronously.
func validateWindow(dateFrom, dateTo string) error {
	var from, to time.Time
	var err error
	if dateFrom != "" {
		if from, err = time.Parse("2006-01-02", dateFrom); err != nil {
			return eris.Errorf("invalid dateFrom %q", dateFrom)
		}
	}
	if dateTo != "" {
		if to, err = time.Parse("2006-01-02", dateTo); err != nil {
			return eris.Errorf("invalid dateTo %q", dateTo)
		}
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return eris.New("dateTo precedes dateFrom")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
