package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/dossier-cli/internal/merge"
	"github.com/sells-group/dossier-cli/internal/model"
	"github.com/sells-group/dossier-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for extraction intake and blueprint reads",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		eng, err := initEngine()
		if err != nil {
			return err
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(st, eng),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// newRouter builds the HTTP API. Merges on the same case are serialized by
// the single intake handler path; the store enforces version uniqueness.
func newRouter(st store.Store, eng *merge.Engine) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/cases/{caseID}/merge", func(w http.ResponseWriter, req *http.Request) {
		caseID := chi.URLParam(req, "caseID")
		ctx := req.Context()

		var extraction model.DocumentExtraction
		if err := json.NewDecoder(req.Body).Decode(&extraction); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if extraction.DocumentID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document_id is required"})
			return
		}

		current, err := latestOrNewBlueprint(ctx, st, caseID)
		if err != nil {
			serverError(w, "load blueprint", err)
			return
		}

		if err := st.ArchiveExtraction(ctx, caseID, extraction); err != nil {
			serverError(w, "archive extraction", err)
			return
		}

		result, err := eng.MergeDocumentExtraction(current, extraction)
		if err != nil {
			serverError(w, "merge extraction", err)
			return
		}

		version, err := st.SaveBlueprint(ctx, caseID, result.Blueprint, extraction.DocumentID)
		if err != nil {
			serverError(w, "save blueprint", err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"case_id":   caseID,
			"version":   version.Version,
			"stats":     result.Stats,
			"conflicts": result.Conflicts,
		})
	})

	r.Get("/cases/{caseID}/blueprint", func(w http.ResponseWriter, req *http.Request) {
		caseID := chi.URLParam(req, "caseID")

		latest, err := st.GetLatestBlueprint(req.Context(), caseID)
		if err != nil {
			serverError(w, "load blueprint", err)
			return
		}
		if latest == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "case has no blueprint"})
			return
		}
		writeJSON(w, http.StatusOK, latest)
	})

	r.Get("/cases/{caseID}/conflicts", func(w http.ResponseWriter, req *http.Request) {
		caseID := chi.URLParam(req, "caseID")
		needsReview := req.URL.Query().Get("needs_review") == "true"

		latest, err := st.GetLatestBlueprint(req.Context(), caseID)
		if err != nil {
			serverError(w, "load blueprint", err)
			return
		}
		if latest == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "case has no blueprint"})
			return
		}
		writeJSON(w, http.StatusOK, filterConflicts(latest.Blueprint.MergeConflicts, needsReview))
	})

	r.Get("/cases/{caseID}/versions", func(w http.ResponseWriter, req *http.Request) {
		caseID := chi.URLParam(req, "caseID")

		versions, err := st.ListVersions(req.Context(), caseID)
		if err != nil {
			serverError(w, "list versions", err)
			return
		}
		if versions == nil {
			versions = []store.VersionInfo{}
		}
		writeJSON(w, http.StatusOK, versions)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func serverError(w http.ResponseWriter, action string, err error) {
	zap.L().Error(action, zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}
