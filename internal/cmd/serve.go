package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/palaver-dev/palaver/internal/config"
	palerrors "github.com/palaver-dev/palaver/internal/errors"
	"github.com/palaver-dev/palaver/internal/event"
	"github.com/palaver-dev/palaver/internal/floor"
	"github.com/palaver-dev/palaver/internal/logging"
	"github.com/palaver-dev/palaver/internal/printer"
	"github.com/palaver-dev/palaver/internal/roster"
	"github.com/palaver-dev/palaver/internal/transport"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the floor-control server",
	Long: `Serve runs an HTTP server exposing the participant registry and floor
controller. Notifications are delivered to participants over a
websocket endpoint at /ws?participant=<id>.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

type registerRequest struct {
	ID       string `json:"id"`
	Priority int    `json:"priority"`
}

type floorRequest struct {
	Participant string `json:"participant"`
	Priority    int    `json:"priority"`
	Reason      string `json:"reason"`
}

type floorStatusResponse struct {
	Holder      string    `json:"holder,omitempty"`
	GrantedAt   time.Time `json:"granted_at,omitzero"`
	Deadline    time.Time `json:"deadline,omitzero"`
	QueueLength int       `json:"queue_length"`
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	logger := logging.NopLogger()
	if cfg.Logging.Enabled {
		l, err := logging.NewLogger("", cfg.Logging.Level)
		if err == nil {
			logger = l
		}
	}

	bus := event.NewBus()
	hub := transport.NewHub(logger)
	defer hub.Close()

	reg := roster.New(
		roster.WithMaxFailures(cfg.Roster.MaxFailures),
		roster.WithBus(bus),
		roster.WithLogger(logger),
	)

	strategy, err := floor.ParseStrategy(cfg.Floor.DeadlockStrategy)
	if err != nil {
		return printer.Error("Invalid Configuration", err.Error(), []string{
			"Set floor.deadlock_strategy to reset_queue, prioritize_leader, or revoke_all",
		})
	}

	fc := floor.NewController(reg, hub,
		floor.WithCapacity(cfg.Floor.QueueCapacity),
		floor.WithGrantTimeout(cfg.Floor.GrantTimeout()),
		floor.WithTickInterval(cfg.Floor.TickInterval()),
		floor.WithLeader(cfg.Floor.Leader),
		floor.WithStrategy(strategy),
		floor.WithBus(bus),
		floor.WithLogger(logger),
	)
	fc.Start()
	defer fc.Stop()

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "clients": hub.ClientCount()})
	})

	mux.HandleFunc("POST /participants", func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := reg.Register(req.ID, req.Priority); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"id": req.ID})
	})

	mux.HandleFunc("DELETE /participants/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		fc.HandleUnregister(id)
		if err := reg.Unregister(id); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /participants", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, reg.List())
	})

	mux.HandleFunc("POST /floor/request", func(w http.ResponseWriter, r *http.Request) {
		var req floorRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		granted, err := fc.Request(req.Participant, req.Priority, req.Reason)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"granted": granted})
	})

	mux.HandleFunc("POST /floor/yield", func(w http.ResponseWriter, r *http.Request) {
		var req floorRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := fc.Yield(req.Participant, req.Reason); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /floor", func(w http.ResponseWriter, r *http.Request) {
		st := fc.Status()
		writeJSON(w, http.StatusOK, floorStatusResponse{
			Holder:      st.Holder,
			GrantedAt:   st.GrantedAt,
			Deadline:    st.Deadline,
			QueueLength: st.QueueLength,
		})
	})

	srv := &http.Server{
		Addr:         cfg.Transport.ListenAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	printer.Step("Listening on %s\n", cfg.Transport.ListenAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		printer.Info("Received %v, shutting down\n", sig)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return printer.Error("Server Failed", err.Error(), nil)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return printer.Error("Shutdown Failed", err.Error(), nil)
	}

	printer.Success("Server stopped\n")
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, palerrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, palerrors.ErrQueueFull):
		return http.StatusConflict
	case errors.Is(err, palerrors.ErrNotCurrentSpeaker):
		return http.StatusConflict
	case errors.Is(err, palerrors.ErrUnavailableParticipant):
		return http.StatusConflict
	case errors.Is(err, palerrors.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, palerrors.ErrInvalidState):
		return http.StatusConflict
	default:
		var ve *palerrors.ValidationError
		if errors.As(err, &ve) {
			return http.StatusBadRequest
		}
		var nf *palerrors.NotFoundError
		if errors.As(err, &nf) {
			return http.StatusNotFound
		}
		return http.StatusInternalServerError
	}
}
