package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/carbocation/herring"
	"github.com/carbocation/herring/config"
	"github.com/carbocation/herring/export"
	"github.com/carbocation/herring/pipeline"
	"github.com/carbocation/herring/window"
	"github.com/gorilla/mux"
	"github.com/interpose/middleware"
	"github.com/justinas/alice"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve study listings over HTTP",
	Long: `serve answers GET /, /studies.json and /studies.csv. Each request runs a
fresh listing; the weeks, from, to and sort query parameters mean the same as
the list flags.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if servePort != 0 {
			cfg.Serve.Port = servePort
		}

		return serve(cmd.Context(), cfg)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (default from config, 9019)")
}

type runFunc func(context.Context, config.Config, pipeline.Options) (*pipeline.Result, error)

type handler struct {
	cfg config.Config
	log *zap.Logger
	run runFunc
}

func router(h *handler) http.Handler {
	router := mux.NewRouter()
	GET := router.Methods("GET", "HEAD").Subrouter()

	GET.HandleFunc("/", h.Index).Name("index")
	GET.HandleFunc("/studies.json", h.JSON).Name("json")
	GET.HandleFunc("/studies.csv", h.CSV).Name("csv")

	standard := alice.New(
		// Log all requests to STDOUT
		middleware.GorillaLog(),
	)

	return standard.Then(router)
}

func serve(ctx context.Context, cfg config.Config) error {
	h := &handler{cfg: cfg, log: logger, run: pipeline.Run}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Serve.Port),
		Handler:           router(h),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", zap.Int("port", cfg.Serve.Port))
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errs; !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (h *handler) Index(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "text/html; charset=utf-8", func(out io.Writer, res *pipeline.Result) error {
		return export.WriteHTML(out, res.Studies, export.ReportMeta{Window: res.Mode.String(), Generated: time.Now()})
	})
}

func (h *handler) JSON(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "application/json", func(out io.Writer, res *pipeline.Result) error {
		return export.WriteJSON(out, res.Studies)
	})
}

func (h *handler) CSV(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "text/csv; charset=utf-8", func(out io.Writer, res *pipeline.Result) error {
		return export.WriteCSV(out, res.Studies)
	})
}

// respond runs a listing for the request's query parameters and renders it.
// The body is buffered so a failure never produces a half-written 200.
func (h *handler) respond(w http.ResponseWriter, r *http.Request, contentType string, render func(io.Writer, *pipeline.Result) error) {
	opts, err := requestOptions(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	opts.Logger = h.log

	res, err := h.run(r.Context(), h.cfg, opts)
	switch {
	case errors.Is(err, herring.ErrInvalidArgument):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		h.log.Error("listing failed", zap.Error(err), zap.String("url", r.URL.String()))
		http.Error(w, "upstream ENA request failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	var buf bytes.Buffer
	if err := render(&buf, res); err != nil {
		h.log.Error("rendering failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Herring-Run-Id", res.RunID)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	buf.WriteTo(w)
}

func requestOptions(r *http.Request) (pipeline.Options, error) {
	q := r.URL.Query()

	weeks := 8
	if v := q.Get("weeks"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return pipeline.Options{}, fmt.Errorf("%w: weeks=%q is not an integer", herring.ErrInvalidArgument, v)
		}
		weeks = n
	}

	win, err := windowOptions(weeks, q.Get("from"), q.Get("to"))
	if err != nil {
		return pipeline.Options{}, err
	}
	if _, err := window.Plan(window.Today(), win); err != nil {
		return pipeline.Options{}, err
	}

	order, err := pipeline.ParseOrder(q.Get("sort"))
	if err != nil {
		return pipeline.Options{}, err
	}

	return pipeline.Options{Window: win, Order: order}, nil
}
