package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/matchbook/pkg/app/core/market"
	"github.com/uhyunpark/matchbook/pkg/app/core/orderbook"
	"github.com/uhyunpark/matchbook/pkg/app/exchange"
)

// Options configures the optional parts of the server.
type Options struct {
	AllowedOrigins []string
	// Gatherer serves /metrics; nil leaves the route out.
	Gatherer prometheus.Gatherer
	// Registerer receives the HTTP request metrics; nil disables them.
	Registerer prometheus.Registerer
}

// Server handles REST API and WebSocket connections
type Server struct {
	engine   *exchange.Engine
	router   *mux.Router
	hub      *Hub
	validate *validator.Validate
	opts     Options
	metrics  *httpMetrics
	log      *zap.SugaredLogger
}

func NewServer(engine *exchange.Engine, hub *Hub, opts Options, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	s := &Server{
		engine:   engine,
		router:   mux.NewRouter(),
		hub:      hub,
		validate: v,
		opts:     opts,
		log:      log,
	}
	if opts.Registerer != nil {
		s.metrics = newHTTPMetrics(opts.Registerer, hub)
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()
	if s.metrics != nil {
		api.Use(s.metrics.middleware)
	}

	api.HandleFunc("/orders", s.handleSubmitOrder).Methods(http.MethodPost)
	api.HandleFunc("/match", s.handleMatchAll).Methods(http.MethodPost)
	api.HandleFunc("/instruments", s.handleGetInstruments).Methods(http.MethodGet)
	api.HandleFunc("/instruments/{symbol}/book", s.handleGetBook).Methods(http.MethodGet)
	api.HandleFunc("/instruments/{symbol}/match", s.handleMatchOne).Methods(http.MethodPost)

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.opts.Gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}
}

// Handler returns the router wrapped with CORS.
func (s *Server) Handler() http.Handler {
	origins := s.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("api_listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req SubmitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", "", err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			respondError(w, http.StatusBadRequest, "invalid order", verrs[0].Field(), verrs[0].Error())
			return
		}
		respondError(w, http.StatusBadRequest, "invalid order", "", err.Error())
		return
	}
	side, ok := orderbook.ParseSide(req.Side)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid order", "side", "must be buy or sell")
		return
	}

	handle, err := s.engine.Submit(side, req.Instrument, req.Quantity, req.Price)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, SubmitOrderResponse{Status: "accepted", Order: handle})
}

func (s *Server) handleMatchAll(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, MatchResponse{Trades: nonNil(s.engine.MatchAll())})
}

func (s *Server) handleMatchOne(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	trades, err := s.engine.MatchOnce(symbol)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, MatchResponse{Trades: nonNil(trades)})
}

func (s *Server) handleGetInstruments(w http.ResponseWriter, r *http.Request) {
	reg := s.engine.Registry()
	instruments := s.engine.Instruments()
	respondJSON(w, http.StatusOK, InstrumentsResponse{
		Instruments: instruments,
		Count:       len(instruments),
		Capacity:    reg.Capacity(),
	})
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	book, err := s.engine.Registry().Lookup(symbol)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}

	snap := book.Snapshot()
	resp := OrderbookSnapshot{
		Instrument: snap.Instrument,
		Bids:       snap.Bids,
		Asks:       snap.Asks,
		Timestamp:  time.Now().UnixMilli(),
	}
	// taken from the snapshot so they agree with the levels above
	if len(snap.Bids) > 0 {
		resp.BestBid = &snap.Bids[0].Price
	}
	if len(snap.Asks) > 0 {
		resp.BestAsk = &snap.Asks[0].Price
	}
	if last, ok := book.LastPrice(); ok {
		resp.LastPrice = &last
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ==============================
// Helper Functions
// ==============================

func (s *Server) respondEngineError(w http.ResponseWriter, err error) {
	var verr *exchange.ValidationError
	switch {
	case errors.As(err, &verr):
		respondError(w, http.StatusBadRequest, "invalid order", verr.Field, verr.Reason)
	case errors.Is(err, market.ErrCapacityExceeded):
		respondError(w, http.StatusUnprocessableEntity, "instrument capacity exceeded", "instrument", err.Error())
	case errors.Is(err, market.ErrUnknownInstrument):
		respondError(w, http.StatusNotFound, "unknown instrument", "", err.Error())
	default:
		s.log.Errorw("api_internal_error", "err", err)
		respondError(w, http.StatusInternalServerError, "internal error", "", err.Error())
	}
}

func nonNil(trades []orderbook.Trade) []orderbook.Trade {
	if trades == nil {
		return []orderbook.Trade{}
	}
	return trades
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error, field, message string) {
	respondJSON(w, status, ErrorResponse{
		Error:   error,
		Field:   field,
		Message: message,
	})
}
