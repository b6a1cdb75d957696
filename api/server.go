package api

import (
	"context"
	"log"
	"math"
	"net/http"
	"strconv"

	"github.com/adamdenes/simtrade/internal/backtest"
	"github.com/adamdenes/simtrade/internal/exchange"
	"github.com/adamdenes/simtrade/internal/logger"
	"github.com/adamdenes/simtrade/internal/models"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Server exposes a finished backtest run over HTTP: the account snapshot,
// order history, kline passthrough, and a websocket replay of the fills.
// Every handler is read-only; the exchange is never mutated once serving
// starts, which is what makes sharing the single instance safe.
type Server struct {
	listenAddress string
	ex            *exchange.SimExchange
	result        *backtest.Result
	router        *http.ServeMux
	infoLog       *log.Logger
	errorLog      *log.Logger
}

func NewServer(addr string, ex *exchange.SimExchange, result *backtest.Result) *Server {
	return &Server{
		listenAddress: addr,
		ex:            ex,
		result:        result,
		router:        &http.ServeMux{},
		infoLog:       logger.Info,
		errorLog:      logger.Error,
	}
}

func (s *Server) Run() {
	s.infoLog.Printf("Result server listening on localhost%s\n", s.listenAddress)
	err := http.ListenAndServe(s.listenAddress, s.routes())
	if err != nil {
		s.errorLog.Fatalf("error listening on %s: %v", s.listenAddress, err)
	}
}

func (s *Server) routes() http.Handler {
	s.router = http.NewServeMux()

	s.router.HandleFunc("/result", s.resultHandler)
	s.router.HandleFunc("/account", s.accountHandler)
	s.router.HandleFunc("/openOrders", s.openOrdersHandler)
	s.router.HandleFunc("/historicalOrders", s.historicalOrdersHandler)
	s.router.HandleFunc("/klines", s.klinesHandler)
	s.router.HandleFunc("/ticker/price", s.tickerHandler)
	s.router.HandleFunc("/exchangeInfo", s.exchangeInfoHandler)
	s.router.HandleFunc("/ws/fills", s.fillFeedHandler)

	// Chain middlewares here
	return s.recoverPanic(s.logRequest(s.secureHeader(s.router)))
}

func (s *Server) resultHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.clientError(w, http.StatusMethodNotAllowed)
		return
	}
	if s.result == nil {
		s.notFound(w)
		return
	}

	summary := struct {
		Strategy  string `json:"strategy"`
		Symbol    string `json:"symbol"`
		Candles   int    `json:"candles"`
		Fills     int    `json:"fills"`
		StartCash string `json:"startCash"`
		EndEquity string `json:"endEquity"`
		PnL       string `json:"pnl"`
		ROI       string `json:"roi"`
	}{
		Strategy:  s.result.Strategy,
		Symbol:    s.result.Symbol,
		Candles:   s.result.Candles,
		Fills:     s.result.Fills,
		StartCash: s.result.StartCash.String(),
		EndEquity: s.result.EndEquity.String(),
		PnL:       s.result.PnL.String(),
		ROI:       s.result.ROI.Round(4).String(),
	}
	if err := WriteJSON(w, http.StatusOK, summary); err != nil {
		s.serverError(w, err)
	}
}

func (s *Server) accountHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.clientError(w, http.StatusMethodNotAllowed)
		return
	}

	balances, err := s.ex.Account()
	if err != nil {
		s.serverError(w, err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, balances); err != nil {
		s.serverError(w, err)
	}
}

func (s *Server) openOrdersHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.clientError(w, http.StatusMethodNotAllowed)
		return
	}

	orders := s.ex.OpenOrders(r.FormValue("symbol"))
	if err := WriteJSON(w, http.StatusOK, orders); err != nil {
		s.serverError(w, err)
	}
}

func (s *Server) historicalOrdersHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.clientError(w, http.StatusMethodNotAllowed)
		return
	}

	var (
		fromID int64
		limit  int
		err    error
	)
	if v := r.FormValue("orderId"); v != "" {
		if fromID, err = strconv.ParseInt(v, 10, 64); err != nil {
			s.clientError(w, http.StatusBadRequest)
			return
		}
	}
	if v := r.FormValue("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			s.clientError(w, http.StatusBadRequest)
			return
		}
	}

	orders := s.ex.HistoricalOrders(r.FormValue("symbol"), fromID, limit)
	if err := WriteJSON(w, http.StatusOK, orders); err != nil {
		s.serverError(w, err)
	}
}

func (s *Server) klinesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.clientError(w, http.StatusMethodNotAllowed)
		return
	}

	rows, err := s.ex.Klines(r.Context(), models.KlineQuery{
		Symbol:    r.FormValue("symbol"),
		Interval:  r.FormValue("interval"),
		StartTime: r.FormValue("startTime"),
		EndTime:   r.FormValue("endTime"),
		Limit:     r.FormValue("limit"),
	})
	if err != nil {
		s.exchangeError(w, err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, rows); err != nil {
		s.serverError(w, err)
	}
}

func (s *Server) tickerHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.clientError(w, http.StatusMethodNotAllowed)
		return
	}
	if err := WriteJSON(w, http.StatusOK, s.ex.LatestPrice()); err != nil {
		s.serverError(w, err)
	}
}

func (s *Server) exchangeInfoHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.clientError(w, http.StatusMethodNotAllowed)
		return
	}
	if err := WriteJSON(w, http.StatusOK, s.ex.ExchangeInfo()); err != nil {
		s.serverError(w, err)
	}
}

// fillFeedHandler replays the retained fill history over a websocket, one
// order per message, then closes. The replay runs inside the handler: the
// request context is canceled as soon as ServeHTTP returns, so writes
// must finish before then.
func (s *Server) fillFeedHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.serverError(w, err)
		return
	}

	fills := s.ex.HistoricalOrders(r.FormValue("symbol"), 0, math.MaxInt32)
	replay(r.Context(), conn, fills)
}

func replay(ctx context.Context, conn *websocket.Conn, fills []*models.OrderResponse) {
	for _, fill := range fills {
		if err := wsjson.Write(ctx, conn, fill); err != nil {
			logger.Error.Printf("Error writing fill to WebSocket: %v\n", err)
			conn.Close(websocket.StatusInternalError, "write failed")
			return
		}
	}
	conn.Close(websocket.StatusNormalClosure, "replay complete")
}
