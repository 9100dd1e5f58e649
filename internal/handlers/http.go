// Package handlers serves a read-only JSON view of the exchange over HTTP.
// Every state-changing call goes through the TCP protocol instead.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"skoll/internal/common"
	"skoll/internal/exchange"
	"skoll/internal/fixed"

	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	defaultPage = 50
	maxPage     = 500
)

var errNotFound = errors.New("not found")

type Handler struct {
	seq     *exchange.Sequencer
	metrics http.Handler
	timeout time.Duration
	log     zerolog.Logger
}

// NewHandler serves reads from seq. metrics may be nil.
func NewHandler(seq *exchange.Sequencer, metrics http.Handler, log zerolog.Logger) *Handler {
	return &Handler{
		seq:     seq,
		metrics: metrics,
		timeout: 5 * time.Second,
		log:     log.With().Str("component", "http").Logger(),
	}
}

func (h *Handler) SetupRoutes(r *mux.Router) {
	r.HandleFunc("/api/health", h.healthCheck).Methods("GET")
	r.HandleFunc("/api/orders/{id:[0-9]+}", h.getOrder).Methods("GET")
	r.HandleFunc("/api/book/{asset}/{kind}", h.getBook).Methods("GET")
	r.HandleFunc("/api/pool/{asset}/{compartment}", h.getCompartment).Methods("GET")
	r.HandleFunc("/api/pool/{asset}/{compartment}/positions/{owner}", h.getPosition).Methods("GET")
	r.HandleFunc("/api/balances/{owner}/{asset}", h.getBalance).Methods("GET")
	r.HandleFunc("/api/fees", h.getFees).Methods("GET")
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics).Methods("GET")
	}
}

// Router returns a fresh router with every route installed.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	h.SetupRoutes(r)
	return r
}

// Amount is a base-unit value alongside its whole-unit rendering.
type Amount struct {
	Base    string `json:"base"`
	Decimal string `json:"decimal"`
}

func amount(v *uint256.Int) Amount {
	if v == nil {
		v = fixed.Zero()
	}
	return Amount{Base: v.Dec(), Decimal: fixed.Format(v)}
}

type OrderView struct {
	ID         uint64    `json:"id"`
	Owner      string    `json:"owner"`
	Side       string    `json:"side"`
	Kind       string    `json:"kind"`
	Asset      string    `json:"asset"`
	Amount     Amount    `json:"amount"`
	Price      Amount    `json:"price"`
	Filled     Amount    `json:"filled"`
	Remaining  Amount    `json:"remaining"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	Expiration time.Time `json:"expiration"`
}

func orderView(o common.Order) OrderView {
	return OrderView{
		ID:         o.ID,
		Owner:      o.Owner.Hex(),
		Side:       o.Side.String(),
		Kind:       o.Kind.String(),
		Asset:      o.Asset.Hex(),
		Amount:     amount(o.Amount),
		Price:      amount(o.Price),
		Filled:     amount(o.Filled),
		Remaining:  amount(o.Remaining()),
		Status:     o.Status.String(),
		CreatedAt:  o.CreatedAt,
		Expiration: o.Expiration,
	}
}

type MatchView struct {
	BuyID  uint64 `json:"buy_id"`
	SellID uint64 `json:"sell_id"`
	Fill   Amount `json:"fill"`
}

type BookView struct {
	Asset   string      `json:"asset"`
	Kind    string      `json:"kind"`
	Bids    []OrderView `json:"bids"`
	Asks    []OrderView `json:"asks"`
	Matches []MatchView `json:"matches"`
}

type CompartmentView struct {
	Asset         string `json:"asset"`
	Compartment   string `json:"compartment"`
	Epoch         uint64 `json:"epoch"`
	Current       bool   `json:"current"`
	Providers     int    `json:"providers"`
	Accounted     Amount `json:"accounted"`
	Raw           Amount `json:"raw"`
	TotalShares   Amount `json:"total_shares"`
	RewardBalance Amount `json:"reward_balance"`
	CrossBalance  Amount `json:"cross_balance"`
}

type PositionView struct {
	Owner         string `json:"owner"`
	Epoch         uint64 `json:"epoch"`
	Contributed   Amount `json:"contributed"`
	Shares        Amount `json:"shares"`
	PendingReward Amount `json:"pending_reward"`
	PendingCross  Amount `json:"pending_cross"`
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	var lastID uint64
	err := h.read(r.Context(), func(x *exchange.Exchange) error {
		lastID = x.Book.LastID()
		return nil
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	h.reply(w, map[string]any{"status": "ok", "last_order_id": lastID})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		h.fail(w, errors.Wrap(common.ErrValidation, "bad order id"))
		return
	}

	var view OrderView
	err = h.read(r.Context(), func(x *exchange.Exchange) error {
		order, ok := x.Book.Order(id)
		if !ok {
			return errors.Wrapf(errNotFound, "order %d", id)
		}
		view = orderView(order)
		return nil
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	h.reply(w, view)
}

func (h *Handler) getBook(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	asset, err := common.ParseAddress(vars["asset"])
	if err != nil {
		h.fail(w, err)
		return
	}
	kind, err := common.ParseKind(vars["kind"])
	if err != nil {
		h.fail(w, err)
		return
	}
	offset, limit, err := page(r)
	if err != nil {
		h.fail(w, err)
		return
	}

	view := BookView{Asset: asset.Hex(), Kind: kind.String()}
	err = h.read(r.Context(), func(x *exchange.Exchange) error {
		for _, o := range x.Book.ActiveOrders(asset, common.Buy, kind, offset, limit) {
			view.Bids = append(view.Bids, orderView(o))
		}
		for _, o := range x.Book.ActiveOrders(asset, common.Sell, kind, offset, limit) {
			view.Asks = append(view.Asks, orderView(o))
		}
		for _, m := range x.Book.ProposeMatches(asset, kind, limit) {
			view.Matches = append(view.Matches, MatchView{BuyID: m.BuyID, SellID: m.SellID, Fill: amount(m.Fill)})
		}
		return nil
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	h.reply(w, view)
}

func (h *Handler) getCompartment(w http.ResponseWriter, r *http.Request) {
	asset, c, err := compartmentVars(r)
	if err != nil {
		h.fail(w, err)
		return
	}

	var view CompartmentView
	err = h.read(r.Context(), func(x *exchange.Exchange) error {
		current := x.Pool.CurrentEpoch(asset, c)
		epoch, err := epochParam(r, current)
		if err != nil {
			return err
		}
		st, err := x.Pool.Compartment(asset, c, epoch)
		if err != nil {
			return err
		}
		view = CompartmentView{
			Asset:         asset.Hex(),
			Compartment:   c.String(),
			Epoch:         epoch,
			Current:       epoch == current,
			Providers:     st.Providers(),
			Accounted:     amount(st.Accounted),
			Raw:           amount(st.Raw),
			TotalShares:   amount(st.TotalShares),
			RewardBalance: amount(st.RewardBalance),
			CrossBalance:  amount(st.CrossBalance),
		}
		return nil
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	h.reply(w, view)
}

func (h *Handler) getPosition(w http.ResponseWriter, r *http.Request) {
	asset, c, err := compartmentVars(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	owner, err := common.ParseAddress(mux.Vars(r)["owner"])
	if err != nil {
		h.fail(w, err)
		return
	}

	var view PositionView
	err = h.read(r.Context(), func(x *exchange.Exchange) error {
		epoch, err := epochParam(r, x.Pool.CurrentEpoch(asset, c))
		if err != nil {
			return err
		}
		pos, ok := x.Pool.Position(asset, c, epoch, owner)
		if !ok {
			return errors.Wrapf(errNotFound, "no position for %s in epoch %d", owner.Hex(), epoch)
		}
		own, cross := x.Pool.Pending(asset, c, epoch, owner)
		view = PositionView{
			Owner:         owner.Hex(),
			Epoch:         epoch,
			Contributed:   amount(pos.Contributed),
			Shares:        amount(pos.Shares),
			PendingReward: amount(own),
			PendingCross:  amount(cross),
		}
		return nil
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	h.reply(w, view)
}

func (h *Handler) getBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	owner, err := common.ParseAddress(vars["owner"])
	if err != nil {
		h.fail(w, err)
		return
	}
	asset, err := common.ParseAddress(vars["asset"])
	if err != nil {
		h.fail(w, err)
		return
	}

	var balance *uint256.Int
	err = h.read(r.Context(), func(x *exchange.Exchange) error {
		balance = x.Ledger.BalanceOf(asset, owner)
		return nil
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	h.reply(w, map[string]any{"owner": owner.Hex(), "asset": asset.Hex(), "balance": amount(balance)})
}

func (h *Handler) getFees(w http.ResponseWriter, r *http.Request) {
	var fees *uint256.Int
	var currency common.Address
	err := h.read(r.Context(), func(x *exchange.Exchange) error {
		fees = x.Book.Fees()
		currency = x.Currency()
		return nil
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	h.reply(w, map[string]any{"currency": currency.Hex(), "fees": amount(fees)})
}

// --- Helpers ---

func (h *Handler) read(ctx context.Context, fn func(x *exchange.Exchange) error) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	return h.seq.Do(ctx, fn)
}

func (h *Handler) reply(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error().Err(err).Msg("failed to encode response")
	}
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errNotFound), errors.Is(err, common.ErrUnknownEpoch):
		status = http.StatusNotFound
	case errors.Is(err, common.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, exchange.ErrStopped):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("request failed")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func compartmentVars(r *http.Request) (common.Address, common.Compartment, error) {
	vars := mux.Vars(r)
	asset, err := common.ParseAddress(vars["asset"])
	if err != nil {
		return common.ZeroAddress, 0, err
	}
	c, err := common.ParseCompartment(vars["compartment"])
	if err != nil {
		return common.ZeroAddress, 0, err
	}
	return asset, c, nil
}

func epochParam(r *http.Request, current uint64) (uint64, error) {
	s := r.URL.Query().Get("epoch")
	if s == "" {
		return current, nil
	}
	epoch, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(common.ErrValidation, "bad epoch %q", s)
	}
	return epoch, nil
}

func page(r *http.Request) (offset, limit int, err error) {
	q := r.URL.Query()
	limit = defaultPage
	if s := q.Get("limit"); s != "" {
		if limit, err = strconv.Atoi(s); err != nil || limit <= 0 {
			return 0, 0, errors.Wrapf(common.ErrValidation, "bad limit %q", s)
		}
	}
	if limit > maxPage {
		limit = maxPage
	}
	if s := q.Get("offset"); s != "" {
		if offset, err = strconv.Atoi(s); err != nil || offset < 0 {
			return 0, 0, errors.Wrapf(common.ErrValidation, "bad offset %q", s)
		}
	}
	return offset, limit, nil
}
