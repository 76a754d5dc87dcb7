package apiserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/coldbell/launchpad/backend/internal/engine"
	"github.com/coldbell/launchpad/backend/internal/indexer"
)

type createLaunchRequest struct {
	engine.CreateLaunchRequest
	Description string `json:"description"`
}

type launchDetailResponse struct {
	Launch   indexer.LaunchRecord    `json:"launch"`
	Campaign *indexer.CampaignRecord `json:"campaign,omitempty"`
}

type graduateRequest struct {
	LaunchAddress string `json:"launchAddress"`
}

type documentRequest struct {
	LaunchAddress string `json:"launchAddress"`
}

type chartCandlesResponse struct {
	Symbol      string                 `json:"symbol"`
	Timeframe   string                 `json:"timeframe"`
	IntervalSec int64                  `json:"interval_sec"`
	Candles     []indexer.CandleRecord `json:"candles"`
}

type websocketSubscribeRequest struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
}

type websocketEnvelope struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	TS      int64  `json:"ts"`
}

var websocketUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

func (s *Service) handleLaunchBuy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondMethodNotAllowed(w)
		return
	}

	var request engine.BuyRequest
	if err := decodeJSONBody(r, &request); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.engine.BuildBuy(r.Context(), request)
	if err != nil {
		s.respondEngineError(w, "build buy", err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Service) handleLaunchSell(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondMethodNotAllowed(w)
		return
	}

	var request engine.SellRequest
	if err := decodeJSONBody(r, &request); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.engine.BuildSell(r.Context(), request)
	if err != nil {
		s.respondEngineError(w, "build sell", err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Service) handleLaunchCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondMethodNotAllowed(w)
		return
	}

	var request createLaunchRequest
	if err := decodeJSONBody(r, &request); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.engine.BuildInitializeAndCreateToken(r.Context(), request.CreateLaunchRequest)
	if err != nil {
		s.respondEngineError(w, "build launch creation", err)
		return
	}

	// Campaign metadata is best effort here: the launch row only exists once
	// the indexer observes the initialized account, so a miss is expected for
	// brand new launches and the metadata lands on the next create call.
	campaignErr := s.store.UpsertCampaign(r.Context(), indexer.CampaignInput{
		LaunchAddress: strings.TrimSpace(request.LaunchAddress),
		Name:          request.Name,
		Symbol:        request.Symbol,
		URI:           request.URI,
		Description:   request.Description,
	})
	if campaignErr != nil {
		s.logger.Warn("campaign metadata not stored", "launch", request.LaunchAddress, "err", campaignErr)
	}

	s.respondJSON(w, http.StatusOK, result)
}

func (s *Service) handleLaunchGraduate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondMethodNotAllowed(w)
		return
	}

	var request graduateRequest
	if err := decodeJSONBody(r, &request); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.engine.Graduate(r.Context(), request.LaunchAddress)
	if err != nil {
		s.respondEngineError(w, "graduate", err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Service) handleLaunchDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondMethodNotAllowed(w)
		return
	}

	var request documentRequest
	if err := decodeJSONBody(r, &request); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.engine.GenerateLegalDocument(r.Context(), request.LaunchAddress)
	if err != nil {
		if strings.Contains(err.Error(), "not configured") {
			s.respondError(w, http.StatusServiceUnavailable, "document generator not configured")
			return
		}
		s.respondEngineError(w, "generate document", err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Service) handleLaunchPrice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}

	address := strings.TrimSpace(r.URL.Query().Get("address"))
	if address == "" {
		s.respondError(w, http.StatusBadRequest, "address is required")
		return
	}

	result, err := s.engine.SpotPrice(r.Context(), address)
	if err != nil {
		s.respondEngineError(w, "spot price", err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Service) handleLaunchesRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}

	limit, err := parseOptionalInt(r, "limit", 0)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := parseOptionalInt(r, "offset", 0)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, normalizedLimit, normalizedOffset, err := s.store.ListLaunches(r.Context(), indexer.LaunchFilter{
		Status:  strings.TrimSpace(r.URL.Query().Get("status")),
		Creator: strings.TrimSpace(r.URL.Query().Get("creator")),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		s.logger.Error("list launches failed", "err", err)
		s.respondError(w, http.StatusInternalServerError, "failed to list launches")
		return
	}

	s.respondJSON(w, http.StatusOK, listResponse[indexer.LaunchRecord]{
		Items:  items,
		Limit:  normalizedLimit,
		Offset: normalizedOffset,
	})
}

func (s *Service) handleLaunchesSubroutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}

	address := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/launches/"), "/")
	if address == "" || strings.Contains(address, "/") {
		s.respondError(w, http.StatusNotFound, "not found")
		return
	}

	launch, err := s.store.GetLaunch(r.Context(), address)
	if err != nil {
		if errors.Is(err, indexer.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "launch not found")
			return
		}
		s.logger.Error("get launch failed", "err", err)
		s.respondError(w, http.StatusInternalServerError, "failed to get launch")
		return
	}

	response := launchDetailResponse{Launch: launch}
	campaign, err := s.store.GetCampaign(r.Context(), address)
	if err == nil {
		response.Campaign = &campaign
	} else if !errors.Is(err, indexer.ErrNotFound) {
		s.logger.Error("get campaign failed", "err", err)
	}

	s.respondJSON(w, http.StatusOK, response)
}

func (s *Service) handleChartCandles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}

	timeframe, intervalSec, err := parseChartTimeframe(r.URL.Query().Get("timeframe"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := parseOptionalInt(r, "limit", 120)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	symbol := strings.TrimSpace(r.URL.Query().Get("symbol"))
	candles, err := s.store.GetSolCandles(r.Context(), symbol, intervalSec, limit)
	if err != nil {
		s.logger.Error("get sol candles failed", "timeframe", timeframe, "err", err)
		s.respondError(w, http.StatusInternalServerError, "failed to load candles")
		return
	}

	s.respondJSON(w, http.StatusOK, chartCandlesResponse{
		Symbol:      "SOLUSD",
		Timeframe:   timeframe,
		IntervalSec: intervalSec,
		Candles:     candles,
	})
}

func (s *Service) handleSolPrice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}

	price, err := s.store.GetLatestSolPrice(r.Context(), r.URL.Query().Get("symbol"))
	if err != nil {
		if errors.Is(err, indexer.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "no price observed yet")
			return
		}
		s.logger.Error("get sol price failed", "err", err)
		s.respondError(w, http.StatusInternalServerError, "failed to load sol price")
		return
	}
	s.respondJSON(w, http.StatusOK, price)
}

func (s *Service) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}
	upgrader := websocketUpgrader
	upgrader.CheckOrigin = func(req *http.Request) bool {
		origin := strings.TrimSpace(req.Header.Get("Origin"))
		return s.isOriginAllowed(origin)
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	subs := newSubscriptionSet()
	readErrCh := make(chan error, 1)
	go s.websocketReadLoop(ctx, conn, subs, readErrCh)

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-readErrCh:
			if err != nil {
				s.logger.Debug("websocket read loop ended", "err", err)
			}
			return
		case <-ticker.C:
			channels := subs.List()
			for _, channel := range channels {
				payload, err := s.getWebsocketPayload(ctx, channel)
				if err != nil {
					_ = writeWebsocketJSON(conn, websocketEnvelope{Type: "error", Channel: channel, Error: "failed to fetch channel data", TS: time.Now().Unix()})
					continue
				}
				if payload == nil {
					continue
				}
				if err := writeWebsocketJSON(conn, websocketEnvelope{Type: "event", Channel: channel, Data: payload, TS: time.Now().Unix()}); err != nil {
					return
				}
			}
		}
	}
}

func (s *Service) websocketReadLoop(ctx context.Context, conn *websocket.Conn, subs *subscriptionSet, readErrCh chan<- error) {
	conn.SetReadLimit(1024 * 1024)
	if err := conn.SetReadDeadline(time.Now().Add(90 * time.Second)); err == nil {
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		})
	}
	for {
		select {
		case <-ctx.Done():
			readErrCh <- nil
			return
		default:
		}
		var message websocketSubscribeRequest
		if err := conn.ReadJSON(&message); err != nil {
			readErrCh <- err
			return
		}
		message.Type = strings.ToLower(strings.TrimSpace(message.Type))
		message.Channel = strings.TrimSpace(message.Channel)
		if message.Channel == "" {
			continue
		}
		switch message.Type {
		case "subscribe":
			subs.Add(message.Channel)
		case "unsubscribe":
			subs.Remove(message.Channel)
		}
	}
}

func (s *Service) getWebsocketPayload(ctx context.Context, channel string) (any, error) {
	switch {
	case strings.HasPrefix(channel, "launch."):
		address := strings.TrimSpace(strings.TrimPrefix(channel, "launch."))
		launch, err := s.store.GetLaunch(ctx, address)
		if err != nil {
			if errors.Is(err, indexer.ErrNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return launch, nil
	case channel == "price.sol":
		price, err := s.store.GetLatestSolPrice(ctx, "")
		if err != nil {
			if errors.Is(err, indexer.ErrNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return price, nil
	case channel == "chart.sol":
		candles, err := s.store.GetSolCandles(ctx, "", 60, 120)
		if err != nil {
			return nil, err
		}
		return map[string]any{"symbol": "SOLUSD", "candles": candles}, nil
	default:
		return nil, nil
	}
}

func decodeJSONBody(r *http.Request, destination any) error {
	if r.Body == nil {
		return fmt.Errorf("request body is required")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(destination); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	var extra json.RawMessage
	if err := decoder.Decode(&extra); err != io.EOF {
		return fmt.Errorf("invalid request body: multiple JSON values")
	}
	return nil
}

func parseChartTimeframe(raw string) (string, int64, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "1m", "1min", "1":
		return "1m", 60, nil
	case "5m", "5min", "5":
		return "5m", 5 * 60, nil
	case "15m", "15min", "15":
		return "15m", 15 * 60, nil
	case "1h", "60m", "60min":
		return "1h", 60 * 60, nil
	case "4h", "240m", "240min":
		return "4h", 4 * 60 * 60, nil
	case "1d", "24h":
		return "1d", 24 * 60 * 60, nil
	default:
		return "", 0, fmt.Errorf("timeframe must be one of 1m, 5m, 15m, 1h, 4h, 1d")
	}
}

func writeWebsocketJSON(conn *websocket.Conn, payload websocketEnvelope) error {
	if err := conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		return err
	}
	return conn.WriteJSON(payload)
}

type subscriptionSet struct {
	mu    sync.RWMutex
	items map[string]struct{}
}

func newSubscriptionSet() *subscriptionSet {
	return &subscriptionSet{items: map[string]struct{}{}}
}

func (s *subscriptionSet) Add(channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[channel] = struct{}{}
}

func (s *subscriptionSet) Remove(channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, channel)
}

func (s *subscriptionSet) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.items))
	for channel := range s.items {
		out = append(out, channel)
	}
	return out
}
