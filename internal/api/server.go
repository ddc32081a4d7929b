package api

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"swapRouter/internal/registry"
	"swapRouter/internal/router"
)

// Server exposes the read-only quote endpoints. Quotes simulate against a
// detached clone of the cache, so every request is side-effect free.
type Server struct {
	engine   *router.Engine
	registry *registry.Registry
	logger   *zap.Logger
}

// NewServer builds a Server with its dependencies.
func NewServer(engine *router.Engine, reg *registry.Registry, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		engine:   engine,
		registry: reg,
		logger:   logger,
	}
}

// Routes returns the configured gin engine.
func (s *Server) Routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.health)
	r.GET("/pools", s.pools)
	r.GET("/buy", s.buy)
	r.GET("/sell", s.sell)
	r.GET("/swap", s.swap)
	r.GET("/buyExact", s.buyExact)
	r.GET("/sellExact", s.sellExact)

	return r
}

// Run serves HTTP until the context ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.Routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type buyResponse struct {
	LPs         []uint64 `json:"lps"`
	Price       string   `json:"price"`
	PriceImpact int64    `json:"priceImpact"`
	ExampleNFTs []string `json:"exampleNFTs"`
}

type sellResponse struct {
	LPs         []uint64 `json:"lps"`
	Price       string   `json:"price"`
	PriceImpact int64    `json:"priceImpact"`
}

type swapResponse struct {
	SellLPs         []uint64 `json:"sellLps"`
	SellPrice       string   `json:"sellPrice"`
	SellPriceImpact int64    `json:"sellPriceImpact"`
	BuyLPs          []uint64 `json:"buyLps"`
	BuyPrice        string   `json:"buyPrice"`
	BuyPriceImpact  int64    `json:"buyPriceImpact"`
	ExampleBuyNFTs  []string `json:"exampleBuyNFTs"`
}

type exactResponse struct {
	LPs   []uint64 `json:"lps"`
	Price string   `json:"price"`
}

type poolInfo struct {
	Address string `json:"address"`
	LpCount int    `json:"lpCount"`
	FeeBps  uint64 `json:"feeBps"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "pools": s.registry.Len()})
}

func (s *Server) pools(c *gin.Context) {
	addresses := s.registry.Addresses()
	out := make([]poolInfo, 0, len(addresses))
	for _, addr := range addresses {
		pool, ok := s.registry.Get(addr)
		if !ok {
			continue
		}
		out = append(out, poolInfo{
			Address: addr.Hex(),
			LpCount: pool.LpCount(),
			FeeBps:  pool.FeeBps(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"pools": out})
}

func (s *Server) buy(c *gin.Context) {
	pool, ok := s.parsePool(c, "pool")
	if !ok {
		return
	}
	amount, ok := s.parseAmount(c, "amount")
	if !ok {
		return
	}

	quote, err := s.engine.QuoteBuy(c.Request.Context(), pool, amount)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buyResponse{
		LPs:         quote.LPs,
		Price:       quote.Price.String(),
		PriceImpact: quote.PriceImpact,
		ExampleNFTs: bigStrings(quote.ExampleNFTs),
	})
}

func (s *Server) sell(c *gin.Context) {
	pool, ok := s.parsePool(c, "pool")
	if !ok {
		return
	}
	amount, ok := s.parseAmount(c, "amount")
	if !ok {
		return
	}

	quote, err := s.engine.QuoteSell(c.Request.Context(), pool, amount)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sellResponse{
		LPs:         quote.LPs,
		Price:       quote.Price.String(),
		PriceImpact: quote.PriceImpact,
	})
}

func (s *Server) swap(c *gin.Context) {
	sellPool, ok := s.parsePool(c, "sellPool")
	if !ok {
		return
	}
	buyPool, ok := s.parsePool(c, "buyPool")
	if !ok {
		return
	}
	sellAmount, ok := s.parseAmount(c, "sellAmount")
	if !ok {
		return
	}
	buyAmount, ok := s.parseAmount(c, "buyAmount")
	if !ok {
		return
	}

	quote, err := s.engine.QuoteSwap(c.Request.Context(), sellPool, buyPool, sellAmount, buyAmount)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, swapResponse{
		SellLPs:         quote.SellLPs,
		SellPrice:       quote.SellPrice.String(),
		SellPriceImpact: quote.SellPriceImpact,
		BuyLPs:          quote.BuyLPs,
		BuyPrice:        quote.BuyPrice.String(),
		BuyPriceImpact:  quote.BuyPriceImpact,
		ExampleBuyNFTs:  bigStrings(quote.ExampleBuyNFTs),
	})
}

func (s *Server) buyExact(c *gin.Context) {
	pool, ok := s.parsePool(c, "pool")
	if !ok {
		return
	}
	nftIDs, ok := s.parseNFTs(c, "nfts")
	if !ok {
		return
	}

	quote, err := s.engine.QuoteBuyExact(c.Request.Context(), pool, nftIDs)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, exactResponse{LPs: quote.LPs, Price: quote.Price.String()})
}

func (s *Server) sellExact(c *gin.Context) {
	pool, ok := s.parsePool(c, "pool")
	if !ok {
		return
	}
	nftIDs, ok := s.parseNFTs(c, "nfts")
	if !ok {
		return
	}

	quote, err := s.engine.QuoteSellExact(c.Request.Context(), pool, nftIDs)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, exactResponse{LPs: quote.LPs, Price: quote.Price.String()})
}

func (s *Server) parsePool(c *gin.Context, param string) (common.Address, bool) {
	raw := c.Query(param)
	if !common.IsHexAddress(raw) {
		c.JSON(http.StatusBadRequest, gin.H{"error": param + " must be a hex address"})
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func (s *Server) parseAmount(c *gin.Context, param string) (uint64, bool) {
	raw := c.Query(param)
	amount, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": param + " must be a non-negative integer"})
		return 0, false
	}
	return amount, true
}

func (s *Server) parseNFTs(c *gin.Context, param string) ([]*big.Int, bool) {
	raw := strings.TrimSpace(c.Query(param))
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": param + " must be a comma-separated id list"})
		return nil, false
	}
	parts := strings.Split(raw, ",")
	out := make([]*big.Int, 0, len(parts))
	for _, part := range parts {
		id, ok := new(big.Int).SetString(strings.TrimSpace(part), 10)
		if !ok || id.Sign() < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": param + " contains an invalid id: " + part})
			return nil, false
		}
		out = append(out, id)
	}
	return out, true
}

func (s *Server) writeError(c *gin.Context, err error) {
	var validationErr *router.ValidationError
	if errors.As(err, &validationErr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Msg})
		return
	}
	s.logger.Error("quote failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "quote failed"})
}

func bigStrings(values []*big.Int) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, v.String())
	}
	return out
}
