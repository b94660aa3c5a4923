package gateway

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/obmirror/go-orderbook-mirror/domain"
)

// Server is the outward HTTP surface: the websocket push endpoint plus
// a small REST read path over the current books.
type Server struct {
	logger   *zap.Logger
	hub      *Hub
	books    *domain.OrderBookStorage
	depth    int
	upgrader websocket.Upgrader
}

func NewServer(logger *zap.Logger, hub *Hub, books *domain.OrderBookStorage, projectionDepth int) *Server {
	return &Server{
		logger: logger,
		hub:    hub,
		books:  books,
		depth:  projectionDepth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// subscribers are anonymous browser clients
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(ginzap.Ginzap(s.logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(s.logger, true))
	router.Use(cors.Default())

	router.GET("/ws", s.handleWS)
	router.GET("/healthz", s.handleHealth)

	api := router.Group("/api/v1")
	api.GET("/pairs", s.handlePairs)
	api.GET("/orderbook/:pair", s.handleOrderBook)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"message": "that route doesnt exist"})
	})

	return router
}

func (s *Server) Run(addr string) error {
	s.logger.Info("gateway listening", zap.String("addr", addr))
	return s.Router().Run(addr)
}

func (s *Server) handleWS(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	s.hub.Register(conn)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"order_books": s.books.OrderBookCount(),
		"subscribers": s.hub.SubscriberCount(),
	})
}

func (s *Server) handlePairs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"pairs": s.books.Pairs()})
}

func (s *Server) handleOrderBook(c *gin.Context) {
	pair, err := domain.NewPair(c.Param("pair"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	book, err := s.books.Get(pair)
	if err != nil {
		if errors.Is(err, domain.ErrOrderBookNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "pair is not tracked"})
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{"message": "error message"})
		return
	}

	c.JSON(http.StatusOK, book.TopOfBook(s.depth))
}
