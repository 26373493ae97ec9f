package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"bidspot/internal/services/auction"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 12 * time.Second
	pingPeriod = 3 * time.Second // must be < pongWait
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  512,
	WriteBufferSize: 512,
	CheckOrigin:     func(*http.Request) bool { return true }, // dev-only
}

// WsServer streams live auction events to spectators. The feed is read-only;
// bids go through the REST API.
type WsServer struct {
	hub        *Hub
	subMgr     *subscriptionManager
	auctionSvc auction.IAuctionService
}

func NewWsServer(h *Hub, rdc *redis.Client, auctionSvc auction.IAuctionService) *WsServer {
	return &WsServer{
		hub:        h,
		subMgr:     newSubscriptionManager(rdc, h),
		auctionSvc: auctionSvc,
	}
}

// Handle is the gin entry point: GET /ws?auction_id=<id>
func (s *WsServer) Handle(ginCtx *gin.Context) {
	auctionID := ginCtx.Query("auction_id")
	if auctionID == "" {
		ginCtx.JSON(http.StatusBadRequest, gin.H{"error": "auction_id is required"})
		return
	}

	rawConn, err := upgrader.Upgrade(ginCtx.Writer, ginCtx.Request, nil)
	if err != nil {
		zap.L().Warn("ws.upgrade", zap.Error(err))
		return
	}
	rawConn.SetReadLimit(512)

	conn := &clientConn{rawConn: rawConn}
	s.hub.Join(auctionID, conn)
	s.subMgr.Subscribe(auctionID) // may be a no-op (already subscribed)

	if err := s.pushInitialSnapshot(ginCtx, auctionID, conn); err != nil {
		zap.L().Warn("ws.snapshot", zap.String("auction_id", auctionID), zap.Error(err))
	}

	go s.reader(auctionID, conn)
	go s.pinger(conn)
}

func (s *WsServer) pushInitialSnapshot(ginCtx *gin.Context, id string, conn *clientConn) error {
	a, err := s.auctionSvc.GetAuction(ginCtx.Request.Context(), id)
	if err != nil {
		return err
	}
	return conn.writeJSON(gin.H{
		"event": "auctions/snapshot",
		"body":  a,
	})
}

// reader drains inbound frames so control messages are processed, and tears
// the client down when the connection drops.
func (s *WsServer) reader(auctionID string, conn *clientConn) {
	defer func() {
		s.hub.Leave(auctionID, conn)
		s.subMgr.Unsubscribe(auctionID)
	}()

	_ = conn.rawConn.SetReadDeadline(time.Now().Add(pongWait))
	conn.rawConn.SetPongHandler(func(string) error {
		return conn.rawConn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.rawConn.ReadMessage(); err != nil {
			return // client closed or errored
		}
	}
}

func (s *WsServer) pinger(conn *clientConn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for range ticker.C {
		if err := conn.ping(); err != nil {
			_ = conn.close()
			return
		}
	}
}
