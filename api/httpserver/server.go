package httpserver

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"vela/domain/ledger"
	"vela/engine"
	"vela/exchange"
	"vela/storage/tradestore"
)

// Server exposes the gateway over HTTP. All price, quantity and amount
// fields cross this boundary as decimal strings; the registry converts them
// to and from the integer units the core works in.
type Server struct {
	app    *fiber.App
	gw     *exchange.Gateway
	reg    *exchange.Registry
	trades *tradestore.Store
}

func New(gw *exchange.Gateway, reg *exchange.Registry, trades *tradestore.Store) *Server {
	s := &Server{
		app: fiber.New(fiber.Config{
			AppName:      "vela",
			ErrorHandler: errorHandler,
		}),
		gw:     gw,
		reg:    reg,
		trades: trades,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return ok(c, nil)
	})

	s.app.Post("/orders", s.placeOrder)
	s.app.Delete("/orders/:pair/:id", s.cancelOrder)
	s.app.Get("/book/:pair", s.bookSnapshot)
	s.app.Get("/trades/:pair", s.tradeHistory)
	s.app.Get("/balances/:user", s.userBalances)

	admin := s.app.Group("/admin")
	admin.Post("/pairs", s.addPair)
	admin.Delete("/pairs/:pair", s.removePair)
	admin.Post("/pairs/:pair/suspend", s.suspendPair)
	admin.Post("/pairs/:pair/resume", s.resumePair)
}

// Listen blocks serving requests until Shutdown.
func (s *Server) Listen(addr string) error {
	log.WithField("addr", addr).Info("http server listening")
	return s.app.Listen(addr)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func ok(c *fiber.Ctx, data any) error {
	return c.JSON(fiber.Map{"success": true, "data": data})
}

func fail(c *fiber.Ctx, status int, err error) error {
	return c.Status(status).JSON(fiber.Map{"success": false, "error": err.Error()})
}

// mapError turns domain errors into HTTP statuses. Anything unclassified is
// a 500 and gets logged by the caller.
func mapError(c *fiber.Ctx, err error) error {
	var verr *engine.ValidationError
	switch {
	case errors.As(err, &verr),
		errors.Is(err, exchange.ErrOffGrid),
		errors.Is(err, exchange.ErrNotPositive),
		errors.Is(err, ledger.ErrInvalidAmount):
		return fail(c, fiber.StatusBadRequest, err)
	case errors.Is(err, exchange.ErrUnknownPair),
		errors.Is(err, engine.ErrOrderNotFound):
		return fail(c, fiber.StatusNotFound, err)
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return fail(c, fiber.StatusUnprocessableEntity, err)
	case errors.Is(err, exchange.ErrPairExists),
		errors.Is(err, exchange.ErrPairNotEmpty):
		return fail(c, fiber.StatusConflict, err)
	case errors.Is(err, engine.ErrHalted):
		return fail(c, fiber.StatusServiceUnavailable, err)
	default:
		log.WithError(err).Error("request failed")
		return fail(c, fiber.StatusInternalServerError, err)
	}
}

func errorHandler(c *fiber.Ctx, err error) error {
	var ferr *fiber.Error
	if errors.As(err, &ferr) {
		return fail(c, ferr.Code, ferr)
	}
	return fail(c, fiber.StatusInternalServerError, err)
}
