package internal

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"paybox/config"
	"paybox/entity"
	"paybox/services"
	"strings"

	"github.com/julienschmidt/httprouter"
	"github.com/mailru/easyjson"
)

const (
	payOrder              = "/pay/:order_id"
	paymentNotify         = "/notify"
	subscriptionCancelled = "/subscriptions/:subscription_id/cancelled"
	renewSubscription     = "/renewals/:order_id"
	releasePreOrder       = "/preorders/:order_id/release"
)

type Server struct {
	conf       *config.Config
	httpServer *http.Server
	payments   services.Payments
	logger     services.LogHandler
}

func NewServer(conf *config.Config) *Server {

	server := Server{
		conf: conf,
	}

	// register itself as a router for httpServer handler
	router := httprouter.New()
	server.Register(router)
	server.httpServer = &http.Server{
		Handler: router,
	}

	return &server
}

func (s *Server) Register(router *httprouter.Router) {
	router.GET(payOrder, s.payOrder)
	router.GET(paymentNotify, s.paymentNotify)
	router.POST(paymentNotify, s.paymentNotify)
	router.POST(subscriptionCancelled, s.subscriptionCancelled)
	router.POST(renewSubscription, s.renewSubscription)
	router.POST(releasePreOrder, s.releasePreOrder)
}

func (s *Server) SetPaymentsService(payments services.Payments) {
	s.payments = payments
}

func (s *Server) SetLogger(logger services.LogHandler) {
	s.logger = logger
}

func (s *Server) Start() error {
	if s.conf == nil {
		return fmt.Errorf("configuration not loaded")
	}

	serverAddress := fmt.Sprintf("%s:%s", s.conf.Listen.BindIP, s.conf.Listen.Port)
	listener, err := net.Listen("tcp", serverAddress)
	if err != nil {
		return err
	}

	if s.conf.Listen.TLS {
		s.logger.Info(fmt.Sprintf("starting https TLS on %s", serverAddress))
		err = s.httpServer.ServeTLS(listener, s.conf.Listen.CertFile, s.conf.Listen.KeyFile)
	} else {
		s.logger.Info(fmt.Sprintf("starting http on %s", serverAddress))
		err = s.httpServer.Serve(listener)
	}

	return err
}

func (s *Server) payOrder(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := RequestContext(r)
	reqID := GetRequestID(ctx)

	orderId := ps.ByName("order_id")
	if orderId == "" {
		s.logger.Warn(fmt.Sprintf("[%s] empty order id", reqID))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	paymentUrl, err := s.payments.PayOrder(ctx, orderId, clientIP(r))
	if err != nil {
		s.logger.Error(fmt.Sprintf("[%s] pay order %s", reqID, orderId), err)
		status := errorStatus(err)
		if errors.Is(err, ErrUnsupportedTransaction) {
			http.Error(w, ErrUnsupportedTransaction.Error(), status)
			return
		}
		w.WriteHeader(status)
		return
	}

	http.Redirect(w, r, paymentUrl, http.StatusFound)
}

func (s *Server) paymentNotify(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := RequestContext(r)
	reqID := GetRequestID(ctx)

	// always 200 with an empty body
	defer w.WriteHeader(http.StatusOK)

	if err := r.ParseForm(); err != nil {
		s.logger.Error(fmt.Sprintf("[%s] payment notify: parse form", reqID), err)
		return
	}

	if err := s.payments.Notify(ctx, r.Form); err != nil {
		s.logger.Error(fmt.Sprintf("[%s] payment notify: process", reqID), err)
	}
}

func (s *Server) subscriptionCancelled(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := RequestContext(r)
	reqID := GetRequestID(ctx)

	subscriptionId := ps.ByName("subscription_id")
	if err := s.payments.SubscriptionCancelled(ctx, subscriptionId); err != nil {
		s.logger.Error(fmt.Sprintf("[%s] subscription %s cancelled", reqID, subscriptionId), err)
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (s *Server) renewSubscription(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := RequestContext(r)
	reqID := GetRequestID(ctx)

	orderId := ps.ByName("order_id")
	var request entity.RenewalRequest
	if err := easyjson.UnmarshalFromReader(r.Body, &request); err != nil {
		s.logger.Error(fmt.Sprintf("[%s] renew subscription: decode request body", reqID), err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.logger.Info(fmt.Sprintf("[%s] processing request: renewal order %s, amount %s", reqID, orderId, request.Amount))
	if err := s.payments.RenewSubscription(ctx, orderId, request.Amount); err != nil {
		s.logger.Error(fmt.Sprintf("[%s] renewal order %s", reqID, orderId), err)
		w.WriteHeader(errorStatus(err))
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (s *Server) releasePreOrder(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := RequestContext(r)
	reqID := GetRequestID(ctx)

	orderId := ps.ByName("order_id")
	s.logger.Info(fmt.Sprintf("[%s] processing request: release pre-order %s", reqID, orderId))
	if err := s.payments.ReleasePreOrder(ctx, orderId); err != nil {
		s.logger.Error(fmt.Sprintf("[%s] release pre-order %s", reqID, orderId), err)
		w.WriteHeader(errorStatus(err))
		return
	}

	w.WriteHeader(http.StatusOK)
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidOrder):
		return http.StatusNotFound
	case errors.Is(err, ErrDegenerateOrder), errors.Is(err, ErrUnsupportedTransaction):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrUpstreamUnavailable), errors.Is(err, ErrUpstreamMalformedResponse):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// clientIP prefers the first X-Forwarded-For address set by a proxy.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
