package notify

import (
	"fmt"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/service"
	"go.uber.org/zap"
)

// OrderConfirmation asks the notification actor to email a capture receipt.
type OrderConfirmation struct {
	User  *models.User
	Order *models.Order
	Items []models.OrderItem
}

// NotificationActor serializes outbound email through its mailbox so
// slow SMTP never blocks webhook handling.
type NotificationActor struct {
	sender *EmailSender
	logger *zap.Logger
}

func (a *NotificationActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *OrderConfirmation:
		if err := a.sender.SendOrderConfirmation(msg.User, msg.Order, msg.Items); err != nil {
			// Best effort; the order is already finalized.
			a.logger.Warn("Failed to send order confirmation",
				zap.String("order_id", msg.Order.ID),
				zap.String("email", msg.User.Email),
				zap.Error(err))
			return
		}
		a.logger.Info("Order confirmation sent",
			zap.String("order_id", msg.Order.ID),
			zap.String("email", msg.User.Email))

	case *actor.Started:
		a.logger.Info("Notification actor started")

	case *actor.Stopping:
		a.logger.Info("Notification actor stopping")
	}
}

// Service is the Notifier used by the reconciler, backed by the actor.
type Service struct {
	system *actor.ActorSystem
	pid    *actor.PID
	logger *zap.Logger
}

func NewService(sender *EmailSender, logger *zap.Logger) (*Service, error) {
	system := actor.NewActorSystem()

	props := actor.PropsFromProducer(func() actor.Actor {
		return &NotificationActor{
			sender: sender,
			logger: logger.Named("notification-actor"),
		}
	})
	pid, err := system.Root.SpawnNamed(props, "notification-actor")
	if err != nil {
		return nil, fmt.Errorf("failed to spawn notification actor: %w", err)
	}

	return &Service{system: system, pid: pid, logger: logger}, nil
}

func (s *Service) SendOrderConfirmation(user *models.User, order *models.Order, items []models.OrderItem) {
	s.system.Root.Send(s.pid, &OrderConfirmation{User: user, Order: order, Items: items})
}

func (s *Service) Stop() {
	s.system.Root.Stop(s.pid)
	s.system.Shutdown()
}

var _ service.Notifier = (*Service)(nil)
