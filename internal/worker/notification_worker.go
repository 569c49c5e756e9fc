package worker

import (
	"github.com/helpdesk-labs/helpdesk-service/internal/events"
	"github.com/helpdesk-labs/helpdesk-service/internal/service"
)

// StartNotificationWorker registers notification handlers and, when a relay
// is configured, starts it and subscribes it to every event type.
func StartNotificationWorker(dispatcher events.Dispatcher, notificationService *service.NotificationService, relay *EventRelay) {
	if notificationService != nil {
		notificationService.RegisterHandlers()
	}
	if relay != nil {
		relay.Register(dispatcher)
		relay.Start()
	}
}
