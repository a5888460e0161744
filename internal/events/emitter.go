package events

import (
	"log/slog"
)

// Emitter wraps a Bus with typed emit helpers for settlement lifecycle
// events. All methods are fire-and-forget: a nil emitter or nil bus is
// a no-op, and nothing is ever returned to the caller.
type Emitter struct {
	bus    *Bus
	logger *slog.Logger
}

// NewEmitter creates a new emitter.
func NewEmitter(bus *Bus, logger *slog.Logger) *Emitter {
	return &Emitter{bus: bus, logger: logger}
}

func (e *Emitter) emit(eventType Type, data map[string]any) {
	if e == nil || e.bus == nil {
		return
	}
	e.bus.Publish(newEvent(eventType, data))
	if e.logger != nil {
		e.logger.Debug("event published", "type", eventType)
	}
}

// EmitOrderCreated emits an order.created event.
func (e *Emitter) EmitOrderCreated(orderID, clientID, total, method string) {
	e.emit(TypeOrderCreated, map[string]any{
		"orderId":  orderID,
		"clientId": clientID,
		"total":    total,
		"method":   method,
	})
}

// EmitOrderCompleted emits an order.completed event.
func (e *Emitter) EmitOrderCompleted(orderID, clientID string) {
	e.emit(TypeOrderCompleted, map[string]any{
		"orderId":  orderID,
		"clientId": clientID,
	})
}

// EmitSaleCreated emits a sale.created event.
func (e *Emitter) EmitSaleCreated(saleID, storeID, total, method string) {
	e.emit(TypeSaleCreated, map[string]any{
		"saleId":  saleID,
		"storeId": storeID,
		"total":   total,
		"method":  method,
	})
}

// EmitSaleClosed emits a sale.closed event.
func (e *Emitter) EmitSaleClosed(saleID, storeID, total string) {
	e.emit(TypeSaleClosed, map[string]any{
		"saleId":  saleID,
		"storeId": storeID,
		"total":   total,
	})
}

// EmitSaleReturned emits a sale.returned event.
func (e *Emitter) EmitSaleReturned(saleID, returnID, reason string) {
	e.emit(TypeSaleReturned, map[string]any{
		"saleId":   saleID,
		"returnId": returnID,
		"reason":   reason,
	})
}

// EmitPaymentCompleted emits a payment.completed event.
func (e *Emitter) EmitPaymentCompleted(paymentID, parentKind, parentID, amount, method string) {
	e.emit(TypePaymentCompleted, map[string]any{
		"paymentId":  paymentID,
		"parentKind": parentKind,
		"parentId":   parentID,
		"amount":     amount,
		"method":     method,
	})
}

// EmitPaymentFailed emits a payment.failed event.
func (e *Emitter) EmitPaymentFailed(paymentID, parentKind, parentID string) {
	e.emit(TypePaymentFailed, map[string]any{
		"paymentId":  paymentID,
		"parentKind": parentKind,
		"parentId":   parentID,
	})
}

// EmitEscrowHeld emits an escrow.held event.
func (e *Emitter) EmitEscrowHeld(orderID, clientID, amount string) {
	e.emit(TypeEscrowHeld, map[string]any{
		"freelanceOrderId": orderID,
		"clientId":         clientID,
		"amount":           amount,
	})
}

// EmitEscrowReleased emits an escrow.released event.
func (e *Emitter) EmitEscrowReleased(orderID, businessID, credited string) {
	e.emit(TypeEscrowReleased, map[string]any{
		"freelanceOrderId": orderID,
		"businessId":       businessID,
		"credited":         credited,
	})
}

// EmitEscrowRefunded emits an escrow.refunded event.
func (e *Emitter) EmitEscrowRefunded(orderID, clientID, amount string) {
	e.emit(TypeEscrowRefunded, map[string]any{
		"freelanceOrderId": orderID,
		"clientId":         clientID,
		"amount":           amount,
	})
}

// EmitLoyaltyAccrued emits a loyalty.accrued event.
func (e *Emitter) EmitLoyaltyAccrued(clientID, programID string, points int64) {
	e.emit(TypeLoyaltyAccrued, map[string]any{
		"clientId":  clientID,
		"programId": programID,
		"points":    points,
	})
}
