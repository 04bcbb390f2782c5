package domain

import (
	"math"
	"slices"
	"strings"
)

// OrderStatus enumerates the order lifecycle states.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusShipped:    {OrderStatusDelivered, OrderStatusRefunded},
	OrderStatusDelivered:  {OrderStatusRefunded},
}

// ParseOrderStatus normalises raw input into a known status.
func ParseOrderStatus(raw string) (OrderStatus, bool) {
	status := OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch status {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded:
		return status, true
	}
	return "", false
}

// CanTransitionTo reports whether the transition table permits moving to target.
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	return slices.Contains(orderTransitions[s], target)
}

// IsTerminal reports whether no further validated transitions exist.
func (s OrderStatus) IsTerminal() bool {
	return len(orderTransitions[s]) == 0
}

// NextOrderStatuses lists the validated successors of s.
func NextOrderStatuses(s OrderStatus) []OrderStatus {
	return slices.Clone(orderTransitions[s])
}

// ReturnStatus enumerates the return request lifecycle states.
type ReturnStatus string

const (
	ReturnStatusPending   ReturnStatus = "pending"
	ReturnStatusApproved  ReturnStatus = "approved"
	ReturnStatusRejected  ReturnStatus = "rejected"
	ReturnStatusCompleted ReturnStatus = "completed"
)

var returnTransitions = map[ReturnStatus][]ReturnStatus{
	ReturnStatusPending:  {ReturnStatusApproved, ReturnStatusRejected},
	ReturnStatusApproved: {ReturnStatusCompleted},
}

// ParseReturnStatus normalises raw input into a known return status.
func ParseReturnStatus(raw string) (ReturnStatus, bool) {
	status := ReturnStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch status {
	case ReturnStatusPending, ReturnStatusApproved, ReturnStatusRejected, ReturnStatusCompleted:
		return status, true
	}
	return "", false
}

// CanTransitionTo reports whether the return transition table permits moving to target.
func (s ReturnStatus) CanTransitionTo(target ReturnStatus) bool {
	return slices.Contains(returnTransitions[s], target)
}

// SummarizeRatings averages the given ratings, rounded to one decimal place.
// An empty input yields a zero summary.
func SummarizeRatings(ratings []int) RatingSummary {
	summary := RatingSummary{Distribution: map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0}}
	if len(ratings) == 0 {
		return summary
	}
	total := 0
	for _, rating := range ratings {
		total += rating
		if rating >= 1 && rating <= 5 {
			summary.Distribution[rating]++
		}
	}
	summary.Count = len(ratings)
	summary.Average = RoundRating(float64(total) / float64(len(ratings)))
	return summary
}

// RoundRating rounds to one decimal place.
func RoundRating(value float64) float64 {
	return math.Round(value*10) / 10
}
