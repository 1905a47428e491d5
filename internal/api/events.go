package api

import (
	"context"  // Coordinator calls
	"net/http" // HTTP status codes
	"strings"  // Status list parsing
	"time"     // Scheduled start

	"spray_ledger/internal/coordinator" // Transaction coordinator
	"spray_ledger/internal/domain"      // Importing domain models
	"spray_ledger/internal/escrow"      // Event parameters
	"spray_ledger/internal/utils"       // Utility functions

	"github.com/gin-gonic/gin"      // Gin web framework
	"github.com/redis/go-redis/v9"  // Redis client
	"github.com/shopspring/decimal" // Exact amounts
)

const eventCacheTTL = 15 * time.Second // Escrow totals move quickly

// CreateEventRequest describes a new event
type CreateEventRequest struct {
	Name        string          `json:"name" binding:"required"` // Display name
	Description string          `json:"description"`             // Optional description
	Class       string          `json:"class"`                   // FREE or PAID
	Type        string          `json:"type"`                    // PUBLIC or PRIVATE
	AccessFee   decimal.Decimal `json:"access_fee"`              // Required for PAID events
	Passcode    string          `json:"passcode"`                // Optional join passcode
	StartDate   *time.Time      `json:"start_date"`              // Optional schedule
}

// CreateEventHandler creates an event owned by the caller
func CreateEventHandler(co *coordinator.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		var req CreateEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		class, err := domain.ParseEventClass(req.Class)
		if err != nil {
			respondError(c, err)
			return
		}
		visibility, err := domain.ParseEventVisibility(req.Type)
		if err != nil {
			respondError(c, err)
			return
		}
		ev, err := co.CreateEvent(c.Request.Context(), user, escrow.CreateParams{
			Name:        req.Name,
			Description: req.Description,
			Class:       class,
			Visibility:  visibility,
			AccessFee:   req.AccessFee,
			Passcode:    req.Passcode,
			StartDate:   req.StartDate,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"event": ev})
	}
}

// ListPublicEventsHandler lists open PUBLIC events, optionally filtered by name
func ListPublicEventsHandler(co *coordinator.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := parsePage(c)
		events, err := co.PublicEvents(c.Request.Context(), c.Query("name"), p.Size, p.offset())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"events":    nonNil(events), // Open public events
			"page":      p.Number,       // Current page
			"page_size": p.Size,         // Page size
		})
	}
}

// MyEventsHandler lists the caller's events; status takes a comma separated list
func MyEventsHandler(co *coordinator.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		statuses, err := parseEventStatuses(c.Query("status"))
		if err != nil {
			respondError(c, err)
			return
		}
		events, err := co.OwnedEvents(c.Request.Context(), user.ID, statuses...)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"events": nonNil(events)})
	}
}

// GetEventHandler returns one event with its participants
func GetEventHandler(co *coordinator.Coordinator, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		code := strings.ToUpper(c.Param("code")) // Codes are upper case
		cacheKey := utils.EventKey(code)
		var ev domain.Event
		if found, err := utils.GetCache(ctx, rdb, cacheKey, &ev); err == nil && found {
			c.JSON(http.StatusOK, gin.H{"event": ev, "cached": true})
			return
		}
		ev, err := co.Event(ctx, code)
		if err != nil {
			respondError(c, err)
			return
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, ev, eventCacheTTL)
		c.JSON(http.StatusOK, gin.H{"event": ev, "cached": false})
	}
}

// UpdateEventRequest edits an open event; omitted fields stay unchanged
type UpdateEventRequest struct {
	Name        *string    `json:"name"`        // Display name
	Description *string    `json:"description"` // Description
	Type        *string    `json:"type"`        // PUBLIC or PRIVATE
	StartDate   *time.Time `json:"start_date"`  // New schedule, PENDING events only
	Status      *string    `json:"status"`      // ACTIVE or CANCELLED
}

// UpdateEventHandler lets the owner edit an open event
func UpdateEventHandler(co *coordinator.Coordinator, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		var req UpdateEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		p := escrow.UpdateParams{Name: req.Name, Description: req.Description, StartDate: req.StartDate}
		if req.Type != nil {
			visibility, err := domain.ParseEventVisibility(*req.Type)
			if err != nil {
				respondError(c, err)
				return
			}
			p.Visibility = &visibility
		}
		if req.Status != nil {
			statuses, err := parseEventStatuses(*req.Status)
			if err == nil && len(statuses) != 1 {
				err = domain.Errorf(domain.ErrValidation, "invalid event status %q", *req.Status)
			}
			if err != nil {
				respondError(c, err)
				return
			}
			p.Status = &statuses[0]
		}
		ctx := c.Request.Context()
		code := strings.ToUpper(c.Param("code"))
		ev, err := co.UpdateEvent(ctx, user.ID, code, p)
		if err != nil {
			respondError(c, err)
			return
		}
		forgetEvent(ctx, rdb, code)
		c.JSON(http.StatusOK, gin.H{"message": "Event updated", "event": ev})
	}
}

// eventStep is a lifecycle call that only needs the actor and the code
type eventStep func(ctx context.Context, userID, code string) (domain.Event, error)

// EventStepHandler wraps start, cancel and leave
func EventStepHandler(step eventStep, rdb *redis.Client, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()
		code := strings.ToUpper(c.Param("code"))
		ev, err := step(ctx, user.ID, code)
		if err != nil {
			respondError(c, err)
			return
		}
		forgetEvent(ctx, rdb, code)
		c.JSON(http.StatusOK, gin.H{"message": message, "event": ev})
	}
}

// JoinEventRequest carries the passcode of private events
type JoinEventRequest struct {
	Passcode string `json:"passcode"` // Required when the event has one
}

// JoinEventHandler adds the caller to an event, charging the access fee of PAID events
func JoinEventHandler(co *coordinator.Coordinator, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		var req JoinEventRequest
		if c.Request.ContentLength > 0 { // Body is optional
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}
		}
		ctx := c.Request.Context()
		code := strings.ToUpper(c.Param("code"))
		res, err := co.JoinEvent(ctx, user.ID, code, req.Passcode)
		if err != nil {
			respondError(c, err)
			return
		}
		forgetEvent(ctx, rdb, code)
		if res.Transaction != nil {
			forgetTransaction(ctx, co, rdb, user.ID, *res.Transaction) // Fee moved between wallets
		}
		c.JSON(http.StatusOK, gin.H{
			"event":       res.Event,       // Event after joining
			"joined":      res.Joined,      // False when already active
			"transaction": res.Transaction, // Access fee entry, if charged
		})
	}
}

// SprayRequest tips an amount into an event
type SprayRequest struct {
	Amount decimal.Decimal `json:"amount"` // Tip amount
}

// SprayHandler moves money from the caller's wallet into the event escrow
func SprayHandler(co *coordinator.Coordinator, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		var req SprayRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid amount"})
			return
		}
		ctx := c.Request.Context()
		code := strings.ToUpper(c.Param("code"))
		res, err := co.Spray(ctx, user.ID, code, req.Amount)
		if err != nil {
			respondError(c, err)
			return
		}
		forgetEvent(ctx, rdb, code)
		forgetTransaction(ctx, co, rdb, user.ID, res.Transaction)
		c.JSON(http.StatusOK, gin.H{"event": res.Event, "transaction": res.Transaction})
	}
}

// EndEventHandler settles the escrow to the owner and completes the event
func EndEventHandler(co *coordinator.Coordinator, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()
		code := strings.ToUpper(c.Param("code"))
		res, err := co.SettleEvent(ctx, user.ID, code)
		if err != nil {
			respondError(c, err)
			return
		}
		forgetEvent(ctx, rdb, code)
		if res.Transaction != nil {
			forgetTransaction(ctx, co, rdb, user.ID, *res.Transaction) // Owner credited
		}
		c.JSON(http.StatusOK, gin.H{
			"event":       res.Event,       // Completed event
			"gross":       res.Gross,       // Escrow before settlement
			"charge":      res.Charge,      // Platform commission
			"net":         res.Net,         // Owner payout
			"transaction": res.Transaction, // Payout entry, null when empty
		})
	}
}

func parseEventStatuses(s string) ([]domain.EventStatus, error) {
	var out []domain.EventStatus
	for _, part := range strings.Split(s, ",") {
		st := domain.EventStatus(strings.ToUpper(strings.TrimSpace(part)))
		switch st {
		case "":
			continue
		case domain.EventPending, domain.EventActive, domain.EventCompleted, domain.EventCancelled:
			out = append(out, st)
		default:
			return nil, domain.Errorf(domain.ErrValidation, "invalid event status %q", part)
		}
	}
	return out, nil
}

func nonNil(events []domain.Event) []domain.Event {
	if events == nil {
		return []domain.Event{}
	}
	return events
}
