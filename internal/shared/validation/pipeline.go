package validation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"meridian/internal/shared/htngerr"
	"meridian/internal/shared/otaxml"
)

// DefaultErrorCap bounds how many rule failures are collected before the
// remainder is suppressed.
const DefaultErrorCap = 50

// Pipeline runs the schema pass and the business-rule pass over an OTA body.
// Outbound callers halt on any error and never retry it; inbound callers
// answer a failed envelope with a SOAP fault.
type Pipeline struct {
	schema   SchemaValidator
	lookups  RepositoryLookups
	errorCap int
	logger   *slog.Logger
}

func NewPipeline(schema SchemaValidator, lookups RepositoryLookups, errorCap int, logger *slog.Logger) *Pipeline {
	if errorCap <= 0 {
		errorCap = DefaultErrorCap
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		schema:   schema,
		lookups:  lookups,
		errorCap: errorCap,
		logger:   logger.With("module", "validation"),
	}
}

// Validate runs both passes and returns the first schema error, a repository
// error, or every collected rule failure folded into one validation error.
func (p *Pipeline) Validate(ctx context.Context, kind otaxml.MessageKind, payload []byte) error {
	if err := p.schema.Validate(ctx, kind, payload); err != nil {
		p.logger.WarnContext(ctx, "schema validation failed",
			"event", "validation.schema_failed", "kind", string(kind), "error", err)
		return err
	}

	c := &collector{cap: p.errorCap}
	if err := p.businessRules(ctx, kind, payload, c); err != nil {
		return err
	}
	if err := c.err(); err != nil {
		p.logger.WarnContext(ctx, "business rules failed",
			"event", "validation.rules_failed", "kind", string(kind), "failures", len(c.failures))
		return err
	}
	return nil
}

func (p *Pipeline) businessRules(ctx context.Context, kind otaxml.MessageKind, payload []byte, c *collector) error {
	switch kind {
	case otaxml.KindInventory:
		msg, perr := otaxml.ParseInventory(payload)
		if perr != nil {
			return perr
		}
		if err := p.checkProperty(ctx, msg.HotelCode, c); err != nil {
			return err
		}
		for _, rec := range msg.Records {
			if err := p.checkRoomType(ctx, msg.HotelCode, rec.RoomTypeCode, c); err != nil {
				return err
			}
		}
	case otaxml.KindRates:
		msg, perr := otaxml.ParseRates(payload)
		if perr != nil {
			return perr
		}
		if err := p.checkProperty(ctx, msg.HotelCode, c); err != nil {
			return err
		}
		for _, plan := range msg.Plans {
			if err := p.checkRoomType(ctx, msg.HotelCode, plan.RoomTypeCode, c); err != nil {
				return err
			}
			// A create may introduce a new plan code; every other operation
			// refers to one the channel already knows.
			if msg.Operation == otaxml.RateCreate {
				continue
			}
			if err := p.checkRatePlan(ctx, msg.HotelCode, plan.RatePlanCode, c); err != nil {
				return err
			}
		}
	case otaxml.KindReservation:
		res, perr := otaxml.ParseReservation(payload)
		if perr != nil {
			return perr
		}
		if err := p.checkProperty(ctx, res.HotelCode, c); err != nil {
			return err
		}
		for _, stay := range res.RoomStays {
			if err := p.checkRoomType(ctx, res.HotelCode, stay.RoomTypeCode, c); err != nil {
				return err
			}
		}
	case otaxml.KindRestrictions:
		msg, perr := otaxml.ParseRestrictions(payload)
		if perr != nil {
			return perr
		}
		if err := p.checkProperty(ctx, msg.HotelCode, c); err != nil {
			return err
		}
		for _, rec := range msg.Records {
			if err := p.checkRoomType(ctx, msg.HotelCode, rec.RoomTypeCode, c); err != nil {
				return err
			}
			if err := p.checkRatePlan(ctx, msg.HotelCode, rec.RatePlanCode, c); err != nil {
				return err
			}
		}
	case otaxml.KindGroupBlock:
		block, perr := otaxml.ParseGroupBlock(payload)
		if perr != nil {
			return perr
		}
		if err := p.checkProperty(ctx, block.HotelCode, c); err != nil {
			return err
		}
		if err := p.checkRoomType(ctx, block.HotelCode, block.RoomTypeCode, c); err != nil {
			return err
		}
	default:
		return htngerr.New(htngerr.KindValidation, "VAL_UNKNOWN_KIND", "no business rules for kind "+string(kind))
	}
	return nil
}

func (p *Pipeline) checkProperty(ctx context.Context, hotelCode string, c *collector) error {
	exists, err := p.lookups.PropertyExists(ctx, hotelCode)
	if err != nil {
		return htngerr.FromRepository(err)
	}
	if !exists {
		c.add("hotel code %s is not a configured property", hotelCode)
	}
	return nil
}

func (p *Pipeline) checkRoomType(ctx context.Context, hotelCode, roomTypeCode string, c *collector) error {
	if roomTypeCode == "" {
		return nil
	}
	exists, err := p.lookups.RoomTypeExists(ctx, hotelCode, roomTypeCode)
	if err != nil {
		return htngerr.FromRepository(err)
	}
	if !exists {
		c.add("room type %s is not configured for property %s", roomTypeCode, hotelCode)
	}
	return nil
}

func (p *Pipeline) checkRatePlan(ctx context.Context, hotelCode, ratePlanCode string, c *collector) error {
	if ratePlanCode == "" {
		return nil
	}
	exists, err := p.lookups.RatePlanExists(ctx, hotelCode, ratePlanCode)
	if err != nil {
		return htngerr.FromRepository(err)
	}
	if !exists {
		c.add("rate plan %s is not configured for property %s", ratePlanCode, hotelCode)
	}
	return nil
}

// collector gathers rule failures up to a cap.
type collector struct {
	cap       int
	failures  []string
	truncated int
}

func (c *collector) add(format string, args ...any) {
	if len(c.failures) >= c.cap {
		c.truncated++
		return
	}
	c.failures = append(c.failures, fmt.Sprintf(format, args...))
}

func (c *collector) err() *htngerr.Error {
	if len(c.failures) == 0 {
		return nil
	}
	msg := strings.Join(c.failures, "\n")
	if c.truncated > 0 {
		msg += fmt.Sprintf("\n(%d additional failures suppressed)", c.truncated)
	}
	return htngerr.New(htngerr.KindValidation, "VAL_RULES", msg)
}
