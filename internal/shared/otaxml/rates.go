package otaxml

import (
	"encoding/xml"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"time"

	"meridian/internal/shared/htngerr"
)

// RateOperation selects the builder mode for a rate payload.
type RateOperation string

const (
	RateCreate          RateOperation = "create"
	RateUpdate          RateOperation = "update"
	RateInactivate      RateOperation = "inactivate"
	RateRemoveRoomTypes RateOperation = "remove_room_types"
)

// SyncScope distinguishes delta emission from a full resend. It is dispatch
// metadata and is not serialized into the payload.
type SyncScope string

const (
	ScopeDelta    SyncScope = "delta"
	ScopeFullSync SyncScope = "full_sync"
)

var (
	ratePlanCodePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,20}$`)
	rateAmountPattern   = regexp.MustCompile(`^\d{1,5}\.\d{2}$`)
)

const (
	maxRatePlansPerEnvelope = 50
	maxRateRecordsPerPlan   = 365
	maxRateAmount           = 99999.99
)

// notifType is the wire value of each rate operation.
var rateNotifTypes = map[RateOperation]string{
	RateCreate:          "New",
	RateUpdate:          "Overlay",
	RateInactivate:      "Inactive",
	RateRemoveRoomTypes: "RemoveRoomTypes",
}

var rateOperations = func() map[string]RateOperation {
	m := make(map[string]RateOperation, len(rateNotifTypes))
	for op, wire := range rateNotifTypes {
		m[wire] = op
	}
	return m
}()

// RateRecord is one (date range, amounts-by-guest-count) tuple. Amounts are
// decimal strings with exactly two places; third and fourth guest amounts are
// optional.
type RateRecord struct {
	Start        time.Time
	End          time.Time
	FirstGuest   string
	SecondGuest  string
	ThirdGuest   string
	FourthGuest  string
}

// RatePlanBlock groups the records of one rate plan for one room type.
type RatePlanBlock struct {
	RatePlanCode string
	RoomTypeCode string
	Records      []RateRecord
}

// RateMessage is the DTO for one OTA_HotelRateNotifRQ payload.
type RateMessage struct {
	HotelCode  string
	Operation  RateOperation
	Scope      SyncScope
	Plans      []RatePlanBlock
	Extensions []RawExtension
}

func validateRateAmount(position, value string, required bool) *htngerr.Error {
	if value == "" {
		if required {
			return htngerr.Validation(position + " guest amount is required")
		}
		return nil
	}
	if !rateAmountPattern.MatchString(value) {
		return htngerr.Validation(fmt.Sprintf("%s guest amount %q must have exactly two decimal places", position, value))
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed <= 0 || parsed > maxRateAmount {
		return htngerr.Validation(fmt.Sprintf("%s guest amount %q out of range (0.00, %.2f]", position, value, maxRateAmount))
	}
	return nil
}

func (m RateMessage) validate(now time.Time) *htngerr.Error {
	if _, ok := rateNotifTypes[m.Operation]; !ok {
		return htngerr.Validation(fmt.Sprintf("unknown rate operation %q", m.Operation))
	}
	if len(m.Plans) == 0 {
		return htngerr.Validation("rate message requires at least one rate plan")
	}
	if len(m.Plans) > maxRatePlansPerEnvelope {
		return htngerr.Validation(fmt.Sprintf("rate message carries %d plans, limit is %d", len(m.Plans), maxRatePlansPerEnvelope))
	}
	for _, plan := range m.Plans {
		if !ratePlanCodePattern.MatchString(plan.RatePlanCode) {
			return htngerr.Validation(fmt.Sprintf("rate plan code %q is invalid", plan.RatePlanCode))
		}
		if len(plan.Records) > maxRateRecordsPerPlan {
			return htngerr.Validation(fmt.Sprintf("rate plan %s carries %d records, limit is %d", plan.RatePlanCode, len(plan.Records), maxRateRecordsPerPlan))
		}
		if m.Operation == RateInactivate || m.Operation == RateRemoveRoomTypes {
			continue
		}
		if len(plan.Records) == 0 {
			return htngerr.Validation(fmt.Sprintf("rate plan %s has no records", plan.RatePlanCode))
		}
		for _, rec := range plan.Records {
			if err := validateDateRange(rec.Start, rec.End, now); err != nil {
				return err
			}
			if err := validateRateAmount("first", rec.FirstGuest, true); err != nil {
				return err
			}
			if err := validateRateAmount("second", rec.SecondGuest, true); err != nil {
				return err
			}
			if err := validateRateAmount("third", rec.ThirdGuest, false); err != nil {
				return err
			}
			if err := validateRateAmount("fourth", rec.FourthGuest, false); err != nil {
				return err
			}
		}
	}
	return nil
}

type rateNotifRQ struct {
	XMLName   xml.Name     `xml:"OTA_HotelRateNotifRQ"`
	Xmlns     string       `xml:"xmlns,attr"`
	EchoToken string       `xml:"EchoToken,attr"`
	TimeStamp string       `xml:"TimeStamp,attr"`
	Version   string       `xml:"Version,attr"`
	NotifType string       `xml:"RatePlanNotifType,attr"`
	Messages  rateMessages `xml:"RateAmountMessages"`
}

type rateMessages struct {
	HotelCode string            `xml:"HotelCode,attr"`
	Items     []rateAmountBlock `xml:"RateAmountMessage"`
}

type rateAmountBlock struct {
	Control rateControl  `xml:"StatusApplicationControl"`
	Rates   []rateRecord `xml:"Rates>Rate"`
}

type rateControl struct {
	RatePlanCode string `xml:"RatePlanCode,attr"`
	InvTypeCode  string `xml:"InvTypeCode,attr,omitempty"`
}

type rateRecord struct {
	Start   string        `xml:"Start,attr"`
	End     string        `xml:"End,attr"`
	Amounts []guestAmount `xml:"BaseByGuestAmts>BaseByGuestAmt"`
}

type guestAmount struct {
	NumberOfGuests int    `xml:"NumberOfGuests,attr"`
	AmountAfterTax string `xml:"AmountAfterTax,attr"`
}

// BuildRates validates the DTO and emits the payload XML.
func BuildRates(msg RateMessage, hdr HeaderContext) ([]byte, *htngerr.Error) {
	if err := msg.validate(hdr.Timestamp); err != nil {
		return nil, err
	}
	doc := rateNotifRQ{
		Xmlns:     nsOTA,
		EchoToken: hdr.echoToken(),
		TimeStamp: hdr.timestamp(),
		Version:   "1.0",
		NotifType: rateNotifTypes[msg.Operation],
		Messages:  rateMessages{HotelCode: msg.HotelCode},
	}
	for _, plan := range msg.Plans {
		block := rateAmountBlock{
			Control: rateControl{RatePlanCode: plan.RatePlanCode, InvTypeCode: plan.RoomTypeCode},
		}
		for _, rec := range plan.Records {
			wire := rateRecord{Start: formatDate(rec.Start), End: formatDate(rec.End)}
			for guests, amount := range map[int]string{1: rec.FirstGuest, 2: rec.SecondGuest, 3: rec.ThirdGuest, 4: rec.FourthGuest} {
				if amount != "" {
					wire.Amounts = append(wire.Amounts, guestAmount{NumberOfGuests: guests, AmountAfterTax: amount})
				}
			}
			sortGuestAmounts(wire.Amounts)
			block.Rates = append(block.Rates, wire)
		}
		doc.Messages.Items = append(doc.Messages.Items, block)
	}
	out, err := xml.Marshal(doc)
	if err != nil {
		return nil, htngerr.Wrap(htngerr.KindSOAPXML, "XML_PARSE_ERROR", "marshal rate payload", err)
	}
	return out, nil
}

func sortGuestAmounts(amounts []guestAmount) {
	sort.Slice(amounts, func(i, j int) bool {
		return amounts[i].NumberOfGuests < amounts[j].NumberOfGuests
	})
}

type rateNotifParsed struct {
	XMLName   xml.Name `xml:"http://www.opentravel.org/OTA/2003/05 OTA_HotelRateNotifRQ"`
	EchoToken string   `xml:"EchoToken,attr"`
	NotifType string   `xml:"RatePlanNotifType,attr"`
	Messages  struct {
		HotelCode string `xml:"HotelCode,attr"`
		Items     []struct {
			Control struct {
				RatePlanCode string `xml:"RatePlanCode,attr"`
				InvTypeCode  string `xml:"InvTypeCode,attr"`
			} `xml:"http://www.opentravel.org/OTA/2003/05 StatusApplicationControl"`
			Rates []struct {
				Start   string `xml:"Start,attr"`
				End     string `xml:"End,attr"`
				Amounts []struct {
					NumberOfGuests int    `xml:"NumberOfGuests,attr"`
					AmountAfterTax string `xml:"AmountAfterTax,attr"`
				} `xml:"http://www.opentravel.org/OTA/2003/05 BaseByGuestAmts>BaseByGuestAmt"`
			} `xml:"http://www.opentravel.org/OTA/2003/05 Rates>Rate"`
		} `xml:"http://www.opentravel.org/OTA/2003/05 RateAmountMessage"`
	} `xml:"http://www.opentravel.org/OTA/2003/05 RateAmountMessages"`
	Extensions []RawExtension `xml:",any"`
}

// ParseRates decodes a rate payload. Scope is dispatch metadata and comes
// back empty.
func ParseRates(payload []byte) (RateMessage, *htngerr.Error) {
	var doc rateNotifParsed
	if err := xml.Unmarshal(payload, &doc); err != nil {
		return RateMessage{}, htngerr.Wrap(htngerr.KindSOAPXML, "XML_PARSE_ERROR", "parse rate payload", err)
	}
	operation, ok := rateOperations[doc.NotifType]
	if !ok {
		return RateMessage{}, htngerr.Validation("unknown RatePlanNotifType: " + doc.NotifType)
	}
	msg := RateMessage{
		HotelCode: doc.Messages.HotelCode,
		Operation: operation,
	}
	for _, ext := range doc.Extensions {
		if ext.XMLName.Space != nsOTA {
			msg.Extensions = append(msg.Extensions, ext)
		}
	}
	for _, item := range doc.Messages.Items {
		plan := RatePlanBlock{
			RatePlanCode: item.Control.RatePlanCode,
			RoomTypeCode: item.Control.InvTypeCode,
		}
		for _, rate := range item.Rates {
			start, err := parseDate(rate.Start)
			if err != nil {
				return RateMessage{}, htngerr.Validation("invalid rate start date: " + rate.Start)
			}
			end, err := parseDate(rate.End)
			if err != nil {
				return RateMessage{}, htngerr.Validation("invalid rate end date: " + rate.End)
			}
			rec := RateRecord{Start: start, End: end}
			for _, amount := range rate.Amounts {
				switch amount.NumberOfGuests {
				case 1:
					rec.FirstGuest = amount.AmountAfterTax
				case 2:
					rec.SecondGuest = amount.AmountAfterTax
				case 3:
					rec.ThirdGuest = amount.AmountAfterTax
				case 4:
					rec.FourthGuest = amount.AmountAfterTax
				}
			}
			plan.Records = append(plan.Records, rec)
		}
		msg.Plans = append(msg.Plans, plan)
	}
	return msg, nil
}
